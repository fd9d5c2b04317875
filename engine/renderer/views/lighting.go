package views

import (
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

// FullscreenVertexCount draws two triangles covering the target.
const FullscreenVertexCount = 6

// RenderViewLighting resolves the GBuffer into lit color with a full screen draw.
type RenderViewLighting struct {
	Shader     *resources.Shader
	GBuffers   [3]framegraph.ResourceID
	Depth      framegraph.ResourceID
	Irradiance framegraph.ResourceID
	PreFilter  framegraph.ResourceID
	Target     framegraph.ResourceID

	viewport renderer.Viewport
}

func (vl *RenderViewLighting) Name() string {
	return "Defer Lighting"
}

func (vl *RenderViewLighting) OnResizeRenderView(width, height uint32) {
	vl.viewport = renderer.FullViewport(width, height)
}

func (vl *RenderViewLighting) OnRenderRenderView(frame *Frame) renderer.PassFunc {
	return func(cl renderer.CommandList, table *renderer.PassResources) error {
		cl.SetViewport(vl.viewport)

		rt, _ := table.Resource(vl.Target)
		target := table.View(vl.Target, 0)
		cl.ClearRenderTarget(target, rt.Desc.Clear.Color)
		// depth view 0 is the read-only DSV, view 1 the shader resource
		cl.SetRenderTargets([]renderer.ViewHandle{target}, table.View(vl.Depth, 0))

		err := pipeline(cl, frame, renderer.PipelineDesc{
			Shader:             vl.Shader,
			RenderTargetCount:  1,
			RenderTargetFormat: ColorFormat,
			DepthFormat:        DepthFormat,
		})
		if err != nil {
			return err
		}

		textures := iblTextures(frame, table, vl.Irradiance, vl.PreFilter)
		textures[TexGBuffer0] = table.View(vl.GBuffers[0], 0)
		textures[TexGBuffer1] = table.View(vl.GBuffers[1], 0)
		textures[TexGBuffer2] = table.View(vl.GBuffers[2], 0)
		textures[TexDepth] = table.View(vl.Depth, 1)
		bindTextures(cl, textures)

		cl.BindConstants(SlotLightArray, frame.Constants, systems.LightArrayOffset)
		cl.BindConstants(SlotPerCamera, frame.Constants, systems.CameraConstantsOffset)
		cl.Draw(FullscreenVertexCount, 1)
		return nil
	}
}
