package views

import (
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

// SkyboxVertexCount is the vertex count of the unit cube drawn around the camera.
const SkyboxVertexCount = 36

/**
 * @brief Draws the environment cube behind the lit scene. Nothing is drawn
 * while the environment is the default one.
 */
type RenderViewSkybox struct {
	Shader *resources.Shader
	Target framegraph.ResourceID
	Depth  framegraph.ResourceID

	viewport renderer.Viewport
}

func NewRenderViewSkybox(shader *resources.Shader, target, depth framegraph.ResourceID) *RenderViewSkybox {
	return &RenderViewSkybox{
		Shader: shader,
		Target: target,
		Depth:  depth,
	}
}

func (vs *RenderViewSkybox) Name() string {
	return "Skybox"
}

func (vs *RenderViewSkybox) OnResizeRenderView(width, height uint32) {
	vs.viewport = renderer.FullViewport(width, height)
}

func (vs *RenderViewSkybox) OnRenderRenderView(frame *Frame) renderer.PassFunc {
	return func(cl renderer.CommandList, table *renderer.PassResources) error {
		if frame.DefaultEnvironment {
			return nil
		}
		err := pipeline(cl, frame, renderer.PipelineDesc{
			Shader:             vs.Shader,
			RenderTargetCount:  1,
			RenderTargetFormat: ColorFormat,
			DepthFormat:        DepthFormat,
		})
		if err != nil {
			return err
		}
		cl.SetViewport(vs.viewport)
		cl.SetRenderTargets([]renderer.ViewHandle{table.View(vs.Target, 0)}, table.View(vs.Depth, 0))
		cl.BindTexture(TexEnvironment, frame.Environment)
		cl.BindConstants(SlotPerCamera, frame.Constants, 0)
		cl.Draw(SkyboxVertexCount, 1)
		return nil
	}
}
