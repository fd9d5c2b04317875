package views

import (
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
)

/**
 * @brief Draws scene objects whose shader passes carry LightMode. The GBuffer
 * pass uses it with "Deferred" and three targets, the forward pass with
 * "Forward" and the lit scene target.
 */
type RenderViewWorld struct {
	name      string
	LightMode string
	Targets   []framegraph.ResourceID
	Depth     framegraph.ResourceID
	// Clear clears targets and depth before drawing.
	Clear bool
	// Irradiance and PreFilter are bound when UseIBL is set.
	UseIBL     bool
	Irradiance framegraph.ResourceID
	PreFilter  framegraph.ResourceID

	viewport renderer.Viewport
}

func NewRenderViewWorld(name, lightMode string, targets []framegraph.ResourceID, depth framegraph.ResourceID) *RenderViewWorld {
	return &RenderViewWorld{
		name:      name,
		LightMode: lightMode,
		Targets:   targets,
		Depth:     depth,
	}
}

func (vw *RenderViewWorld) Name() string {
	return vw.name
}

func (vw *RenderViewWorld) OnResizeRenderView(width, height uint32) {
	vw.viewport = renderer.FullViewport(width, height)
}

func (vw *RenderViewWorld) OnRenderRenderView(frame *Frame) renderer.PassFunc {
	return func(cl renderer.CommandList, table *renderer.PassResources) error {
		cl.SetViewport(vw.viewport)

		colors := make([]renderer.ViewHandle, len(vw.Targets))
		for i, t := range vw.Targets {
			colors[i] = table.View(t, 0)
		}
		depth := table.View(vw.Depth, 0)
		if vw.Clear {
			for i, t := range vw.Targets {
				res, _ := table.Resource(t)
				cl.ClearRenderTarget(colors[i], res.Desc.Clear.Color)
			}
			ds, _ := table.Resource(vw.Depth)
			cl.ClearDepthStencil(depth, ds.Desc.Clear.Depth, ds.Desc.Clear.Stencil)
		}
		cl.SetRenderTargets(colors, depth)

		var textures map[uint32]renderer.ViewHandle
		if vw.UseIBL {
			textures = iblTextures(frame, table, vw.Irradiance, vw.PreFilter)
		}
		return DrawObjects(cl, frame, vw.LightMode, len(colors), ColorFormat, DepthFormat, textures)
	}
}
