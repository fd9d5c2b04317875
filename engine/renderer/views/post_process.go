package views

import (
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

// RenderViewPostProcess copies the scene into the presented image through
// the post process shader.
type RenderViewPostProcess struct {
	Shader *resources.Shader
	Source framegraph.ResourceID
	Target framegraph.ResourceID

	viewport renderer.Viewport
}

func (vp *RenderViewPostProcess) Name() string {
	return "Post Process"
}

func (vp *RenderViewPostProcess) OnResizeRenderView(width, height uint32) {
	vp.viewport = renderer.FullViewport(width, height)
}

func (vp *RenderViewPostProcess) OnRenderRenderView(frame *Frame) renderer.PassFunc {
	return func(cl renderer.CommandList, table *renderer.PassResources) error {
		target, _ := table.Resource(vp.Target)
		err := pipeline(cl, frame, renderer.PipelineDesc{
			Shader:             vp.Shader,
			RenderTargetCount:  1,
			RenderTargetFormat: target.Desc.Format,
		})
		if err != nil {
			return err
		}
		cl.SetViewport(vp.viewport)

		rtv := table.View(vp.Target, 0)
		cl.ClearRenderTarget(rtv, [4]float32{0, 0, 0, 1})
		cl.SetRenderTargets([]renderer.ViewHandle{rtv}, 0)
		cl.BindTexture(TexSource, table.View(vp.Source, 0))
		cl.Draw(FullscreenVertexCount, 1)
		return nil
	}
}
