package views

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/systems"
)

// Constant buffer slots shared by the standard pipeline shaders.
const (
	SlotPerObject  uint32 = 0
	SlotPerCamera  uint32 = 1
	SlotLightArray uint32 = 2
	SlotIBLFace    uint32 = 3
	SlotMipInfo    uint32 = 4
)

// Texture slots shared by the standard pipeline shaders.
const (
	TexGBuffer0 uint32 = iota
	TexGBuffer1
	TexGBuffer2
	TexDepth
	TexIrradiance
	TexPreFilter
	TexEnvironment
	TexSource
)

const (
	ColorFormat = gputypes.TextureFormatRGBA32Float
	DepthFormat = gputypes.TextureFormatDepth24PlusStencil8
)

// PipelineSource hands out cached pipeline state objects.
type PipelineSource interface {
	Pipeline(desc renderer.PipelineDesc) (renderer.PipelineHandle, error)
}

/**
 * @brief Per-frame state every render view reads while recording its pass.
 */
type Frame struct {
	Context *systems.RenderContext
	// Constants is the slot's frame constant buffer.
	Constants renderer.BufferHandle
	Pipelines PipelineSource
	// Environment is a cube view of Context.Environment.
	Environment renderer.ViewHandle
	// DefaultEnvironment is set when no scene provides a skybox.
	DefaultEnvironment bool
}

/**
 * @brief A render view records one pass of the graph. Views are created once
 * and asked for a fresh callback every frame.
 */
type RenderView interface {
	Name() string
	OnResizeRenderView(width, height uint32)
	OnRenderRenderView(frame *Frame) renderer.PassFunc
}

func pipeline(cl renderer.CommandList, frame *Frame, desc renderer.PipelineDesc) error {
	if desc.Shader == nil {
		return fmt.Errorf("pipeline for pass %d has no shader", desc.Pass)
	}
	pso, err := frame.Pipelines.Pipeline(desc)
	if err != nil {
		return err
	}
	cl.SetPipeline(pso)
	return nil
}

// DrawObjects draws every bucket whose shader has passes tagged with
// lightMode, once per matching pass.
func DrawObjects(cl renderer.CommandList, frame *Frame, lightMode string, rtCount int, rtFormat, depthFormat gputypes.TextureFormat, textures map[uint32]renderer.ViewHandle) error {
	rc := frame.Context
	for _, shader := range rc.Shaders() {
		passes := shader.PassesWithTag(resources.ShaderTagLightMode, lightMode)
		if len(passes) == 0 {
			continue
		}
		for _, material := range rc.Materials(shader) {
			for _, entry := range rc.Entries(shader, material) {
				constants, ok := rc.Constants(entry.Entity)
				if !ok {
					return fmt.Errorf("entity %d has no constants", entry.Entity)
				}
				cl.BindConstants(SlotPerObject, frame.Constants, constants.Offset)
				cl.BindConstants(SlotPerCamera, frame.Constants, systems.CameraConstantsOffset)
				cl.BindConstants(SlotLightArray, frame.Constants, systems.LightArrayOffset)
				bindTextures(cl, textures)
				for _, pass := range passes {
					err := pipeline(cl, frame, renderer.PipelineDesc{
						Shader:             shader,
						Pass:               pass,
						RenderTargetCount:  rtCount,
						RenderTargetFormat: rtFormat,
						DepthFormat:        depthFormat,
					})
					if err != nil {
						return err
					}
					cl.DrawMesh(entry.Mesh, entry.SubMesh, 1)
				}
			}
		}
	}
	return nil
}

// bindTextures binds in slot order so recordings are deterministic.
func bindTextures(cl renderer.CommandList, textures map[uint32]renderer.ViewHandle) {
	for slot := TexGBuffer0; slot <= TexSource; slot++ {
		if view, ok := textures[slot]; ok {
			cl.BindTexture(slot, view)
		}
	}
}

// iblTextures picks the image based lighting inputs of a pass: the maps the
// IBL pass rendered, or the environment itself while it is the default one.
func iblTextures(frame *Frame, table *renderer.PassResources, irradiance, prefilter framegraph.ResourceID) map[uint32]renderer.ViewHandle {
	if frame.DefaultEnvironment {
		return map[uint32]renderer.ViewHandle{
			TexIrradiance: frame.Environment,
			TexPreFilter:  frame.Environment,
		}
	}
	return map[uint32]renderer.ViewHandle{
		TexIrradiance: table.View(irradiance, 0),
		TexPreFilter:  table.View(prefilter, 0),
	}
}
