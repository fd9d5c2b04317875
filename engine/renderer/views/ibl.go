package views

import (
	"bytes"
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

const (
	IrradianceMapSize     = 256
	PreFilterMapSize      = 512
	PreFilterMapMipLevels = 5

	IBLConstantsStride = 256
	// six face quads followed by one mip info block per prefilter mip
	IBLConstantsSize = (6 + PreFilterMapMipLevels) * IBLConstantsStride
)

/**
 * @brief Image based lighting maps owned by one frame slot. The maps are
 * re-rendered only when the resolved environment changes.
 */
type IBLData struct {
	IrradianceMap framegraph.Handle
	PreFilterMap  framegraph.Handle
	Constants     renderer.BufferHandle

	LastEnvironment *resources.TextureCube
	// Updates counts how often the maps were rendered.
	Updates int
}

type quadPositions struct {
	Corners [4]mgl32.Vec4
}

type mipInfo struct {
	Roughness  float32
	Resolution float32
}

// IBLConstants builds the contents of IBLData.Constants: the corners of each
// cube face, then roughness and resolution of every prefilter mip.
func IBLConstants() []byte {
	out := make([]byte, IBLConstantsSize)
	for f := resources.FacePositiveX; f <= resources.FaceNegativeZ; f++ {
		origin, right, up := resources.FaceBasis(f)
		q := quadPositions{Corners: [4]mgl32.Vec4{
			origin.Vec4(1),
			origin.Add(right).Vec4(1),
			origin.Add(up).Vec4(1),
			origin.Add(right).Add(up).Vec4(1),
		}}
		copy(out[int(f)*IBLConstantsStride:], encode(q))
	}
	for mip := 0; mip < PreFilterMapMipLevels; mip++ {
		info := mipInfo{
			Roughness:  float32(mip) / float32(PreFilterMapMipLevels-1),
			Resolution: float32(int(PreFilterMapSize) >> mip),
		}
		copy(out[(6+mip)*IBLConstantsStride:], encode(info))
	}
	return out
}

func encode(v any) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// IrradianceViews lists one render target view per cube face.
func IrradianceViews() []framegraph.ViewDesc {
	views := make([]framegraph.ViewDesc, 0, 6)
	for face := uint32(0); face < 6; face++ {
		views = append(views, framegraph.RenderTargetSliceView(ColorFormat, 0, face))
	}
	return views
}

// PreFilterViews lists render target views ordered mip-major, face-minor.
func PreFilterViews() []framegraph.ViewDesc {
	views := make([]framegraph.ViewDesc, 0, 6*PreFilterMapMipLevels)
	for mip := uint32(0); mip < PreFilterMapMipLevels; mip++ {
		for face := uint32(0); face < 6; face++ {
			views = append(views, framegraph.RenderTargetSliceView(ColorFormat, mip, face))
		}
	}
	return views
}

type RenderViewIBL struct {
	IrradianceShader *resources.Shader
	PreFilterShader  *resources.Shader
	Irradiance       framegraph.ResourceID
	PreFilter        framegraph.ResourceID
	// Data returns the IBL state of the slot being recorded.
	Data func() *IBLData
}

func (vi *RenderViewIBL) Name() string {
	return "IBL"
}

// OnResizeRenderView is a no-op: IBL maps have a fixed size.
func (vi *RenderViewIBL) OnResizeRenderView(width, height uint32) {}

func (vi *RenderViewIBL) OnRenderRenderView(frame *Frame) renderer.PassFunc {
	return func(cl renderer.CommandList, table *renderer.PassResources) error {
		data := vi.Data()
		env := frame.Context.Environment
		if data.LastEnvironment == env {
			return nil
		}
		data.LastEnvironment = env
		if frame.DefaultEnvironment {
			return nil
		}
		data.Updates++

		// irradiance
		err := pipeline(cl, frame, renderer.PipelineDesc{
			Shader:             vi.IrradianceShader,
			RenderTargetCount:  1,
			RenderTargetFormat: ColorFormat,
		})
		if err != nil {
			return err
		}
		cl.SetViewport(renderer.FullViewport(IrradianceMapSize, IrradianceMapSize))
		cl.BindTexture(TexEnvironment, frame.Environment)
		for face := 0; face < 6; face++ {
			cl.SetRenderTargets([]renderer.ViewHandle{table.View(vi.Irradiance, face)}, 0)
			cl.BindConstants(SlotIBLFace, data.Constants, uint64(face*IBLConstantsStride))
			cl.Draw(FullscreenVertexCount, 1)
		}

		// prefilter
		err = pipeline(cl, frame, renderer.PipelineDesc{
			Shader:             vi.PreFilterShader,
			RenderTargetCount:  1,
			RenderTargetFormat: ColorFormat,
		})
		if err != nil {
			return err
		}
		cl.BindTexture(TexEnvironment, frame.Environment)
		size := uint32(PreFilterMapSize)
		for mip := 0; mip < PreFilterMapMipLevels; mip++ {
			cl.BindConstants(SlotMipInfo, data.Constants, uint64((6+mip)*IBLConstantsStride))
			cl.SetViewport(renderer.FullViewport(size, size))
			for face := 0; face < 6; face++ {
				cl.BindConstants(SlotIBLFace, data.Constants, uint64(face*IBLConstantsStride))
				cl.SetRenderTargets([]renderer.ViewHandle{table.View(vi.PreFilter, 6*mip+face)}, 0)
				cl.Draw(FullscreenVertexCount, 1)
			}
			size /= 2
		}
		return nil
	}
}
