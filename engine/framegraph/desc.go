package framegraph

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Handle is an opaque backend resource handle. Zero is never a valid handle.
type Handle uint64

// TextureDesc describes a temporal resource. It is comparable so the resource
// pool can key free lists on it.
type TextureDesc struct {
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
	MipLevels          uint32
	Dimension          gputypes.TextureDimension
	Format             gputypes.TextureFormat
	Usage              gputypes.TextureUsage
	Cube               bool
	Clear              ClearValue
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

// Texture2D describes a single-mip 2D texture.
func Texture2D(width, height uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) TextureDesc {
	return TextureDesc{
		Width:              width,
		Height:             height,
		DepthOrArrayLayers: 1,
		MipLevels:          1,
		Dimension:          gputypes.TextureDimension2D,
		Format:             format,
		Usage:              usage,
	}
}

// TextureCube describes a six-layer cube texture.
func TextureCube(size, mips uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) TextureDesc {
	return TextureDesc{
		Width:              size,
		Height:             size,
		DepthOrArrayLayers: 6,
		MipLevels:          mips,
		Dimension:          gputypes.TextureDimension2D,
		Format:             format,
		Usage:              usage,
		Cube:               true,
	}
}

func (d TextureDesc) WithClearColor(c [4]float32) TextureDesc {
	d.Clear.Color = c
	return d
}

func (d TextureDesc) WithClearDepth(depth float32, stencil uint8) TextureDesc {
	d.Clear.Depth = depth
	d.Clear.Stencil = stencil
	return d
}

// Descriptor converts the description into the backend-neutral GPU descriptor.
func (d TextureDesc) Descriptor(label string) gputypes.TextureDescriptor {
	return gputypes.TextureDescriptor{
		Label: label,
		Size: gputypes.Extent3D{
			Width:              d.Width,
			Height:             d.Height,
			DepthOrArrayLayers: d.DepthOrArrayLayers,
		},
		MipLevelCount: d.MipLevels,
		SampleCount:   1,
		Dimension:     d.Dimension,
		Format:        d.Format,
		Usage:         d.Usage,
	}
}

func (d TextureDesc) String() string {
	kind := "2d"
	if d.Cube {
		kind = "cube"
	}
	return fmt.Sprintf("%s %dx%dx%d mips=%d format=%v", kind, d.Width, d.Height, d.DepthOrArrayLayers, d.MipLevels, d.Format)
}

type ViewKind uint8

const (
	ViewShaderResource ViewKind = iota
	ViewRenderTarget
	ViewDepthStencil
	ViewDepthStencilReadOnly
	ViewUnorderedAccess
)

func (k ViewKind) String() string {
	switch k {
	case ViewShaderResource:
		return "srv"
	case ViewRenderTarget:
		return "rtv"
	case ViewDepthStencil:
		return "dsv"
	case ViewDepthStencilReadOnly:
		return "dsv-ro"
	case ViewUnorderedAccess:
		return "uav"
	}
	return "unknown"
}

// ViewDesc selects an interpretation of a resource. A zero MipLevelCount or
// ArrayLayerCount means "all remaining".
type ViewDesc struct {
	Kind            ViewKind
	Format          gputypes.TextureFormat
	Dimension       gputypes.TextureViewDimension
	Aspect          gputypes.TextureAspect
	BaseMipLevel    uint32
	MipLevelCount   uint32
	BaseArrayLayer  uint32
	ArrayLayerCount uint32
}

func ShaderResourceView(format gputypes.TextureFormat) ViewDesc {
	return ViewDesc{
		Kind:      ViewShaderResource,
		Format:    format,
		Dimension: gputypes.TextureViewDimension2D,
		Aspect:    gputypes.TextureAspectAll,
	}
}

// DepthShaderResourceView samples the depth aspect of a depth/stencil texture.
func DepthShaderResourceView(format gputypes.TextureFormat) ViewDesc {
	v := ShaderResourceView(format)
	v.Aspect = gputypes.TextureAspectDepthOnly
	return v
}

func CubeShaderResourceView(format gputypes.TextureFormat) ViewDesc {
	return ViewDesc{
		Kind:      ViewShaderResource,
		Format:    format,
		Dimension: gputypes.TextureViewDimensionCube,
		Aspect:    gputypes.TextureAspectAll,
	}
}

func RenderTargetView(format gputypes.TextureFormat) ViewDesc {
	return ViewDesc{
		Kind:          ViewRenderTarget,
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	}
}

// RenderTargetSliceView targets one mip of one array layer, e.g. a cube face.
func RenderTargetSliceView(format gputypes.TextureFormat, mip, layer uint32) ViewDesc {
	return ViewDesc{
		Kind:            ViewRenderTarget,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  layer,
		ArrayLayerCount: 1,
	}
}

func DepthStencilView(format gputypes.TextureFormat) ViewDesc {
	return ViewDesc{
		Kind:          ViewDepthStencil,
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	}
}

func DepthStencilReadOnlyView(format gputypes.TextureFormat) ViewDesc {
	v := DepthStencilView(format)
	v.Kind = ViewDepthStencilReadOnly
	return v
}

func (v ViewDesc) String() string {
	return fmt.Sprintf("%s mip=%d+%d layer=%d+%d", v.Kind, v.BaseMipLevel, v.MipLevelCount, v.BaseArrayLayer, v.ArrayLayerCount)
}
