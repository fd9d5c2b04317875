package vulkan

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
)

var ErrUnsupportedFormat = errors.New("texture format has no Vulkan equivalent")

var formats = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB10A2Unorm:         vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRG11B10Ufloat:        vk.FormatB10g11r11UfloatPack32,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
}

func vulkanFormat(format gputypes.TextureFormat) (vk.Format, error) {
	if f, ok := formats[format]; ok {
		return f, nil
	}
	return vk.FormatUndefined, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

func imageUsage(usage gputypes.TextureUsage, format gputypes.TextureFormat) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usage&gputypes.TextureUsageCopySrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usage&gputypes.TextureUsageCopyDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if usage&gputypes.TextureUsageTextureBinding != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&gputypes.TextureUsageStorageBinding != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if usage&gputypes.TextureUsageRenderAttachment != 0 {
		if format.IsDepthStencil() {
			flags |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			// render targets can always be read back
			flags |= vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit
		}
	}
	return vk.ImageUsageFlags(flags)
}

// formatAspect is the full aspect of an image of format.
func formatAspect(format gputypes.TextureFormat) vk.ImageAspectFlags {
	switch {
	case format.HasDepth() && format.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case format.HasDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case format.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// viewAspect narrows the aspect for a view. Sampled views of depth/stencil
// images may only see one aspect.
func viewAspect(format gputypes.TextureFormat, desc framegraph.ViewDesc) vk.ImageAspectFlags {
	if !format.IsDepthStencil() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	switch desc.Aspect {
	case gputypes.TextureAspectDepthOnly:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case gputypes.TextureAspectStencilOnly:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	if desc.Kind == framegraph.ViewShaderResource && format.HasDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return formatAspect(format)
}

func viewType(dimension gputypes.TextureViewDimension, cube bool) vk.ImageViewType {
	switch dimension {
	case gputypes.TextureViewDimension1D:
		return vk.ImageViewType1d
	case gputypes.TextureViewDimension2DArray:
		return vk.ImageViewType2dArray
	case gputypes.TextureViewDimensionCube:
		return vk.ImageViewTypeCube
	case gputypes.TextureViewDimensionCubeArray:
		return vk.ImageViewTypeCubeArray
	case gputypes.TextureViewDimension3D:
		return vk.ImageViewType3d
	case gputypes.TextureViewDimensionUndefined:
		if cube {
			return vk.ImageViewTypeCube
		}
	}
	return vk.ImageViewType2d
}

// stateLayout maps a resource state to the image layout it implies. There is
// no swapchain, so Present is the layout the readback copies from.
func stateLayout(state framegraph.ResourceState) vk.ImageLayout {
	switch {
	case state == framegraph.StateUndefined:
		return vk.ImageLayoutUndefined
	case state&framegraph.StateDepthWrite != 0:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case state&framegraph.StateDepthRead != 0:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case state&framegraph.StateRenderTarget != 0:
		return vk.ImageLayoutColorAttachmentOptimal
	case state&framegraph.StateUnorderedAccess != 0:
		return vk.ImageLayoutGeneral
	case state&framegraph.StateShaderResource != 0:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case state&(framegraph.StateCopySource|framegraph.StatePresent) != 0:
		return vk.ImageLayoutTransferSrcOptimal
	case state&framegraph.StateCopyDest != 0:
		return vk.ImageLayoutTransferDstOptimal
	}
	return vk.ImageLayoutGeneral
}

func stateAccess(state framegraph.ResourceState) vk.AccessFlags {
	var access vk.AccessFlagBits
	if state&framegraph.StateRenderTarget != 0 {
		access |= vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit
	}
	if state&framegraph.StateDepthWrite != 0 {
		access |= vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit
	}
	if state&framegraph.StateDepthRead != 0 {
		access |= vk.AccessDepthStencilAttachmentReadBit
	}
	if state&framegraph.StateShaderResource != 0 {
		access |= vk.AccessShaderReadBit
	}
	if state&framegraph.StateUnorderedAccess != 0 {
		access |= vk.AccessShaderReadBit | vk.AccessShaderWriteBit
	}
	if state&(framegraph.StateCopySource|framegraph.StatePresent) != 0 {
		access |= vk.AccessTransferReadBit
	}
	if state&framegraph.StateCopyDest != 0 {
		access |= vk.AccessTransferWriteBit
	}
	return vk.AccessFlags(access)
}

// stateStages is where in the pipeline a state is used. Undefined maps to
// the top of the pipe so it works as a source stage.
func stateStages(state framegraph.ResourceState) vk.PipelineStageFlags {
	var stages vk.PipelineStageFlagBits
	if state&framegraph.StateRenderTarget != 0 {
		stages |= vk.PipelineStageColorAttachmentOutputBit
	}
	if state&(framegraph.StateDepthWrite|framegraph.StateDepthRead) != 0 {
		stages |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	if state&(framegraph.StatePixelShaderResource|framegraph.StateUnorderedAccess) != 0 {
		stages |= vk.PipelineStageFragmentShaderBit
	}
	if state&framegraph.StateNonPixelShaderResource != 0 {
		stages |= vk.PipelineStageVertexShaderBit
	}
	if state&(framegraph.StateCopySource|framegraph.StateCopyDest|framegraph.StatePresent) != 0 {
		stages |= vk.PipelineStageTransferBit
	}
	if stages == 0 {
		stages = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(stages)
}

var texelSizes = map[gputypes.TextureFormat]uint64{
	gputypes.TextureFormatR8Unorm:        1,
	gputypes.TextureFormatR32Float:       4,
	gputypes.TextureFormatRG16Float:      4,
	gputypes.TextureFormatRGBA8Unorm:     4,
	gputypes.TextureFormatRGBA8UnormSrgb: 4,
	gputypes.TextureFormatBGRA8Unorm:     4,
	gputypes.TextureFormatBGRA8UnormSrgb: 4,
	gputypes.TextureFormatRGB10A2Unorm:   4,
	gputypes.TextureFormatRG11B10Ufloat:  4,
	gputypes.TextureFormatRGBA16Float:    8,
	gputypes.TextureFormatRGBA32Float:    16,
}

// texelSize is the byte size of one texel of a color format that can be read
// back, or 0.
func texelSize(format gputypes.TextureFormat) uint64 {
	return texelSizes[format]
}
