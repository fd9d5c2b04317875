package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

func TestVulkanFormat(t *testing.T) {
	f, err := vulkanFormat(gputypes.TextureFormatRGBA16Float)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatR16g16b16a16Sfloat, f)

	f, err = vulkanFormat(gputypes.TextureFormatDepth24Plus)
	require.NoError(t, err)
	assert.Equal(t, vk.FormatD32Sfloat, f)

	_, err = vulkanFormat(gputypes.TextureFormatUndefined)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImageUsage(t *testing.T) {
	color := imageUsage(gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding, gputypes.TextureFormatRGBA8Unorm)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferSrcBit|vk.ImageUsageSampledBit), color)

	depth := imageUsage(gputypes.TextureUsageRenderAttachment, gputypes.TextureFormatDepth32Float)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), depth)

	upload := imageUsage(gputypes.TextureUsageCopyDst|gputypes.TextureUsageTextureBinding, gputypes.TextureFormatRGBA32Float)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit), upload)
}

func TestViewAspect(t *testing.T) {
	sampled := framegraph.ViewDesc{Kind: framegraph.ViewShaderResource}
	target := framegraph.ViewDesc{Kind: framegraph.ViewDepthStencil}

	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), viewAspect(gputypes.TextureFormatRGBA8Unorm, sampled))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), viewAspect(gputypes.TextureFormatDepth24PlusStencil8, sampled))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), viewAspect(gputypes.TextureFormatDepth24PlusStencil8, target))
}

func TestViewType(t *testing.T) {
	assert.Equal(t, vk.ImageViewType2d, viewType(gputypes.TextureViewDimension2D, true))
	assert.Equal(t, vk.ImageViewTypeCube, viewType(gputypes.TextureViewDimensionUndefined, true))
	assert.Equal(t, vk.ImageViewType2d, viewType(gputypes.TextureViewDimensionUndefined, false))
	assert.Equal(t, vk.ImageViewTypeCube, viewType(gputypes.TextureViewDimensionCube, false))
}

func TestStateLayout(t *testing.T) {
	tests := []struct {
		state framegraph.ResourceState
		want  vk.ImageLayout
	}{
		{framegraph.StateUndefined, vk.ImageLayoutUndefined},
		{framegraph.StateRenderTarget, vk.ImageLayoutColorAttachmentOptimal},
		{framegraph.StateDepthWrite, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{framegraph.StateDepthRead, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{framegraph.StateDepthRead | framegraph.StatePixelShaderResource, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{framegraph.StatePixelShaderResource, vk.ImageLayoutShaderReadOnlyOptimal},
		{framegraph.StateShaderResource, vk.ImageLayoutShaderReadOnlyOptimal},
		{framegraph.StateUnorderedAccess, vk.ImageLayoutGeneral},
		{framegraph.StateCopySource, vk.ImageLayoutTransferSrcOptimal},
		{framegraph.StatePresent, vk.ImageLayoutTransferSrcOptimal},
		{framegraph.StateCopyDest, vk.ImageLayoutTransferDstOptimal},
		{framegraph.StateCommon, vk.ImageLayoutGeneral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stateLayout(tt.state), tt.state.String())
	}
}

func TestStateAccessAndStages(t *testing.T) {
	assert.Equal(t, vk.AccessFlags(0), stateAccess(framegraph.StateUndefined))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stateStages(framegraph.StateUndefined))

	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), stateAccess(framegraph.StatePixelShaderResource))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), stateStages(framegraph.StatePixelShaderResource))

	assert.Equal(t, vk.AccessFlags(vk.AccessColorAttachmentReadBit|vk.AccessColorAttachmentWriteBit), stateAccess(framegraph.StateRenderTarget))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), stateStages(framegraph.StateRenderTarget))

	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), stateStages(framegraph.StatePresent))
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), stateAccess(framegraph.StateCopyDest))
}

func TestTexelSize(t *testing.T) {
	assert.Equal(t, uint64(4), texelSize(gputypes.TextureFormatRGBA8Unorm))
	assert.Equal(t, uint64(16), texelSize(gputypes.TextureFormatRGBA32Float))
	assert.Zero(t, texelSize(gputypes.TextureFormatDepth32Float))
}

func TestRGBA32FExpandsChannels(t *testing.T) {
	img, err := resources.NewImage(2, 1, 3)
	require.NoError(t, err)
	img.SetPixel(0, 0, []float32{0.25, 0.5, 0.75})
	img.SetPixel(1, 0, []float32{1, 0, 0})

	out := rgba32f(img)
	require.Len(t, out, 2*16)
	at := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:])) }
	assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, []float32{at(0), at(1), at(2), at(3)})
	assert.Equal(t, []float32{1, 0, 0, 1}, []float32{at(4), at(5), at(6), at(7)})
}
