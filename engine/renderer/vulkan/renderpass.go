package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

const maxColorAttachments = 8

/**
 * @brief Identifies a render pass by its attachment formats and load
 * behaviour. Pipelines only care about the formats; command lists pick the
 * clear bits per pass.
 */
type renderPassKey struct {
	colors        [maxColorAttachments]vk.Format
	colorCount    int
	colorClear    uint8
	depth         vk.Format
	depthClear    bool
	depthReadOnly bool
}

func (k renderPassKey) hasDepth() bool {
	return k.depth != vk.FormatUndefined
}

// compatible strips the load behaviour so pipelines share one key per
// format set.
func (k renderPassKey) compatible() renderPassKey {
	k.colorClear = 0
	k.depthClear = false
	return k
}

func (k renderPassKey) depthLayout() vk.ImageLayout {
	if k.depthReadOnly {
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutDepthStencilAttachmentOptimal
}

// attachments describes every attachment. Images enter and leave the pass in
// the layout of their current state; barriers do every other transition.
func (k renderPassKey) attachments() []vk.AttachmentDescription {
	out := make([]vk.AttachmentDescription, 0, k.colorCount+1)
	for i := 0; i < k.colorCount; i++ {
		load := vk.AttachmentLoadOpLoad
		if k.colorClear&(1<<i) != 0 {
			load = vk.AttachmentLoadOpClear
		}
		out = append(out, vk.AttachmentDescription{
			Format:         k.colors[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         load,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	if k.hasDepth() {
		load := vk.AttachmentLoadOpLoad
		store := vk.AttachmentStoreOpStore
		if k.depthClear {
			load = vk.AttachmentLoadOpClear
		}
		if k.depthReadOnly {
			store = vk.AttachmentStoreOpDontCare
		}
		out = append(out, vk.AttachmentDescription{
			Format:         k.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         load,
			StoreOp:        store,
			StencilLoadOp:  load,
			StencilStoreOp: store,
			InitialLayout:  k.depthLayout(),
			FinalLayout:    k.depthLayout(),
		})
	}
	return out
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	key    renderPassKey
}

func RenderpassCreate(context *VulkanContext, key renderPassKey) (*VulkanRenderpass, error) {
	colorRefs := make([]vk.AttachmentReference, key.colorCount)
	for i := range colorRefs {
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.hasDepth() {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.colorCount),
			Layout:     key.depthLayout(),
		}
	}
	attachments := key.attachments()
	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	rp := &VulkanRenderpass{key: key}
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(context.Device.LogicalDevice, &createInfo, context.Allocator, &rp.Handle)); err != nil {
		return nil, fmt.Errorf("render pass with %d color attachments: %w", key.colorCount, err)
	}
	return rp, nil
}

func (vr *VulkanRenderpass) Destroy(context *VulkanContext) {
	if vr.Handle != vk.NullRenderPass {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = vk.NullRenderPass
	}
}

func (vr *VulkanRenderpass) Begin(commandBuffer *VulkanCommandBuffer, framebuffer *VulkanFramebuffer, clearValues []vk.ClearValue) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: framebuffer.Width, Height: framebuffer.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) End(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
