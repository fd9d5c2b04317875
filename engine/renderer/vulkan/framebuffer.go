package vulkan

import (
	vk "github.com/goki/vulkan"
)

type framebufferKey struct {
	renderPass  vk.RenderPass
	attachments [maxColorAttachments + 1]vk.ImageView
	count       int
}

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Width       uint32
	Height      uint32
	Attachments []vk.ImageView
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	fb := &VulkanFramebuffer{
		Width:       width,
		Height:      height,
		Attachments: append([]vk.ImageView(nil), attachments...),
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(fb.Attachments)),
		PAttachments:    fb.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(context.Device.LogicalDevice, &createInfo, context.Allocator, &fb.Handle)); err != nil {
		return nil, err
	}
	return fb, nil
}

// uses reports whether view is one of the attachments.
func (vfb *VulkanFramebuffer) uses(view vk.ImageView) bool {
	for _, a := range vfb.Attachments {
		if a == view {
			return true
		}
	}
	return false
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
		vfb.Handle = vk.NullFramebuffer
	}
	vfb.Attachments = nil
}
