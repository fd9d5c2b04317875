package vulkan

import (
	"fmt"

	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
)

type VulkanImage struct {
	Label  string
	Handle vk.Image
	Memory vk.DeviceMemory
	Desc   framegraph.TextureDesc
	Format vk.Format
}

func NewImage(context *VulkanContext, label string, desc framegraph.TextureDesc) (*VulkanImage, error) {
	format, err := vulkanFormat(desc.Format)
	if err != nil {
		return nil, fmt.Errorf("image '%s': %w", label, err)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("image '%s' has an empty extent %s", label, desc)
	}
	img := &VulkanImage{Label: label, Desc: desc, Format: format}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     max(desc.MipLevels, 1),
		ArrayLayers:   max(desc.DepthOrArrayLayers, 1),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc.Usage, desc.Format),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.Cube {
		imageCreateInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	if err := check("vkCreateImage", vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &img.Handle)); err != nil {
		return nil, fmt.Errorf("image '%s': %w", label, err)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, img.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryType < 0 {
		img.Destroy(context)
		return nil, fmt.Errorf("image '%s': no device local memory type", label)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &img.Memory)); err != nil {
		img.Destroy(context)
		return nil, fmt.Errorf("image '%s': %w", label, err)
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(context.Device.LogicalDevice, img.Handle, img.Memory, 0)); err != nil {
		img.Destroy(context)
		return nil, fmt.Errorf("image '%s': %w", label, err)
	}
	return img, nil
}

// subresourceRange covers every mip and layer of the image.
func (img *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     formatAspect(img.Desc.Format),
		BaseMipLevel:   0,
		LevelCount:     max(img.Desc.MipLevels, 1),
		BaseArrayLayer: 0,
		LayerCount:     max(img.Desc.DepthOrArrayLayers, 1),
	}
}

// barrier transitions the whole image between two resource states.
func (img *VulkanImage) barrier(before, after framegraph.ResourceState) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       stateAccess(before),
		DstAccessMask:       stateAccess(after),
		OldLayout:           stateLayout(before),
		NewLayout:           stateLayout(after),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange:    img.subresourceRange(),
	}
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	if img.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, img.Handle, context.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, img.Memory, context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

type VulkanImageView struct {
	Handle vk.ImageView
	Image  *VulkanImage
	Desc   framegraph.ViewDesc
	Format vk.Format
	// Width and Height are the extent of the viewed mip.
	Width  uint32
	Height uint32
}

func NewImageView(context *VulkanContext, img *VulkanImage, desc framegraph.ViewDesc) (*VulkanImageView, error) {
	viewFormat := desc.Format
	if viewFormat == gputypes.TextureFormatUndefined {
		viewFormat = img.Desc.Format
	}
	format, err := vulkanFormat(viewFormat)
	if err != nil {
		return nil, err
	}
	mips := max(img.Desc.MipLevels, 1)
	layers := max(img.Desc.DepthOrArrayLayers, 1)
	if desc.BaseMipLevel >= mips || desc.BaseArrayLayer >= layers {
		return nil, fmt.Errorf("view %s is outside image '%s' (%s)", desc, img.Label, img.Desc)
	}
	levelCount := desc.MipLevelCount
	if levelCount == 0 {
		levelCount = mips - desc.BaseMipLevel
	}
	layerCount := desc.ArrayLayerCount
	if layerCount == 0 {
		layerCount = layers - desc.BaseArrayLayer
	}

	view := &VulkanImageView{
		Image:  img,
		Desc:   desc,
		Format: format,
		Width:  max(img.Desc.Width>>desc.BaseMipLevel, 1),
		Height: max(img.Desc.Height>>desc.BaseMipLevel, 1),
	}
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType(desc.Dimension, img.Desc.Cube && layerCount == 6),
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     viewAspect(viewFormat, desc),
			BaseMipLevel:   desc.BaseMipLevel,
			LevelCount:     levelCount,
			BaseArrayLayer: desc.BaseArrayLayer,
			LayerCount:     layerCount,
		},
	}
	if err := check("vkCreateImageView", vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view.Handle)); err != nil {
		return nil, fmt.Errorf("view of '%s': %w", img.Label, err)
	}
	return view, nil
}

func (v *VulkanImageView) Destroy(context *VulkanContext) {
	if v.Handle != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, v.Handle, context.Allocator)
		v.Handle = vk.NullImageView
	}
}
