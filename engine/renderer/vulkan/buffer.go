package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// VulkanBuffer is a host visible, coherent buffer mapped for its lifetime.
type VulkanBuffer struct {
	Label  string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped unsafe.Pointer
}

func NewBuffer(context *VulkanContext, label string, size uint64, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("buffer '%s' has no size", label)
	}
	buf := &VulkanBuffer{Label: label, Size: size}
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &buf.Handle)); err != nil {
		return nil, fmt.Errorf("buffer '%s': %w", label, err)
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buf.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if memoryType < 0 {
		buf.Destroy(context)
		return nil, fmt.Errorf("buffer '%s': no host visible memory type", label)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &buf.Memory)); err != nil {
		buf.Destroy(context)
		return nil, fmt.Errorf("buffer '%s': %w", label, err)
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(context.Device.LogicalDevice, buf.Handle, buf.Memory, 0)); err != nil {
		buf.Destroy(context)
		return nil, fmt.Errorf("buffer '%s': %w", label, err)
	}
	if err := check("vkMapMemory", vk.MapMemory(context.Device.LogicalDevice, buf.Memory, 0, vk.DeviceSize(size), 0, &buf.mapped)); err != nil {
		buf.Destroy(context)
		return nil, fmt.Errorf("buffer '%s': %w", label, err)
	}
	return buf, nil
}

func (buf *VulkanBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > buf.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer '%s' of %d bytes", len(data), offset, buf.Label, buf.Size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}

// Read copies the buffer contents out.
func (buf *VulkanBuffer) Read() []byte {
	out := make([]byte, buf.Size)
	copy(out, unsafe.Slice((*byte)(buf.mapped), buf.Size))
	return out
}

func (buf *VulkanBuffer) Destroy(context *VulkanContext) {
	if buf.mapped != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, buf.Memory)
		buf.mapped = nil
	}
	if buf.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, buf.Handle, context.Allocator)
		buf.Handle = vk.NullBuffer
	}
	if buf.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, buf.Memory, context.Allocator)
		buf.Memory = vk.NullDeviceMemory
	}
}
