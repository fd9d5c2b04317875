package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

var ErrNoDevice = errors.New("no Vulkan device with a graphics queue")

/**
 * @brief The selected GPU and the single graphics queue every command list
 * is submitted to.
 */
type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex uint32
	GraphicsQueue      vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties
	Name       string
}

type candidateDevice struct {
	device     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	family     uint32
}

// deviceScore prefers discrete GPUs, then integrated, then anything else.
func deviceScore(t vk.PhysicalDeviceType) int {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 1
	}
	return 0
}

func selectPhysicalDevice(context *VulkanContext) (*candidateDevice, error) {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, devices)); err != nil {
		return nil, err
	}

	var best *candidateDevice
	for _, device := range devices {
		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

		for i, qf := range families {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
				continue
			}
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(device, &properties)
			properties.Deref()
			if best == nil || deviceScore(properties.DeviceType) > deviceScore(best.properties.DeviceType) {
				best = &candidateDevice{device: device, properties: properties, family: uint32(i)}
			}
			break
		}
	}
	if best == nil {
		return nil, ErrNoDevice
	}
	return best, nil
}

// DeviceCreate picks a GPU and creates the logical device, its graphics
// queue and the command pool every command list is allocated from.
func DeviceCreate(context *VulkanContext) error {
	candidate, err := selectPhysicalDevice(context)
	if err != nil {
		return err
	}
	device := &VulkanDevice{
		PhysicalDevice:     candidate.device,
		GraphicsQueueIndex: candidate.family,
		Properties:         candidate.properties,
		Name:               vk.ToString(candidate.properties.DeviceName[:]),
	}
	vk.GetPhysicalDeviceMemoryProperties(device.PhysicalDevice, &device.Memory)
	device.Memory.Deref()
	core.LogInfo("Selected GPU: %s", device.Name)

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: device.GraphicsQueueIndex,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
	}
	if err := check("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice)); err != nil {
		return err
	}
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &device.GraphicsQueue)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &device.GraphicsCommandPool)); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		return fmt.Errorf("graphics command pool: %w", err)
	}
	context.Device = device
	core.LogDebug("Logical device, graphics queue %d and command pool created", device.GraphicsQueueIndex)
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = vk.NullCommandPool
	}
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	device.GraphicsQueue = nil
	context.Device = nil
}

// WaitIdle blocks until the graphics queue has drained.
func (d *VulkanDevice) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.LogicalDevice))
}
