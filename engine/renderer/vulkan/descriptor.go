package vulkan

import (
	vk "github.com/goki/vulkan"
)

// Every pipeline shares one set layout: constant buffer slots come first,
// texture slots follow at textureBindingBase.
const (
	maxConstantSlots      = 8
	maxTextureSlots       = 16
	textureBindingBase    = maxConstantSlots
	maxConstantRange      = 65536
	descriptorSetsPerList = 4096
)

type constantBinding struct {
	buffer *VulkanBuffer
	offset uint64
}

/**
 * @brief The resources bound to each slot of a command list. Any change
 * marks the bindings dirty and the next draw writes a fresh descriptor set.
 */
type descriptorBindings struct {
	constants [maxConstantSlots]constantBinding
	textures  [maxTextureSlots]*VulkanImageView
	dirty     bool
}

func (b *descriptorBindings) reset() {
	*b = descriptorBindings{}
}

func (b *descriptorBindings) bindConstants(slot uint32, buffer *VulkanBuffer, offset uint64) bool {
	if slot >= maxConstantSlots {
		return false
	}
	b.constants[slot] = constantBinding{buffer: buffer, offset: offset}
	b.dirty = true
	return true
}

func (b *descriptorBindings) bindTexture(slot uint32, view *VulkanImageView) bool {
	if slot >= maxTextureSlots {
		return false
	}
	b.textures[slot] = view
	b.dirty = true
	return true
}

// writes describes every bound slot as an update of set.
func (b *descriptorBindings) writes(set vk.DescriptorSet, sampler vk.Sampler) []vk.WriteDescriptorSet {
	var out []vk.WriteDescriptorSet
	for slot, c := range b.constants {
		if c.buffer == nil || c.offset >= c.buffer.Size {
			continue
		}
		out = append(out, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(slot),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: c.buffer.Handle,
				Offset: vk.DeviceSize(c.offset),
				Range:  vk.DeviceSize(min(c.buffer.Size-c.offset, maxConstantRange)),
			}},
		})
	}
	for slot, view := range b.textures {
		if view == nil {
			continue
		}
		layout := vk.ImageLayoutShaderReadOnlyOptimal
		if view.Image.Desc.Format.IsDepthStencil() {
			layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		out = append(out, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(textureBindingBase + slot),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view.Handle,
				ImageLayout: layout,
			}},
		})
	}
	return out
}

func layoutBindings() []vk.DescriptorSetLayoutBinding {
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	out := make([]vk.DescriptorSetLayoutBinding, 0, maxConstantSlots+maxTextureSlots)
	for i := 0; i < maxConstantSlots; i++ {
		out = append(out, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}
	for i := 0; i < maxTextureSlots; i++ {
		out = append(out, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(textureBindingBase + i),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}
	return out
}

func createDescriptorSetLayout(context *VulkanContext) (vk.DescriptorSetLayout, error) {
	bindings := layoutBindings()
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &layout))
	return layout, err
}

func createDescriptorPool(context *VulkanContext, sets uint32) (vk.DescriptorPool, error) {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: sets * maxConstantSlots},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: sets * maxTextureSlots},
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       sets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &pool))
	return pool, err
}

func allocateDescriptorSet(context *VulkanContext, pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(context.Device.LogicalDevice, &allocateInfo, &set))
	return set, err
}

// createSampler builds the linear clamp sampler every texture slot uses.
func createSampler(context *VulkanContext) (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		MaxLod:       16,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}
	var sampler vk.Sampler
	err := check("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &createInfo, context.Allocator, &sampler))
	return sampler, err
}
