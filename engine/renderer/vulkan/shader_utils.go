package vulkan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var ErrShaderBinaryMissing = errors.New("compiled shader stage not found")

type ShaderStage string

const (
	ShaderStageVertex   ShaderStage = "vert"
	ShaderStageFragment ShaderStage = "frag"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

// ShaderFileName is the SPIR-V file holding one stage of one shader pass,
// e.g. "anima_deferredlighting.main.frag.spv".
func ShaderFileName(shader, pass string, stage ShaderStage) string {
	clean := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.NewReplacer("/", "_", " ", "_", "\\", "_").Replace(s)
	}
	return fmt.Sprintf("%s.%s.%s.spv", clean(shader), clean(pass), stage)
}

func NewShaderModule(context *VulkanContext, dir string, shader *resources.Shader, pass int, stage ShaderStage) (*VulkanShaderStage, error) {
	if pass < 0 || pass >= len(shader.Passes) {
		return nil, fmt.Errorf("shader '%s' has no pass %d", shader.Name, pass)
	}
	file := filepath.Join(dir, ShaderFileName(shader.Name, shader.Passes[pass].Name, stage))
	code, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrShaderBinaryMissing, file)
	}
	if err != nil {
		return nil, err
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("shader binary %s is not SPIR-V (%d bytes)", file, len(code))
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    spirvWords(code),
	}
	out := &VulkanShaderStage{}
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &out.Handle)); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	flag := vk.ShaderStageVertexBit
	if stage == ShaderStageFragment {
		flag = vk.ShaderStageFragmentBit
	}
	out.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  flag,
		Module: out.Handle,
		PName:  VulkanSafeString("main"),
	}
	return out, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != vk.NullShaderModule {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = vk.NullShaderModule
	}
}
