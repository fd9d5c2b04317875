package loaders

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

// MaterialExtension marks material files inside the asset directory.
const MaterialExtension = ".amt.toml"

/**
 * @brief Material file contents. Textures are referenced by asset path and
 * resolved by the asset manager.
 */
type MaterialConfig struct {
	Name   string                `toml:"name"`
	Shader string                `toml:"shader"`
	Colors map[string][4]float32 `toml:"colors"`
	Floats map[string]float32    `toml:"floats"`
	// Cubes maps a property name to an equirectangular image path.
	Cubes map[string]string `toml:"cubes"`
}

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mCfg, err := ParseMaterial(data)
	if err != nil {
		err := fmt.Errorf("material %s: %w", path, err)
		core.LogError("%s", err)
		return nil, err
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeMaterial,
		Name:     mCfg.Name,
		FullPath: path,
		DataSize: uint64(unsafe.Sizeof(MaterialConfig{})),
		Data:     mCfg,
	}, nil
}

func ParseMaterial(data []byte) (*MaterialConfig, error) {
	mCfg := &MaterialConfig{}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(mCfg); err != nil {
		return nil, err
	}
	if err := validateMaterial(mCfg); err != nil {
		return nil, err
	}
	return mCfg, nil
}

func validateMaterial(material *MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	if material.Shader == "" {
		return fmt.Errorf("material %s has no shader", material.Name)
	}
	for name, c := range material.Colors {
		if !isValidColor(c) {
			return fmt.Errorf("invalid colour %s: %v, components must be in [0, 1]", name, c)
		}
	}
	for name, path := range material.Cubes {
		if !isValidTextureName(path) {
			return fmt.Errorf("invalid cube texture for %s", name)
		}
	}
	return nil
}

func isValidColor(c [4]float32) bool {
	return inRange(c[0]) && inRange(c[1]) && inRange(c[2]) && inRange(c[3])
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func isValidTextureName(name string) bool {
	return len(name) > 0 && IsImage(name)
}

func (ml *MaterialLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}
