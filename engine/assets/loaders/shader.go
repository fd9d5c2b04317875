package loaders

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

// ShaderExtension marks shader description files. They list the passes of a
// shader and their tags; compiled byte code is owned by the backend.
const ShaderExtension = ".shader.toml"

type shaderFile struct {
	Name   string `toml:"name"`
	Passes []struct {
		Name string            `toml:"name"`
		Tags map[string]string `toml:"tags"`
	} `toml:"passes"`
}

type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	shader, err := ParseShader(data)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", path, err)
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeShader,
		Name:     shader.Name,
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     shader,
	}, nil
}

func ParseShader(data []byte) (*resources.Shader, error) {
	var sf shaderFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, err
	}
	if sf.Name == "" {
		return nil, fmt.Errorf("shader name is required")
	}
	if len(sf.Passes) == 0 {
		return nil, fmt.Errorf("shader %s declares no passes", sf.Name)
	}
	shader := &resources.Shader{Name: sf.Name}
	for _, p := range sf.Passes {
		shader.Passes = append(shader.Passes, resources.ShaderPass{Name: p.Name, Tags: p.Tags})
	}
	return shader, nil
}

func (sl *ShaderLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}
