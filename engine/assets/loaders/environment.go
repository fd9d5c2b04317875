package loaders

import (
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

/** @brief Parameters accepted by EnvironmentLoader.Load. */
type EnvironmentParams struct {
	Projection resources.ProjectOptions
}

// EnvironmentLoader decodes an equirectangular panorama and projects it onto
// a cube map.
type EnvironmentLoader struct {
	Defaults resources.ProjectOptions
}

func (el *EnvironmentLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	opts := el.Defaults
	if p, ok := params.(*EnvironmentParams); ok && p != nil {
		opts = p.Projection
	}
	img, size, err := DecodeImage(path, false)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cube, err := resources.NewTextureCubeFromEquirectangular(name, img, opts)
	if err != nil {
		return nil, err
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeEnvironment,
		Name:     name,
		FullPath: path,
		DataSize: uint64(size),
		Data:     cube,
	}, nil
}

func (el *EnvironmentLoader) Unload(res *resources.Resource) error {
	res.Data = nil
	return nil
}
