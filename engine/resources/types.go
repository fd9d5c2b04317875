package resources

import (
	"github.com/google/uuid"
)

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown or unsupported resource. */
	ResourceTypeNone ResourceType = iota
	/** @brief Image resource type. */
	ResourceTypeImage
	/** @brief Equirectangular image converted to a cube map on load. */
	ResourceTypeEnvironment
	/** @brief Material resource type. */
	ResourceTypeMaterial
	/** @brief Shader resource type (or more accurately shader config). */
	ResourceTypeShader
	/** @brief Mesh resource type. */
	ResourceTypeMesh
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeEnvironment:
		return "environment"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeMesh:
		return "mesh"
	}
	return "none"
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief Stable identifier of the asset this resource was loaded from. */
	GUID uuid.UUID
	/** @brief The resource type. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}

/**
 * @brief A contiguous index range of a mesh drawn with one material.
 */
type SubMesh struct {
	IndexStart uint32
	IndexCount uint32
	BaseVertex int32
}

/**
 * @brief Geometry already uploaded by the backend. The render graph only
 * needs its submesh table.
 */
type Mesh struct {
	GUID      uuid.UUID
	Name      string
	SubMeshes []SubMesh
}

func (m *Mesh) SubMeshCount() int {
	if m == nil {
		return 0
	}
	return len(m.SubMeshes)
}

/** @brief Tag used by pipelines to select shader passes. */
const ShaderTagLightMode = "LightMode"

/**
 * @brief One pass of a shader, e.g. the deferred or forward variant.
 */
type ShaderPass struct {
	Name string
	Tags map[string]string
}

type Shader struct {
	GUID   uuid.UUID
	Name   string
	Passes []ShaderPass
}

// PassesWithTag returns the indices of passes whose tag matches value.
func (s *Shader) PassesWithTag(tag, value string) []int {
	var out []int
	for i, p := range s.Passes {
		if p.Tags[tag] == value {
			out = append(out, i)
		}
	}
	return out
}

/**
 * @brief A shader plus the property values it is drawn with. Properties hold
 * scalars, vectors and texture references such as *TextureCube.
 */
type Material struct {
	GUID       uuid.UUID
	Name       string
	Shader     *Shader
	Properties map[string]interface{}
}

// Valid reports whether the material can produce draws.
func (m *Material) Valid() bool {
	return m != nil && m.Shader != nil
}

// TextureCubeProperty returns the cube texture stored under name, if any.
func (m *Material) TextureCubeProperty(name string) (*TextureCube, bool) {
	if m == nil {
		return nil, false
	}
	cube, ok := m.Properties[name].(*TextureCube)
	return cube, ok && cube != nil
}
