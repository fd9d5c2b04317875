package systems

import (
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

// SkyboxProperty is the material property holding a skybox environment cube.
const SkyboxProperty = "gSkybox"

type DrawEntry struct {
	Mesh    *resources.Mesh
	SubMesh int
	Entity  scene.Entity
}

// EntityConstants locates an entity's transforms in the frame constant buffer.
type EntityConstants struct {
	Transform scene.Transform
	Offset    uint64
}

type bucketKey struct {
	shader   *resources.Shader
	material *resources.Material
}

// RenderContext is everything the passes of one frame need from the scene.
type RenderContext struct {
	shaders     []*resources.Shader
	materials   map[*resources.Shader][]*resources.Material
	entries     map[bucketKey][]DrawEntry
	constants   map[scene.Entity]EntityConstants
	entityOrder []scene.Entity
	drawCount   int

	Lights      LightArray
	Environment *resources.TextureCube
}

func newRenderContext() *RenderContext {
	return &RenderContext{
		materials: make(map[*resources.Shader][]*resources.Material),
		entries:   make(map[bucketKey][]DrawEntry),
		constants: make(map[scene.Entity]EntityConstants),
	}
}

func (rc *RenderContext) add(material *resources.Material, entry DrawEntry) {
	shader := material.Shader
	if _, ok := rc.materials[shader]; !ok {
		rc.shaders = append(rc.shaders, shader)
		rc.materials[shader] = nil
	}
	key := bucketKey{shader: shader, material: material}
	if _, ok := rc.entries[key]; !ok {
		rc.materials[shader] = append(rc.materials[shader], material)
	}
	rc.entries[key] = append(rc.entries[key], entry)
	rc.drawCount++
}

// record keeps the first transform seen for an entity.
func (rc *RenderContext) record(e scene.Entity, t scene.Transform) {
	if _, ok := rc.constants[e]; ok {
		return
	}
	offset := ObjectConstantsBase + uint64(len(rc.entityOrder))*ObjectConstantsStride
	rc.constants[e] = EntityConstants{Transform: t, Offset: offset}
	rc.entityOrder = append(rc.entityOrder, e)
}

// Shaders lists shaders in the order they were first drawn with.
func (rc *RenderContext) Shaders() []*resources.Shader {
	return rc.shaders
}

func (rc *RenderContext) Materials(shader *resources.Shader) []*resources.Material {
	return rc.materials[shader]
}

func (rc *RenderContext) Entries(shader *resources.Shader, material *resources.Material) []DrawEntry {
	return rc.entries[bucketKey{shader: shader, material: material}]
}

func (rc *RenderContext) Constants(e scene.Entity) (EntityConstants, bool) {
	c, ok := rc.constants[e]
	return c, ok
}

// Entities lists drawn entities in constant buffer order.
func (rc *RenderContext) Entities() []scene.Entity {
	return rc.entityOrder
}

func (rc *RenderContext) DrawCount() int {
	return rc.drawCount
}

// ConstantBufferSize is the number of bytes the frame constants occupy.
func (rc *RenderContext) ConstantBufferSize() uint64 {
	return ObjectConstantsBase + uint64(len(rc.entityOrder))*ObjectConstantsStride
}

/**
 * @brief Builds the per-frame RenderContext out of scene partitions.
 */
type RenderContextBuilder struct {
	skyboxShader       *resources.Shader
	defaultEnvironment *resources.TextureCube
}

func NewRenderContextBuilder(skyboxShader *resources.Shader, defaultEnvironment *resources.TextureCube) *RenderContextBuilder {
	if defaultEnvironment == nil {
		defaultEnvironment = resources.BlackTextureCube()
	}
	return &RenderContextBuilder{
		skyboxShader:       skyboxShader,
		defaultEnvironment: defaultEnvironment,
	}
}

func (b *RenderContextBuilder) DefaultEnvironment() *resources.TextureCube {
	return b.defaultEnvironment
}

func (b *RenderContextBuilder) Build(partitions ...scene.Query) *RenderContext {
	rc := newRenderContext()
	for _, q := range partitions {
		q.EachMeshRenderer(func(mr scene.MeshRenderer) {
			pairs := min(len(mr.Materials), mr.Mesh.SubMeshCount())
			drawn := false
			for i := 0; i < pairs; i++ {
				m := mr.Materials[i]
				if !m.Valid() {
					continue
				}
				rc.add(m, DrawEntry{Mesh: mr.Mesh, SubMesh: i, Entity: mr.Entity})
				drawn = true
			}
			if drawn {
				rc.record(mr.Entity, mr.Transform)
			}
		})
	}
	rc.Lights = PackLights(partitions...)
	rc.Environment = b.resolveEnvironment(partitions)
	return rc
}

// resolveEnvironment picks the cube of the first partition with exactly one
// skybox whose material uses the skybox shader.
func (b *RenderContextBuilder) resolveEnvironment(partitions []scene.Query) *resources.TextureCube {
	for _, q := range partitions {
		skyboxes := q.Skyboxes()
		if len(skyboxes) != 1 {
			if len(skyboxes) > 1 {
				core.LogWarn("ignoring %d skybox entities in one scene, expected a single one", len(skyboxes))
			}
			continue
		}
		m := skyboxes[0]
		if !m.Valid() || b.skyboxShader == nil || m.Shader != b.skyboxShader {
			continue
		}
		if cube, ok := m.TextureCubeProperty(SkyboxProperty); ok {
			return cube
		}
	}
	return b.defaultEnvironment
}
