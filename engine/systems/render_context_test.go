package systems

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
	"github.com/spaghettifunk/anima-rendergraph/engine/scene"
)

func threeSubmeshMesh() *resources.Mesh {
	return &resources.Mesh{
		Name: "props",
		SubMeshes: []resources.SubMesh{
			{IndexStart: 0, IndexCount: 36},
			{IndexStart: 36, IndexCount: 12},
			{IndexStart: 48, IndexCount: 6},
		},
	}
}

func TestBuildPairsSubmeshesWithValidMaterials(t *testing.T) {
	lit := &resources.Shader{Name: "Lit"}
	a := &resources.Material{Name: "A", Shader: lit}
	c := &resources.Material{Name: "C", Shader: lit}

	w := scene.NewWorld("test")
	e := w.CreateEntity("props")
	// submesh 1 has no material assigned
	w.SetMeshRenderer(e, threeSubmeshMesh(), a, nil, c)

	rc := NewRenderContextBuilder(nil, nil).Build(w)
	assert.Equal(t, 2, rc.DrawCount())
	assert.Equal(t, []*resources.Shader{lit}, rc.Shaders())
	assert.Equal(t, []*resources.Material{a, c}, rc.Materials(lit))
	assert.Equal(t, []DrawEntry{{Mesh: rc.Entries(lit, a)[0].Mesh, SubMesh: 0, Entity: e}}, rc.Entries(lit, a))
	assert.Equal(t, 2, rc.Entries(lit, c)[0].SubMesh)

	assert.Equal(t, []scene.Entity{e}, rc.Entities())
	cst, ok := rc.Constants(e)
	require.True(t, ok)
	assert.Equal(t, uint64(ObjectConstantsBase), cst.Offset)
}

func TestBuildSkipsEntitiesWithoutMaterials(t *testing.T) {
	lit := &resources.Shader{Name: "Lit"}
	shaderless := &resources.Material{Name: "Broken"}

	w := scene.NewWorld("test")
	bare := w.CreateEntity("bare")
	w.SetMeshRenderer(bare, threeSubmeshMesh())
	broken := w.CreateEntity("broken")
	w.SetMeshRenderer(broken, threeSubmeshMesh(), shaderless)
	drawn := w.CreateEntity("drawn")
	w.SetMeshRenderer(drawn, threeSubmeshMesh(), &resources.Material{Name: "M", Shader: lit})

	rc := NewRenderContextBuilder(nil, nil).Build(w)
	assert.Equal(t, 1, rc.DrawCount())
	_, ok := rc.Constants(bare)
	assert.False(t, ok)
	_, ok = rc.Constants(broken)
	assert.False(t, ok)
	assert.Equal(t, []scene.Entity{drawn}, rc.Entities())
}

func TestBuildRecordsTransformOncePerEntity(t *testing.T) {
	lit := &resources.Shader{Name: "Lit"}
	unlit := &resources.Shader{Name: "Unlit"}
	m1 := &resources.Material{Name: "M1", Shader: lit}
	m2 := &resources.Material{Name: "M2", Shader: unlit}

	first := scene.TRS(mgl32.Vec3{1, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
	w := scene.NewWorld("a")
	e1 := w.CreateEntity("one")
	w.SetTransform(e1, first)
	w.SetMeshRenderer(e1, threeSubmeshMesh(), m1, m2, m1)
	e2 := w.CreateEntity("two")
	w.SetMeshRenderer(e2, threeSubmeshMesh(), m2)

	// the same entity id seen again in another partition keeps its first transform
	other := scene.NewWorld("b")
	dup := other.CreateEntity("dup")
	require.Equal(t, e1, dup)
	other.SetTransform(dup, scene.TRS(mgl32.Vec3{9, 9, 9}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}))
	other.SetMeshRenderer(dup, threeSubmeshMesh(), m1)

	rc := NewRenderContextBuilder(nil, nil).Build(w, other)
	assert.Equal(t, 5, rc.DrawCount())
	assert.Equal(t, []*resources.Shader{lit, unlit}, rc.Shaders())
	assert.Len(t, rc.Entries(lit, m1), 3)
	assert.Equal(t, []scene.Entity{e1, e2}, rc.Entities())

	c1, _ := rc.Constants(e1)
	c2, _ := rc.Constants(e2)
	assert.Equal(t, first, c1.Transform)
	assert.Equal(t, uint64(ObjectConstantsBase), c1.Offset)
	assert.Equal(t, uint64(ObjectConstantsBase+ObjectConstantsStride), c2.Offset)
	assert.Equal(t, uint64(ObjectConstantsBase+2*ObjectConstantsStride), rc.ConstantBufferSize())
}

func TestConstantBufferLayout(t *testing.T) {
	assert.Equal(t, 512, LightArrayOffset)
	assert.Equal(t, 5152, LightArraySize)
	assert.Equal(t, 5888, ObjectConstantsBase)
	assert.Equal(t, 256, ObjectConstantsStride)

	cam := NewCameraConstants(scene.NewCamera(), 1280, 720, 2*time.Second, 16*time.Millisecond)
	assert.Len(t, cam.Marshal(), CameraConstantsSize)
	assert.InDelta(t, 2.0, cam.TotalTime, 1e-6)

	w := scene.NewWorld("layout")
	e := w.CreateEntity("e")
	w.SetTransform(e, scene.TRS(mgl32.Vec3{3, 4, 5}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}))
	w.SetMeshRenderer(e, threeSubmeshMesh(), &resources.Material{Shader: &resources.Shader{}})
	rc := NewRenderContextBuilder(nil, nil).Build(w)

	buf := FrameConstants(cam, rc)
	require.Len(t, buf, ObjectConstantsBase+ObjectConstantsStride)
	// world matrix translation column of the only entity
	tx := math.Float32frombits(binary.LittleEndian.Uint32(buf[ObjectConstantsBase+12*4:]))
	assert.Equal(t, float32(3), tx)
}

func TestSkyboxResolution(t *testing.T) {
	skyShader := &resources.Shader{Name: "Skybox"}
	cube, err := resources.NewSolidTextureCube("sky", 2, []float32{1, 0, 0, 1})
	require.NoError(t, err)
	skyMaterial := &resources.Material{Name: "Sky", Shader: skyShader, Properties: map[string]interface{}{SkyboxProperty: cube}}

	builder := NewRenderContextBuilder(skyShader, nil)
	empty := scene.NewWorld("empty")
	assert.Same(t, builder.DefaultEnvironment(), builder.Build(empty).Environment)

	withSky := scene.NewWorld("sky")
	withSky.SetSkybox(withSky.CreateEntity("sky"), skyMaterial)
	assert.Same(t, cube, builder.Build(empty, withSky).Environment)

	// a skybox material on another shader is ignored
	wrong := scene.NewWorld("wrong")
	wrong.SetSkybox(wrong.CreateEntity("sky"), &resources.Material{Shader: &resources.Shader{Name: "Lit"}, Properties: skyMaterial.Properties})
	assert.Same(t, cube, builder.Build(wrong, withSky).Environment)

	// two skyboxes in one partition are ambiguous
	twice := scene.NewWorld("twice")
	twice.SetSkybox(twice.CreateEntity("a"), skyMaterial)
	twice.SetSkybox(twice.CreateEntity("b"), skyMaterial)
	assert.Same(t, builder.DefaultEnvironment(), builder.Build(twice).Environment)

	// first matching partition wins
	other, err := resources.NewSolidTextureCube("other", 2, []float32{0, 1, 0, 1})
	require.NoError(t, err)
	second := scene.NewWorld("second")
	second.SetSkybox(second.CreateEntity("sky"), &resources.Material{Shader: skyShader, Properties: map[string]interface{}{SkyboxProperty: other}})
	assert.Same(t, cube, builder.Build(withSky, second).Environment)
}
