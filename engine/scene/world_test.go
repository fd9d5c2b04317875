package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

func TestWorldQueriesFollowCreationOrder(t *testing.T) {
	w := NewWorld("test")
	mesh := &resources.Mesh{Name: "quad", SubMeshes: []resources.SubMesh{{IndexCount: 6}}}

	a := w.CreateEntity("a")
	b := w.CreateEntity("b")
	c := w.CreateEntity("c")
	w.SetMeshRenderer(c, mesh)
	w.SetMeshRenderer(a, mesh)
	w.SetMeshRenderer(b, mesh)
	w.RemoveTransform(b)

	var seen []Entity
	w.EachMeshRenderer(func(m MeshRenderer) { seen = append(seen, m.Entity) })
	assert.Equal(t, []Entity{a, c}, seen, "entities without a transform are not rendered")

	w.SetLight(c, PointLight{LightBase: LightBase{Color: mgl32.Vec3{1, 1, 1}, Intensity: 2}, Range: 5})
	w.SetLight(a, DirectionalLight{})
	var kinds []LightKind
	w.EachLight(func(l LightEmitter) { kinds = append(kinds, l.Light.Kind()) })
	assert.Equal(t, []LightKind{LightKindDirectional, LightKindPoint}, kinds)

	w.DestroyEntity(a)
	assert.Equal(t, 2, w.Len())
	assert.Empty(t, w.EntityName(a))
	seen = nil
	w.EachMeshRenderer(func(m MeshRenderer) { seen = append(seen, m.Entity) })
	assert.Equal(t, []Entity{c}, seen)
}

func TestWorldSkyboxes(t *testing.T) {
	w := NewWorld("sky")
	assert.Empty(t, w.Skyboxes())

	m := &resources.Material{Name: "Skybox"}
	w.SetSkybox(w.CreateEntity("sky"), m)
	assert.Equal(t, []*resources.Material{m}, w.Skyboxes())
}

func TestTRSInverse(t *testing.T) {
	tr := TRS(mgl32.Vec3{1, 2, 3}, mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}), mgl32.Vec3{2, 2, 2})
	p := mgl32.Vec3{0.5, -1, 4}
	back := tr.WorldToLocal.Mul4x1(tr.LocalToWorld.Mul4x1(p.Vec4(1)))
	assert.InDelta(t, p.X(), back.X(), 1e-4)
	assert.InDelta(t, p.Y(), back.Y(), 1e-4)
	assert.InDelta(t, p.Z(), back.Z(), 1e-4)
}

func TestCameraView(t *testing.T) {
	c := NewCamera()
	require.Equal(t, mgl32.Ident4(), c.View())

	c.SetPosition(mgl32.Vec3{0, 0, -5})
	eye := c.View().Mul4x1(mgl32.Vec4{0, 0, -5, 1})
	assert.InDelta(t, 0, eye.Vec3().Len(), 1e-5, "the camera sits at the view-space origin")

	c.Pitch(10)
	assert.InDelta(t, 1.55334306, c.EulerRotation.X(), 1e-6)

	fwd := NewCamera().Forward()
	assert.InDelta(t, 1, fwd.Z(), 1e-6)
}
