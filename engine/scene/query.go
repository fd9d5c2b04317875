// Package scene holds the entity data the renderer reads each frame and the
// read-only Query interface it reads it through.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

type Entity uint64

type Transform struct {
	LocalToWorld mgl32.Mat4
	WorldToLocal mgl32.Mat4
}

func NewTransform(localToWorld mgl32.Mat4) Transform {
	return Transform{LocalToWorld: localToWorld, WorldToLocal: localToWorld.Inv()}
}

// TRS composes translation, rotation and scale.
func TRS(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) Transform {
	t := mgl32.Translate3D(position.X(), position.Y(), position.Z())
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return NewTransform(t.Mul4(rotation.Mat4()).Mul4(s))
}

func Identity() Transform {
	return Transform{LocalToWorld: mgl32.Ident4(), WorldToLocal: mgl32.Ident4()}
}

// MeshRenderer is an entity with a mesh, its materials and a world transform.
// Materials[i] shades Mesh.SubMeshes[i].
type MeshRenderer struct {
	Entity    Entity
	Mesh      *resources.Mesh
	Materials []*resources.Material
	Transform Transform
}

type LightEmitter struct {
	Entity    Entity
	Light     Light
	Transform Transform
}

// Query is a read-only, filtered iteration over one scene partition.
type Query interface {
	EachMeshRenderer(fn func(MeshRenderer))
	EachLight(fn func(LightEmitter))
	// Skyboxes returns the materials of every skybox singleton entity.
	Skyboxes() []*resources.Material
}
