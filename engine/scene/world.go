package scene

import (
	"slices"
	"sync"

	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

type meshComponent struct {
	mesh      *resources.Mesh
	materials []*resources.Material
}

// World is a small in-memory entity store. Iteration follows entity creation
// order so queries are deterministic.
type World struct {
	mutex      sync.RWMutex
	name       string
	next       Entity
	entities   []Entity
	names      map[Entity]string
	transforms map[Entity]Transform
	meshes     map[Entity]meshComponent
	lights     map[Entity]Light
	skyboxes   map[Entity]*resources.Material
	camera     *Camera
}

func NewWorld(name string) *World {
	return &World{
		name:       name,
		next:       1,
		names:      make(map[Entity]string),
		transforms: make(map[Entity]Transform),
		meshes:     make(map[Entity]meshComponent),
		lights:     make(map[Entity]Light),
		skyboxes:   make(map[Entity]*resources.Material),
		camera:     NewCamera(),
	}
}

func (w *World) Name() string {
	return w.name
}

// CreateEntity adds an entity with an identity transform.
func (w *World) CreateEntity(name string) Entity {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	e := w.next
	w.next++
	w.entities = append(w.entities, e)
	w.names[e] = name
	w.transforms[e] = Identity()
	return e
}

func (w *World) DestroyEntity(e Entity) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.entities = slices.DeleteFunc(w.entities, func(x Entity) bool { return x == e })
	delete(w.names, e)
	delete(w.transforms, e)
	delete(w.meshes, e)
	delete(w.lights, e)
	delete(w.skyboxes, e)
}

func (w *World) EntityName(e Entity) string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.names[e]
}

func (w *World) Len() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return len(w.entities)
}

func (w *World) SetTransform(e Entity, t Transform) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.transforms[e] = t
}

// RemoveTransform takes the entity out of every renderer query.
func (w *World) RemoveTransform(e Entity) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	delete(w.transforms, e)
}

func (w *World) SetMeshRenderer(e Entity, mesh *resources.Mesh, materials ...*resources.Material) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.meshes[e] = meshComponent{mesh: mesh, materials: slices.Clone(materials)}
}

func (w *World) SetLight(e Entity, light Light) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.lights[e] = light
}

func (w *World) SetSkybox(e Entity, material *resources.Material) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.skyboxes[e] = material
}

func (w *World) Camera() *Camera {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.camera
}

func (w *World) SetCamera(c *Camera) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.camera = c
}

func (w *World) EachMeshRenderer(fn func(MeshRenderer)) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	for _, e := range w.entities {
		m, ok := w.meshes[e]
		if !ok || m.mesh == nil {
			continue
		}
		t, ok := w.transforms[e]
		if !ok {
			continue
		}
		fn(MeshRenderer{Entity: e, Mesh: m.mesh, Materials: m.materials, Transform: t})
	}
}

func (w *World) EachLight(fn func(LightEmitter)) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	for _, e := range w.entities {
		l, ok := w.lights[e]
		if !ok || l == nil {
			continue
		}
		t, ok := w.transforms[e]
		if !ok {
			continue
		}
		fn(LightEmitter{Entity: e, Light: l, Transform: t})
	}
}

func (w *World) Skyboxes() []*resources.Material {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	var out []*resources.Material
	for _, e := range w.entities {
		if m, ok := w.skyboxes[e]; ok {
			out = append(out, m)
		}
	}
	return out
}

var _ Query = (*World)(nil)
