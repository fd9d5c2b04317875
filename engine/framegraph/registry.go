package framegraph

// Lifetime classifies how the physical resource behind a node is owned.
type Lifetime uint8

const (
	LifetimeUnknown Lifetime = iota
	// LifetimeTemporal resources come from the resource pool for one frame.
	LifetimeTemporal
	// LifetimeImported resources are owned elsewhere and never freed here.
	LifetimeImported
	// LifetimeMoved nodes share the physical resource of their move source.
	LifetimeMoved
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeTemporal:
		return "temporal"
	case LifetimeImported:
		return "imported"
	case LifetimeMoved:
		return "moved"
	}
	return "unknown"
}

type ImportedResource struct {
	Handle Handle
	// EntryState is the state the resource is in when the frame starts and
	// the state it is returned to after its last use.
	EntryState ResourceState
	Desc       TextureDesc
}

type passResourceKey struct {
	pass     PassID
	resource ResourceID
}

// Registry holds the side tables the compiler consumes next to a Graph:
// allocation descriptors, per-pass desired states and requested views.
// Like the Graph it is rebuilt each frame.
type Registry struct {
	temporal map[ResourceID]TextureDesc
	imported map[ResourceID]ImportedResource
	states   map[passResourceKey]ResourceState
	views    map[passResourceKey][]ViewDesc
}

func NewRegistry() *Registry {
	return &Registry{
		temporal: make(map[ResourceID]TextureDesc),
		imported: make(map[ResourceID]ImportedResource),
		states:   make(map[passResourceKey]ResourceState),
		views:    make(map[passResourceKey][]ViewDesc),
	}
}

func (r *Registry) RegisterTemporal(id ResourceID, desc TextureDesc) *Registry {
	r.temporal[id] = desc
	return r
}

func (r *Registry) RegisterImported(id ResourceID, handle Handle, entryState ResourceState) *Registry {
	r.imported[id] = ImportedResource{Handle: handle, EntryState: entryState}
	return r
}

// RegisterImportedWithDesc also records the description, used by views that
// need the resource format.
func (r *Registry) RegisterImportedWithDesc(id ResourceID, handle Handle, entryState ResourceState, desc TextureDesc) *Registry {
	r.imported[id] = ImportedResource{Handle: handle, EntryState: entryState, Desc: desc}
	return r
}

func (r *Registry) RegisterPassState(pass PassID, id ResourceID, state ResourceState) *Registry {
	r.states[passResourceKey{pass, id}] = state
	return r
}

func (r *Registry) RegisterPassView(pass PassID, id ResourceID, views ...ViewDesc) *Registry {
	k := passResourceKey{pass, id}
	r.views[k] = append(r.views[k], views...)
	return r
}

// RegisterPassResource registers the desired state and views in one call.
func (r *Registry) RegisterPassResource(pass PassID, id ResourceID, state ResourceState, views ...ViewDesc) *Registry {
	r.RegisterPassState(pass, id, state)
	if len(views) > 0 {
		r.RegisterPassView(pass, id, views...)
	}
	return r
}

func (r *Registry) Temporal(id ResourceID) (TextureDesc, bool) {
	d, ok := r.temporal[id]
	return d, ok
}

func (r *Registry) Imported(id ResourceID) (ImportedResource, bool) {
	i, ok := r.imported[id]
	return i, ok
}

func (r *Registry) PassState(pass PassID, id ResourceID) ResourceState {
	return r.states[passResourceKey{pass, id}]
}

func (r *Registry) PassViews(pass PassID, id ResourceID) []ViewDesc {
	return r.views[passResourceKey{pass, id}]
}

func (r *Registry) lifetime(id ResourceID) Lifetime {
	if _, ok := r.imported[id]; ok {
		return LifetimeImported
	}
	if _, ok := r.temporal[id]; ok {
		return LifetimeTemporal
	}
	return LifetimeUnknown
}

func (r *Registry) Clear() {
	clear(r.temporal)
	clear(r.imported)
	clear(r.states)
	clear(r.views)
}
