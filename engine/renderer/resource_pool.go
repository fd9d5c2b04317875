package renderer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
)

type pooledResource struct {
	handle framegraph.Handle
	label  string
	desc   framegraph.TextureDesc
	state  framegraph.ResourceState
}

type PoolStats struct {
	// Hits counts acquisitions served from a free list, Misses those that
	// created a new backend resource.
	Hits   uint64
	Misses uint64
	Live   int
	InUse  int
	Views  CacheStats
}

// ResourcePool owns the temporal resources of one frame slot. Free resources
// are bucketed by descriptor so any pass of the frame can reuse them once the
// previous user's lifetime ended.
type ResourcePool struct {
	factory ResourceFactory
	views   *ResourceViewCache
	free    map[framegraph.TextureDesc][]*pooledResource
	inUse   map[framegraph.ResourceID]*pooledResource
	live    int
	hits    uint64
	misses  uint64
}

func NewResourcePool(factory ResourceFactory) *ResourcePool {
	return &ResourcePool{
		factory: factory,
		views:   NewResourceViewCache(factory),
		free:    make(map[framegraph.TextureDesc][]*pooledResource),
		inUse:   make(map[framegraph.ResourceID]*pooledResource),
	}
}

func (p *ResourcePool) Views() *ResourceViewCache {
	return p.views
}

// Acquire returns a resource for node matching desc together with the state
// it is currently in. A node acquired twice gets the same resource.
func (p *ResourcePool) Acquire(node framegraph.ResourceID, name string, desc framegraph.TextureDesc, state framegraph.ResourceState) (framegraph.Handle, framegraph.ResourceState, error) {
	if r, ok := p.inUse[node]; ok {
		return r.handle, r.state, nil
	}

	if list := p.free[desc]; len(list) > 0 {
		r := list[len(list)-1]
		p.free[desc] = list[:len(list)-1]
		p.inUse[node] = r
		p.hits++
		return r.handle, r.state, nil
	}

	label := fmt.Sprintf("%s#%s", name, uuid.NewString()[:8])
	handle, err := p.factory.CreateResource(label, desc, state)
	if err != nil {
		return 0, framegraph.StateUndefined, fmt.Errorf("failed to create pooled resource '%s' (%s): %w", name, desc, err)
	}
	core.LogDebug("resource pool created '%s' (%s)", label, desc)
	r := &pooledResource{handle: handle, label: label, desc: desc, state: state}
	p.inUse[node] = r
	p.live++
	p.misses++
	return handle, state, nil
}

// Release returns the resource of node to its free list. state is the state
// the last user left it in.
func (p *ResourcePool) Release(node framegraph.ResourceID, state framegraph.ResourceState) error {
	r, ok := p.inUse[node]
	if !ok {
		return fmt.Errorf("%w: node %d", ErrResourceNotAcquired, node)
	}
	delete(p.inUse, node)
	if state != framegraph.StateUndefined {
		r.state = state
	}
	p.free[r.desc] = append(p.free[r.desc], r)
	return nil
}

func (p *ResourcePool) Lookup(node framegraph.ResourceID) (framegraph.Handle, bool) {
	r, ok := p.inUse[node]
	if !ok {
		return 0, false
	}
	return r.handle, true
}

// NewFrame returns anything still held by a previous frame to the free lists.
func (p *ResourcePool) NewFrame() {
	for node, r := range p.inUse {
		p.free[r.desc] = append(p.free[r.desc], r)
		delete(p.inUse, node)
	}
}

// Clear destroys every pooled resource and its views. Used when the render
// target size changes.
func (p *ResourcePool) Clear() error {
	var errs []error
	destroy := func(r *pooledResource) {
		if err := p.views.Evict(r.handle); err != nil {
			errs = append(errs, err)
		}
		if err := p.factory.DestroyResource(r.handle); err != nil {
			errs = append(errs, err)
		}
	}
	for _, list := range p.free {
		for _, r := range list {
			destroy(r)
		}
	}
	for _, r := range p.inUse {
		destroy(r)
	}
	p.free = make(map[framegraph.TextureDesc][]*pooledResource)
	p.inUse = make(map[framegraph.ResourceID]*pooledResource)
	p.live = 0
	return errors.Join(errs...)
}

func (p *ResourcePool) Stats() PoolStats {
	return PoolStats{
		Hits:   p.hits,
		Misses: p.misses,
		Live:   p.live,
		InUse:  len(p.inUse),
		Views:  p.views.Stats(),
	}
}
