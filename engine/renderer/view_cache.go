package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
)

type viewKey struct {
	resource framegraph.Handle
	desc     framegraph.ViewDesc
}

type CacheStats struct {
	Hits   uint64
	Misses uint64
	Views  int
}

// ResourceViewCache memoizes backend views per (resource, view description).
type ResourceViewCache struct {
	mutex      sync.Mutex
	factory    ViewFactory
	views      map[viewKey]ViewHandle
	byResource map[framegraph.Handle][]viewKey
	hits       uint64
	misses     uint64
}

func NewResourceViewCache(factory ViewFactory) *ResourceViewCache {
	return &ResourceViewCache{
		factory:    factory,
		views:      make(map[viewKey]ViewHandle),
		byResource: make(map[framegraph.Handle][]viewKey),
	}
}

// Get returns the view of resource described by desc, creating it on first use.
func (c *ResourceViewCache) Get(resource framegraph.Handle, desc framegraph.ViewDesc) (ViewHandle, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := viewKey{resource: resource, desc: desc}
	if view, ok := c.views[key]; ok {
		c.hits++
		return view, nil
	}
	c.misses++

	view, err := c.factory.CreateView(resource, desc)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s view of resource %d: %w", desc.Kind, resource, err)
	}
	c.views[key] = view
	c.byResource[resource] = append(c.byResource[resource], key)
	return view, nil
}

// Evict destroys every view of resource.
func (c *ResourceViewCache) Evict(resource framegraph.Handle) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var errs []error
	for _, key := range c.byResource[resource] {
		if err := c.factory.DestroyView(c.views[key]); err != nil {
			errs = append(errs, err)
		}
		delete(c.views, key)
	}
	delete(c.byResource, resource)
	return errors.Join(errs...)
}

func (c *ResourceViewCache) Clear() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var errs []error
	for _, view := range c.views {
		if err := c.factory.DestroyView(view); err != nil {
			errs = append(errs, err)
		}
	}
	c.views = make(map[viewKey]ViewHandle)
	c.byResource = make(map[framegraph.Handle][]viewKey)
	return errors.Join(errs...)
}

func (c *ResourceViewCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Views: len(c.views)}
}
