package pipeline

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/views"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

type environmentEntry struct {
	texture framegraph.Handle
	view    renderer.ViewHandle
	refs    int
	pinned  bool
}

/**
 * @brief Uploads environment cubes on first use and keeps them alive while
 * any frame slot still references them.
 *
 * A slot switching to another cube releases the previous one. The ring only
 * hands out a slot after the GPU finished its last frame, so a cube with no
 * slot reference can be destroyed immediately.
 */
type environmentCache struct {
	backend renderer.Backend
	entries map[*resources.TextureCube]*environmentEntry
	slots   []*resources.TextureCube
}

func newEnvironmentCache(backend renderer.Backend, slots int) *environmentCache {
	return &environmentCache{
		backend: backend,
		entries: make(map[*resources.TextureCube]*environmentEntry),
		slots:   make([]*resources.TextureCube, slots),
	}
}

// pin uploads cube and keeps it until clear.
func (ec *environmentCache) pin(cube *resources.TextureCube) error {
	e, err := ec.entry(cube)
	if err != nil {
		return err
	}
	e.pinned = true
	return nil
}

func (ec *environmentCache) entry(cube *resources.TextureCube) (*environmentEntry, error) {
	if e, ok := ec.entries[cube]; ok {
		return e, nil
	}
	texture, err := ec.backend.CreateTextureCube(cube.Name, cube)
	if err != nil {
		return nil, fmt.Errorf("failed to upload environment '%s': %w", cube.Name, err)
	}
	view, err := ec.backend.CreateView(texture, framegraph.CubeShaderResourceView(views.ColorFormat))
	if err != nil {
		_ = ec.backend.DestroyResource(texture)
		return nil, fmt.Errorf("failed to create view of environment '%s': %w", cube.Name, err)
	}
	core.LogDebug("uploaded environment '%s' (%dx%d per face)", cube.Name, cube.Size, cube.Size)
	e := &environmentEntry{texture: texture, view: view}
	ec.entries[cube] = e
	return e, nil
}

// acquire makes cube the environment of slot and returns its cube view.
func (ec *environmentCache) acquire(slot int, cube *resources.TextureCube) (renderer.ViewHandle, error) {
	if prev := ec.slots[slot]; prev == cube {
		return ec.entries[cube].view, nil
	}
	e, err := ec.entry(cube)
	if err != nil {
		return 0, err
	}
	e.refs++
	prev := ec.slots[slot]
	ec.slots[slot] = cube
	if prev != nil {
		if err := ec.release(prev); err != nil {
			core.LogWarn("failed to release environment '%s': %s", prev.Name, err.Error())
		}
	}
	return e.view, nil
}

func (ec *environmentCache) release(cube *resources.TextureCube) error {
	e, ok := ec.entries[cube]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs > 0 || e.pinned {
		return nil
	}
	delete(ec.entries, cube)
	return ec.destroy(e)
}

func (ec *environmentCache) destroy(e *environmentEntry) error {
	return errors.Join(ec.backend.DestroyView(e.view), ec.backend.DestroyResource(e.texture))
}

func (ec *environmentCache) len() int {
	return len(ec.entries)
}

// clear destroys every cube, pinned ones included.
func (ec *environmentCache) clear() error {
	var errs []error
	for cube, e := range ec.entries {
		errs = append(errs, ec.destroy(e))
		delete(ec.entries, cube)
	}
	clear(ec.slots)
	return errors.Join(errs...)
}
