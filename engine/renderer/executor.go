package renderer

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
)

// BoundResource is a resource resolved for the duration of one pass.
type BoundResource struct {
	Name   string
	Handle framegraph.Handle
	State  framegraph.ResourceState
	Desc   framegraph.TextureDesc
	// Views follow the order the views were registered for the pass.
	Views []ViewHandle
}

// PassResources is the table a pass callback reads its resources from.
type PassResources struct {
	name      string
	resources map[framegraph.ResourceID]BoundResource
}

func (pr *PassResources) PassName() string {
	return pr.name
}

func (pr *PassResources) Resource(id framegraph.ResourceID) (BoundResource, bool) {
	r, ok := pr.resources[id]
	return r, ok
}

// View returns the i-th registered view of id, or zero.
func (pr *PassResources) View(id framegraph.ResourceID, i int) ViewHandle {
	r, ok := pr.resources[id]
	if !ok || i >= len(r.Views) {
		return 0
	}
	return r.Views[i]
}

func (pr *PassResources) Handle(id framegraph.ResourceID) framegraph.Handle {
	return pr.resources[id].Handle
}

type PassFunc func(cl CommandList, table *PassResources) error

// Executor records a compiled plan into a command list.
type Executor struct {
	funcs       map[framegraph.PassID]PassFunc
	transitions uint64
}

func NewExecutor() *Executor {
	return &Executor{
		funcs: make(map[framegraph.PassID]PassFunc),
	}
}

// NewFrame drops the callbacks registered for the previous frame.
func (e *Executor) NewFrame() {
	clear(e.funcs)
}

func (e *Executor) RegisterPassFunc(pass framegraph.PassID, fn PassFunc) {
	e.funcs[pass] = fn
}

// Transitions counts barriers recorded since the executor was created.
func (e *Executor) Transitions() uint64 {
	return e.transitions
}

type physicalState struct {
	handle   framegraph.Handle
	state    framegraph.ResourceState
	resolved bool
	acquired bool
}

// Execute records every pass of plan into cl: resources are resolved on first
// use, pre-pass barriers recorded, the pass callback invoked and post-pass
// barriers recorded. Temporal resources go back to pool after their last pass.
// On error every acquired resource is released before returning.
func (e *Executor) Execute(cl CommandList, plan *framegraph.Plan, pool *ResourcePool) (err error) {
	if err := plan.Consume(); err != nil {
		return err
	}

	physical := make([]physicalState, len(plan.Resources()))
	defer func() {
		if err == nil {
			return
		}
		for i := range physical {
			if !physical[i].acquired {
				continue
			}
			res := plan.Resource(i)
			if rerr := pool.Release(res.Root, physical[i].state); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
	}()

	for index, pp := range plan.Passes() {
		var barriers []Barrier
		table := &PassResources{
			name:      pp.Name,
			resources: make(map[framegraph.ResourceID]BoundResource, len(pp.Resources)),
		}

		for _, r := range pp.Resources {
			res := plan.Resource(r.Physical)
			ps := &physical[r.Physical]
			if !ps.resolved {
				fixup, err := e.resolve(res, ps, pool)
				if err != nil {
					return err
				}
				if fixup != nil {
					barriers = append(barriers, *fixup)
					e.transitions++
				}
			}

			views := make([]ViewHandle, 0, len(r.Views))
			for _, desc := range r.Views {
				if desc.Format == gputypes.TextureFormatUndefined {
					desc.Format = res.Desc.Format
				}
				view, err := pool.Views().Get(ps.handle, desc)
				if err != nil {
					core.LogError("pass '%s': %s", pp.Name, err.Error())
					return err
				}
				views = append(views, view)
			}

			state := r.State
			if state == framegraph.StateUndefined {
				state = ps.state
			}
			table.resources[r.Resource] = BoundResource{
				Name:   r.Name,
				Handle: ps.handle,
				State:  state,
				Desc:   res.Desc,
				Views:  views,
			}
		}

		barriers = append(barriers, e.barriers(pp.Before, physical)...)
		if len(barriers) > 0 {
			cl.ResourceBarrier(barriers...)
		}

		if fn, ok := e.funcs[pp.Pass]; ok && fn != nil {
			if err := fn(cl, table); err != nil {
				core.LogError("pass '%s' failed: %s", pp.Name, err.Error())
				return fmt.Errorf("pass '%s': %w", pp.Name, err)
			}
		}

		if after := e.barriers(pp.After, physical); len(after) > 0 {
			cl.ResourceBarrier(after...)
		}

		for _, r := range pp.Resources {
			ps := &physical[r.Physical]
			res := plan.Resource(r.Physical)
			if !ps.acquired || res.LastPass != index {
				continue
			}
			if err := pool.Release(res.Root, ps.state); err != nil {
				return err
			}
			ps.acquired = false
		}
	}
	return nil
}

// resolve binds a physical resource to a backend handle. A fix-up barrier is
// returned when a pooled resource is not in its planned initial state.
func (e *Executor) resolve(res framegraph.PhysicalResource, ps *physicalState, pool *ResourcePool) (*Barrier, error) {
	switch res.Lifetime {
	case framegraph.LifetimeTemporal:
		handle, current, err := pool.Acquire(res.Root, res.Name, res.Desc, res.InitialState)
		if err != nil {
			core.LogError("%s", err)
			return nil, err
		}
		ps.handle = handle
		ps.state = res.InitialState
		ps.resolved = true
		ps.acquired = true
		if current != res.InitialState && current != framegraph.StateUndefined && res.InitialState != framegraph.StateUndefined {
			return &Barrier{Resource: handle, Before: current, After: res.InitialState}, nil
		}
		if res.InitialState == framegraph.StateUndefined {
			ps.state = current
		}
		return nil, nil
	case framegraph.LifetimeImported:
		if res.Handle == 0 {
			core.LogError("imported resource '%s' has no handle", res.Name)
			return nil, fmt.Errorf("%w: imported resource '%s' has no handle", ErrUnresolvedResource, res.Name)
		}
		ps.handle = res.Handle
		ps.state = res.InitialState
		ps.resolved = true
		return nil, nil
	}
	core.LogError("resource '%s' has unknown lifetime %s", res.Name, res.Lifetime)
	return nil, fmt.Errorf("%w: resource '%s' has lifetime %s", ErrUnresolvedResource, res.Name, res.Lifetime)
}

func (e *Executor) barriers(transitions []framegraph.Transition, physical []physicalState) []Barrier {
	if len(transitions) == 0 {
		return nil
	}
	out := make([]Barrier, 0, len(transitions))
	for _, t := range transitions {
		ps := &physical[t.Physical]
		out = append(out, Barrier{Resource: ps.handle, Before: t.Before, After: t.After})
		ps.state = t.After
	}
	e.transitions += uint64(len(out))
	return out
}
