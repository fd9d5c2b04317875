package framegraph

import (
	"errors"
	"sync/atomic"
)

var ErrPlanConsumed = errors.New("plan already executed")

// PhysicalResource is one allocation shared by every node of a move chain.
type PhysicalResource struct {
	Index    int
	Root     ResourceID
	Name     string
	Lifetime Lifetime
	Desc     TextureDesc
	// Handle is only set for imported resources.
	Handle Handle
	// InitialState is the entry state for imported resources and the
	// first-use state for temporal ones.
	InitialState ResourceState
	// FirstPass and LastPass index Plan.Passes; the resource is alive in between.
	FirstPass int
	LastPass  int
}

type Transition struct {
	Resource ResourceID
	Physical int
	Before   ResourceState
	After    ResourceState
}

// PassResource is a resource as seen by one pass.
type PassResource struct {
	Resource ResourceID
	Name     string
	Physical int
	// State the resource is in while the pass body runs.
	State ResourceState
	Views []ViewDesc
	Read  bool
	Write bool
}

type PlannedPass struct {
	Pass      PassID
	Name      string
	Resources []PassResource
	// Before are recorded ahead of the pass body, After once it returns.
	Before []Transition
	After  []Transition
}

// Plan is the compiled, immutable form of a Graph for one frame. It can be
// executed once.
type Plan struct {
	name      string
	passes    []PlannedPass
	resources []PhysicalResource
	consumed  atomic.Bool
}

func (p *Plan) Name() string {
	return p.name
}

// Passes returns the passes in execution order. Callers must not modify it.
func (p *Plan) Passes() []PlannedPass {
	return p.passes
}

func (p *Plan) Resources() []PhysicalResource {
	return p.resources
}

func (p *Plan) Resource(physical int) PhysicalResource {
	return p.resources[physical]
}

// PassOrder lists pass names in execution order.
func (p *Plan) PassOrder() []string {
	names := make([]string, len(p.passes))
	for i, pp := range p.passes {
		names[i] = pp.Name
	}
	return names
}

// Transitions counts pre and post pass transitions.
func (p *Plan) Transitions() int {
	n := 0
	for _, pp := range p.passes {
		n += len(pp.Before) + len(pp.After)
	}
	return n
}

// TransitionsFor returns every transition of the physical resource behind id.
func (p *Plan) TransitionsFor(id ResourceID) []Transition {
	physical := -1
	for _, pp := range p.passes {
		for _, r := range pp.Resources {
			if r.Resource == id {
				physical = r.Physical
			}
		}
	}
	if physical < 0 {
		return nil
	}
	var out []Transition
	for _, pp := range p.passes {
		for _, t := range pp.Before {
			if t.Physical == physical {
				out = append(out, t)
			}
		}
		for _, t := range pp.After {
			if t.Physical == physical {
				out = append(out, t)
			}
		}
	}
	return out
}

// Consume marks the plan as executed; a second call fails.
func (p *Plan) Consume() error {
	if !p.consumed.CompareAndSwap(false, true) {
		return ErrPlanConsumed
	}
	return nil
}
