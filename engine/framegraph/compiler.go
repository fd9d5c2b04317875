package framegraph

import (
	"slices"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

// Compiler turns a Graph and its Registry into a Plan. It holds no state
// between calls.
type Compiler struct{}

func NewCompiler() *Compiler {
	return &Compiler{}
}

type access struct {
	pass  PassID
	read  bool
	write bool
}

// compilation carries the working tables of one Compile call.
type compilation struct {
	g   *Graph
	reg *Registry

	// srcOf and dstOf link the nodes of move chains; InvalidID when absent.
	srcOf []ResourceID
	dstOf []ResourceID
	root  []ResourceID

	accesses [][]access
	edges    [][]bool
}

func (c *Compiler) Compile(g *Graph, reg *Registry) (*Plan, error) {
	cc := &compilation{g: g, reg: reg}

	if err := cc.validateReferences(); err != nil {
		return nil, fail(err)
	}
	if err := cc.resolveMoves(); err != nil {
		return nil, fail(err)
	}
	cc.collectAccesses()
	if err := cc.validateRegistrations(); err != nil {
		return nil, fail(err)
	}
	cc.addDataEdges()
	if err := cc.addMoveEdges(); err != nil {
		return nil, fail(err)
	}
	order, err := cc.schedule()
	if err != nil {
		return nil, fail(err)
	}
	return cc.buildPlan(order), nil
}

func fail(err error) error {
	core.LogError("%s", err)
	return err
}

func (cc *compilation) validateReferences() error {
	g := cc.g
	for _, p := range g.passes {
		for _, r := range p.Reads {
			if !g.IsValidResource(r) {
				return passError(g, ErrDanglingReference, p.ID)
			}
		}
		for _, r := range p.Writes {
			if !g.IsValidResource(r) {
				return passError(g, ErrDanglingReference, p.ID)
			}
		}
	}
	for _, m := range g.moves {
		if !g.IsValidResource(m.Dst) || !g.IsValidResource(m.Src) {
			return &CompileError{Err: ErrDanglingReference, Kind: NodeMove, Node: int(m.ID), Name: g.resourceName(m.Src) + " -> " + g.resourceName(m.Dst)}
		}
	}

	// Registry entries must point into this graph. Report the smallest
	// offending id so the diagnostic does not depend on map order.
	bad := InvalidID
	note := func(id int) {
		if bad == InvalidID || id < bad {
			bad = id
		}
	}
	for id := range cc.reg.temporal {
		if !g.IsValidResource(id) {
			note(int(id))
		}
	}
	for id := range cc.reg.imported {
		if !g.IsValidResource(id) {
			note(int(id))
		}
	}
	if bad != InvalidID {
		return resourceError(g, ErrDanglingReference, ResourceID(bad))
	}
	for k := range cc.reg.states {
		if !g.IsValidPass(k.pass) {
			note(int(k.pass))
		}
	}
	for k := range cc.reg.views {
		if !g.IsValidPass(k.pass) {
			note(int(k.pass))
		}
	}
	if bad != InvalidID {
		return passError(g, ErrDanglingReference, PassID(bad))
	}
	return nil
}

func (cc *compilation) resolveMoves() error {
	g := cc.g
	n := len(g.resources)
	cc.srcOf = make([]ResourceID, n)
	cc.dstOf = make([]ResourceID, n)
	cc.root = make([]ResourceID, n)
	for i := range n {
		cc.srcOf[i] = InvalidID
		cc.dstOf[i] = InvalidID
	}

	for _, m := range g.moves {
		if m.Dst == m.Src {
			return resourceError(g, ErrCycle, m.Src)
		}
		if cc.dstOf[m.Src] != InvalidID {
			return resourceError(g, ErrDoubleMove, m.Src)
		}
		if cc.srcOf[m.Dst] != InvalidID {
			return resourceError(g, ErrDoubleMove, m.Dst)
		}
		cc.dstOf[m.Src] = m.Dst
		cc.srcOf[m.Dst] = m.Src
	}

	for i := range n {
		r := ResourceID(i)
		steps := 0
		for cc.srcOf[r] != InvalidID {
			r = cc.srcOf[r]
			steps++
			if steps > len(g.moves) {
				return resourceError(g, ErrCycle, ResourceID(i))
			}
		}
		cc.root[i] = r
	}
	return nil
}

// collectAccesses records, per resource node, the passes touching it in
// declaration order. A pass listing a resource twice gets one access.
func (cc *compilation) collectAccesses() {
	cc.accesses = make([][]access, len(cc.g.resources))
	for _, p := range cc.g.passes {
		for _, r := range p.Reads {
			cc.touch(r, p.ID, true, false)
		}
		for _, r := range p.Writes {
			cc.touch(r, p.ID, false, true)
		}
	}
}

func (cc *compilation) touch(r ResourceID, p PassID, read, write bool) {
	list := cc.accesses[r]
	if n := len(list); n > 0 && list[n-1].pass == p {
		list[n-1].read = list[n-1].read || read
		list[n-1].write = list[n-1].write || write
		return
	}
	cc.accesses[r] = append(list, access{pass: p, read: read, write: write})
}

func (cc *compilation) validateRegistrations() error {
	g, reg := cc.g, cc.reg
	for id := range g.resources {
		r := ResourceID(id)
		_, isTemporal := reg.temporal[r]
		_, isImported := reg.imported[r]
		if isTemporal && isImported {
			return resourceError(g, ErrConflictingRegistration, r)
		}
		if len(cc.accesses[r]) == 0 {
			continue
		}
		root := cc.root[r]
		if reg.lifetime(root) == LifetimeUnknown {
			return resourceError(g, ErrUnregisteredResource, r)
		}
		if root == r || reg.lifetime(r) == LifetimeUnknown {
			continue
		}
		// A move destination may repeat its root's registration but not change it.
		if reg.lifetime(r) != reg.lifetime(root) {
			return resourceError(g, ErrConflictingRegistration, r)
		}
		if isTemporal && reg.temporal[r] != reg.temporal[root] {
			return resourceError(g, ErrConflictingRegistration, r)
		}
		if isImported && reg.imported[r] != reg.imported[root] {
			return resourceError(g, ErrConflictingRegistration, r)
		}
	}
	return nil
}

func (cc *compilation) addEdge(from, to PassID) {
	if from != to {
		cc.edges[from][to] = true
	}
}

// addDataEdges orders the accesses of every node: reads after earlier writes,
// writes after earlier reads and writes. Reads never order each other.
func (cc *compilation) addDataEdges() {
	n := len(cc.g.passes)
	cc.edges = make([][]bool, n)
	for i := range cc.edges {
		cc.edges[i] = make([]bool, n)
	}
	for _, list := range cc.accesses {
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if list[i].write || list[j].write {
					cc.addEdge(list[i].pass, list[j].pass)
				}
			}
		}
	}
}

// addMoveEdges makes every user of an earlier identity of a move chain run
// before every user of a later identity.
func (cc *compilation) addMoveEdges() error {
	g := cc.g
	type pair struct {
		from []access
		to   []access
	}
	var pairs []pair
	for id := range g.resources {
		r := ResourceID(id)
		if cc.root[r] != r || cc.dstOf[r] == InvalidID {
			continue
		}
		var chain []ResourceID
		for n := r; n != InvalidID; n = cc.dstOf[n] {
			chain = append(chain, n)
		}
		for i := range chain {
			for j := i + 1; j < len(chain); j++ {
				pairs = append(pairs, pair{from: cc.accesses[chain[i]], to: cc.accesses[chain[j]]})
			}
		}
	}

	// Check against data edges only, before move edges are added.
	for _, p := range pairs {
		for _, a := range p.from {
			for _, b := range p.to {
				if a.pass == b.pass {
					return passError(g, ErrMoveAfterUse, a.pass)
				}
			}
		}
		if w := writtenAfterMove(p.from, p.to); w != InvalidID {
			return passError(g, ErrMoveAfterUse, PassID(w))
		}
		for _, b := range p.to {
			reach := cc.reachable(b.pass)
			for _, a := range p.from {
				if a.write && reach[a.pass] {
					return passError(g, ErrMoveAfterUse, a.pass)
				}
			}
		}
	}
	for _, p := range pairs {
		for _, a := range p.from {
			for _, b := range p.to {
				cc.addEdge(a.pass, b.pass)
			}
		}
	}
	return nil
}

// writtenAfterMove returns the first pass writing an earlier identity after
// a later identity was used, when that earlier identity was already used
// before it. Passes consuming a destination ahead of every source use are
// ordered by the move edges instead. Accesses are in declaration order.
func writtenAfterMove(from, to []access) int {
	if len(from) == 0 || len(to) == 0 || from[0].pass > to[0].pass {
		return InvalidID
	}
	for _, a := range from {
		if a.write && a.pass > to[0].pass {
			return int(a.pass)
		}
	}
	return InvalidID
}

func (cc *compilation) reachable(from PassID) []bool {
	seen := make([]bool, len(cc.edges))
	stack := []PassID{from}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for q, ok := range cc.edges[p] {
			if ok && !seen[q] {
				seen[q] = true
				stack = append(stack, PassID(q))
			}
		}
	}
	return seen
}

// schedule is Kahn's algorithm picking the ready pass declared first.
func (cc *compilation) schedule() ([]PassID, error) {
	n := len(cc.edges)
	indegree := make([]int, n)
	for _, row := range cc.edges {
		for q, ok := range row {
			if ok {
				indegree[q]++
			}
		}
	}

	done := make([]bool, n)
	order := make([]PassID, 0, n)
	for len(order) < n {
		next := InvalidID
		for p := range n {
			if !done[p] && indegree[p] == 0 {
				next = p
				break
			}
		}
		if next == InvalidID {
			break
		}
		done[next] = true
		order = append(order, PassID(next))
		for q, ok := range cc.edges[next] {
			if ok {
				indegree[q]--
			}
		}
	}

	if len(order) < n {
		var stuck []string
		first := InvalidID
		for p := range n {
			if !done[p] {
				if first == InvalidID {
					first = p
				}
				stuck = append(stuck, cc.g.passes[p].Name)
			}
		}
		ce := passError(cc.g, ErrCycle, PassID(first))
		ce.Cycle = stuck
		return nil, ce
	}
	return order, nil
}

func (cc *compilation) buildPlan(order []PassID) *Plan {
	g, reg := cc.g, cc.reg
	plan := &Plan{
		name:   g.name,
		passes: make([]PlannedPass, 0, len(order)),
	}

	physicalOf := make(map[ResourceID]int)
	current := make([]ResourceState, 0)

	for idx, pid := range order {
		p := g.passes[pid]
		pp := PlannedPass{Pass: pid, Name: p.Name}

		seen := make(map[ResourceID]int)
		visit := func(r ResourceID, read, write bool) {
			if i, ok := seen[r]; ok {
				pp.Resources[i].Read = pp.Resources[i].Read || read
				pp.Resources[i].Write = pp.Resources[i].Write || write
				return
			}
			root := cc.root[r]
			desired := reg.PassState(pid, r)

			phys, known := physicalOf[root]
			if !known {
				phys = len(plan.resources)
				physicalOf[root] = phys
				res := PhysicalResource{
					Index:     phys,
					Root:      root,
					Name:      g.resources[root].Name,
					Lifetime:  reg.lifetime(root),
					FirstPass: idx,
					LastPass:  idx,
				}
				switch res.Lifetime {
				case LifetimeImported:
					imp := reg.imported[root]
					res.Handle = imp.Handle
					res.Desc = imp.Desc
					res.InitialState = imp.EntryState
				case LifetimeTemporal:
					res.Desc = reg.temporal[root]
					// created directly in the state of its first use
					res.InitialState = desired
					if res.InitialState == StateUndefined {
						res.InitialState = StateCommon
					}
					if read && !slices.Contains(p.Writes, r) {
						core.LogDebug("temporal resource %q is read before being written in pass %q", res.Name, p.Name)
					}
				}
				plan.resources = append(plan.resources, res)
				current = append(current, res.InitialState)
			}
			plan.resources[phys].LastPass = idx

			if desired != StateUndefined && desired != current[phys] {
				pp.Before = append(pp.Before, Transition{Resource: r, Physical: phys, Before: current[phys], After: desired})
				current[phys] = desired
			}

			seen[r] = len(pp.Resources)
			pp.Resources = append(pp.Resources, PassResource{
				Resource: r,
				Name:     g.resources[r].Name,
				Physical: phys,
				State:    current[phys],
				Views:    append([]ViewDesc(nil), reg.PassViews(pid, r)...),
				Read:     read,
				Write:    write,
			})
		}
		for _, r := range p.Reads {
			visit(r, true, false)
		}
		for _, r := range p.Writes {
			visit(r, false, true)
		}
		plan.passes = append(plan.passes, pp)
	}

	// Hand imported resources back in the state they came in.
	for _, res := range plan.resources {
		if res.Lifetime != LifetimeImported || current[res.Index] == res.InitialState {
			continue
		}
		last := &plan.passes[res.LastPass]
		r := res.Root
		for _, pr := range last.Resources {
			if pr.Physical == res.Index {
				r = pr.Resource
			}
		}
		last.After = append(last.After, Transition{Resource: r, Physical: res.Index, Before: current[res.Index], After: res.InitialState})
	}
	return plan
}
