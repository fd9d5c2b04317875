// Package framegraph declares the per-frame resource/pass graph and compiles
// it into an ordered execution plan with state transitions.
package framegraph

import "fmt"

// ResourceID, PassID and MoveID index the arenas of a Graph. They are only
// meaningful for the Graph that produced them and only until it is cleared.
type (
	ResourceID int
	PassID     int
	MoveID     int
)

const InvalidID = -1

type ResourceNode struct {
	ID   ResourceID
	Name string
}

type PassNode struct {
	ID     PassID
	Name   string
	Reads  []ResourceID
	Writes []ResourceID
}

// MoveNode makes Dst a new identity of the physical resource behind Src. After
// the move Src is consumed: every later access goes through Dst.
type MoveNode struct {
	ID  MoveID
	Dst ResourceID
	Src ResourceID
}

// Graph is pure topology: no resource data lives here. It is rebuilt every
// frame.
type Graph struct {
	name      string
	resources []ResourceNode
	passes    []PassNode
	moves     []MoveNode
}

func NewGraph(name string) *Graph {
	return &Graph{name: name}
}

func (g *Graph) Name() string {
	return g.name
}

func (g *Graph) RegisterResourceNode(name string) ResourceID {
	id := ResourceID(len(g.resources))
	g.resources = append(g.resources, ResourceNode{ID: id, Name: name})
	return id
}

// RegisterPassNode copies reads and writes; the caller may reuse the slices.
func (g *Graph) RegisterPassNode(name string, reads, writes []ResourceID) PassID {
	id := PassID(len(g.passes))
	g.passes = append(g.passes, PassNode{
		ID:     id,
		Name:   name,
		Reads:  append([]ResourceID(nil), reads...),
		Writes: append([]ResourceID(nil), writes...),
	})
	return id
}

func (g *Graph) RegisterMoveNode(dst, src ResourceID) MoveID {
	id := MoveID(len(g.moves))
	g.moves = append(g.moves, MoveNode{ID: id, Dst: dst, Src: src})
	return id
}

// Clear drops every node but keeps the arenas' capacity.
func (g *Graph) Clear() {
	g.resources = g.resources[:0]
	g.passes = g.passes[:0]
	g.moves = g.moves[:0]
}

func (g *Graph) Resources() []ResourceNode {
	return g.resources
}

func (g *Graph) Passes() []PassNode {
	return g.passes
}

func (g *Graph) Moves() []MoveNode {
	return g.moves
}

func (g *Graph) IsValidResource(id ResourceID) bool {
	return id >= 0 && int(id) < len(g.resources)
}

func (g *Graph) IsValidPass(id PassID) bool {
	return id >= 0 && int(id) < len(g.passes)
}

func (g *Graph) Resource(id ResourceID) (ResourceNode, error) {
	if !g.IsValidResource(id) {
		return ResourceNode{}, fmt.Errorf("%w: resource %d", ErrDanglingReference, id)
	}
	return g.resources[id], nil
}

func (g *Graph) Pass(id PassID) (PassNode, error) {
	if !g.IsValidPass(id) {
		return PassNode{}, fmt.Errorf("%w: pass %d", ErrDanglingReference, id)
	}
	return g.passes[id], nil
}

// resourceName is used in diagnostics and tolerates invalid ids.
func (g *Graph) resourceName(id ResourceID) string {
	if g.IsValidResource(id) {
		return g.resources[id].Name
	}
	return fmt.Sprintf("<resource %d>", id)
}

func (g *Graph) passName(id PassID) string {
	if g.IsValidPass(id) {
		return g.passes[id].Name
	}
	return fmt.Sprintf("<pass %d>", id)
}
