package framegraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycle                   = errors.New("graph contains a cycle")
	ErrDanglingReference       = errors.New("dangling node reference")
	ErrDoubleMove              = errors.New("resource moved more than once")
	ErrMoveAfterUse            = errors.New("resource used after it was moved")
	ErrUnregisteredResource    = errors.New("resource is not registered")
	ErrConflictingRegistration = errors.New("conflicting resource registration")
)

type NodeKind uint8

const (
	NodeResource NodeKind = iota
	NodePass
	NodeMove
)

func (k NodeKind) String() string {
	switch k {
	case NodeResource:
		return "resource"
	case NodePass:
		return "pass"
	case NodeMove:
		return "move"
	}
	return "node"
}

// CompileError is a structural error pointing at the offending node.
type CompileError struct {
	Err  error
	Kind NodeKind
	Node int
	Name string
	// Cycle lists the passes that could not be scheduled, for ErrCycle.
	Cycle []string
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %s %d (%q)", e.Err, e.Kind, e.Node, e.Name)
	if len(e.Cycle) > 0 {
		msg += ": " + strings.Join(e.Cycle, " -> ")
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// AsCompileError returns the CompileError in err's chain, if any.
func AsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func resourceError(g *Graph, err error, id ResourceID) *CompileError {
	return &CompileError{Err: err, Kind: NodeResource, Node: int(id), Name: g.resourceName(id)}
}

func passError(g *Graph, err error, id PassID) *CompileError {
	return &CompileError{Err: err, Kind: NodePass, Node: int(id), Name: g.passName(id)}
}
