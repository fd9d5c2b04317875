package headless

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var (
	ErrNotRecording     = errors.New("command list is not recording")
	ErrAlreadyRecording = errors.New("command list is already recording")
)

type CommandKind int

const (
	CommandBarrier CommandKind = iota
	CommandSetPipeline
	CommandSetRenderTargets
	CommandSetViewport
	CommandClearRenderTarget
	CommandClearDepthStencil
	CommandBindConstants
	CommandBindTexture
	CommandDrawMesh
	CommandDraw
)

var commandNames = [...]string{
	"Barrier", "SetPipeline", "SetRenderTargets", "SetViewport", "ClearRenderTarget",
	"ClearDepthStencil", "BindConstants", "BindTexture", "DrawMesh", "Draw",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(commandNames) {
		return "Unknown"
	}
	return commandNames[k]
}

// Command is one recorded call. Only the fields of its kind are set.
type Command struct {
	Kind      CommandKind
	Barriers  []renderer.Barrier
	Pipeline  renderer.PipelineHandle
	Colors    []renderer.ViewHandle
	Depth     renderer.ViewHandle
	Viewport  renderer.Viewport
	Color     [4]float32
	ClearZ    float32
	Stencil   uint8
	Slot      uint32
	Buffer    renderer.BufferHandle
	Offset    uint64
	View      renderer.ViewHandle
	Mesh      *resources.Mesh
	SubMesh   int
	Instances uint32
	Vertices  uint32
}

func (c Command) String() string {
	switch c.Kind {
	case CommandBarrier:
		return fmt.Sprintf("%s x%d", c.Kind, len(c.Barriers))
	case CommandDrawMesh:
		return fmt.Sprintf("%s %s[%d] x%d", c.Kind, c.Mesh.Name, c.SubMesh, c.Instances)
	}
	return c.Kind.String()
}

// CommandList records commands in memory.
type CommandList struct {
	id        int
	recording bool
	commands  []Command
}

func (cl *CommandList) ID() int {
	return cl.id
}

func (cl *CommandList) Begin() error {
	if cl.recording {
		return ErrAlreadyRecording
	}
	cl.recording = true
	cl.commands = cl.commands[:0]
	return nil
}

func (cl *CommandList) End() error {
	if !cl.recording {
		return ErrNotRecording
	}
	cl.recording = false
	return nil
}

func (cl *CommandList) Recording() bool {
	return cl.recording
}

func (cl *CommandList) record(c Command) {
	cl.commands = append(cl.commands, c)
}

func (cl *CommandList) ResourceBarrier(barriers ...renderer.Barrier) {
	cl.record(Command{Kind: CommandBarrier, Barriers: append([]renderer.Barrier(nil), barriers...)})
}

func (cl *CommandList) SetPipeline(pipeline renderer.PipelineHandle) {
	cl.record(Command{Kind: CommandSetPipeline, Pipeline: pipeline})
}

func (cl *CommandList) SetRenderTargets(colors []renderer.ViewHandle, depth renderer.ViewHandle) {
	cl.record(Command{Kind: CommandSetRenderTargets, Colors: append([]renderer.ViewHandle(nil), colors...), Depth: depth})
}

func (cl *CommandList) SetViewport(viewport renderer.Viewport) {
	cl.record(Command{Kind: CommandSetViewport, Viewport: viewport})
}

func (cl *CommandList) ClearRenderTarget(view renderer.ViewHandle, color [4]float32) {
	cl.record(Command{Kind: CommandClearRenderTarget, View: view, Color: color})
}

func (cl *CommandList) ClearDepthStencil(view renderer.ViewHandle, depth float32, stencil uint8) {
	cl.record(Command{Kind: CommandClearDepthStencil, View: view, ClearZ: depth, Stencil: stencil})
}

func (cl *CommandList) BindConstants(slot uint32, buffer renderer.BufferHandle, offset uint64) {
	cl.record(Command{Kind: CommandBindConstants, Slot: slot, Buffer: buffer, Offset: offset})
}

func (cl *CommandList) BindTexture(slot uint32, view renderer.ViewHandle) {
	cl.record(Command{Kind: CommandBindTexture, Slot: slot, View: view})
}

func (cl *CommandList) DrawMesh(mesh *resources.Mesh, submesh int, instances uint32) {
	cl.record(Command{Kind: CommandDrawMesh, Mesh: mesh, SubMesh: submesh, Instances: instances})
}

func (cl *CommandList) Draw(vertexCount, instanceCount uint32) {
	cl.record(Command{Kind: CommandDraw, Vertices: vertexCount, Instances: instanceCount})
}

// Commands returns a copy of what was recorded since the last Begin.
func (cl *CommandList) Commands() []Command {
	return append([]Command(nil), cl.commands...)
}

// Barriers flattens every recorded barrier in order.
func (cl *CommandList) Barriers() []renderer.Barrier {
	return Barriers(cl.commands)
}

func Barriers(commands []Command) []renderer.Barrier {
	var out []renderer.Barrier
	for _, c := range commands {
		if c.Kind == CommandBarrier {
			out = append(out, c.Barriers...)
		}
	}
	return out
}

// Count returns how many commands of kind were recorded.
func Count(commands []Command, kind CommandKind) int {
	n := 0
	for _, c := range commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
