package renderer

import (
	"context"
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var (
	ErrUnresolvedResource  = errors.New("unresolved resource")
	ErrResourceNotAcquired = errors.New("resource not acquired from pool")
	ErrInvalidSlotCount    = errors.New("frame ring needs at least one slot")
	ErrSlotResourceMissing = errors.New("slot resource not registered")
	ErrFrameNotBegun       = errors.New("no frame in progress")
	ErrFrameInProgress     = errors.New("frame already in progress")
)

type (
	ViewHandle     uint64
	PipelineHandle uint64
	BufferHandle   uint64
)

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// FullViewport covers a width x height target with the [0, 1] depth range.
func FullViewport(width, height uint32) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
}

type Barrier struct {
	Resource framegraph.Handle
	Before   framegraph.ResourceState
	After    framegraph.ResourceState
}

// PipelineDesc identifies a pipeline state object. It is comparable and used
// as the pipeline cache key.
type PipelineDesc struct {
	Shader             *resources.Shader
	Pass               int
	RenderTargetCount  int
	RenderTargetFormat gputypes.TextureFormat
	DepthFormat        gputypes.TextureFormat
}

// Fence is the monotonic GPU progress counter of the queue.
type Fence interface {
	CompletedValue() uint64
	// Wait blocks until CompletedValue() >= value or ctx is done.
	Wait(ctx context.Context, value uint64) error
}

// Signaler enqueues a fence signal after everything submitted so far and
// returns the value the fence will reach.
type Signaler interface {
	Signal() (uint64, error)
}

// CommandList records work for the single graphics queue. Recording calls do
// not fail; errors surface from End or Submit.
type CommandList interface {
	Begin() error
	End() error
	ResourceBarrier(barriers ...Barrier)
	SetPipeline(pipeline PipelineHandle)
	SetRenderTargets(colors []ViewHandle, depth ViewHandle)
	SetViewport(viewport Viewport)
	ClearRenderTarget(view ViewHandle, color [4]float32)
	ClearDepthStencil(view ViewHandle, depth float32, stencil uint8)
	BindConstants(slot uint32, buffer BufferHandle, offset uint64)
	BindTexture(slot uint32, view ViewHandle)
	DrawMesh(mesh *resources.Mesh, submesh int, instances uint32)
	// Draw issues a non-indexed draw, used for full screen triangles.
	Draw(vertexCount, instanceCount uint32)
}

// ViewFactory creates and destroys views of backend resources.
type ViewFactory interface {
	CreateView(resource framegraph.Handle, desc framegraph.ViewDesc) (ViewHandle, error)
	DestroyView(view ViewHandle) error
}

// ResourceFactory is what the resource pool needs from a backend.
type ResourceFactory interface {
	ViewFactory
	CreateResource(label string, desc framegraph.TextureDesc, initial framegraph.ResourceState) (framegraph.Handle, error)
	DestroyResource(resource framegraph.Handle) error
}

// CommandAllocator provides one command list per frame slot and the fence the
// ring waits on.
type CommandAllocator interface {
	NewCommandList() (CommandList, error)
	Fence() Fence
}

type Backend interface {
	ResourceFactory
	CommandAllocator
	Signaler
	Name() string
	// CreateTextureCube uploads a cube texture and returns it in the
	// shader resource state.
	CreateTextureCube(label string, cube *resources.TextureCube) (framegraph.Handle, error)
	CreatePipeline(desc PipelineDesc) (PipelineHandle, error)
	CreateBuffer(label string, size uint64) (BufferHandle, error)
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error
	DestroyBuffer(buffer BufferHandle) error
	Submit(lists ...CommandList) error
	// WaitIdle blocks until every signalled fence value has completed.
	WaitIdle(ctx context.Context) error
	Shutdown() error
}
