// Package headless is a renderer backend that records commands in memory and
// completes fences on the CPU. It drives the CLI when no GPU is available and
// every renderer test.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/anima-rendergraph/engine/core"
	"github.com/spaghettifunk/anima-rendergraph/engine/framegraph"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/resources"
)

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrShutdown      = errors.New("backend is shut down")
)

type Texture struct {
	Label string
	Desc  framegraph.TextureDesc
	// State is the state the texture was created in.
	State framegraph.ResourceState
}

type View struct {
	Resource framegraph.Handle
	Desc     framegraph.ViewDesc
}

type Options struct {
	// AutoComplete completes every signalled fence value immediately, as if
	// the GPU were infinitely fast.
	AutoComplete bool
}

type Backend struct {
	mutex        sync.Mutex
	ids          *core.IdentifierPool
	textures     map[framegraph.Handle]Texture
	views        map[renderer.ViewHandle]View
	pipelines    map[renderer.PipelineHandle]renderer.PipelineDesc
	buffers      map[renderer.BufferHandle][]byte
	lists        int
	submissions  [][]Command
	fence        *Fence
	signaled     uint64
	autoComplete bool
	created      int
	shutdown     bool
}

func New(opts Options) *Backend {
	return &Backend{
		ids:          core.NewIdentifierPool(),
		textures:     make(map[framegraph.Handle]Texture),
		views:        make(map[renderer.ViewHandle]View),
		pipelines:    make(map[renderer.PipelineHandle]renderer.PipelineDesc),
		buffers:      make(map[renderer.BufferHandle][]byte),
		fence:        NewFence(),
		autoComplete: opts.AutoComplete,
	}
}

func (b *Backend) Name() string {
	return "headless"
}

func (b *Backend) CreateResource(label string, desc framegraph.TextureDesc, initial framegraph.ResourceState) (framegraph.Handle, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return 0, ErrShutdown
	}
	if desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("resource '%s' has an empty extent %s", label, desc)
	}
	h := framegraph.Handle(b.ids.Acquire(label))
	b.textures[h] = Texture{Label: label, Desc: desc, State: initial}
	b.created++
	return h, nil
}

func (b *Backend) DestroyResource(resource framegraph.Handle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.textures[resource]; !ok {
		return fmt.Errorf("%w: resource %d", ErrUnknownHandle, resource)
	}
	delete(b.textures, resource)
	return b.ids.Release(uint64(resource))
}

func (b *Backend) CreateTextureCube(label string, cube *resources.TextureCube) (framegraph.Handle, error) {
	if cube == nil {
		return 0, fmt.Errorf("%w: no cube for '%s'", resources.ErrInvalidImage, label)
	}
	desc := framegraph.TextureCube(uint32(cube.Size), 1, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)
	return b.CreateResource(label, desc, framegraph.StatePixelShaderResource)
}

func (b *Backend) CreateView(resource framegraph.Handle, desc framegraph.ViewDesc) (renderer.ViewHandle, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.textures[resource]; !ok {
		return 0, fmt.Errorf("%w: resource %d", ErrUnknownHandle, resource)
	}
	v := renderer.ViewHandle(b.ids.Acquire(desc))
	b.views[v] = View{Resource: resource, Desc: desc}
	return v, nil
}

func (b *Backend) DestroyView(view renderer.ViewHandle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.views[view]; !ok {
		return fmt.Errorf("%w: view %d", ErrUnknownHandle, view)
	}
	delete(b.views, view)
	return b.ids.Release(uint64(view))
}

func (b *Backend) CreatePipeline(desc renderer.PipelineDesc) (renderer.PipelineHandle, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if desc.Shader == nil {
		return 0, errors.New("pipeline without shader")
	}
	p := renderer.PipelineHandle(b.ids.Acquire(desc))
	b.pipelines[p] = desc
	return p, nil
}

func (b *Backend) CreateBuffer(label string, size uint64) (renderer.BufferHandle, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	h := renderer.BufferHandle(b.ids.Acquire(label))
	b.buffers[h] = make([]byte, size)
	return h, nil
}

func (b *Backend) WriteBuffer(buffer renderer.BufferHandle, offset uint64, data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	buf, ok := b.buffers[buffer]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownHandle, buffer)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d of %d bytes", len(data), offset, buffer, len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

func (b *Backend) DestroyBuffer(buffer renderer.BufferHandle) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if _, ok := b.buffers[buffer]; !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownHandle, buffer)
	}
	delete(b.buffers, buffer)
	return b.ids.Release(uint64(buffer))
}

func (b *Backend) NewCommandList() (renderer.CommandList, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	cl := &CommandList{id: b.lists}
	b.lists++
	return cl, nil
}

func (b *Backend) Submit(lists ...renderer.CommandList) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return ErrShutdown
	}
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("command list %T does not belong to the headless backend", l)
		}
		if cl.recording {
			return fmt.Errorf("submit of command list %d: %w", cl.id, errors.New("still recording"))
		}
		b.submissions = append(b.submissions, cl.Commands())
	}
	return nil
}

func (b *Backend) Signal() (uint64, error) {
	b.mutex.Lock()
	if b.shutdown {
		b.mutex.Unlock()
		return 0, ErrShutdown
	}
	b.signaled++
	value := b.signaled
	b.mutex.Unlock()

	if b.autoComplete {
		b.fence.Complete(value)
	}
	return value, nil
}

func (b *Backend) Fence() renderer.Fence {
	return b.fence
}

// Complete plays the GPU: every fence value up to value is done.
func (b *Backend) Complete(value uint64) {
	b.fence.Complete(value)
}

// CompleteAll completes every value signalled so far.
func (b *Backend) CompleteAll() {
	b.fence.Complete(b.Signaled())
}

func (b *Backend) Signaled() uint64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.signaled
}

func (b *Backend) WaitIdle(ctx context.Context) error {
	return b.fence.Wait(ctx, b.Signaled())
}

func (b *Backend) Shutdown() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.shutdown {
		return nil
	}
	if n := len(b.textures); n > 0 {
		core.LogDebug("headless backend released %d live resources on shutdown", n)
	}
	b.textures = make(map[framegraph.Handle]Texture)
	b.views = make(map[renderer.ViewHandle]View)
	b.buffers = make(map[renderer.BufferHandle][]byte)
	b.shutdown = true
	return nil
}

func (b *Backend) Texture(h framegraph.Handle) (Texture, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	t, ok := b.textures[h]
	return t, ok
}

func (b *Backend) View(v renderer.ViewHandle) (View, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	view, ok := b.views[v]
	return view, ok
}

// Buffer returns a copy of the buffer contents.
func (b *Backend) Buffer(h renderer.BufferHandle) ([]byte, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	buf, ok := b.buffers[h]
	return append([]byte(nil), buf...), ok
}

func (b *Backend) LiveResources() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.textures)
}

func (b *Backend) LiveViews() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.views)
}

// CreatedResources counts every CreateResource that succeeded.
func (b *Backend) CreatedResources() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.created
}

func (b *Backend) Pipelines() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.pipelines)
}

// Submissions returns the command streams submitted so far, oldest first.
func (b *Backend) Submissions() [][]Command {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([][]Command(nil), b.submissions...)
}

var _ renderer.Backend = (*Backend)(nil)
