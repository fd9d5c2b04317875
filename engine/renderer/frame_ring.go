package renderer

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/anima-rendergraph/engine/containers"
	"github.com/spaghettifunk/anima-rendergraph/engine/core"
)

// ResourceUpdater transforms a slot resource; the result replaces it.
type ResourceUpdater func(value any) any

type delayedUpdate struct {
	name    string
	updater ResourceUpdater
}

// FrameSlot is the set of per-frame objects the CPU may only touch once the
// GPU finished the frame that last used them.
type FrameSlot struct {
	index       int
	fenceValue  uint64
	commandList CommandList
	resources   map[string]any
	pending     []delayedUpdate
}

func (s *FrameSlot) Index() int {
	return s.index
}

// FenceValue is the fence value signalled at the end of the slot's last frame.
func (s *FrameSlot) FenceValue() uint64 {
	return s.fenceValue
}

func (s *FrameSlot) CommandList() CommandList {
	return s.commandList
}

func (s *FrameSlot) RegisterResource(name string, value any) {
	s.resources[name] = value
}

func (s *FrameSlot) GetResource(name string) (any, bool) {
	v, ok := s.resources[name]
	return v, ok
}

// DelayUpdateResource defers updater until the slot is next begun, when the
// GPU no longer uses the resource.
func (s *FrameSlot) DelayUpdateResource(name string, updater ResourceUpdater) {
	s.pending = append(s.pending, delayedUpdate{name: name, updater: updater})
}

func (s *FrameSlot) applyDelayedUpdates() {
	for _, u := range s.pending {
		v, ok := s.resources[u.name]
		if !ok {
			core.LogWarn("delayed update of unknown slot resource '%s' in slot %d", u.name, s.index)
			continue
		}
		s.resources[u.name] = u.updater(v)
	}
	s.pending = nil
}

// SlotResource fetches a typed resource from a slot.
func SlotResource[T any](slot *FrameSlot, name string) (T, error) {
	var zero T
	v, ok := slot.GetResource(name)
	if !ok {
		return zero, fmt.Errorf("%w: '%s'", ErrSlotResourceMissing, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: '%s' holds %T", ErrSlotResourceMissing, name, v)
	}
	return t, nil
}

// FrameRingBuffer cycles through N frame slots so the CPU can record frame
// k+N-1 while the GPU still executes frame k.
type FrameRingBuffer struct {
	ring   *containers.Ring[*FrameSlot]
	fence  Fence
	active bool
}

func NewFrameRingBuffer(n int, allocator CommandAllocator) (*FrameRingBuffer, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSlotCount, n)
	}
	slots := make([]*FrameSlot, n)
	for i := range slots {
		cl, err := allocator.NewCommandList()
		if err != nil {
			return nil, fmt.Errorf("failed to create command list for slot %d: %w", i, err)
		}
		slots[i] = &FrameSlot{
			index:       i,
			commandList: cl,
			resources:   make(map[string]any),
		}
	}
	return &FrameRingBuffer{
		ring:  containers.NewRing(slots),
		fence: allocator.Fence(),
	}, nil
}

// RegisterResource stores factory(slot) in every slot under name.
func (fr *FrameRingBuffer) RegisterResource(name string, factory func(slot *FrameSlot) (any, error)) error {
	for _, s := range fr.ring.Items() {
		v, err := factory(s)
		if err != nil {
			return fmt.Errorf("failed to create slot resource '%s' for slot %d: %w", name, s.index, err)
		}
		s.RegisterResource(name, v)
	}
	return nil
}

// DelayUpdateResource queues updater on every slot.
func (fr *FrameRingBuffer) DelayUpdateResource(name string, updater ResourceUpdater) {
	for _, s := range fr.ring.Items() {
		s.DelayUpdateResource(name, updater)
	}
}

// BeginFrame moves to the next slot, waiting for the GPU to finish the frame
// that used it last, and applies its delayed updates. If the wait fails the
// ring does not advance.
func (fr *FrameRingBuffer) BeginFrame(ctx context.Context) (*FrameSlot, error) {
	if fr.active {
		return nil, ErrFrameInProgress
	}
	next := fr.ring.Next()
	if next.fenceValue != 0 && fr.fence.CompletedValue() < next.fenceValue {
		if err := fr.fence.Wait(ctx, next.fenceValue); err != nil {
			return nil, fmt.Errorf("waiting for frame slot %d: %w", next.index, err)
		}
	}
	fr.ring.Advance()
	next.applyDelayedUpdates()
	fr.active = true
	return next, nil
}

// EndFrame signals the queue and records the fence value in the current slot.
func (fr *FrameRingBuffer) EndFrame(signaler Signaler) error {
	if !fr.active {
		return ErrFrameNotBegun
	}
	value, err := signaler.Signal()
	if err != nil {
		return fmt.Errorf("failed to signal end of frame: %w", err)
	}
	fr.ring.Current().fenceValue = value
	fr.active = false
	return nil
}

// AbortFrame closes a frame that submitted nothing. The slot keeps its
// previous fence value.
func (fr *FrameRingBuffer) AbortFrame() {
	fr.active = false
}

func (fr *FrameRingBuffer) InFrame() bool {
	return fr.active
}

func (fr *FrameRingBuffer) Current() *FrameSlot {
	return fr.ring.Current()
}

func (fr *FrameRingBuffer) Slots() []*FrameSlot {
	return fr.ring.Items()
}

func (fr *FrameRingBuffer) Len() int {
	return fr.ring.Len()
}
