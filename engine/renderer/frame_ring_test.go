package renderer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rendergraph/engine/renderer"
	"github.com/spaghettifunk/anima-rendergraph/engine/renderer/headless"
)

func runFrame(t *testing.T, ring *renderer.FrameRingBuffer, backend *headless.Backend) *renderer.FrameSlot {
	t.Helper()
	slot, err := ring.BeginFrame(context.Background())
	require.NoError(t, err)
	require.NoError(t, ring.EndFrame(backend))
	return slot
}

func TestFrameRingRejectsZeroSlots(t *testing.T) {
	_, err := renderer.NewFrameRingBuffer(0, headless.New(headless.Options{}))
	assert.ErrorIs(t, err, renderer.ErrInvalidSlotCount)
}

func TestFrameRingCyclesSlots(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	ring, err := renderer.NewFrameRingBuffer(3, backend)
	require.NoError(t, err)
	require.Equal(t, 3, ring.Len())

	var indices []int
	for i := 0; i < 7; i++ {
		indices = append(indices, runFrame(t, ring, backend).Index())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, indices)
	assert.Equal(t, uint64(7), ring.Current().FenceValue())

	lists := map[renderer.CommandList]bool{}
	for _, s := range ring.Slots() {
		lists[s.CommandList()] = true
	}
	assert.Len(t, lists, 3)
}

func TestFrameRingBlocksUntilSlotRetired(t *testing.T) {
	backend := headless.New(headless.Options{})
	ring, err := renderer.NewFrameRingBuffer(2, backend)
	require.NoError(t, err)

	runFrame(t, ring, backend) // slot 0, fence 1
	runFrame(t, ring, backend) // slot 1, fence 2

	// slot 0 is still in flight: the third frame cannot start
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = ring.BeginFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, ring.Current().Index(), "a failed wait does not advance the ring")

	done := make(chan *renderer.FrameSlot)
	go func() {
		slot, err := ring.BeginFrame(context.Background())
		assert.NoError(t, err)
		done <- slot
	}()

	select {
	case <-done:
		t.Fatal("BeginFrame returned before the fence completed")
	case <-time.After(20 * time.Millisecond):
	}

	backend.Complete(1)
	select {
	case slot := <-done:
		assert.Equal(t, 0, slot.Index())
	case <-time.After(time.Second):
		t.Fatal("BeginFrame did not return after the fence completed")
	}
}

func TestFrameRingDelayedUpdates(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	ring, err := renderer.NewFrameRingBuffer(2, backend)
	require.NoError(t, err)

	require.NoError(t, ring.RegisterResource("Counter", func(*renderer.FrameSlot) (any, error) {
		return 0, nil
	}))

	ring.DelayUpdateResource("Counter", func(v any) any { return v.(int) + 1 })
	ring.DelayUpdateResource("Counter", func(v any) any { return v.(int) * 10 })

	slots := ring.Slots()
	// nothing runs before the slot is begun
	v, err := renderer.SlotResource[int](slots[0], "Counter")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	runFrame(t, ring, backend)
	v, err = renderer.SlotResource[int](slots[0], "Counter")
	require.NoError(t, err)
	assert.Equal(t, 10, v, "updates apply in registration order")

	v, err = renderer.SlotResource[int](slots[1], "Counter")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	runFrame(t, ring, backend)
	v, err = renderer.SlotResource[int](slots[1], "Counter")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	// applied once
	runFrame(t, ring, backend)
	v, err = renderer.SlotResource[int](slots[0], "Counter")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestFrameRingFrameState(t *testing.T) {
	backend := headless.New(headless.Options{AutoComplete: true})
	ring, err := renderer.NewFrameRingBuffer(2, backend)
	require.NoError(t, err)

	assert.ErrorIs(t, ring.EndFrame(backend), renderer.ErrFrameNotBegun)

	slot, err := ring.BeginFrame(context.Background())
	require.NoError(t, err)
	_, err = ring.BeginFrame(context.Background())
	assert.ErrorIs(t, err, renderer.ErrFrameInProgress)

	ring.AbortFrame()
	assert.False(t, ring.InFrame())
	assert.Zero(t, slot.FenceValue(), "an aborted frame records no fence value")
}

func TestSlotResourceErrors(t *testing.T) {
	backend := headless.New(headless.Options{})
	ring, err := renderer.NewFrameRingBuffer(1, backend)
	require.NoError(t, err)
	slot := ring.Slots()[0]
	slot.RegisterResource("Name", "value")

	_, err = renderer.SlotResource[string](slot, "Missing")
	assert.ErrorIs(t, err, renderer.ErrSlotResourceMissing)

	_, err = renderer.SlotResource[int](slot, "Name")
	assert.ErrorIs(t, err, renderer.ErrSlotResourceMissing)

	s, err := renderer.SlotResource[string](slot, "Name")
	require.NoError(t, err)
	assert.Equal(t, "value", s)
}
