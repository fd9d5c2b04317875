package headless

import (
	"context"
	"sync"
)

// Fence is a CPU-side timeline fence. Completion is driven by the backend
// (auto-complete mode) or by tests through Complete.
type Fence struct {
	mutex     sync.Mutex
	completed uint64
	changed   chan struct{}
}

func NewFence() *Fence {
	return &Fence{changed: make(chan struct{})}
}

func (f *Fence) CompletedValue() uint64 {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.completed
}

// Complete marks every value up to value as done and wakes waiters. Values
// never go backwards.
func (f *Fence) Complete(value uint64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if value <= f.completed {
		return
	}
	f.completed = value
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *Fence) Wait(ctx context.Context, value uint64) error {
	for {
		f.mutex.Lock()
		if f.completed >= value {
			f.mutex.Unlock()
			return nil
		}
		changed := f.changed
		f.mutex.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
