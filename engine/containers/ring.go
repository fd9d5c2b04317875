package containers

// Ring is a fixed set of elements visited round-robin. Unlike RingQueue nothing
// is ever removed; Advance only moves the cursor.
type Ring[T any] struct {
	items   []T
	current int
}

// NewRing builds a ring positioned on the last element, so the first Advance
// lands on index 0.
func NewRing[T any](items []T) *Ring[T] {
	return &Ring[T]{
		items:   items,
		current: len(items) - 1,
	}
}

func (r *Ring[T]) Advance() T {
	r.current = (r.current + 1) % len(r.items)
	return r.items[r.current]
}

// Next returns the element Advance would move to, without moving.
func (r *Ring[T]) Next() T {
	return r.items[(r.current+1)%len(r.items)]
}

func (r *Ring[T]) Current() T {
	return r.items[r.current]
}

func (r *Ring[T]) Index() int {
	return r.current
}

func (r *Ring[T]) Len() int {
	return len(r.items)
}

func (r *Ring[T]) Items() []T {
	return r.items
}
