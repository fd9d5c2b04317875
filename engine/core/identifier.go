package core

import (
	"fmt"
	"sync"
)

// IdentifierPool hands out small integer ids and recycles released ones.
// Ids start at 1 so the zero value can mean "no id".
type IdentifierPool struct {
	mutex  sync.Mutex
	owners []interface{}
}

func NewIdentifierPool() *IdentifierPool {
	return &IdentifierPool{
		owners: make([]interface{}, 0, 64),
	}
}

func (ip *IdentifierPool) Acquire(owner interface{}) uint64 {
	ip.mutex.Lock()
	defer ip.mutex.Unlock()

	for i, o := range ip.owners {
		// Existing free spot. Take it.
		if o == nil {
			ip.owners[i] = owner
			return uint64(i) + 1
		}
	}

	// If here, no existing free slots. Need a new id, so push one.
	ip.owners = append(ip.owners, owner)
	return uint64(len(ip.owners))
}

func (ip *IdentifierPool) Release(id uint64) error {
	ip.mutex.Lock()
	defer ip.mutex.Unlock()

	if id == 0 || id > uint64(len(ip.owners)) {
		return fmt.Errorf("%w: id '%d' (max=%d)", ErrIdentifierOutOfRange, id, len(ip.owners))
	}
	// Just zero out the entry, making it available for use.
	ip.owners[id-1] = nil
	return nil
}

func (ip *IdentifierPool) Owner(id uint64) (interface{}, bool) {
	ip.mutex.Lock()
	defer ip.mutex.Unlock()

	if id == 0 || id > uint64(len(ip.owners)) {
		return nil, false
	}
	o := ip.owners[id-1]
	return o, o != nil
}

// Live counts ids currently held.
func (ip *IdentifierPool) Live() int {
	ip.mutex.Lock()
	defer ip.mutex.Unlock()

	n := 0
	for _, o := range ip.owners {
		if o != nil {
			n++
		}
	}
	return n
}
