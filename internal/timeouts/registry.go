package timeouts

import (
	"sync"
	"time"
)

// Handle identifies one scheduled reset. The zero Handle is never issued.
type Handle struct {
	owner string
	id    uint64
}

// Owner returns the instance that scheduled the callback.
func (h Handle) Owner() string { return h.owner }

// Registry tracks delayed callbacks per owner so an owner's callbacks can be
// cancelled together when it goes away.
type Registry struct {
	clock Clock

	mu      sync.Mutex
	seq     uint64
	pending map[string]map[uint64]Timer
}

func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{clock: clock, pending: map[string]map[uint64]Timer{}}
}

// Schedule runs fn after d unless cancelled first. A callback that fires is
// removed from the owner's set before fn runs.
func (r *Registry) Schedule(owner string, d time.Duration, fn func()) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	handle := Handle{owner: owner, id: r.seq}
	timer := r.clock.AfterFunc(d, func() {
		if !r.release(handle) {
			return
		}
		fn()
	})

	set, ok := r.pending[owner]
	if !ok {
		set = map[uint64]Timer{}
		r.pending[owner] = set
	}
	set[handle.id] = timer
	return handle
}

// Cancel stops one callback. Cancelling a fired or cancelled handle is a no-op
// and reports false.
func (r *Registry) Cancel(handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.pending[handle.owner]
	if !ok {
		return false
	}
	timer, ok := set[handle.id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(set, handle.id)
	if len(set) == 0 {
		delete(r.pending, handle.owner)
	}
	return true
}

// CancelAll stops every pending callback of owner and returns how many were stopped.
func (r *Registry) CancelAll(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.pending[owner]
	for _, timer := range set {
		timer.Stop()
	}
	delete(r.pending, owner)
	return len(set)
}

// Pending returns the number of outstanding callbacks for owner.
func (r *Registry) Pending(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[owner])
}

// Owners returns how many owners currently have outstanding callbacks.
func (r *Registry) Owners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) release(handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.pending[handle.owner]
	if !ok {
		return false
	}
	if _, ok := set[handle.id]; !ok {
		return false
	}
	delete(set, handle.id)
	if len(set) == 0 {
		delete(r.pending, handle.owner)
	}
	return true
}
