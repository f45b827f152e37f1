// Package status implements the engine's status callback surface:
// add/remove by opaque handle, categories Error/Warning/Info/Underrun/
// Overrun. The registry hands out opaque Handles (a monotonic counter
// wrapped in a distinct type) so removal never depends on the raw
// integer, and a lock-free ring absorbs realtime-critical messages for
// an off-thread reporter to drain.
package status

import (
	"sync"
	"sync/atomic"
)

// Handle is an opaque subscription id returned by Registry.Add.
type Handle uint64

// Callback receives a category ("Error", "Warning", "Info", "Underrun",
// "Overrun") and a human-readable message.
type Callback func(category string, message string)

// Registry holds status callback subscriptions. Callbacks fire in FIFO
// subscription order; the oldest subscription is never evicted to make
// room for a newer one, and subscriptions never expire on their own.
type Registry struct {
	mu      sync.RWMutex
	next    uint64
	order   []Handle
	entries map[Handle]Callback
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Handle]Callback)}
}

// Add registers cb and returns an opaque handle for later removal.
func (r *Registry) Add(cb Callback) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := Handle(r.next)
	r.entries[h] = cb
	r.order = append(r.order, h)
	return h
}

// Remove unregisters the callback associated with h. Removing an
// already-removed or unknown handle is a no-op.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[h]; !ok {
		return
	}
	delete(r.entries, h)
	for i, oh := range r.order {
		if oh == h {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Emit invokes every subscribed callback, in FIFO subscription order.
func (r *Registry) Emit(category, message string) {
	r.mu.RLock()
	cbs := make([]Callback, 0, len(r.order))
	for _, h := range r.order {
		cbs = append(cbs, r.entries[h])
	}
	r.mu.RUnlock()
	for _, cb := range cbs {
		cb(category, message)
	}
}

// event is one realtime-critical status message.
type event struct {
	category string
	message  string
}

// Ring is a lock-free SPSC ring used by the realtime path to hand status
// events to a dedicated reporter goroutine without ever blocking the
// realtime thread. Capacity is rounded up to the next power of two.
type Ring struct {
	buf  []event
	mask uint64
	head uint64 // next slot to write (producer-owned)
	tail uint64 // next slot to read (consumer-owned)
}

// NewRing returns a Ring with at least the given capacity.
func NewRing(capacity int) *Ring {
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Ring{buf: make([]event, n), mask: uint64(n - 1)}
}

// TryPush attempts to push an event without blocking. Returns false if
// the ring is full — the realtime thread must treat this as "drop and
// move on", never as a reason to wait.
func (r *Ring) TryPush(category, message string) bool {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head-tail >= uint64(len(r.buf)) {
		return false
	}
	r.buf[head&r.mask] = event{category: category, message: message}
	atomic.StoreUint64(&r.head, head+1)
	return true
}

// TryPop attempts to pop one event. Returns ok=false if the ring is
// empty. Intended to be called from a single dedicated reporter thread.
func (r *Ring) TryPop() (category, message string, ok bool) {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	if tail == head {
		return "", "", false
	}
	e := r.buf[tail&r.mask]
	atomic.StoreUint64(&r.tail, tail+1)
	return e.category, e.message, true
}
