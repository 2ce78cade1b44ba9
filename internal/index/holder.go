package index

import "sync/atomic"

// Holder publishes the current Index. Queries Load a handle once and keep using
// it, so a Swap never affects a query already in flight.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder returns a Holder publishing ix, which may be nil (degraded mode).
func NewHolder(ix *Index) *Holder {
	h := &Holder{}
	h.current.Store(ix)
	return h
}

// Load returns the current index, or nil when none is loaded.
func (h *Holder) Load() *Index {
	return h.current.Load()
}

// Swap publishes ix and returns the previous index.
func (h *Holder) Swap(ix *Index) *Index {
	return h.current.Swap(ix)
}

// Ready reports whether a non-empty index is published.
func (h *Holder) Ready() bool {
	return h.Load().Len() > 0
}
