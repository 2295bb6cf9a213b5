package corpus

import "sync/atomic"

// Holder publishes the current shared corpus. Readers take a snapshot with Load; a reload
// installs a fully validated replacement with Swap. A published corpus is never mutated.
type Holder struct {
	current atomic.Pointer[Corpus]
}

// NewHolder returns a holder publishing c, which may be nil.
func NewHolder(c *Corpus) *Holder {
	h := &Holder{}
	if c != nil {
		h.current.Store(c)
	}
	return h
}

// Load returns the current corpus or nil.
func (h *Holder) Load() *Corpus {
	return h.current.Load()
}

// Swap publishes c and returns the previous corpus.
func (h *Holder) Swap(c *Corpus) *Corpus {
	return h.current.Swap(c)
}
