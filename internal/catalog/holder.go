package catalog

import (
	"sync/atomic"
)

// Holder publishes the current snapshot. Readers take the pointer once per
// match call and keep it for the whole call, so a reload never changes the
// catalog under a running scorer.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns a Holder seeded with snap, or an empty snapshot when nil.
func NewHolder(snap *Snapshot) *Holder {
	h := &Holder{}
	if snap == nil {
		snap = Build(nil, "")
	}
	h.current.Store(snap)
	return h
}

// Current returns the published snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Swap publishes snap and returns the previous snapshot.
func (h *Holder) Swap(snap *Snapshot) *Snapshot {
	if snap == nil {
		return h.current.Load()
	}
	return h.current.Swap(snap)
}

// Reload loads path and publishes it. On error the previous snapshot stays.
func (h *Holder) Reload(path string) (*Snapshot, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	h.Swap(snap)
	return snap, nil
}
