package ingest

import "sync"

// DirtySet tracks collections awaiting a metrics refresh. It is an injected
// collaborator rather than package state so tests can isolate it and a
// shared backend can replace it later.
type DirtySet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

// NewDirtySet creates an empty dirty set.
func NewDirtySet() *DirtySet {
	return &DirtySet{set: make(map[string]struct{})}
}

// Mark records that a collection needs a refresh.
func (d *DirtySet) Mark(collectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.set[collectionID] = struct{}{}
}

// TakeAll atomically returns and clears the pending set.
func (d *DirtySet) TakeAll() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.set))
	for id := range d.set {
		ids = append(ids, id)
	}
	d.set = make(map[string]struct{})
	return ids
}

// Len returns the number of pending collections.
func (d *DirtySet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.set)
}
