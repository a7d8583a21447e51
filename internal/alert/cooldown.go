package alert

import (
	"sync"
	"time"

	"github.com/collectionpulse/engine/internal/model"
)

// CooldownStore tracks the last trigger time per (collection, alert type).
// Process-lifetime state, injected so tests can isolate it and a shared
// backend can replace it for multi-instance deployments.
type CooldownStore interface {
	LastTriggered(collectionID string, t model.AlertType) (time.Time, bool)
	MarkTriggered(collectionID string, t model.AlertType, at time.Time)
}

type cooldownKey struct {
	collectionID string
	alertType    model.AlertType
}

// MemoryCooldowns is the in-process CooldownStore.
type MemoryCooldowns struct {
	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

// NewMemoryCooldowns creates an empty cooldown store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{last: make(map[cooldownKey]time.Time)}
}

// LastTriggered returns the last trigger time for the pair, if any.
func (c *MemoryCooldowns) LastTriggered(collectionID string, t model.AlertType) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.last[cooldownKey{collectionID, t}]
	return at, ok
}

// MarkTriggered records a trigger time for the pair.
func (c *MemoryCooldowns) MarkTriggered(collectionID string, t model.AlertType, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[cooldownKey{collectionID, t}] = at
}
