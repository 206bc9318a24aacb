package events

import "sync"

type gateKey struct {
	origin string
	entity string
}

// SequenceGate tracks the highest applied sequence number per origin and
// entity. Re-delivered or out-of-date events fail admission and must be
// discarded by the caller, which makes handler application idempotent under
// at-least-once delivery.
type SequenceGate struct {
	mu      sync.Mutex
	applied map[gateKey]uint64
}

// NewSequenceGate constructs an empty gate.
func NewSequenceGate() *SequenceGate {
	return &SequenceGate{applied: make(map[gateKey]uint64)}
}

// Admit records seq for (origin, entity) and reports whether it is strictly
// newer than the last admitted sequence. Equal sequences are duplicates.
func (g *SequenceGate) Admit(origin, entity string, seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := gateKey{origin: origin, entity: entity}
	if last, ok := g.applied[key]; ok && seq <= last {
		return false
	}
	g.applied[key] = seq
	return true
}

// Forget drops tracking state for an entity, freeing memory once the entity
// is evicted everywhere. Safe to call for unknown entities.
func (g *SequenceGate) Forget(entity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.applied {
		if key.entity == entity {
			delete(g.applied, key)
		}
	}
}
