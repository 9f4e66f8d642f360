// Package history keeps the last priced state of each fixture so the engine
// can tell a real price move from feed jitter, and only republish signals
// that actually changed.
package history

import (
	"math"
	"sync"
	"time"
)

// Snapshot is the priced state of one fixture at one instant.
type Snapshot struct {
	PairKey     string    `json:"pair_key"` // stable per fixture, not per scan
	TrueProb    float64   `json:"true_prob"`
	MarketPrice float64   `json:"market_price"`
	EV          float64   `json:"ev"`
	Taken       time.Time `json:"taken"`
}

// Store holds the most recent snapshot per fixture.
type Store interface {
	// Last returns the previous snapshot for a fixture, if any.
	Last(pairKey string) (Snapshot, bool)

	// Put replaces the stored snapshot for a fixture.
	Put(s Snapshot)

	// Len returns how many fixtures are tracked.
	Len() int
}

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[string]Snapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{last: make(map[string]Snapshot)}
}

func (s *MemoryStore) Last(pairKey string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.last[pairKey]
	return snap, ok
}

func (s *MemoryStore) Put(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[snap.PairKey] = snap
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.last)
}

// ChangeDetector decides whether two snapshots differ enough to matter.
type ChangeDetector struct {
	// Threshold is the minimum absolute move in any tracked value.
	// Default: 0.005, half a cent of probability.
	Threshold float64
}

// NewChangeDetector creates a detector with the default threshold.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{Threshold: 0.005}
}

// Changed reports whether curr moved at least the threshold away from prev
// in true probability, market price, or EV.
func (d *ChangeDetector) Changed(prev, curr Snapshot) bool {
	return math.Abs(curr.TrueProb-prev.TrueProb) >= d.Threshold ||
		math.Abs(curr.MarketPrice-prev.MarketPrice) >= d.Threshold ||
		math.Abs(curr.EV-prev.EV) >= d.Threshold
}

// Recorder combines a store and a detector: each observation is persisted
// and classified against the previous one.
type Recorder struct {
	store    Store
	detector *ChangeDetector
}

// NewRecorder creates a recorder. A nil store gets an in-memory one; a nil
// detector gets the default threshold.
func NewRecorder(store Store, detector *ChangeDetector) *Recorder {
	if store == nil {
		store = NewMemoryStore()
	}
	if detector == nil {
		detector = NewChangeDetector()
	}
	return &Recorder{store: store, detector: detector}
}

// Observe records a snapshot and reports whether it changed materially
// since the last observation of the same fixture. The first observation of
// a fixture always counts as changed.
func (r *Recorder) Observe(snap Snapshot) bool {
	prev, ok := r.store.Last(snap.PairKey)
	r.store.Put(snap)
	if !ok {
		return true
	}
	return r.detector.Changed(prev, snap)
}

// Last exposes the previous snapshot for a fixture, for callers that need
// the old price itself (the trigger gate does).
func (r *Recorder) Last(pairKey string) (Snapshot, bool) {
	return r.store.Last(pairKey)
}
