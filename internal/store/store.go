// Package store persists each robot's last-known state in a shared key-value
// store so other processes, or a restarted tracker, can observe it.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when the store holds no record for the
// robot, e.g. on a cold start.
var ErrNotFound = errors.New("no record for robot")

// Record is the external representation of one robot's state. Versions are
// monotonic per robot id; a write that would regress the version is dropped.
type Record struct {
	RobotID   string    `json:"-"`
	Angles    []float64 `json:"angles"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence contract for robot state. Implementations can be
// in-memory or remote; callers do not need to know which is in use.
//
// Save is last-writer-wins by version: if the store already holds a record
// with version >= rec.Version for that robot, the write is silently dropped.
// That makes saves idempotent under retries and out-of-order delivery.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, robotID string) (Record, error)
}

// InMemoryStore is a concurrency-safe in-memory Store, used in tests and for
// running the tracker without an external store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// Save implements Store.Save.
func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.records[rec.RobotID]; ok && cur.Version >= rec.Version {
		return nil
	}

	// Copy the angles so later caller mutations cannot reach stored state.
	own := make([]float64, len(rec.Angles))
	copy(own, rec.Angles)
	rec.Angles = own
	s.records[rec.RobotID] = rec
	return nil
}

// Load implements Store.Load.
func (s *InMemoryStore) Load(_ context.Context, robotID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[robotID]
	if !ok {
		return Record{}, ErrNotFound
	}
	out := make([]float64, len(rec.Angles))
	copy(out, rec.Angles)
	rec.Angles = out
	return rec, nil
}
