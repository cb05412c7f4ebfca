// Package memory is an in-process aggregate store used by the memory driver
// and by tests that need store semantics without a backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/domain/aggregate"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Write is one journaled mutation.
type Write struct {
	ExpectedVersion int64
	Mutation        aggregate.Mutation
	Err             error
}

// Store keeps the aggregate in memory with the same version semantics as
// the real drivers.
type Store struct {
	mu      sync.Mutex
	agg     aggregate.Aggregate
	exists  bool
	reads   int
	journal []Write

	// Hooks for tests; nil means no injection.
	GetErr   error
	WriteErr error
	// BeforeWrite runs under no lock before a write is checked, which lets a
	// test simulate a concurrent writer.
	BeforeWrite func(s *Store)
}

// New creates an empty store.
func New() *Store { return &Store{} }

// NewWith creates a store holding agg.
func NewWith(agg aggregate.Aggregate) *Store {
	return &Store{agg: agg, exists: true}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// GetAggregate returns the stored aggregate. Projection is ignored.
func (s *Store) GetAggregate(_ context.Context, _ ...aggregate.List) (aggregate.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.GetErr != nil {
		return aggregate.Aggregate{}, &db.Error{Op: "get", Err: s.GetErr}
	}
	if !s.exists {
		return aggregate.Aggregate{}, db.ErrKeyNotFound
	}
	return s.agg, nil
}

// ApplyMutation applies m when expectedVersion matches.
func (s *Store) ApplyMutation(_ context.Context, expectedVersion int64, m aggregate.Mutation) error {
	if hook := s.BeforeWrite; hook != nil {
		s.BeforeWrite = nil
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := Write{ExpectedVersion: expectedVersion, Mutation: m}
	defer func() { s.journal = append(s.journal, w) }()

	if err := m.Validate(); err != nil {
		w.Err = &db.Error{Op: db.OpValidate, Err: err}
		return w.Err
	}
	if s.WriteErr != nil {
		w.Err = &db.Error{Op: "write", Err: s.WriteErr}
		return w.Err
	}
	if s.agg.Version() != expectedVersion {
		w.Err = db.ErrVersionConflict
		return w.Err
	}
	if m.Kind == aggregate.MutationIncrement {
		for _, d := range m.Scores {
			ents := s.agg.Entities()
			if d.Index >= len(ents) || ents[d.Index].ID != d.EntityID {
				w.Err = db.ErrVersionConflict
				return w.Err
			}
		}
	}

	s.agg = s.agg.Apply(m)
	s.exists = true
	return nil
}

// Put replaces the stored aggregate as-is, version included.
func (s *Store) Put(agg aggregate.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg = agg
	s.exists = true
}

// Snapshot returns the stored aggregate regardless of hooks.
func (s *Store) Snapshot() aggregate.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg
}

// Reads returns how many reads were served.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Journal returns every attempted write, including failed ones.
func (s *Store) Journal() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.journal))
	copy(out, s.journal)
	return out
}

// Committed returns the successful writes.
func (s *Store) Committed() []Write {
	var out []Write
	for _, w := range s.Journal() {
		if w.Err == nil {
			out = append(out, w)
		}
	}
	return out
}
