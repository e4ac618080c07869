// Package snapshot holds the published aggregate and moves it between processes.
package snapshot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/miradorstack/alert-beacon/internal/models"
)

// Publisher receives every snapshot produced by an aggregation cycle.
type Publisher interface {
	Publish(ctx context.Context, snap models.Snapshot) error
}

// Source yields the latest published snapshot to a consumer.
type Source interface {
	Fetch(ctx context.Context) (models.Snapshot, error)
}

// Store keeps the current snapshot behind an atomic pointer. Each Publish swaps in a
// fresh copy, so readers never observe a partially updated status or label map.
type Store struct {
	current atomic.Pointer[models.Snapshot]
}

// NewStore returns a store holding a clean snapshot with no labels.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&models.Snapshot{Labels: models.LabelMap{}, UpdatedAt: time.Now()})
	return s
}

// Publish replaces the current snapshot.
func (s *Store) Publish(_ context.Context, snap models.Snapshot) error {
	next := snap.Clone()
	if next.Labels == nil {
		next.Labels = models.LabelMap{}
	}
	s.current.Store(&next)
	return nil
}

// Fetch lets the store act as an in-process Source.
func (s *Store) Fetch(context.Context) (models.Snapshot, error) {
	return s.Snapshot(), nil
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() models.Snapshot {
	return s.current.Load().Clone()
}

// Status returns the current aggregate flags.
func (s *Store) Status() models.AggregateStatus {
	return s.current.Load().Status
}

// Labels returns a copy of the current label map.
func (s *Store) Labels() models.LabelMap {
	return s.current.Load().Labels.Clone()
}
