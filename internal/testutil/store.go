package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/store"
)

// NewTestStore opens a mapping store in a temp dir, closed on cleanup.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "medremind.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// FaultyStore is a store whose writes, deletes and per-medication reads can
// be made to fail.
type FaultyStore struct {
	*store.Store

	mu         sync.Mutex
	failWrite  int
	failDelete int
	failRead   int
}

// NewFaultyStore wraps s with no faults armed.
func NewFaultyStore(s *store.Store) *FaultyStore {
	return &FaultyStore{Store: s}
}

// FailWrites makes the next n CreateMappings/ReplaceMappings calls fail.
// A negative n fails forever.
func (f *FaultyStore) FailWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrite = n
}

func (f *FaultyStore) tripWrite() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.failWrite < 0:
		return true
	case f.failWrite > 0:
		f.failWrite--
		return true
	default:
		return false
	}
}

// CreateMappings fails when a write fault is armed.
func (f *FaultyStore) CreateMappings(ctx context.Context, mappings []model.Mapping) error {
	if f.tripWrite() {
		return ErrInjected
	}
	return f.Store.CreateMappings(ctx, mappings)
}

// ReplaceMappings fails when a write fault is armed.
func (f *FaultyStore) ReplaceMappings(ctx context.Context, deleteIDs []string, creates []model.Mapping) error {
	if f.tripWrite() {
		return ErrInjected
	}
	return f.Store.ReplaceMappings(ctx, deleteIDs, creates)
}

// FailDeletes makes the next n DeleteMapping calls fail.
func (f *FaultyStore) FailDeletes(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDelete = n
}

// DeleteMapping fails when a delete fault is armed.
func (f *FaultyStore) DeleteMapping(ctx context.Context, id string) error {
	f.mu.Lock()
	trip := f.failDelete > 0
	if trip {
		f.failDelete--
	}
	f.mu.Unlock()
	if trip {
		return ErrInjected
	}
	return f.Store.DeleteMapping(ctx, id)
}

// FailReads makes the next n GetByMedication calls fail.
func (f *FaultyStore) FailReads(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRead = n
}

// GetByMedication fails when a read fault is armed.
func (f *FaultyStore) GetByMedication(ctx context.Context, medicationID string) ([]model.Mapping, error) {
	f.mu.Lock()
	trip := f.failRead > 0
	if trip {
		f.failRead--
	}
	f.mu.Unlock()
	if trip {
		return nil, ErrInjected
	}
	return f.Store.GetByMedication(ctx, medicationID)
}
