// Package memory implements an in-memory snapshot metadata index, the
// default for tests and single-process runs without durability needs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agrobridge/internal/snapshot/core"
	"agrobridge/pkg/subsystem"
)

// Index implements core.Index backed by process memory.
type Index struct {
	mu   sync.RWMutex
	recs map[string]core.Record
}

// New returns an empty in-memory index.
func New() *Index { return &Index{recs: make(map[string]core.Record)} }

// Save stores a record; errors if the id already exists.
func (i *Index) Save(_ context.Context, rec core.Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.recs[rec.ID]; exists {
		return fmt.Errorf("snapshot record %s already exists", rec.ID)
	}
	i.recs[rec.ID] = rec
	return nil
}

// Get returns the record for id.
func (i *Index) Get(_ context.Context, id string) (core.Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	rec, ok := i.recs[id]
	if !ok {
		return core.Record{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by subsystem.
func (i *Index) List(_ context.Context, sub subsystem.ID) ([]core.Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	recs := make([]core.Record, 0, len(i.recs))
	for _, rec := range i.recs {
		if sub != "" && rec.Subsystem != sub {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(a, b int) bool {
		if recs[a].CreatedAt.Equal(recs[b].CreatedAt) {
			return recs[a].ID > recs[b].ID
		}
		return recs[a].CreatedAt.After(recs[b].CreatedAt)
	})
	return recs, nil
}

// Delete removes a record; reports whether it existed.
func (i *Index) Delete(_ context.Context, id string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.recs[id]; !ok {
		return false, nil
	}
	delete(i.recs, id)
	return true, nil
}

// TouchRestore bumps restore bookkeeping for id.
func (i *Index) TouchRestore(_ context.Context, id string, at time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.recs[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	rec.RestoreCount++
	rec.LastRestoredAt = &at
	i.recs[id] = rec
	return nil
}
