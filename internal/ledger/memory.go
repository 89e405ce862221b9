// Package ledger holds in-process implementations of the position ledger and
// execution record store, used in dry runs and tests.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Memory is a mutex-guarded domain.Ledger. It does not survive restart.
type Memory struct {
	mu      sync.Mutex
	entries map[domain.GameID]domain.LedgerEntry
	now     func() time.Time
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[domain.GameID]domain.LedgerEntry), now: time.Now}
}

// TryClaim implements domain.Ledger.
func (m *Memory) TryClaim(_ context.Context, gameID domain.GameID, executionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[gameID]; ok && !e.RetrySafe() {
		return false, nil
	}
	m.entries[gameID] = domain.LedgerEntry{
		GameID:      gameID,
		State:       domain.StateExecuting,
		ExecutionID: executionID,
		UpdatedAt:   m.now(),
	}
	return true, nil
}

// Transition implements domain.Ledger.
func (m *Memory) Transition(_ context.Context, gameID domain.GameID, from, to domain.ExecutionState, hasPosition bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[gameID]
	if !ok {
		return fmt.Errorf("ledger: transition %s: %w", gameID, domain.ErrNotFound)
	}
	if e.State != from {
		return fmt.Errorf("ledger: transition %s %s->%s (at %s): %w", gameID, from, to, e.State, domain.ErrStateConflict)
	}
	e.State, e.HasPosition, e.UpdatedAt = to, hasPosition, m.now()
	m.entries[gameID] = e
	return nil
}

// Get implements domain.Ledger.
func (m *Memory) Get(_ context.Context, gameID domain.GameID) (domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[gameID]
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: get %s: %w", gameID, domain.ErrNotFound)
	}
	return e, nil
}

// ListByState implements domain.Ledger.
func (m *Memory) ListByState(_ context.Context, state domain.ExecutionState) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.State == state {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out, nil
}

var _ domain.Ledger = (*Memory)(nil)

// Records is an in-process domain.ExecutionStore.
type Records struct {
	mu   sync.RWMutex
	recs map[string]domain.ExecutionRecord
}

// NewRecords returns an empty record store.
func NewRecords() *Records {
	return &Records{recs: make(map[string]domain.ExecutionRecord)}
}

// Save inserts or replaces rec.
func (r *Records) Save(_ context.Context, rec domain.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Notes = append([]string(nil), rec.Notes...)
	r.recs[rec.ID] = rec
	return nil
}

// Get returns the record with id or domain.ErrNotFound.
func (r *Records) Get(_ context.Context, id string) (domain.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recs[id]
	if !ok {
		return domain.ExecutionRecord{}, fmt.Errorf("ledger: record %s: %w", id, domain.ErrNotFound)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first.
func (r *Records) ListRecent(_ context.Context, limit int) ([]domain.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ExecutionRecord, 0, len(r.recs))
	for _, rec := range r.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.ExecutionStore = (*Records)(nil)
