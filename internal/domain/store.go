package domain

import (
	"context"
	"io"
	"time"
)

// LedgerEntry is the durable per-game execution state.
type LedgerEntry struct {
	GameID      GameID         `json:"game_id"`
	State       ExecutionState `json:"state"`
	HasPosition bool           `json:"has_position"`
	ExecutionID string         `json:"execution_id"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RetrySafe reports whether a new claim may replace this entry.
func (e LedgerEntry) RetrySafe() bool {
	return e.State == StateFailed || (e.State == StateSettled && !e.HasPosition)
}

// Ledger guarantees at most one in-flight or completed execution per game.
type Ledger interface {
	// TryClaim atomically moves gameID to EXECUTING when it has no entry or
	// its entry is retry-safe.
	TryClaim(ctx context.Context, gameID GameID, executionID string) (bool, error)
	// Transition moves gameID from one state to another, failing with
	// ErrStateConflict when the current state is not from.
	Transition(ctx context.Context, gameID GameID, from, to ExecutionState, hasPosition bool) error
	Get(ctx context.Context, gameID GameID) (LedgerEntry, error)
	ListByState(ctx context.Context, state ExecutionState) ([]LedgerEntry, error)
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	Save(ctx context.Context, rec ExecutionRecord) error
	Get(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
}

// RateLimiter is a sliding-window admission check shared by the venue
// governors and the operator API. When a call is refused, retryAfter
// estimates when the oldest slot in the window frees.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// BlobWriter stores archived execution records.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}
