package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// LedgerStore implements domain.Ledger on the ledger table. Each claim and
// transition is a single conditional statement, so concurrent engines see a
// consistent compare-and-swap.
type LedgerStore struct {
	c *Client
}

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(c *Client) *LedgerStore {
	return &LedgerStore{c: c}
}

// TryClaim implements domain.Ledger.
func (s *LedgerStore) TryClaim(ctx context.Context, gameID domain.GameID, executionID string) (bool, error) {
	var claimed string
	err := s.c.pool.QueryRow(ctx, `
		INSERT INTO ledger (game_id, state, has_position, execution_id, updated_at)
		VALUES ($1, 'executing', FALSE, $2, NOW())
		ON CONFLICT (game_id) DO UPDATE
		SET state = 'executing', has_position = FALSE,
		    execution_id = EXCLUDED.execution_id, updated_at = NOW()
		WHERE ledger.state = 'failed'
		   OR (ledger.state = 'settled' AND NOT ledger.has_position)
		RETURNING game_id`,
		string(gameID), executionID,
	).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: ledger claim %s: %w", gameID, err)
	}
	return true, nil
}

// Transition implements domain.Ledger.
func (s *LedgerStore) Transition(ctx context.Context, gameID domain.GameID, from, to domain.ExecutionState, hasPosition bool) error {
	tag, err := s.c.pool.Exec(ctx, `
		UPDATE ledger SET state = $3, has_position = $4, updated_at = NOW()
		WHERE game_id = $1 AND state = $2`,
		string(gameID), string(from), string(to), hasPosition,
	)
	if err != nil {
		return fmt.Errorf("postgres: ledger transition %s: %w", gameID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, gameID); err != nil {
		return err
	}
	return fmt.Errorf("postgres: ledger transition %s %s->%s: %w", gameID, from, to, domain.ErrStateConflict)
}

// Get implements domain.Ledger.
func (s *LedgerStore) Get(ctx context.Context, gameID domain.GameID) (domain.LedgerEntry, error) {
	row := s.c.pool.QueryRow(ctx, `
		SELECT game_id, state, has_position, execution_id, updated_at
		FROM ledger WHERE game_id = $1`, string(gameID))
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: ledger get %s: %w", gameID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: ledger get %s: %w", gameID, err)
	}
	return e, nil
}

// ListByState implements domain.Ledger.
func (s *LedgerStore) ListByState(ctx context.Context, state domain.ExecutionState) ([]domain.LedgerEntry, error) {
	rows, err := s.c.pool.Query(ctx, `
		SELECT game_id, state, has_position, execution_id, updated_at
		FROM ledger WHERE state = $1 ORDER BY updated_at`, string(state))
	if err != nil {
		return nil, fmt.Errorf("postgres: ledger list %s: %w", state, err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: ledger scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var (
		e            domain.LedgerEntry
		game, status string
	)
	if err := row.Scan(&game, &status, &e.HasPosition, &e.ExecutionID, &e.UpdatedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	st, ok := domain.ParseExecutionState(status)
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("unknown state %q for %s", status, game)
	}
	e.GameID, e.State = domain.GameID(game), st
	return e, nil
}

var _ domain.Ledger = (*LedgerStore)(nil)
