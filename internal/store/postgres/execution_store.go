package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using the executions and
// execution_legs tables.
type ExecutionStore struct {
	c *Client
}

// NewExecutionStore creates an ExecutionStore.
func NewExecutionStore(c *Client) *ExecutionStore {
	return &ExecutionStore{c: c}
}

// Save upserts rec and both of its legs in one transaction.
func (s *ExecutionStore) Save(ctx context.Context, rec domain.ExecutionRecord) error {
	opp, err := json.Marshal(rec.Opportunity)
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity %s: %w", rec.ID, err)
	}
	notes, err := json.Marshal(append([]string{}, rec.Notes...))
	if err != nil {
		return fmt.Errorf("postgres: marshal notes %s: %w", rec.ID, err)
	}

	err = s.c.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO executions (id, game_id, state, result, strategy, quantity, edge_pct, opportunity,
			                        has_position, reason, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO UPDATE
			SET state = EXCLUDED.state, result = EXCLUDED.result, has_position = EXCLUDED.has_position,
			    reason = EXCLUDED.reason, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`,
			rec.ID, string(rec.GameID), string(rec.State), string(rec.Result), string(rec.Opportunity.Strategy),
			rec.Quantity, rec.Opportunity.EdgePct.String(), opp, rec.HasPosition, rec.Reason, notes,
			rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}

		for i, leg := range rec.Legs {
			var submitted *time.Time
			if !leg.SubmittedAt.IsZero() {
				submitted = &leg.SubmittedAt
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO execution_legs (execution_id, leg_index, venue, instrument_id, token_id, outcome,
				                            requested_price, limit_price, requested_qty, order_id,
				                            filled_qty, filled_price, status, error, submitted_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, $10, $11, $12::numeric, $13, $14, $15)
				ON CONFLICT (execution_id, leg_index) DO UPDATE
				SET order_id = EXCLUDED.order_id, filled_qty = EXCLUDED.filled_qty,
				    filled_price = EXCLUDED.filled_price, status = EXCLUDED.status,
				    error = EXCLUDED.error, submitted_at = EXCLUDED.submitted_at`,
				rec.ID, i, string(leg.Venue), leg.InstrumentID, leg.TokenID, leg.Outcome,
				leg.RequestedPrice.String(), leg.LimitPrice.String(), leg.RequestedQty, leg.OrderID,
				leg.FilledQty, leg.FilledPrice.String(), string(leg.Status), leg.Error, submitted,
			)
			if err != nil {
				return fmt.Errorf("insert leg %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("postgres: save execution %s: %w", rec.ID, err)
	}
	return nil
}

const selectExecution = `
	SELECT id, game_id, state, result, quantity, opportunity, has_position, reason, notes, created_at, updated_at
	FROM executions`

// Get returns the record with id, including legs.
func (s *ExecutionStore) Get(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	rec, err := scanExecution(s.c.pool.QueryRow(ctx, selectExecution+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	if err := s.loadLegs(ctx, &rec); err != nil {
		return domain.ExecutionRecord{}, err
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.c.pool.Query(ctx, selectExecution+" ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	for i := range out {
		if err := s.loadLegs(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var (
		rec               domain.ExecutionRecord
		game, state, res  string
		oppJSON, notesRaw []byte
	)
	err := row.Scan(&rec.ID, &game, &state, &res, &rec.Quantity, &oppJSON, &rec.HasPosition,
		&rec.Reason, &notesRaw, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.GameID, rec.State, rec.Result = domain.GameID(game), domain.ExecutionState(state), domain.ExecutionState(res)
	if err := json.Unmarshal(oppJSON, &rec.Opportunity); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("decode opportunity: %w", err)
	}
	if err := json.Unmarshal(notesRaw, &rec.Notes); err != nil {
		return domain.ExecutionRecord{}, fmt.Errorf("decode notes: %w", err)
	}
	return rec, nil
}

func (s *ExecutionStore) loadLegs(ctx context.Context, rec *domain.ExecutionRecord) error {
	rows, err := s.c.pool.Query(ctx, `
		SELECT leg_index, venue, instrument_id, token_id, outcome,
		       requested_price::text, limit_price::text, requested_qty, order_id,
		       filled_qty, filled_price::text, status, error, submitted_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY leg_index`, rec.ID)
	if err != nil {
		return fmt.Errorf("postgres: legs %s: %w", rec.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			idx                       int
			leg                       domain.LegRecord
			venue, status             string
			reqPrice, limit, filledPx string
			submitted                 *time.Time
		)
		if err := rows.Scan(&idx, &venue, &leg.InstrumentID, &leg.TokenID, &leg.Outcome,
			&reqPrice, &limit, &leg.RequestedQty, &leg.OrderID,
			&leg.FilledQty, &filledPx, &status, &leg.Error, &submitted); err != nil {
			return fmt.Errorf("postgres: scan leg %s: %w", rec.ID, err)
		}
		if idx < 0 || idx > 1 {
			continue
		}
		leg.Venue, leg.Status = domain.Venue(venue), domain.LegStatus(status)
		for dst, src := range map[*decimal.Decimal]string{
			&leg.RequestedPrice: reqPrice,
			&leg.LimitPrice:     limit,
			&leg.FilledPrice:    filledPx,
		} {
			v, err := decimal.NewFromString(src)
			if err != nil {
				return fmt.Errorf("postgres: leg %s price %q: %w", rec.ID, src, err)
			}
			*dst = v
		}
		if submitted != nil {
			leg.SubmittedAt = *submitted
		}
		rec.Legs[idx] = leg
	}
	return rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
