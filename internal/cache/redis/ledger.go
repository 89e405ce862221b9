package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

var (
	//go:embed scripts/ledger_claim.lua
	ledgerClaimLua string
	//go:embed scripts/ledger_transition.lua
	ledgerTransitionLua string
)

// Ledger implements domain.Ledger on Redis hashes. Claims and transitions
// run as Lua scripts so the compare and the write are one atomic step.
type Ledger struct {
	c          *Client
	claim      *redis.Script
	transition *redis.Script
	now        func() time.Time
}

// NewLedger creates a Ledger backed by the given Client.
func NewLedger(c *Client) *Ledger {
	return &Ledger{
		c:          c,
		claim:      redis.NewScript(ledgerClaimLua),
		transition: redis.NewScript(ledgerTransitionLua),
		now:        time.Now,
	}
}

func (l *Ledger) entryKey(gameID domain.GameID) string {
	return l.c.key("ledger", string(gameID))
}

func (l *Ledger) indexKey() string {
	return l.c.key("ledger", "_index")
}

// TryClaim moves gameID to EXECUTING if it is unowned or retry-safe.
func (l *Ledger) TryClaim(ctx context.Context, gameID domain.GameID, executionID string) (bool, error) {
	n, err := l.claim.Run(ctx, l.c.rdb,
		[]string{l.entryKey(gameID), l.indexKey()},
		string(gameID), executionID, l.now().UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: ledger claim %s: %w", gameID, err)
	}
	return n == 1, nil
}

// Transition compares the current state with from and, if equal, sets to.
func (l *Ledger) Transition(ctx context.Context, gameID domain.GameID, from, to domain.ExecutionState, hasPosition bool) error {
	pos := "0"
	if hasPosition {
		pos = "1"
	}
	n, err := l.transition.Run(ctx, l.c.rdb,
		[]string{l.entryKey(gameID), l.indexKey()},
		string(gameID), string(from), string(to), pos, l.now().UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis: ledger transition %s: %w", gameID, err)
	}
	switch n {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("redis: ledger transition %s: %w", gameID, domain.ErrNotFound)
	default:
		return fmt.Errorf("redis: ledger transition %s %s->%s: %w", gameID, from, to, domain.ErrStateConflict)
	}
}

// Get returns the entry for gameID or domain.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, gameID domain.GameID) (domain.LedgerEntry, error) {
	vals, err := l.c.rdb.HGetAll(ctx, l.entryKey(gameID)).Result()
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("redis: ledger get %s: %w", gameID, err)
	}
	if len(vals) == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("redis: ledger get %s: %w", gameID, domain.ErrNotFound)
	}
	return decodeEntry(gameID, vals)
}

// ListByState returns every entry currently in state.
func (l *Ledger) ListByState(ctx context.Context, state domain.ExecutionState) ([]domain.LedgerEntry, error) {
	index, err := l.c.rdb.HGetAll(ctx, l.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: ledger list %s: %w", state, err)
	}

	var ids []domain.GameID
	for id, st := range index {
		if st == string(state) {
			ids = append(ids, domain.GameID(id))
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := l.c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, l.entryKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: ledger list %s: %w", state, err)
	}

	out := make([]domain.LedgerEntry, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 || vals["state"] != string(state) {
			continue
		}
		e, err := decodeEntry(ids[i], vals)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeEntry(gameID domain.GameID, vals map[string]string) (domain.LedgerEntry, error) {
	st, ok := domain.ParseExecutionState(vals["state"])
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("redis: ledger %s: unknown state %q", gameID, vals["state"])
	}
	ms, _ := strconv.ParseInt(vals["updated_at"], 10, 64)
	return domain.LedgerEntry{
		GameID:      gameID,
		State:       st,
		HasPosition: vals["has_position"] == "1",
		ExecutionID: vals["execution_id"],
		UpdatedAt:   time.UnixMilli(ms).UTC(),
	}, nil
}

var _ domain.Ledger = (*Ledger)(nil)
