package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

func TestMemoryTryClaimIsExclusive(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryClaim(ctx, "G1", "exec")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryRetrySafety(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	cases := []struct {
		name        string
		final       domain.ExecutionState
		hasPosition bool
		reclaim     bool
	}{
		{"failed", domain.StateFailed, false, true},
		{"partial", domain.StatePartial, true, false},
		{"filled", domain.StateFilled, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			game := domain.GameID("G-" + tc.name)
			ok, err := l.TryClaim(ctx, game, "e1")
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, l.Transition(ctx, game, domain.StateExecuting, tc.final, tc.hasPosition))

			ok, err = l.TryClaim(ctx, game, "e2")
			require.NoError(t, err)
			assert.Equal(t, tc.reclaim, ok)
		})
	}
}

func TestMemoryTransitionConflicts(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	err := l.Transition(ctx, "missing", domain.StateExecuting, domain.StateFailed, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.TryClaim(ctx, "G1", "e1")
	require.NoError(t, err)
	err = l.Transition(ctx, "G1", domain.StatePartial, domain.StateSettled, true)
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	entries, err := l.ListByState(ctx, domain.StateExecuting)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ExecutionID)
}

func TestRecordsListRecent(t *testing.T) {
	r := NewRecords()
	ctx := context.Background()
	base := time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Save(ctx, domain.ExecutionRecord{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	recent, err := r.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)

	_, err = r.Get(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
