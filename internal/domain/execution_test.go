package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]ExecutionState{
		{StateDetected, StateValidated},
		{StateDetected, StateFailed},
		{StateValidated, StateExecuting},
		{StateExecuting, StateFilled},
		{StateExecuting, StatePartial},
		{StateExecuting, StateFailed},
		{StateFilled, StateSettled},
		{StateFailed, StateSettled},
		{StatePartial, StateSettled},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	assert.False(t, CanTransition(StateDetected, StateExecuting))
	assert.False(t, CanTransition(StateSettled, StateExecuting))
	assert.False(t, CanTransition(StatePartial, StateFilled))
}

func TestLedgerEntryRetrySafe(t *testing.T) {
	assert.True(t, LedgerEntry{State: StateFailed}.RetrySafe())
	assert.True(t, LedgerEntry{State: StateSettled}.RetrySafe())
	assert.False(t, LedgerEntry{State: StateSettled, HasPosition: true}.RetrySafe())
	assert.False(t, LedgerEntry{State: StateExecuting}.RetrySafe())
	assert.False(t, LedgerEntry{State: StatePartial}.RetrySafe())
}

func TestFilledAtLeast(t *testing.T) {
	l := LegRecord{RequestedQty: 10, FilledQty: 9}
	assert.False(t, l.FilledAtLeast(d("1")))
	assert.True(t, l.FilledAtLeast(d("0.9")))
	assert.False(t, LegRecord{}.FilledAtLeast(d("0.5")))
}

func TestExposure(t *testing.T) {
	rec := ExecutionRecord{Legs: [2]LegRecord{
		{Venue: VenueKalshi, InstrumentID: "K-HOU", Outcome: OutcomeYes, RequestedQty: 10, FilledQty: 10, Status: LegFilled},
		{Venue: VenuePolymarket, InstrumentID: "p1", Outcome: "Thunder", RequestedQty: 10, Status: LegCancelled},
	}}
	exp := rec.Exposure()
	if assert.Len(t, exp, 1) {
		assert.Equal(t, VenueKalshi, exp[0].Venue)
		assert.Equal(t, int64(10), exp[0].Quantity)
		assert.False(t, exp[0].Unknown)
	}

	rec.Legs[1].Status = LegUnknown
	exp = rec.Exposure()
	assert.Len(t, exp, 2)
}
