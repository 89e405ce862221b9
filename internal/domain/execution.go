package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionState is a node in the execution lifecycle.
type ExecutionState string

const (
	StateDetected  ExecutionState = "detected"
	StateValidated ExecutionState = "validated"
	StateExecuting ExecutionState = "executing"
	StateFilled    ExecutionState = "filled"
	StatePartial   ExecutionState = "partial"
	StateFailed    ExecutionState = "failed"
	StateSettled   ExecutionState = "settled"
)

var transitions = map[ExecutionState][]ExecutionState{
	StateDetected:  {StateValidated, StateFailed},
	StateValidated: {StateExecuting, StateFailed},
	StateExecuting: {StateFilled, StatePartial, StateFailed},
	StateFilled:    {StateSettled},
	StateFailed:    {StateSettled},
	StatePartial:   {StateSettled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to ExecutionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseExecutionState validates a stored or user-supplied state string.
func ParseExecutionState(s string) (ExecutionState, bool) {
	st := ExecutionState(s)
	if _, ok := transitions[st]; ok || st == StateSettled {
		return st, true
	}
	return "", false
}

// LegStatus tracks one leg inside an execution.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegSubmitted LegStatus = "submitted"
	LegFilled    LegStatus = "filled"
	LegUnfilled  LegStatus = "unfilled"
	LegCancelled LegStatus = "cancelled"
	LegRejected  LegStatus = "rejected"
	LegUnknown   LegStatus = "unknown"
)

// LegRecord is the persisted outcome of one leg.
type LegRecord struct {
	Venue          Venue           `json:"venue"`
	InstrumentID   string          `json:"instrument_id"`
	TokenID        string          `json:"token_id,omitempty"`
	Outcome        string          `json:"outcome"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	RequestedQty   int64           `json:"requested_qty"`
	OrderID        string          `json:"order_id,omitempty"`
	FilledQty      int64           `json:"filled_qty"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	Status         LegStatus       `json:"status"`
	Error          string          `json:"error,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at,omitempty"`
}

// Handle returns the venue order handle for this leg, if one was issued.
func (l LegRecord) Handle() (OrderHandle, bool) {
	if l.OrderID == "" {
		return OrderHandle{}, false
	}
	return OrderHandle{Venue: l.Venue, OrderID: l.OrderID, InstrumentID: l.InstrumentID, TokenID: l.TokenID}, true
}

// FilledAtLeast reports whether the filled quantity reaches fraction of the
// requested quantity.
func (l LegRecord) FilledAtLeast(fraction decimal.Decimal) bool {
	if l.RequestedQty <= 0 {
		return false
	}
	need := fraction.Mul(decimal.NewFromInt(l.RequestedQty))
	return decimal.NewFromInt(l.FilledQty).GreaterThanOrEqual(need)
}

// ExecutionRecord is the durable account of one execution attempt.
type ExecutionRecord struct {
	ID          string               `json:"id"`
	GameID      GameID               `json:"game_id"`
	State       ExecutionState       `json:"state"`
	Result      ExecutionState       `json:"result,omitempty"` // filled, partial or failed once reconciled
	Opportunity ArbitrageOpportunity `json:"opportunity"`
	Quantity    int64                `json:"quantity"`
	Legs        [2]LegRecord         `json:"legs"`
	HasPosition bool                 `json:"has_position"`
	Reason      string               `json:"reason,omitempty"`
	Notes       []string             `json:"notes,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Exposure is the unhedged inventory left by a partial execution.
type Exposure struct {
	Venue        Venue  `json:"venue"`
	InstrumentID string `json:"instrument_id"`
	Outcome      string `json:"outcome"`
	Quantity     int64  `json:"quantity"`
	Unknown      bool   `json:"unknown"`
}

// Exposure lists legs holding more contracts than their counterpart. Legs
// whose venue status could not be established are reported with their
// requested size and Unknown set.
func (r ExecutionRecord) Exposure() []Exposure {
	var out []Exposure
	for i, l := range r.Legs {
		other := r.Legs[1-i]
		switch {
		case l.Status == LegUnknown:
			out = append(out, Exposure{Venue: l.Venue, InstrumentID: l.InstrumentID, Outcome: l.Outcome, Quantity: l.RequestedQty, Unknown: true})
		case other.Status == LegUnknown && l.FilledQty > 0:
			out = append(out, Exposure{Venue: l.Venue, InstrumentID: l.InstrumentID, Outcome: l.Outcome, Quantity: l.FilledQty})
		case l.FilledQty > other.FilledQty && other.Status != LegUnknown:
			out = append(out, Exposure{Venue: l.Venue, InstrumentID: l.InstrumentID, Outcome: l.Outcome, Quantity: l.FilledQty - other.FilledQty})
		}
	}
	return out
}
