package domain

import (
	"github.com/shopspring/decimal"
)

// OrderRequest is a limit buy for a whole number of contracts.
type OrderRequest struct {
	ClientOrderID string
	Venue         Venue
	InstrumentID  string
	TokenID       string
	Outcome       string
	Price         decimal.Decimal
	Quantity      int64
}

// OrderHandle identifies a resting or completed venue order.
type OrderHandle struct {
	Venue        Venue  `json:"venue"`
	OrderID      string `json:"order_id"`
	InstrumentID string `json:"instrument_id"`
	TokenID      string `json:"token_id,omitempty"`
}

// OrderState is the venue-reported lifecycle of an order.
type OrderState string

const (
	OrderOpen      OrderState = "open"
	OrderFilled    OrderState = "filled"
	OrderCancelled OrderState = "cancelled"
	OrderRejected  OrderState = "rejected"
)

// OrderStatus is the result of polling an order.
type OrderStatus struct {
	State     OrderState
	FilledQty int64
	AvgPrice  decimal.Decimal
}

// Done reports whether the venue will not fill the order any further.
func (s OrderStatus) Done() bool {
	return s.State == OrderFilled || s.State == OrderCancelled || s.State == OrderRejected
}
