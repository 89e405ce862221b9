package kalshi

// Market is a Kalshi market as listed by GET /markets. Prices are cents.
type Market struct {
	Ticker      string `json:"ticker"`
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	YesSubTitle string `json:"yes_sub_title"`
	NoSubTitle  string `json:"no_sub_title"`
	Status      string `json:"status"`
	YesBid      int64  `json:"yes_bid"`
	YesAsk      int64  `json:"yes_ask"`
	NoBid       int64  `json:"no_bid"`
	NoAsk       int64  `json:"no_ask"`
	Volume      int64  `json:"volume"`
	CloseTime   string `json:"close_time"`
}

type marketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// Orderbook holds resting bids per side as [price_cents, quantity] pairs,
// ascending by price.
type Orderbook struct {
	Yes [][2]int64 `json:"yes"`
	No  [][2]int64 `json:"no"`
}

type orderbookResponse struct {
	Orderbook Orderbook `json:"orderbook"`
}

// CreateOrder is the body of POST /portfolio/orders.
type CreateOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Count         int64  `json:"count"`
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
}

// Order is a portfolio order. Status is resting, canceled, executed or
// pending.
type Order struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	MakerFillCount int64  `json:"maker_fill_count"`
	TakerFillCost  int64  `json:"taker_fill_cost"`
	MakerFillCost  int64  `json:"maker_fill_cost"`
}

type orderResponse struct {
	Order Order `json:"order"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
