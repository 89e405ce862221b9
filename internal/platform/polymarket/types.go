package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool accepts a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList decodes the JSON-encoded arrays Gamma embeds in string fields,
// e.g. "[\"Rockets\",\"Thunder\"]". A plain JSON array is accepted too.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var enc string
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	if enc == "" {
		*l = nil
		return nil
	}
	return json.Unmarshal([]byte(enc), (*[]string)(l))
}

// Event is a Gamma event: one game with its markets.
type Event struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Title   string   `json:"title"`
	EndDate string   `json:"endDate"`
	Active  flexBool `json:"active"`
	Closed  flexBool `json:"closed"`
	Markets []Market `json:"markets"`
}

// Market is a Gamma market inside an event.
type Market struct {
	ID               string     `json:"id"`
	ConditionID      string     `json:"conditionId"`
	Question         string     `json:"question"`
	Slug             string     `json:"slug"`
	Outcomes         stringList `json:"outcomes"`
	ClobTokenIDs     stringList `json:"clobTokenIds"`
	SportsMarketType string     `json:"sportsMarketType"`
	EndDate          string     `json:"endDate"`
	Active           flexBool   `json:"active"`
	Closed           flexBool   `json:"closed"`
	EnableOrderBook  flexBool   `json:"enableOrderBook"`
}

// Level is one price level of a CLOB book. Values are decimal strings.
type Level struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Book is the CLOB order book of one token.
type Book struct {
	AssetID string  `json:"asset_id"`
	Bids    []Level `json:"bids"`
	Asks    []Level `json:"asks"`
}

// SignedOrder is the order object posted to the CLOB.
type SignedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

type postOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// OpenOrder is an order as reported by GET /data/order. Status is LIVE,
// MATCHED or CANCELED.
type OpenOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}

type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}
