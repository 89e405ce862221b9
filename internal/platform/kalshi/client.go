// Package kalshi is the venue A adapter: an RSA-PSS signed REST client for
// the Kalshi trade API and the market and order ports built on it.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// DefaultBaseURL is the production trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

// Doer runs one venue call under the caller's rate policy.
type Doer interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

type direct struct{}

func (direct) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// Client is the Kalshi REST client. Every request passes through the Doer.
type Client struct {
	baseURL  *url.URL
	keyID    string
	key      *rsa.PrivateKey
	http     *http.Client
	governor Doer
	now      func() time.Time
}

// NewClient creates a Client. governor may be nil.
func NewClient(baseURL, keyID string, key *rsa.PrivateKey, governor Doer) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("kalshi: base url: %w", err)
	}
	if governor == nil {
		governor = direct{}
	}
	return &Client{
		baseURL:  u,
		keyID:    keyID,
		key:      key,
		http:     &http.Client{Timeout: 15 * time.Second},
		governor: governor,
		now:      time.Now,
	}, nil
}

// Markets lists one page of markets in a series. An empty returned cursor
// means the last page.
func (c *Client) Markets(ctx context.Context, series, status, cursor string) ([]Market, string, error) {
	q := url.Values{"series_ticker": {series}, "limit": {"200"}}
	if status != "" {
		q.Set("status", status)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp marketsResponse
	if err := c.do(ctx, http.MethodGet, "/markets", q, nil, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: markets %s: %w", series, err)
	}
	return resp.Markets, resp.Cursor, nil
}

// Orderbook returns the resting bids of a market.
func (c *Client) Orderbook(ctx context.Context, ticker string) (Orderbook, error) {
	var resp orderbookResponse
	if err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker)+"/orderbook", nil, nil, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: orderbook %s: %w", ticker, err)
	}
	return resp.Orderbook, nil
}

// CreateOrder places an order.
func (c *Client) CreateOrder(ctx context.Context, o CreateOrder) (Order, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", nil, o, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: create order %s: %w", o.Ticker, err)
	}
	return resp.Order, nil
}

// GetOrder fetches an order by ID.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/orders/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: get order %s: %w", id, err)
	}
	return resp.Order, nil
}

// CancelOrder cancels an order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, id string) (Order, error) {
	var resp orderResponse
	if err := c.do(ctx, http.MethodDelete, "/portfolio/orders/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return Order{}, fmt.Errorf("kalshi: cancel order %s: %w", id, err)
	}
	return resp.Order, nil
}

// Balance returns the available balance in cents.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("kalshi: balance: %w", err)
	}
	return resp.Balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.governor.Do(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, query, body, out)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.sign(req, method, u.Path); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, data); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign sets the access headers. The signed message is the millisecond
// timestamp, the method and the full URL path without query. Without a key
// only the public market endpoints are reachable.
func (c *Client) sign(req *http.Request, method, path string) error {
	if c.key == nil {
		if strings.Contains(path, "/portfolio/") {
			return fmt.Errorf("kalshi: %w: rsa key not configured", domain.ErrUnauthorized)
		}
		return nil
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, c.key, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return fmt.Errorf("kalshi: %w: %v", domain.ErrSigningFailed, err)
	}
	req.Header.Set("KALSHI-ACCESS-KEY", c.keyID)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	return nil
}

func checkStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	var e errorResponse
	_ = json.Unmarshal(body, &e)
	msg := e.Error.Message
	if msg == "" {
		msg = string(body)
	}
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", code, msg, e.Error.Code)
	}
}
