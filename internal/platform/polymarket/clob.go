package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/crypto"
)

// DefaultClobURL is the production CLOB API root.
const DefaultClobURL = "https://clob.polymarket.com"

// ClobClient is the REST client for the Polymarket CLOB. Book reads are
// public; order calls need API credentials, either configured or obtained
// through DeriveAPIKey.
type ClobClient struct {
	baseURL  string
	http     *http.Client
	signer   *crypto.Signer
	creds    *crypto.APICreds
	governor Doer
	now      func() time.Time
}

// NewClobClient creates a CLOB client. signer may be nil for a read-only
// client. creds may be nil and filled later by DeriveAPIKey.
func NewClobClient(baseURL string, signer *crypto.Signer, creds *crypto.APICreds, governor Doer) *ClobClient {
	if governor == nil {
		governor = direct{}
	}
	return &ClobClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 15 * time.Second},
		signer:   signer,
		creds:    creds,
		governor: governor,
		now:      time.Now,
	}
}

// Book returns the order book of one outcome token.
func (c *ClobClient) Book(ctx context.Context, tokenID string) (Book, error) {
	var b Book
	err := c.governor.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, c.http, c.baseURL+"/book?"+url.Values{"token_id": {tokenID}}.Encode(), nil, &b)
	})
	if err != nil {
		return Book{}, fmt.Errorf("polymarket: book %s: %w", tokenID, err)
	}
	return b, nil
}

// DeriveAPIKey obtains the L2 credentials of the signer's wallet with an L1
// ClobAuth signature and stores them on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	if c.signer == nil {
		return crypto.APICreds{}, errors.New("polymarket: derive api key: no signer")
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket: derive api key: %w", err)
	}
	headers := map[string]string{
		"POLY_ADDRESS":   c.signer.Address().Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": ts,
		"POLY_NONCE":     "0",
	}
	var creds crypto.APICreds
	err = c.governor.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, c.http, c.baseURL+"/auth/derive-api-key", headers, &creds)
	})
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket: derive api key: %w", err)
	}
	c.creds = &creds
	return creds, nil
}

// PostOrder submits a signed GTC order and returns the exchange order id.
func (c *ClobClient) PostOrder(ctx context.Context, order SignedOrder) (string, error) {
	if c.creds == nil {
		return "", errors.New("polymarket: post order: no api credentials")
	}
	var res postOrderResponse
	err := c.authed(ctx, http.MethodPost, "/order", postOrderRequest{
		Order:     order,
		Owner:     c.creds.Key,
		OrderType: "GTC",
	}, &res)
	if err != nil {
		return "", fmt.Errorf("polymarket: post order: %w", err)
	}
	if !res.Success || res.OrderID == "" {
		return "", fmt.Errorf("polymarket: post order rejected: %s", res.ErrorMsg)
	}
	return res.OrderID, nil
}

// Order returns one order by exchange id.
func (c *ClobClient) Order(ctx context.Context, orderID string) (OpenOrder, error) {
	var o OpenOrder
	if err := c.authed(ctx, http.MethodGet, "/data/order/"+url.PathEscape(orderID), nil, &o); err != nil {
		return OpenOrder{}, fmt.Errorf("polymarket: get order %s: %w", orderID, err)
	}
	return o, nil
}

// Cancel cancels one order and reports whether the exchange confirmed it.
func (c *ClobClient) Cancel(ctx context.Context, orderID string) (bool, error) {
	var res cancelResponse
	if err := c.authed(ctx, http.MethodDelete, "/order", map[string]string{"orderID": orderID}, &res); err != nil {
		return false, fmt.Errorf("polymarket: cancel %s: %w", orderID, err)
	}
	for _, id := range res.Canceled {
		if id == orderID {
			return true, nil
		}
	}
	return false, nil
}

// Balance returns the wallet's USDC collateral in base units (6 decimals).
func (c *ClobClient) Balance(ctx context.Context) (string, error) {
	var res balanceResponse
	path := "/balance-allowance?" + url.Values{
		"asset_type":     {"COLLATERAL"},
		"signature_type": {strconv.Itoa(crypto.SignatureEOA)},
	}.Encode()
	if err := c.authed(ctx, http.MethodGet, path, nil, &res); err != nil {
		return "", fmt.Errorf("polymarket: balance: %w", err)
	}
	return res.Balance, nil
}

// authed performs an L2 authenticated request. The HMAC covers the path
// without its query string.
func (c *ClobClient) authed(ctx context.Context, method, path string, in, out any) error {
	if c.creds == nil || c.signer == nil {
		return errors.New("no api credentials")
	}
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	signPath := path
	if u, err := url.Parse(path); err == nil {
		signPath = u.Path
	}

	return c.governor.Do(ctx, func(ctx context.Context) error {
		headers, err := c.creds.L2Headers(c.signer.Address().Hex(), method, signPath, string(body), c.now().Unix())
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return send(c.http, req, out)
	})
}
