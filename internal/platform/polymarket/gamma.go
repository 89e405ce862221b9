package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// DefaultGammaURL is the production Gamma API root.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// Doer runs one venue call under the caller's rate policy.
type Doer interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

type direct struct{}

func (direct) Do(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// GammaClient reads market metadata from the public Gamma API.
type GammaClient struct {
	baseURL  string
	http     *http.Client
	governor Doer
}

// NewGammaClient creates a GammaClient. governor may be nil.
func NewGammaClient(baseURL string, governor Doer) *GammaClient {
	if governor == nil {
		governor = direct{}
	}
	return &GammaClient{baseURL: baseURL, http: &http.Client{Timeout: 15 * time.Second}, governor: governor}
}

// Events lists one page of open events tagged tag.
func (g *GammaClient) Events(ctx context.Context, tag string, limit, offset int) ([]Event, error) {
	q := url.Values{
		"tag_slug": {tag},
		"active":   {"true"},
		"closed":   {"false"},
		"limit":    {strconv.Itoa(limit)},
		"offset":   {strconv.Itoa(offset)},
	}
	var events []Event
	err := g.governor.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, g.http, g.baseURL+"/events?"+q.Encode(), nil, &events)
	})
	if err != nil {
		return nil, fmt.Errorf("polymarket: gamma events %s: %w", tag, err)
	}
	return events, nil
}

func getJSON(ctx context.Context, client *http.Client, u string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return send(client, req, out)
}

func send(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return fmt.Errorf("HTTP %d: %s", code, body)
	}
}
