package korbitapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

const defaultBaseURL = "https://api.korbit-engine.example/v1"

// RateLimiter is the slice of ports.RateLimiter the client needs: one
// acquire call per outbound request, gated by the endpoint's group.
type RateLimiter interface {
	Acquire(ctx context.Context, group domain.RateLimitGroup) error
	Reconcile(group domain.RateLimitGroup, max, remaining int)
	Throttled(group domain.RateLimitGroup, status int)
}

// DegradeObserver is notified of the exchange's advertised remaining quota
// so the Compliance Adapter can pre-emptively degrade before a 429 hits.
type DegradeObserver interface {
	ObserveRateLimit(group domain.RateLimitGroup, secRemaining int)
}

// Client is the signed-HTTP base every ExchangeClient method builds on.
// Every call acquires from limiter by group before issuing the request,
// per spec: the rate limiter gates outbound calls, not the HTTP transport.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	limiter    RateLimiter
	degrade    DegradeObserver
}

// NewClient builds a Client. degrade may be nil.
func NewClient(baseURL string, creds Credentials, limiter RateLimiter, degrade DegradeObserver) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		degrade: degrade,
	}
}

// do issues one signed HTTP request, gated by the rate limiter under
// group, and decodes a JSON response body into out (out may be nil for
// responses with no body, e.g. cancel).
func (c *Client) do(ctx context.Context, group domain.RateLimitGroup, method, path string, query url.Values, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, group); err != nil {
			return err
		}
	}

	fullURL := c.baseURL + path
	var bodyReader io.Reader
	var bodyJSON []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: ErrKindConfigInvalid, Message: "encode request body", Err: err}
		}
		bodyJSON = b
		bodyReader = bytes.NewReader(b)
	}
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return &Error{Kind: ErrKindConfigInvalid, Message: "build request", Err: err}
	}

	signQuery := query
	if body != nil {
		signQuery = bodyToQuery(bodyJSON)
	}
	token, err := signedJWT(c.creds, signQuery)
	if err != nil {
		return &Error{Kind: ErrKindConfigInvalid, Message: "sign request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: ErrKindNetworkTransient, Message: "transport", Err: err}
	}
	defer resp.Body.Close()

	c.observeHeaders(group, resp.Header)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: ErrKindNetworkTransient, Message: "read body", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		if c.limiter != nil {
			c.limiter.Throttled(group, resp.StatusCode)
		}
	}
	if resp.StatusCode >= 400 {
		return &Error{Kind: classifyStatus(resp.StatusCode), Status: resp.StatusCode, Message: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: ErrKindStateInconsistency, Message: "decode response", Err: err}
	}
	return nil
}

// observeHeaders parses "Remaining-Req: group=order; min=..; sec=.." style
// headers, reconciling the limiter's local count and passing every
// advertised per-second remaining count to the degrade observer, which
// decides whether to degrade.
func (c *Client) observeHeaders(group domain.RateLimitGroup, h http.Header) {
	raw := h.Get("Remaining-Req")
	if raw == "" {
		return
	}

	fields := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	secRemaining, secOK := atoiSafe(fields["sec"])
	if secOK && c.degrade != nil {
		c.degrade.ObserveRateLimit(group, secRemaining)
	}

	if c.limiter == nil {
		return
	}
	capacity := defaultGroupCapacity(group)
	if secOK {
		c.limiter.Reconcile(group, capacity, secRemaining)
	}
}

func defaultGroupCapacity(group domain.RateLimitGroup) int {
	switch group {
	case domain.GroupMarket:
		return 10
	case domain.GroupQuery:
		return 30
	case domain.GroupOrder:
		return 8
	default:
		return 30
	}
}

func atoiSafe(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// bodyToQuery turns a JSON request body into the flat k=v set the
// query_hash is computed over for non-GET signed requests, mirroring the
// exchange's requirement that POST/DELETE bodies are hashed the same way
// GET query strings are.
func bodyToQuery(bodyJSON []byte) url.Values {
	if len(bodyJSON) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(bodyJSON, &m); err != nil {
		slog.Warn("korbitapi: could not flatten body for signing", "err", err)
		return nil
	}
	values := url.Values{}
	for k, v := range m {
		values.Set(k, fmt.Sprintf("%v", v))
	}
	return values
}
