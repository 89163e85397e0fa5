package korbitapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

type fakeLimiter struct {
	acquireCalls    int
	reconcileCalls  int
	throttledCalls  int
	lastThrottleSt  int
}

func (f *fakeLimiter) Acquire(ctx context.Context, group domain.RateLimitGroup) error {
	f.acquireCalls++
	return nil
}
func (f *fakeLimiter) Reconcile(group domain.RateLimitGroup, max, remaining int) {
	f.reconcileCalls++
}
func (f *fakeLimiter) Throttled(group domain.RateLimitGroup, status int) {
	f.throttledCalls++
	f.lastThrottleSt = status
}

func TestClientDo_AcquiresBeforeRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	lim := &fakeLimiter{}
	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, lim, nil)

	var out []marketDTO
	err := c.do(context.Background(), domain.GroupMarket, http.MethodGet, "/market/all", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.acquireCalls)
}

func TestClientDo_ThrottledOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"too many requests"}`))
	}))
	defer srv.Close()

	lim := &fakeLimiter{}
	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, lim, nil)

	err := c.do(context.Background(), domain.GroupOrder, http.MethodGet, "/orders/chance", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, lim.throttledCalls)
	assert.Equal(t, 429, lim.lastThrottleSt)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrKindRateLimited, apiErr.Kind)
}

func TestClientDo_ClassifiesServerErrorAsNetworkTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, nil, nil)
	err := c.do(context.Background(), domain.GroupQuery, http.MethodGet, "/ticker", nil, nil, nil)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrKindNetworkTransient, apiErr.Kind)
}

func TestClientDo_ReconcilesFromRemainingReqHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Remaining-Req", "group=market; min=599; sec=9")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	lim := &fakeLimiter{}
	c := NewClient(srv.URL, Credentials{AccessKey: "ak", SecretKey: "sk"}, lim, nil)

	var out []marketDTO
	err := c.do(context.Background(), domain.GroupMarket, http.MethodGet, "/market/all", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, lim.reconcileCalls)
}
