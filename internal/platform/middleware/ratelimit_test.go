package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounterWindowRollover(t *testing.T) {
	counter := NewMemoryCounter()
	now := time.Now()
	counter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := counter.Incr(ctx, "client-a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	// Independent key.
	n, err := counter.Incr(ctx, "client-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Window elapses, count resets.
	now = now.Add(2 * time.Minute)
	n, err = counter.Incr(ctx, "client-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(NewMemoryCounter(), 2, time.Minute, slog.Default())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/ledger/vote", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:3333"))

	// A different client is unaffected.
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1111"))
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, context.DeadlineExceeded
}

func TestRateLimitFailsOpen(t *testing.T) {
	handler := RateLimit(failingCounter{}, 1, time.Minute, slog.Default())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodPost, "/ledger/vote", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
