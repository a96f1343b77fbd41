package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler(status int, calls *atomic.Int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + strconv.FormatInt(n, 10) + `}`))
	})
}

func TestMemoryIdempotencyStore_RoundTrip(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)

	_, ok := s.Check("missing")
	require.False(t, ok)

	hdr := http.Header{"Content-Type": []string{"application/json"}}
	s.Set("key-1", http.StatusOK, hdr, []byte(`{"ok":true}`))

	cached, ok := s.Check("key-1")
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, cached.StatusCode)
	assert.Equal(t, []byte(`{"ok":true}`), cached.Body)
}

func TestMemoryIdempotencyStore_ExpiredKeyMisses(t *testing.T) {
	s := NewIdempotencyStore(time.Nanosecond)
	s.Set("key-1", http.StatusOK, http.Header{}, []byte(`{}`))

	time.Sleep(time.Millisecond)
	_, ok := s.Check("key-1")
	assert.False(t, ok)
}

func TestIdempotencyMiddleware_ReplaysSecondPost(t *testing.T) {
	var calls atomic.Int64
	h := IdempotencyMiddleware(NewIdempotencyStore(time.Minute))(countingHandler(http.StatusOK, &calls))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/rollback", nil)
		req.Header.Set("Idempotency-Key", "key-9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	second := send()

	assert.Equal(t, int64(1), calls.Load(), "second request must not reach the handler")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, first.Code, second.Code)
}

func TestIdempotencyMiddleware_IgnoresGets(t *testing.T) {
	var calls atomic.Int64
	h := IdempotencyMiddleware(NewIdempotencyStore(time.Minute))(countingHandler(http.StatusOK, &calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger/entries", nil)
		req.Header.Set("Idempotency-Key", "key-9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	assert.Equal(t, int64(2), calls.Load())
}

func TestIdempotencyMiddleware_NoKeyNoReplay(t *testing.T) {
	var calls atomic.Int64
	h := IdempotencyMiddleware(NewIdempotencyStore(time.Minute))(countingHandler(http.StatusOK, &calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/rollback", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	assert.Equal(t, int64(2), calls.Load())
}

func TestIdempotencyMiddleware_FailuresAreRetriable(t *testing.T) {
	var calls atomic.Int64
	h := IdempotencyMiddleware(NewIdempotencyStore(time.Minute))(countingHandler(http.StatusServiceUnavailable, &calls))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/rollback", nil)
		req.Header.Set("Idempotency-Key", "key-9")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	assert.Equal(t, int64(2), calls.Load(), "non-2xx responses are not cached")
}
