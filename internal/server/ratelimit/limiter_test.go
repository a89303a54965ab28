package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	client, mr := newClient(t)
	return NewLimiter(client, limit, time.Minute, false, logging.Discard()), mr
}

// flakyExpire fails the first fails calls to Expire.
type flakyExpire struct {
	redis.Cmdable
	fails int
}

func (f *flakyExpire) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if f.fails > 0 {
		f.fails--
		cmd := redis.NewBoolCmd(ctx)
		cmd.SetErr(errors.New("connection reset by peer"))
		return cmd
	}
	return f.Cmdable.Expire(ctx, key, expiration)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAllow_CountsWithinWindow(t *testing.T) {
	l, mr := newLimiter(t, 2)
	ctx := context.Background()

	ok, remaining, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"10.0.0.1"))

	ok, remaining, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other clients have their own budget
	ok, _, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_WindowResets(t *testing.T) {
	l, mr := newLimiter(t, 1)
	ctx := context.Background()

	ok, _, _ := l.Allow(ctx, "ip")
	assert.True(t, ok)
	ok, _, _ = l.Allow(ctx, "ip")
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, _, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_RepairsCounterWithoutExpiry(t *testing.T) {
	client, mr := newClient(t)
	l := NewLimiter(&flakyExpire{Cmdable: client, fails: 1}, 2, time.Minute, false, logging.Discard())
	ctx := context.Background()
	key := KeyPrefix + "203.0.113.5"

	ok, _, err := l.Allow(ctx, "203.0.113.5")
	require.Error(t, err)
	assert.True(t, ok, "a failed Expire lets the request through")
	assert.Zero(t, mr.TTL(key), "counter is left without a TTL")

	ok, remaining, err := l.Allow(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, time.Minute, mr.TTL(key))

	ok, _, err = l.Allow(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, remaining, err = l.Allow(ctx, "203.0.113.5")
	require.NoError(t, err)
	assert.True(t, ok, "the client is not locked out after the window")
	assert.Equal(t, 1, remaining)
}

func TestAllow_KeepsExistingExpiry(t *testing.T) {
	l, mr := newLimiter(t, 5)
	ctx := context.Background()

	_, _, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)

	_, _, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, mr.TTL(KeyPrefix+"ip"), "later hits do not extend the window")
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	l, _ := newLimiter(t, 1)
	h := l.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body rejection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, 60, body.RetryAfter)
	assert.NotEmpty(t, body.Message)
}

func TestMiddleware_FailsOpenWhenRedisDown(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()

	h := l.Middleware(okHandler())
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMiddleware_IgnoresSpoofedForwardingHeaders(t *testing.T) {
	l, _ := newLimiter(t, 1)
	h := l.Middleware(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
		req.RemoteAddr = "198.51.100.20:40000"
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"), "a fresh header value must not reset the count")
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.3"))
}

func TestMiddleware_TrustedProxyUsesForwardedClient(t *testing.T) {
	client, _ := newClient(t)
	h := NewLimiter(client, 1, time.Minute, true, logging.Discard()).Middleware(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", forwarded+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
}

func TestNewLimiter_DefaultWindow(t *testing.T) {
	l := NewLimiter(nil, 5, 0, false, logging.Discard())
	assert.Equal(t, DefaultWindow, l.window)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remote     string
		trustProxy bool
		want       string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "10.0.0.1:1", trustProxy: true, want: "203.0.113.9"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.10"}, remote: "10.0.0.1:1", trustProxy: true, want: "203.0.113.10"},
		{name: "forwarded ignored without trust", headers: map[string]string{"X-Forwarded-For": "203.0.113.9"}, remote: "10.0.0.1:1", want: "10.0.0.1"},
		{name: "real ip ignored without trust", headers: map[string]string{"X-Real-IP": "203.0.113.10"}, remote: "10.0.0.1:1", want: "10.0.0.1"},
		{name: "trusted but no headers", remote: "10.0.0.1:1", trustProxy: true, want: "10.0.0.1"},
		{name: "remote addr without port", remote: "198.51.100.4:4321", want: "198.51.100.4"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:80", want: "2001:db8::1"},
		{name: "remote addr without port at all", remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, 10, client.Options().PoolSize)

	_, err = NewRedisClient(context.Background(), "http://nope")
	assert.Error(t, err)
}
