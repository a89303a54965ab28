package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/coursekeeper/internal/logging"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces the per-client counters.
	KeyPrefix = "ratelimit:"
	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Minute
)

type rejection struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Limiter allows at most limit requests per client address in each
// window. Redis failures let the request through.
type Limiter struct {
	client     redis.Cmdable
	limit      int
	window     time.Duration
	trustProxy bool
	logger     logging.Logger
}

// NewLimiter builds a Limiter. With trustProxy set the client address is
// taken from forwarding headers, otherwise only from the connection.
func NewLimiter(client redis.Cmdable, limit int, window time.Duration, trustProxy bool, logger logging.Logger) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		client:     client,
		limit:      limit,
		window:     window,
		trustProxy: trustProxy,
		logger:     logger.With("module", "ratelimit"),
	}
}

// Allow counts one request for key and reports whether it fits in the
// current window along with the remaining budget.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, error) {
	k := KeyPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, l.limit, err
	}

	// The first hit opens the window. A counter left without a TTL by a
	// failed Expire gets one on the next hit.
	expire := count == 1
	if !expire {
		ttl, err := l.client.TTL(ctx, k).Result()
		if err != nil {
			return true, l.limit, err
		}
		expire = ttl < 0
	}
	if expire {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, l.limit, err
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// Middleware rejects clients over their budget with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := ClientIP(r, l.trustProxy)

		allowed, remaining, err := l.Allow(ctx, ip)
		if err != nil {
			l.logger.Warn(ctx, "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			l.logger.Info(ctx, "rate limit exceeded", "ip", ip)
			retry := int(l.window.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejection{
				Code:       http.StatusTooManyRequests,
				Message:    "Too many requests, try again later",
				RetryAfter: retry,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the connection address without its port. With
// trustProxy set it prefers the first X-Forwarded-For hop, then X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
