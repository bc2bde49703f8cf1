package mcp

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/time/rate"
)

// limiterTTL is how long an idle client's limiter is kept.
const limiterTTL = 5 * time.Minute

// NewHTTPHandler serves the MCP streamable HTTP transport. When metrics
// is non-nil it is mounted at /metrics, outside the rate limit.
// A limit of zero disables rate limiting.
func NewHTTPHandler(server *mcp.Server, metrics http.Handler, limit rate.Limit, burst int) http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if limit > 0 {
		mux.Handle("/", RateLimit(limit, burst)(mcpHandler))
	} else {
		mux.Handle("/", mcpHandler)
	}
	return mux
}

// RateLimit limits requests per client address. Clients over the limit
// get 429 with Retry-After.
func RateLimit(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limiters := sync.Map{} // client address -> *cachedLimiter

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := getOrCreateLimiter(&limiters, clientAddr(r), limit, burst)
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

func getOrCreateLimiter(limiters *sync.Map, key string, limit rate.Limit, burst int) *rate.Limiter {
	now := time.Now()
	if v, ok := limiters.Load(key); ok {
		cached := v.(*cachedLimiter)
		if now.Before(cached.expiresAt) {
			return cached.limiter
		}
		// expired, need to create new
	}

	limiter := rate.NewLimiter(limit, burst)
	limiters.Store(key, &cachedLimiter{
		limiter:   limiter,
		expiresAt: now.Add(limiterTTL),
	})
	return limiter
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
