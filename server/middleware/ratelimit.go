package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientLimiter hands out one token bucket per client. Buckets idle for
// longer than the idle timeout are dropped on the next sweep.
type ClientLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing limit requests per second with
// the given burst for every client.
func NewClientLimiter(limit float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limit:     rate.Limit(limit),
		burst:     burst,
		idle:      10 * time.Minute,
		clients:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client may make a request now
func (l *ClientLimiter) Allow(client string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > l.idle {
		for id, b := range l.clients {
			if now.Sub(b.lastSeen) > l.idle {
				delete(l.clients, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// clientKey identifies the caller: the authenticated user when known,
// otherwise the remote host.
func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// V1RateLimitMiddleware rejects requests from clients that exceed their
// token bucket with 429.
func V1RateLimitMiddleware(limiter *ClientLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			if !limiter.Allow(client) {
				logger.Warn("Request rate limited",
					zap.String("method", r.Method),
					zap.String("client", client),
					zap.String("user_agent", r.UserAgent()))

				w.Header().Set("Retry-After", "1")
				writeError(w, logger, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
