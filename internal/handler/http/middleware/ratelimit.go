package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/response"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a caller's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	limiters  map[string]*visitor
	mu        sync.Mutex
	r         rate.Limit
	b         int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*visitor),
		r:         r,
		b:         b,
		idleTTL:   limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *RateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	v, exists := l.limiters[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = v
	}
	v.lastSeen = now

	return v.limiter
}

// sweep drops callers idle for at least idleTTL. An evicted caller comes back
// with a full bucket.
func (l *RateLimiter) sweep(now time.Time) {
	for key, v := range l.limiters {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// RateLimitByActor limits requests per authenticated caller, falling back to
// the client address for anonymous requests.
func RateLimitByActor(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientAddr(r)
			if actor, ok := ActorFromContext(r.Context()); ok {
				key = "actor:" + actor.UserID
			}

			if !limiter.GetLimiter(key).Allow() {
				response.TooManyRequests(w, "Too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
