package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// ActorRateLimiter keeps one token bucket per actor.
type ActorRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewActorRateLimiter allows r events per second with bursts of b per actor.
func NewActorRateLimiter(r rate.Limit, b int) *ActorRateLimiter {
	return &ActorRateLimiter{limiters: make(map[string]*rate.Limiter), r: r, b: b}
}

// Limiter returns the bucket of key, creating it on first use.
func (l *ActorRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter
}

// ToggleRateLimit throttles toggles per actor, falling back to the client IP
// for requests that reached it without one.
func ToggleRateLimit(l *ActorRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := Actor(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			if !l.Limiter(key).Allow() {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}
