// Package middleware carries the admission gate sitting in front of
// every handler. The core protocol assumes requests have already
// passed it; only the boundary behavior (reject with a rate-limit
// signal) is specified here.
package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// Admission applies a per-actor token bucket. Actors are keyed by
// their Authorization header so one noisy agent cannot starve the
// rest; unauthenticated requests share a single bucket.
type Admission struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewAdmission creates an admission gate.
func NewAdmission(requestsPerSecond float64, burst int) *Admission {
	return &Admission{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (a *Admission) limiter(key string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[key]
	if !ok {
		l = rate.NewLimiter(a.rps, a.burst)
		a.limiters[key] = l
	}
	return l
}

// Gate is the echo middleware.
func (a *Admission) Gate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("Authorization")
			if !a.limiter(key).Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				})
			}
			return next(c)
		}
	}
}
