// Package pacer spaces out price provider requests across batch jobs.
package pacer

import (
	"time"

	"golang.org/x/time/rate"
)

// New returns a limiter that admits one item per interval with no burst.
// A non-positive interval disables pacing. Jobs that share the returned
// limiter share the same budget.
func New(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
