// Package ratelimit caps the ingestion throughput of record additions.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter enforces a maximum records-per-second ingestion rate.
// A single token is consumed per record; callers block until a token is
// available. The zero rate disables limiting.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing recordsPerSecond additions. A value of
// zero or less means unlimited.
func New(recordsPerSecond float64) *Limiter {
	limit := rate.Inf
	burst := 1
	if recordsPerSecond > 0 {
		limit = rate.Limit(recordsPerSecond)
		// Allow short bursts up to one second's worth of records so a
		// steady producer is not penalized by scheduling jitter.
		burst = int(recordsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// WaitToPush blocks until one record may be added. It returns an error
// only when the context is cancelled; the caller's record is never
// dropped by the limiter itself.
func (l *Limiter) WaitToPush(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Limit returns the configured records-per-second rate, or rate.Inf when
// unlimited.
func (l *Limiter) Limit() rate.Limit {
	return l.limiter.Limit()
}
