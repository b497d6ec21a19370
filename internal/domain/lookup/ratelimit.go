package lookup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RateLimitResult is the post-attempt state for one subject.
type RateLimitResult struct {
	Allowed      bool       `json:"allowed"`
	Remaining    int        `json:"remaining"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// RateLimitStore accounts one lookup attempt for a subject and returns the
// resulting state. Implementations must make the read-increment-write
// atomic per subject: two concurrent attempts must never both observe the
// same pre-increment count.
type RateLimitStore interface {
	Attempt(ctx context.Context, subject string, maxAttempts int, window time.Duration) (*RateLimitResult, error)
}

// Limiter throttles patient lookups per network identity. A store failure
// denies the attempt; an unavailable counter must never mean unlimited
// tries.
type Limiter struct {
	store       RateLimitStore
	maxAttempts int
	window      time.Duration
	log         zerolog.Logger
}

func NewLimiter(store RateLimitStore, maxAttempts int, window time.Duration, log zerolog.Logger) *Limiter {
	return &Limiter{
		store:       store,
		maxAttempts: maxAttempts,
		window:      window,
		log:         log.With().Str("component", "ratelimit").Logger(),
	}
}

// Check records an attempt for the subject and reports whether it may
// proceed. Fails closed on storage errors.
func (l *Limiter) Check(ctx context.Context, subject string) *RateLimitResult {
	res, err := l.store.Attempt(ctx, subject, l.maxAttempts, l.window)
	if err != nil {
		l.log.Error().Err(err).Str("subject", subject).Msg("rate limit store unavailable, denying")
		return &RateLimitResult{Allowed: false, Remaining: 0}
	}
	if !res.Allowed {
		l.log.Warn().
			Str("subject", subject).
			Time("blocked_until", derefTime(res.BlockedUntil)).
			Msg("lookup throttled")
	}
	return res
}

func (l *Limiter) Window() time.Duration { return l.window }

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
