package lookup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type rateLimitPG struct{ pool *pgxpool.Pool }

// NewRateLimitPG returns a RateLimitStore backed by a single-row-per-subject
// counter table. The whole attempt is one conditional upsert so concurrent
// attempts for a subject serialize on the row.
func NewRateLimitPG(pool *pgxpool.Pool) RateLimitStore { return &rateLimitPG{pool: pool} }

// The CASE arms cover, in order: an active block (state untouched), an
// elapsed block (counter resets to 1), an expired window (counter resets
// to 1), the threshold crossing (count held, block set), and the normal
// in-window increment.
const attemptSQL = `
INSERT INTO rate_limit_tracking (subject, attempt_count, first_attempt, last_attempt, blocked_until)
VALUES ($1, 1, NOW(), NOW(), NULL)
ON CONFLICT (subject) DO UPDATE SET
	attempt_count = CASE
		WHEN rate_limit_tracking.blocked_until IS NOT NULL AND rate_limit_tracking.blocked_until > NOW()
			THEN rate_limit_tracking.attempt_count
		WHEN rate_limit_tracking.blocked_until IS NOT NULL
			THEN 1
		WHEN rate_limit_tracking.first_attempt <= NOW() - make_interval(secs => $3)
			THEN 1
		WHEN rate_limit_tracking.attempt_count >= $2
			THEN rate_limit_tracking.attempt_count
		ELSE rate_limit_tracking.attempt_count + 1
	END,
	first_attempt = CASE
		WHEN rate_limit_tracking.blocked_until IS NOT NULL AND rate_limit_tracking.blocked_until > NOW()
			THEN rate_limit_tracking.first_attempt
		WHEN rate_limit_tracking.blocked_until IS NOT NULL
			THEN NOW()
		WHEN rate_limit_tracking.first_attempt <= NOW() - make_interval(secs => $3)
			THEN NOW()
		ELSE rate_limit_tracking.first_attempt
	END,
	last_attempt = CASE
		WHEN rate_limit_tracking.blocked_until IS NOT NULL AND rate_limit_tracking.blocked_until > NOW()
			THEN rate_limit_tracking.last_attempt
		ELSE NOW()
	END,
	blocked_until = CASE
		WHEN rate_limit_tracking.blocked_until IS NOT NULL AND rate_limit_tracking.blocked_until > NOW()
			THEN rate_limit_tracking.blocked_until
		WHEN rate_limit_tracking.blocked_until IS NOT NULL
			THEN NULL
		WHEN rate_limit_tracking.first_attempt <= NOW() - make_interval(secs => $3)
			THEN NULL
		WHEN rate_limit_tracking.attempt_count >= $2
			THEN NOW() + make_interval(secs => $3)
		ELSE NULL
	END
RETURNING attempt_count, blocked_until`

func (r *rateLimitPG) Attempt(ctx context.Context, subject string, maxAttempts int, window time.Duration) (*RateLimitResult, error) {
	var (
		count        int
		blockedUntil *time.Time
	)
	err := r.pool.QueryRow(ctx, attemptSQL, subject, maxAttempts, window.Seconds()).
		Scan(&count, &blockedUntil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if blockedUntil != nil && blockedUntil.After(now) {
		return &RateLimitResult{Allowed: false, Remaining: 0, BlockedUntil: blockedUntil}, nil
	}

	remaining := maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: true, Remaining: remaining}, nil
}
