package lookup

import (
	"context"
	"sync"
	"time"
)

type rateLimitRecord struct {
	count        int
	firstAttempt time.Time
	lastAttempt  time.Time
	blockedUntil *time.Time
}

// MemoryRateLimit is an in-process RateLimitStore for single-instance
// deployments and tests. A mutex serializes attempts, matching the
// per-subject atomicity the persistent stores get from the database.
type MemoryRateLimit struct {
	mu      sync.Mutex
	records map[string]*rateLimitRecord

	now func() time.Time
}

func NewMemoryRateLimit() *MemoryRateLimit {
	return &MemoryRateLimit{
		records: make(map[string]*rateLimitRecord),
		now:     time.Now,
	}
}

func (m *MemoryRateLimit) Attempt(_ context.Context, subject string, maxAttempts int, window time.Duration) (*RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records[subject]

	switch {
	case !ok:
		rec = &rateLimitRecord{count: 1, firstAttempt: now, lastAttempt: now}
		m.records[subject] = rec

	case rec.blockedUntil != nil && rec.blockedUntil.After(now):
		return &RateLimitResult{Allowed: false, Remaining: 0, BlockedUntil: rec.blockedUntil}, nil

	case rec.blockedUntil != nil || !rec.firstAttempt.After(now.Add(-window)):
		// Elapsed block or expired window: fresh counter.
		rec.count = 1
		rec.firstAttempt = now
		rec.lastAttempt = now
		rec.blockedUntil = nil

	case rec.count >= maxAttempts:
		until := now.Add(window)
		rec.blockedUntil = &until
		rec.lastAttempt = now
		return &RateLimitResult{Allowed: false, Remaining: 0, BlockedUntil: &until}, nil

	default:
		rec.count++
		rec.lastAttempt = now
	}

	remaining := maxAttempts - rec.count
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{Allowed: true, Remaining: remaining}, nil
}
