package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of a lookup session when the caller does not
// override it.
const DefaultTTL = 30 * time.Minute

// Service manages the lookup-session lifecycle. All state lives in the
// injected Store; nothing is read from ambient request state.
type Service struct {
	store    Store
	resolver EntityResolver

	now func() time.Time
}

func NewService(store Store, resolver EntityResolver) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

// Issue creates a new active session for a matched patient and open visit.
func (s *Service) Issue(ctx context.Context, patientID, visitID uuid.UUID, ttl time.Duration) (*LookupSession, error) {
	if patientID == uuid.Nil || visitID == uuid.Nil {
		return nil, fmt.Errorf("patient and visit ids are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := s.now()
	sess := &LookupSession{
		Token:     uuid.New(),
		PatientID: patientID,
		VisitID:   visitID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Validate returns the session for the token if it is active: not expired,
// not revoked, and still referencing a patient and visit that resolve.
func (s *Service) Validate(ctx context.Context, token uuid.UUID) (*LookupSession, error) {
	sess, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Revoked {
		return nil, ErrRevoked
	}
	if sess.ExpiredAt(s.now()) {
		return nil, ErrExpired
	}

	ok, err := s.resolver.PatientExists(ctx, sess.PatientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient: %w", err)
	}
	if !ok {
		return nil, ErrInvalid
	}
	ok, err = s.resolver.VisitExists(ctx, sess.VisitID)
	if err != nil {
		return nil, fmt.Errorf("resolve visit: %w", err)
	}
	if !ok {
		return nil, ErrInvalid
	}

	return sess, nil
}

// Extend resets the session expiry to now + ttl. The new expiry is always
// relative to the call time, whether that lands before or after the current
// expiry. Extending an expired or revoked session fails; the caller must
// re-run the lookup.
func (s *Service) Extend(ctx context.Context, token uuid.UUID, ttl time.Duration) (*LookupSession, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	sess, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Revoked {
		return nil, ErrRevoked
	}
	now := s.now()
	if sess.ExpiredAt(now) {
		return nil, ErrExpired
	}

	newExpiry := now.Add(ttl)
	if err := s.store.SetExpiry(ctx, token, newExpiry); err != nil {
		return nil, fmt.Errorf("extend session: %w", err)
	}
	sess.ExpiresAt = newExpiry
	return sess, nil
}

// Revoke invalidates the session immediately. Revocation is terminal.
func (s *Service) Revoke(ctx context.Context, token uuid.UUID) error {
	return s.store.Revoke(ctx, token)
}

// Cleanup removes expired and revoked sessions. Intended to be run
// periodically by the server.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
