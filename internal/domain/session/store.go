package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrRevoked  = errors.New("session revoked")
	ErrInvalid  = errors.New("session references missing patient or visit")
)

// Store persists lookup sessions server-side.
type Store interface {
	Create(ctx context.Context, s *LookupSession) error
	Get(ctx context.Context, token uuid.UUID) (*LookupSession, error)
	SetExpiry(ctx context.Context, token uuid.UUID, expiresAt time.Time) error
	Revoke(ctx context.Context, token uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// EntityResolver answers whether the patient and visit a session references
// still exist. A session whose references no longer resolve is invalid even
// before its expiry.
type EntityResolver interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	VisitExists(ctx context.Context, id uuid.UUID) (bool, error)
}
