package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("user not found")

// Repository persists staff accounts and the action log.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	Update(ctx context.Context, u *User) error
	SetPassword(ctx context.Context, id uuid.UUID, hash string) error
	Deactivate(ctx context.Context, id uuid.UUID) error

	// RecordFailedLogin increments the failure counter and returns the new
	// count. LockUntil sets the lockout deadline; ResetFailures clears both.
	RecordFailedLogin(ctx context.Context, id uuid.UUID) (int, error)
	LockUntil(ctx context.Context, id uuid.UUID, until time.Time) error
	ResetFailures(ctx context.Context, id uuid.UUID, loginAt time.Time, ip string) error

	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditEntry, int, error)
}

// AuditFilter narrows the action log listing. Zero values mean no filter.
type AuditFilter struct {
	UserID     *uuid.UUID
	PatientID  *uuid.UUID
	ActionType string
}
