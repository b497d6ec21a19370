package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Document, error)
	CountActiveByPatient(ctx context.Context, patientID uuid.UUID) (int, error)

	Verify(ctx context.Context, id, userID uuid.UUID) error
	Reject(ctx context.Context, id, userID uuid.UUID, reason string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	LogAccess(ctx context.Context, e *AccessLogEntry) error
	AccessLog(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*AccessLogEntry, int, error)
}
