package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

// Repository persists patient records. There is no hard delete; patient
// records are retained for the clinical record.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)

	// FindByEmailDOB resolves the identity pair used by returning-patient
	// lookup. Email matching is case-insensitive; when several records
	// share the pair the most recently created one wins.
	FindByEmailDOB(ctx context.Context, email string, dob time.Time) (*Patient, error)
	ExistsByEmailDOB(ctx context.Context, email string, dob time.Time) (bool, error)
}
