package forms

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("form submission not found")

// Repository persists form submissions and per-visit progress. Submissions
// are append-only: each save is a new row, and the latest per patient is
// what pre-fill reads.
type Repository interface {
	SaveMedicalHistory(ctx context.Context, f *MedicalHistory) error
	LatestMedicalHistory(ctx context.Context, patientID uuid.UUID) (*MedicalHistory, error)

	SaveConsent(ctx context.Context, f *Consent) error
	LatestConsent(ctx context.Context, patientID uuid.UUID) (*Consent, error)

	SaveFinancialAgreement(ctx context.Context, f *FinancialAgreement) error
	LatestFinancialAgreement(ctx context.Context, patientID uuid.UUID) (*FinancialAgreement, error)

	SaveAdditionalConsents(ctx context.Context, f *AdditionalConsents) error
	LatestAdditionalConsents(ctx context.Context, patientID uuid.UUID) (*AdditionalConsents, error)

	// Progress returns the tracker row for a visit, creating an empty view
	// (not a row) when none exists yet.
	Progress(ctx context.Context, visitID uuid.UUID) (*Progress, error)
	MarkStep(ctx context.Context, visitID, patientID uuid.UUID, step string) error
	MarkAllComplete(ctx context.Context, visitID uuid.UUID) error
}
