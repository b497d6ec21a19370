package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrCompleted = errors.New("visit already completed")

// Service records patient visits: one row per encounter, opened when a
// patient registers or is matched, updated with a change summary as forms
// are saved, and completed when the final consent form is submitted.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Open creates a new visit for the patient. The caller must not proceed
// with the intake flow if opening fails.
func (s *Service) Open(ctx context.Context, patientID uuid.UUID, visitType, reason string, meta ClientMeta) (*Visit, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient id is required")
	}
	if visitType != TypeNew && visitType != TypeReturning {
		return nil, fmt.Errorf("invalid visit type %q", visitType)
	}

	v := &Visit{
		PatientID:     patientID,
		VisitType:     visitType,
		CheckInStatus: StatusOpen,
		IPAddress:     meta.IPAddress,
		UserAgent:     meta.UserAgent,
		SessionID:     meta.SessionID,
	}
	if reason != "" {
		v.ReasonForVisit = &reason
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("open visit: %w", err)
	}
	return v, nil
}

// AttachChanges stores the change summary and reason for visit on an open
// visit. Calling it again with a superseding change set overwrites the
// previous summary. A completed visit rejects further changes.
func (s *Service) AttachChanges(ctx context.Context, visitID uuid.UUID, cs *ChangeSet, reason string) error {
	if cs == nil {
		return fmt.Errorf("change set is required")
	}

	v, err := s.repo.GetByID(ctx, visitID)
	if err != nil {
		return err
	}
	if v.AllFormsCompleted {
		return ErrCompleted
	}

	encoded, err := cs.Encode()
	if err != nil {
		return err
	}
	return s.repo.AttachChanges(ctx, visitID, encoded, cs.ChangedCount, reason)
}

// Complete marks the visit finished. Irreversible; completing an already
// completed visit is a no-op.
func (s *Service) Complete(ctx context.Context, visitID uuid.UUID) error {
	return s.repo.Complete(ctx, visitID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// LastByPatient returns the most recent visit for a patient, or ErrNotFound
// if the patient has never visited.
func (s *Service) LastByPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	return s.repo.LastByPatient(ctx, patientID)
}
