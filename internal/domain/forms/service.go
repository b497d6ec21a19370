package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/patient"
	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
)

// PatientReader is the narrow port into patient storage Prefill needs.
type PatientReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// PrefillData is what a returning patient's forms start from: the stored
// record and the latest prior submissions that carry forward between
// visits. Per-visit signatures never pre-fill.
type PrefillData struct {
	Patient            *patient.Patient    `json:"patient"`
	MedicalHistory     *MedicalHistory     `json:"medical_history,omitempty"`
	AdditionalConsents *AdditionalConsents `json:"additional_consents,omitempty"`
}

// Service handles the post-registration form flow. Every operation requires
// a valid lookup session; the session, not the request, names the patient
// and visit being written.
type Service struct {
	repo     Repository
	patients PatientReader
	visits   *visit.Service
	sessions *session.Service
	log      zerolog.Logger
}

func NewService(repo Repository, patients PatientReader, visits *visit.Service,
	sessions *session.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		visits:   visits,
		sessions: sessions,
		log:      log.With().Str("component", "forms").Logger(),
	}
}

// Prefill returns the data a returning patient's forms start from.
func (s *Service) Prefill(ctx context.Context, token uuid.UUID) (*PrefillData, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	p, err := s.patients.GetByID(ctx, sess.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	data := &PrefillData{Patient: p}

	mh, err := s.repo.LatestMedicalHistory(ctx, sess.PatientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	data.MedicalHistory = mh

	ac, err := s.repo.LatestAdditionalConsents(ctx, sess.PatientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	data.AdditionalConsents = ac

	return data, nil
}

// SubmitMedicalHistory saves the form. On a returning visit the submission
// is diffed against the patient's latest prior medical history and the
// resulting changes are folded into the visit's change summary.
func (s *Service) SubmitMedicalHistory(ctx context.Context, token uuid.UUID, f *MedicalHistory) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f.PatientID = sess.PatientID
	f.VisitID = sess.VisitID

	v, err := s.visits.Get(ctx, sess.VisitID)
	if err != nil {
		return err
	}
	if v.AllFormsCompleted {
		return visit.ErrCompleted
	}

	if v.VisitType == visit.TypeReturning {
		prior, err := s.repo.LatestMedicalHistory(ctx, sess.PatientID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prior != nil {
			cs := visit.Diff(prior.FieldMap(), f.FieldMap())
			if !cs.Empty() {
				if err := s.recordChanges(ctx, v, cs); err != nil {
					return err
				}
			}
		}
	}

	if err := s.repo.SaveMedicalHistory(ctx, f); err != nil {
		return fmt.Errorf("save medical history: %w", err)
	}
	return s.repo.MarkStep(ctx, sess.VisitID, sess.PatientID, StepMedicalHistory)
}

// SubmitConsent saves the consent-for-treatment form. Signatures are
// per-visit, so there is no change tracking here.
func (s *Service) SubmitConsent(ctx context.Context, token uuid.UUID, f *Consent) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f.PatientID = sess.PatientID
	f.VisitID = sess.VisitID

	if err := s.repo.SaveConsent(ctx, f); err != nil {
		return fmt.Errorf("save consent: %w", err)
	}
	return s.repo.MarkStep(ctx, sess.VisitID, sess.PatientID, StepConsent)
}

func (s *Service) SubmitFinancialAgreement(ctx context.Context, token uuid.UUID, f *FinancialAgreement) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f.PatientID = sess.PatientID
	f.VisitID = sess.VisitID

	if err := s.repo.SaveFinancialAgreement(ctx, f); err != nil {
		return fmt.Errorf("save financial agreement: %w", err)
	}
	return s.repo.MarkStep(ctx, sess.VisitID, sess.PatientID, StepFinancial)
}

// SubmitAdditionalConsents saves the final form and closes out the visit:
// progress is marked fully complete and the visit transitions to completed.
func (s *Service) SubmitAdditionalConsents(ctx context.Context, token uuid.UUID, f *AdditionalConsents) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	f.PatientID = sess.PatientID
	f.VisitID = sess.VisitID

	if err := s.repo.SaveAdditionalConsents(ctx, f); err != nil {
		return fmt.Errorf("save additional consents: %w", err)
	}
	if err := s.repo.MarkStep(ctx, sess.VisitID, sess.PatientID, StepAdditionalConsents); err != nil {
		return err
	}
	if err := s.repo.MarkAllComplete(ctx, sess.VisitID); err != nil {
		return err
	}
	if err := s.visits.Complete(ctx, sess.VisitID); err != nil {
		return fmt.Errorf("complete visit: %w", err)
	}

	s.log.Info().
		Str("patient_id", sess.PatientID.String()).
		Str("visit_id", sess.VisitID.String()).
		Msg("intake completed")
	return nil
}

// Progress reports which steps the session's visit has finished.
func (s *Service) Progress(ctx context.Context, token uuid.UUID) (*Progress, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.repo.Progress(ctx, sess.VisitID)
}

// PatientForms is the staff view of a patient's latest submissions.
type PatientForms struct {
	MedicalHistory     *MedicalHistory     `json:"medical_history,omitempty"`
	Consent            *Consent            `json:"consent,omitempty"`
	FinancialAgreement *FinancialAgreement `json:"financial_agreement,omitempty"`
	AdditionalConsents *AdditionalConsents `json:"additional_consents,omitempty"`
}

// LatestForPatient gathers the most recent submission of each form for
// staff review. Missing forms are simply absent.
func (s *Service) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*PatientForms, error) {
	out := &PatientForms{}
	var err error

	if out.MedicalHistory, err = s.repo.LatestMedicalHistory(ctx, patientID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if out.Consent, err = s.repo.LatestConsent(ctx, patientID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if out.FinancialAgreement, err = s.repo.LatestFinancialAgreement(ctx, patientID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if out.AdditionalConsents, err = s.repo.LatestAdditionalConsents(ctx, patientID); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return out, nil
}

// recordChanges folds a new change set into whatever summary the visit
// already carries, so successive form saves accumulate rather than clobber.
func (s *Service) recordChanges(ctx context.Context, v *visit.Visit, cs *visit.ChangeSet) error {
	if v.ChangeSummary != nil {
		existing, err := visit.DecodeChangeSet(*v.ChangeSummary)
		if err != nil {
			s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("undecodable change summary, replacing")
		} else {
			cs = existing.Merge(cs)
		}
	}

	reason := ""
	if v.ReasonForVisit != nil {
		reason = *v.ReasonForVisit
	}
	return s.visits.AttachChanges(ctx, v.ID, cs, reason)
}
