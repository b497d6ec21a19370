package patient

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
)

// ErrDuplicateIdentity is returned when a registration would create a second
// record with the same email and date of birth. That pair is the returning
// patient identity key and must stay unambiguous.
var ErrDuplicateIdentity = errors.New("a patient with this email and date of birth is already registered")

// ValidationError names the first field that failed input validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

// Registration is the intake form payload for both new and returning
// patients. Dates arrive as YYYY-MM-DD strings.
type Registration struct {
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        string `json:"gender"`
	MaritalStatus string `json:"marital_status"`
	SSN           string `json:"ssn"`

	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`

	HomePhone string `json:"home_phone"`
	CellPhone string `json:"cell_phone"`
	Email     string `json:"email"`

	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	EmergencyRelationship string `json:"emergency_relationship"`

	InsuranceProvider string `json:"insurance_provider"`
	PolicyNumber      string `json:"policy_number"`
	GroupNumber       string `json:"group_number"`
	PolicyHolderName  string `json:"policy_holder_name"`
	PolicyHolderDOB   string `json:"policy_holder_dob"`

	PCPName  string `json:"pcp_name"`
	PCPPhone string `json:"pcp_phone"`

	Allergies          string `json:"allergies"`
	CurrentMedications string `json:"current_medications"`

	ReasonForVisit string `json:"reason_for_visit"`
}

// RegistrationResult is what a successful new-patient registration hands
// back: the created record, an open visit, and a lookup session that lets
// the patient continue into the remaining forms.
type RegistrationResult struct {
	Patient *Patient               `json:"patient"`
	Visit   *visit.Visit           `json:"visit"`
	Session *session.LookupSession `json:"session"`
}

type Service struct {
	repo     Repository
	visits   *visit.Service
	sessions *session.Service

	sessionTTL time.Duration
	log        zerolog.Logger
}

func NewService(repo Repository, visits *visit.Service, sessions *session.Service, sessionTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		visits:     visits,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		log:        log.With().Str("component", "patient").Logger(),
	}
}

// Register creates a new patient record, opens a new-patient visit, and
// issues the session the subsequent forms require. The email and date of
// birth pair must not collide with an existing record.
func (s *Service) Register(ctx context.Context, reg *Registration, meta visit.ClientMeta) (*RegistrationResult, error) {
	if strings.TrimSpace(reg.ReasonForVisit) == "" {
		return nil, &ValidationError{Field: "reason_for_visit", Msg: "is required"}
	}
	p, err := buildPatient(reg)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmailDOB(ctx, p.Email, p.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("check identity: %w", err)
	}
	if exists {
		return nil, ErrDuplicateIdentity
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	v, err := s.visits.Open(ctx, p.ID, visit.TypeNew, reg.ReasonForVisit, meta)
	if err != nil {
		return nil, fmt.Errorf("open visit: %w", err)
	}

	sess, err := s.sessions.Issue(ctx, p.ID, v.ID, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.log.Info().
		Str("patient_id", p.ID.String()).
		Str("visit_id", v.ID.String()).
		Msg("new patient registered")

	return &RegistrationResult{Patient: p, Visit: v, Session: sess}, nil
}

// UpdateForSession is the returning patient's registration-update path:
// the lookup session names the patient and the open visit the changes
// belong to.
func (s *Service) UpdateForSession(ctx context.Context, token uuid.UUID, reg *Registration) (*visit.ChangeSet, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.UpdateFromIntake(ctx, sess.PatientID, sess.VisitID, reg)
}

// UpdateFromIntake applies a returning patient's resubmitted registration,
// computes the change set against the stored record, and records it on the
// open visit. The full field-level diff is returned for the caller.
func (s *Service) UpdateFromIntake(ctx context.Context, patientID, visitID uuid.UUID, reg *Registration) (*visit.ChangeSet, error) {
	if strings.TrimSpace(reg.ReasonForVisit) == "" {
		return nil, &ValidationError{Field: "reason_for_visit", Msg: "is required"}
	}
	old, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	updated, err := buildPatient(reg)
	if err != nil {
		return nil, err
	}
	updated.ID = old.ID
	updated.CreatedAt = old.CreatedAt

	cs := visit.Diff(old.FieldMap(), updated.FieldMap())

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}

	if err := s.visits.AttachChanges(ctx, visitID, cs, reg.ReasonForVisit); err != nil {
		return nil, fmt.Errorf("record changes: %w", err)
	}

	s.log.Info().
		Str("patient_id", patientID.String()).
		Str("visit_id", visitID.String()).
		Int("fields_changed", cs.ChangedCount).
		Msg("returning patient updated")

	return cs, nil
}

// Update is the staff-side edit path. It persists the record as given and
// returns the diff for the admin action log; no visit is touched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, reg *Registration) (*visit.ChangeSet, error) {
	old, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := buildPatient(reg)
	if err != nil {
		return nil, err
	}
	updated.ID = old.ID
	updated.CreatedAt = old.CreatedAt

	cs := visit.Diff(old.FieldMap(), updated.FieldMap())
	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}
	return cs, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.List(ctx, limit, offset)
	}
	return s.repo.Search(ctx, query, limit, offset)
}

// buildPatient validates the registration payload and converts it into a
// patient record. Validation mirrors the intake form's required set.
func buildPatient(reg *Registration) (*Patient, error) {
	required := []struct{ field, value string }{
		{"first_name", reg.FirstName},
		{"last_name", reg.LastName},
		{"date_of_birth", reg.DateOfBirth},
		{"gender", reg.Gender},
		{"address", reg.Address},
		{"city", reg.City},
		{"state", reg.State},
		{"zip_code", reg.ZipCode},
		{"cell_phone", reg.CellPhone},
		{"email", reg.Email},
		{"emergency_contact_name", reg.EmergencyContactName},
		{"emergency_contact_phone", reg.EmergencyContactPhone},
		{"emergency_relationship", reg.EmergencyRelationship},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &ValidationError{Field: r.field, Msg: "is required"}
		}
	}

	email := strings.ToLower(strings.TrimSpace(reg.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &ValidationError{Field: "email", Msg: "is not a valid email address"}
	}

	dob, err := time.Parse(dateLayout, strings.TrimSpace(reg.DateOfBirth))
	if err != nil {
		return nil, &ValidationError{Field: "date_of_birth", Msg: "must be YYYY-MM-DD"}
	}
	if dob.After(time.Now()) {
		return nil, &ValidationError{Field: "date_of_birth", Msg: "cannot be in the future"}
	}

	var holderDOB *time.Time
	if v := strings.TrimSpace(reg.PolicyHolderDOB); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, &ValidationError{Field: "policy_holder_dob", Msg: "must be YYYY-MM-DD"}
		}
		holderDOB = &d
	}

	return &Patient{
		FirstName:             strings.TrimSpace(reg.FirstName),
		MiddleName:            strings.TrimSpace(reg.MiddleName),
		LastName:              strings.TrimSpace(reg.LastName),
		DateOfBirth:           dob,
		Gender:                strings.TrimSpace(reg.Gender),
		MaritalStatus:         strings.TrimSpace(reg.MaritalStatus),
		SSN:                   strings.TrimSpace(reg.SSN),
		Address:               strings.TrimSpace(reg.Address),
		City:                  strings.TrimSpace(reg.City),
		State:                 strings.TrimSpace(reg.State),
		ZipCode:               strings.TrimSpace(reg.ZipCode),
		HomePhone:             strings.TrimSpace(reg.HomePhone),
		CellPhone:             strings.TrimSpace(reg.CellPhone),
		Email:                 email,
		EmergencyContactName:  strings.TrimSpace(reg.EmergencyContactName),
		EmergencyContactPhone: strings.TrimSpace(reg.EmergencyContactPhone),
		EmergencyRelationship: strings.TrimSpace(reg.EmergencyRelationship),
		InsuranceProvider:     strings.TrimSpace(reg.InsuranceProvider),
		PolicyNumber:          strings.TrimSpace(reg.PolicyNumber),
		GroupNumber:           strings.TrimSpace(reg.GroupNumber),
		PolicyHolderName:      strings.TrimSpace(reg.PolicyHolderName),
		PolicyHolderDOB:       holderDOB,
		PCPName:               strings.TrimSpace(reg.PCPName),
		PCPPhone:              strings.TrimSpace(reg.PCPPhone),
		Allergies:             strings.TrimSpace(reg.Allergies),
		CurrentMedications:    strings.TrimSpace(reg.CurrentMedications),
	}, nil
}
