package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/patient"
	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
)

// ErrNotFound means the email and date of birth pair matched no patient.
// Distinct from a system error: the caller offers new-patient registration.
var ErrNotFound = errors.New("no patient matches that email and date of birth")

// ThrottledError carries the retry-after duration the caller must present.
type ThrottledError struct {
	BlockedUntil time.Time
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many lookup attempts, retry after %s", e.BlockedUntil.Format(time.RFC3339))
}

func (e *ThrottledError) RetryAfter(now time.Time) time.Duration {
	d := e.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// InvalidInputError rejects malformed lookup input before the rate limiter
// runs, so a typo never consumes an attempt.
type InvalidInputError struct {
	Field string
	Msg   string
}

func (e *InvalidInputError) Error() string { return e.Field + ": " + e.Msg }

// PatientFinder is the narrow matcher port into patient storage.
type PatientFinder interface {
	FindByEmailDOB(ctx context.Context, email string, dob time.Time) (*patient.Patient, error)
}

// Request is a returning-patient lookup submission.
type Request struct {
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
}

// Result is a successful lookup: the matched record for pre-fill, the
// freshly opened returning visit, and the session gating the form flow.
type Result struct {
	Patient *patient.Patient       `json:"patient"`
	Visit   *visit.Visit           `json:"visit"`
	Session *session.LookupSession `json:"session"`
}

// Service runs the returning-patient flow: validate, throttle, match,
// audit, open a visit, issue a session.
type Service struct {
	limiter  *Limiter
	patients PatientFinder
	audit    AuditStore
	visits   *visit.Service
	sessions *session.Service

	sessionTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewService(limiter *Limiter, patients PatientFinder, audit AuditStore,
	visits *visit.Service, sessions *session.Service, sessionTTL time.Duration, log zerolog.Logger) *Service {
	return &Service{
		limiter:    limiter,
		patients:   patients,
		audit:      audit,
		visits:     visits,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		log:        log.With().Str("component", "lookup").Logger(),
		now:        time.Now,
	}
}

const dateLayout = "2006-01-02"

// Lookup resolves a returning patient. The rate limiter gates the matcher;
// format-invalid input is rejected before either runs and does not consume
// an attempt. Every attempt that reaches the limiter is audited, throttled
// ones included.
func (s *Service) Lookup(ctx context.Context, req *Request, meta visit.ClientMeta) (*Result, error) {
	email, dob, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	entry := &AuditEntry{
		SubmittedEmail: email,
		SubmittedDOB:   dob.Format(dateLayout),
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		SessionID:      meta.SessionID,
	}

	rl := s.limiter.Check(ctx, meta.IPAddress)
	if !rl.Allowed {
		entry.Outcome = OutcomeThrottled
		s.appendAudit(ctx, entry)

		blockedUntil := s.now().Add(s.limiter.Window())
		if rl.BlockedUntil != nil {
			blockedUntil = *rl.BlockedUntil
		}
		return nil, &ThrottledError{BlockedUntil: blockedUntil}
	}

	p, err := s.patients.FindByEmailDOB(ctx, email, dob)
	if errors.Is(err, patient.ErrNotFound) {
		entry.Outcome = OutcomeNotFound
		s.appendAudit(ctx, entry)
		return nil, ErrNotFound
	}
	if err != nil {
		entry.Outcome = OutcomeError
		s.appendAudit(ctx, entry)
		return nil, fmt.Errorf("match patient: %w", err)
	}

	entry.Outcome = OutcomeMatched
	entry.Found = true
	entry.PatientID = &p.ID
	name := p.FirstName + " " + p.LastName
	entry.PatientName = &name
	s.appendAudit(ctx, entry)

	v, err := s.visits.Open(ctx, p.ID, visit.TypeReturning, "", meta)
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
		Str("ip", meta.IPAddress).
		Msg("returning patient matched")

	return &Result{Patient: p, Visit: v, Session: sess}, nil
}

// appendAudit never fails the caller. A compliance-log outage is an
// operator problem, not a patient-facing one.
func (s *Service) appendAudit(ctx context.Context, e *AuditEntry) {
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Error().Err(err).
			Str("outcome", e.Outcome).
			Str("ip", e.IPAddress).
			Msg("lookup audit append failed")
	}
}

func (s *Service) validate(req *Request) (string, time.Time, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return "", time.Time{}, &InvalidInputError{Field: "email", Msg: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", time.Time{}, &InvalidInputError{Field: "email", Msg: "is not a valid email address"}
	}

	raw := strings.TrimSpace(req.DateOfBirth)
	if raw == "" {
		return "", time.Time{}, &InvalidInputError{Field: "date_of_birth", Msg: "is required"}
	}
	dob, err := time.Parse(dateLayout, raw)
	if err != nil {
		return "", time.Time{}, &InvalidInputError{Field: "date_of_birth", Msg: "must be YYYY-MM-DD"}
	}
	now := s.now()
	if dob.After(now) {
		return "", time.Time{}, &InvalidInputError{Field: "date_of_birth", Msg: "cannot be in the future"}
	}
	if dob.Before(now.AddDate(-120, 0, 0)) {
		return "", time.Time{}, &InvalidInputError{Field: "date_of_birth", Msg: "is not a plausible date of birth"}
	}

	return email, dob, nil
}

// Extend pushes the session expiry forward from now.
func (s *Service) Extend(ctx context.Context, token uuid.UUID) (*session.LookupSession, error) {
	return s.sessions.Extend(ctx, token, s.sessionTTL)
}

// Leave revokes the session when the patient abandons the intake flow.
func (s *Service) Leave(ctx context.Context, token uuid.UUID) error {
	return s.sessions.Revoke(ctx, token)
}

// AuditTrail lists recorded lookup attempts for staff review, optionally
// filtered to one source address.
func (s *Service) AuditTrail(ctx context.Context, ip string, limit, offset int) ([]*AuditEntry, int, error) {
	if ip != "" {
		return s.audit.ListByIP(ctx, ip, limit, offset)
	}
	return s.audit.List(ctx, limit, offset)
}
