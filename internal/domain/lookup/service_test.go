package lookup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/patient"
	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
)

type mockFinder struct {
	patients []*patient.Patient
	err      error
}

func (m *mockFinder) FindByEmailDOB(_ context.Context, email string, dob time.Time) (*patient.Patient, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.patients {
		if strings.EqualFold(p.Email, email) && p.DateOfBirth.Equal(dob) {
			return p, nil
		}
	}
	return nil, patient.ErrNotFound
}

type mockAudit struct {
	entries []*AuditEntry
	fail    bool
}

func (m *mockAudit) Append(_ context.Context, e *AuditEntry) error {
	if m.fail {
		return errors.New("audit store down")
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) List(_ context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockAudit) ListByIP(_ context.Context, ip string, limit, offset int) ([]*AuditEntry, int, error) {
	var out []*AuditEntry
	for _, e := range m.entries {
		if e.IPAddress == ip {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type mockVisitRepo struct {
	visits map[uuid.UUID]*visit.Visit
}

func (m *mockVisitRepo) Create(_ context.Context, v *visit.Visit) error {
	v.ID = uuid.New()
	v.VisitDate = time.Now()
	m.visits[v.ID] = v
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	return v, nil
}

func (m *mockVisitRepo) AttachChanges(_ context.Context, id uuid.UUID, summary string, fieldsChanged int, reason string) error {
	return nil
}

func (m *mockVisitRepo) Complete(_ context.Context, id uuid.UUID) error { return nil }

func (m *mockVisitRepo) List(_ context.Context, limit, offset int) ([]*visit.Visit, int, error) {
	return nil, 0, nil
}

func (m *mockVisitRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*visit.Visit, int, error) {
	return nil, 0, nil
}

func (m *mockVisitRepo) LastByPatient(_ context.Context, patientID uuid.UUID) (*visit.Visit, error) {
	return nil, visit.ErrNotFound
}

type mockSessionStore struct {
	sessions map[uuid.UUID]*session.LookupSession
}

func (m *mockSessionStore) Create(_ context.Context, s *session.LookupSession) error {
	m.sessions[s.Token] = s
	return nil
}

func (m *mockSessionStore) Get(_ context.Context, token uuid.UUID) (*session.LookupSession, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionStore) SetExpiry(_ context.Context, token uuid.UUID, expiresAt time.Time) error {
	m.sessions[token].ExpiresAt = expiresAt
	return nil
}

func (m *mockSessionStore) Revoke(_ context.Context, token uuid.UUID) error {
	s, ok := m.sessions[token]
	if !ok {
		return session.ErrNotFound
	}
	s.Revoked = true
	return nil
}

func (m *mockSessionStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type allowAllResolver struct{}

func (allowAllResolver) PatientExists(context.Context, uuid.UUID) (bool, error) { return true, nil }
func (allowAllResolver) VisitExists(context.Context, uuid.UUID) (bool, error) { return true, nil }

type testEnv struct {
	svc    *Service
	audit  *mockAudit
	finder *mockFinder
}

func newTestEnv(patients ...*patient.Patient) *testEnv {
	audit := &mockAudit{}
	finder := &mockFinder{patients: patients}
	limiter := NewLimiter(NewMemoryRateLimit(), 5, 15*time.Minute, zerolog.Nop())
	visits := visit.NewService(&mockVisitRepo{visits: make(map[uuid.UUID]*visit.Visit)})
	sessions := session.NewService(
		&mockSessionStore{sessions: make(map[uuid.UUID]*session.LookupSession)},
		allowAllResolver{})
	svc := NewService(limiter, finder, audit,
		visits, sessions, 30*time.Minute, zerolog.Nop())
	return &testEnv{svc: svc, audit: audit, finder: finder}
}

func registeredPatient() *patient.Patient {
	return &patient.Patient{
		ID:          uuid.New(),
		FirstName:   "Pat",
		LastName:    "Riley",
		Email:       "pat@example.com",
		DateOfBirth: time.Date(1985, 5, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestLookupMatchIsCaseInsensitiveOnEmail(t *testing.T) {
	p := registeredPatient()
	env := newTestEnv(p)
	ctx := context.Background()
	meta := visit.ClientMeta{IPAddress: "10.0.0.5", UserAgent: "test"}

	res, err := env.svc.Lookup(ctx, &Request{Email: "Pat@Example.com", DateOfBirth: "1985-05-05"}, meta)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Patient.ID != p.ID {
		t.Fatal("wrong patient matched")
	}
	if res.Visit.VisitType != visit.TypeReturning {
		t.Errorf("visit type = %q, want %q", res.Visit.VisitType, visit.TypeReturning)
	}
	if res.Session.PatientID != p.ID || res.Session.VisitID != res.Visit.ID {
		t.Fatal("session does not reference the matched patient and visit")
	}

	if len(env.audit.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(env.audit.entries))
	}
	e := env.audit.entries[0]
	if e.Outcome != OutcomeMatched || !e.Found {
		t.Errorf("audit outcome = %q found=%v", e.Outcome, e.Found)
	}
	if e.PatientName == nil || *e.PatientName != "Pat Riley" {
		t.Error("matched audit entry must carry the display name")
	}
}

func TestLookupRequiresExactDate(t *testing.T) {
	env := newTestEnv(registeredPatient())

	_, err := env.svc.Lookup(context.Background(),
		&Request{Email: "pat@example.com", DateOfBirth: "1985-05-06"},
		visit.ClientMeta{IPAddress: "10.0.0.5"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if len(env.audit.entries) != 1 || env.audit.entries[0].Outcome != OutcomeNotFound {
		t.Fatal("failed lookup must still be audited")
	}
}

func TestLookupMatcherFailureIsAudited(t *testing.T) {
	env := newTestEnv(registeredPatient())
	env.finder.err = errors.New("connection refused")

	_, err := env.svc.Lookup(context.Background(),
		&Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"},
		visit.ClientMeta{IPAddress: "10.0.0.5"})
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a system error, got %v", err)
	}

	if len(env.audit.entries) != 1 || env.audit.entries[0].Outcome != OutcomeError {
		t.Fatal("a matcher failure must still leave an audit entry")
	}
	if env.audit.entries[0].Found {
		t.Error("failed attempt must not be recorded as found")
	}
}

func TestLookupThrottlingEndToEnd(t *testing.T) {
	env := newTestEnv(registeredPatient())
	ctx := context.Background()
	meta := visit.ClientMeta{IPAddress: "10.0.0.5"}

	// Five wrong-date attempts inside the window.
	for i := 0; i < 5; i++ {
		_, err := env.svc.Lookup(ctx, &Request{Email: "pat@example.com", DateOfBirth: "1985-05-06"}, meta)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i+1, err)
		}
	}

	// The sixth is throttled even with the correct date of birth.
	_, err := env.svc.Lookup(ctx, &Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"}, meta)
	var throttled *ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if !throttled.BlockedUntil.After(time.Now()) {
		t.Error("blocked-until must be in the future")
	}

	if len(env.audit.entries) != 6 {
		t.Fatalf("every attempt must be audited, got %d entries", len(env.audit.entries))
	}
	for i := 0; i < 5; i++ {
		if env.audit.entries[i].Outcome != OutcomeNotFound {
			t.Errorf("entry %d outcome = %q, want %q", i, env.audit.entries[i].Outcome, OutcomeNotFound)
		}
	}
	if env.audit.entries[5].Outcome != OutcomeThrottled {
		t.Errorf("throttled attempt outcome = %q", env.audit.entries[5].Outcome)
	}

	// A different subject is unaffected.
	if _, err := env.svc.Lookup(ctx,
		&Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"},
		visit.ClientMeta{IPAddress: "10.0.0.9"}); err != nil {
		t.Fatalf("other subject should still be allowed: %v", err)
	}
}

func TestLookupInvalidInputDoesNotConsumeAttempts(t *testing.T) {
	env := newTestEnv(registeredPatient())
	ctx := context.Background()
	meta := visit.ClientMeta{IPAddress: "10.0.0.5"}

	for i := 0; i < 10; i++ {
		_, err := env.svc.Lookup(ctx, &Request{Email: "not-an-email", DateOfBirth: "1985-05-05"}, meta)
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInputError, got %v", err)
		}
	}

	// Malformed input bypassed the limiter and the audit trail entirely.
	if len(env.audit.entries) != 0 {
		t.Fatalf("format rejections must not be audited, got %d entries", len(env.audit.entries))
	}
	if _, err := env.svc.Lookup(ctx, &Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"}, meta); err != nil {
		t.Fatalf("valid lookup after format rejections: %v", err)
	}
}

func TestLookupValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	meta := visit.ClientMeta{IPAddress: "10.0.0.5"}

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"empty email", Request{Email: "", DateOfBirth: "1985-05-05"}, "email"},
		{"bad email", Request{Email: "nope", DateOfBirth: "1985-05-05"}, "email"},
		{"empty dob", Request{Email: "pat@example.com", DateOfBirth: ""}, "date_of_birth"},
		{"bad dob format", Request{Email: "pat@example.com", DateOfBirth: "05/05/1985"}, "date_of_birth"},
		{"future dob", Request{Email: "pat@example.com", DateOfBirth: "2099-01-01"}, "date_of_birth"},
		{"ancient dob", Request{Email: "pat@example.com", DateOfBirth: "1700-01-01"}, "date_of_birth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Lookup(ctx, &tc.req, meta)
			var invalid *InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidInputError, got %v", err)
			}
			if invalid.Field != tc.field {
				t.Errorf("field = %q, want %q", invalid.Field, tc.field)
			}
		})
	}
}

func TestLookupSucceedsWhenAuditFails(t *testing.T) {
	env := newTestEnv(registeredPatient())
	env.audit.fail = true

	res, err := env.svc.Lookup(context.Background(),
		&Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"},
		visit.ClientMeta{IPAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("audit outage must not fail the lookup: %v", err)
	}
	if res.Session == nil {
		t.Fatal("expected a session despite the audit failure")
	}
}

func TestLeaveRevokesSession(t *testing.T) {
	env := newTestEnv(registeredPatient())
	ctx := context.Background()

	res, err := env.svc.Lookup(ctx,
		&Request{Email: "pat@example.com", DateOfBirth: "1985-05-05"},
		visit.ClientMeta{IPAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if err := env.svc.Leave(ctx, res.Session.Token); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if _, err := env.svc.Extend(ctx, res.Session.Token); !errors.Is(err, session.ErrRevoked) {
		t.Fatalf("expected ErrRevoked after leave, got %v", err)
	}
}
