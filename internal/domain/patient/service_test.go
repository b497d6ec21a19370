package patient

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
)

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var items []*Patient
	for _, p := range m.patients {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (m *mockRepo) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	var items []*Patient
	for _, p := range m.patients {
		if strings.Contains(strings.ToLower(p.LastName), strings.ToLower(query)) {
			items = append(items, p)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) FindByEmailDOB(_ context.Context, email string, dob time.Time) (*Patient, error) {
	var best *Patient
	for _, p := range m.patients {
		if strings.EqualFold(p.Email, email) && p.DateOfBirth.Equal(dob) {
			if best == nil || p.CreatedAt.After(best.CreatedAt) {
				best = p
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockRepo) ExistsByEmailDOB(ctx context.Context, email string, dob time.Time) (bool, error) {
	_, err := m.FindByEmailDOB(ctx, email, dob)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

type mockVisitRepo struct {
	visits map[uuid.UUID]*visit.Visit
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{visits: make(map[uuid.UUID]*visit.Visit)}
}

func (m *mockVisitRepo) Create(_ context.Context, v *visit.Visit) error {
	v.ID = uuid.New()
	v.VisitDate = time.Now()
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisitRepo) AttachChanges(_ context.Context, id uuid.UUID, summary string, fieldsChanged int, reason string) error {
	v, ok := m.visits[id]
	if !ok || v.AllFormsCompleted {
		return visit.ErrNotFound
	}
	v.ChangeSummary = &summary
	v.FieldsChanged = fieldsChanged
	v.ReasonForVisit = &reason
	v.CheckInStatus = visit.StatusUpdated
	return nil
}

func (m *mockVisitRepo) Complete(_ context.Context, id uuid.UUID) error {
	v, ok := m.visits[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.AllFormsCompleted = true
	return nil
}

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

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[uuid.UUID]*session.LookupSession)}
}

func (m *mockSessionStore) Create(_ context.Context, s *session.LookupSession) error {
	cp := *s
	m.sessions[s.Token] = &cp
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
	s, ok := m.sessions[token]
	if !ok {
		return session.ErrNotFound
	}
	s.ExpiresAt = expiresAt
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

func newTestService() (*Service, *mockRepo, *mockVisitRepo, *mockSessionStore) {
	repo := newMockRepo()
	visitRepo := newMockVisitRepo()
	sessStore := newMockSessionStore()
	visits := visit.NewService(visitRepo)
	sessions := session.NewService(sessStore, allowAllResolver{})
	svc := NewService(repo, visits, sessions, 30*time.Minute, zerolog.Nop())
	return svc, repo, visitRepo, sessStore
}

func validRegistration() *Registration {
	return &Registration{
		FirstName:             "Maria",
		LastName:              "Santos",
		DateOfBirth:           "1985-03-22",
		Gender:                "female",
		SSN:                   "123-45-6789",
		Address:               "14 Elm St",
		City:                  "Springfield",
		State:                 "IL",
		ZipCode:               "62704",
		CellPhone:             "555-0142",
		Email:                 "Maria.Santos@example.com",
		EmergencyContactName:  "Jo Santos",
		EmergencyContactPhone: "555-0143",
		EmergencyRelationship: "spouse",
		ReasonForVisit:        "sore throat",
	}
}

func TestRegister(t *testing.T) {
	svc, repo, visitRepo, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{IPAddress: "10.1.2.3"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Patient.ID == uuid.Nil {
		t.Fatal("patient id not assigned")
	}
	if res.Patient.Email != "maria.santos@example.com" {
		t.Errorf("email not normalized: %q", res.Patient.Email)
	}
	if len(repo.patients) != 1 {
		t.Fatalf("expected 1 stored patient, got %d", len(repo.patients))
	}

	if res.Visit.VisitType != visit.TypeNew {
		t.Errorf("visit type = %q, want %q", res.Visit.VisitType, visit.TypeNew)
	}
	if res.Visit.ReasonForVisit == nil || *res.Visit.ReasonForVisit != "sore throat" {
		t.Error("reason for visit not recorded on the visit")
	}
	if _, ok := visitRepo.visits[res.Visit.ID]; !ok {
		t.Fatal("visit not persisted")
	}

	if res.Session == nil || res.Session.PatientID != res.Patient.ID || res.Session.VisitID != res.Visit.ID {
		t.Fatal("session does not reference the new patient and visit")
	}
}

func TestRegisterDuplicateIdentity(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{}); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	// Same DOB, same email in different case.
	dup := validRegistration()
	dup.Email = "MARIA.SANTOS@EXAMPLE.COM"
	if _, err := svc.Register(ctx, dup, visit.ClientMeta{}); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}

	// Same email, different DOB is a different person.
	other := validRegistration()
	other.DateOfBirth = "1990-01-01"
	if _, err := svc.Register(ctx, other, visit.ClientMeta{}); err != nil {
		t.Fatalf("different dob should register: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Registration)
		field  string
	}{
		{"missing first name", func(r *Registration) { r.FirstName = " " }, "first_name"},
		{"missing reason", func(r *Registration) { r.ReasonForVisit = "" }, "reason_for_visit"},
		{"missing emergency contact", func(r *Registration) { r.EmergencyContactName = "" }, "emergency_contact_name"},
		{"bad email", func(r *Registration) { r.Email = "not-an-email" }, "email"},
		{"bad dob format", func(r *Registration) { r.DateOfBirth = "03/22/1985" }, "date_of_birth"},
		{"future dob", func(r *Registration) { r.DateOfBirth = "2099-01-01" }, "date_of_birth"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := validRegistration()
			tc.mutate(reg)
			_, err := svc.Register(ctx, reg, visit.ClientMeta{})
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestUpdateFromIntake(t *testing.T) {
	svc, repo, visitRepo, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg := validRegistration()
	reg.CellPhone = "555-0199"
	reg.Address = "99 Oak Ave"
	reg.ReasonForVisit = "follow-up"

	cs, err := svc.UpdateFromIntake(ctx, res.Patient.ID, res.Visit.ID, reg)
	if err != nil {
		t.Fatalf("UpdateFromIntake: %v", err)
	}
	if cs.ChangedCount != 2 {
		t.Fatalf("expected 2 changed fields, got %d: %v", cs.ChangedCount, cs.ChangedFields)
	}
	if ch, ok := cs.Changes["cell_phone"]; !ok || ch.Old != "555-0142" || ch.New != "555-0199" {
		t.Errorf("cell_phone change not captured: %+v", cs.Changes)
	}

	stored := repo.patients[res.Patient.ID]
	if stored.CellPhone != "555-0199" {
		t.Errorf("update not persisted, cell phone = %q", stored.CellPhone)
	}

	v := visitRepo.visits[res.Visit.ID]
	if v.FieldsChanged != 2 || v.ChangeSummary == nil {
		t.Error("change set not attached to the visit")
	}
	if v.ReasonForVisit == nil || *v.ReasonForVisit != "follow-up" {
		t.Error("new reason for visit not attached")
	}
}

func TestUpdateForSession(t *testing.T) {
	svc, repo, visitRepo, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg := validRegistration()
	reg.CellPhone = "555-0199"
	reg.ReasonForVisit = "follow-up"

	cs, err := svc.UpdateForSession(ctx, res.Session.Token, reg)
	if err != nil {
		t.Fatalf("UpdateForSession: %v", err)
	}
	if cs.ChangedCount != 1 {
		t.Fatalf("expected 1 changed field, got %d: %v", cs.ChangedCount, cs.ChangedFields)
	}

	// The session, not the request, names the patient and visit.
	if repo.patients[res.Patient.ID].CellPhone != "555-0199" {
		t.Error("update not persisted to the session's patient")
	}
	if v := visitRepo.visits[res.Visit.ID]; v.FieldsChanged != 1 {
		t.Error("change set not attached to the session's visit")
	}
}

func TestUpdateForSessionRejectsBadToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg := validRegistration()
	reg.CellPhone = "555-0199"

	if _, err := svc.UpdateForSession(ctx, uuid.New(), reg); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected session.ErrNotFound, got %v", err)
	}
}

func TestUpdateFromIntakeNoChanges(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cs, err := svc.UpdateFromIntake(ctx, res.Patient.ID, res.Visit.ID, validRegistration())
	if err != nil {
		t.Fatalf("UpdateFromIntake: %v", err)
	}
	if !cs.Empty() {
		t.Fatalf("identical resubmission should yield an empty change set, got %v", cs.ChangedFields)
	}
}

func TestStaffUpdateDoesNotTouchVisit(t *testing.T) {
	svc, _, visitRepo, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, validRegistration(), visit.ClientMeta{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg := validRegistration()
	reg.ReasonForVisit = "" // not required on the staff path
	reg.City = "Chatham"

	cs, err := svc.Update(ctx, res.Patient.ID, reg)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cs.ChangedCount != 1 {
		t.Fatalf("expected 1 changed field, got %d", cs.ChangedCount)
	}

	v := visitRepo.visits[res.Visit.ID]
	if v.FieldsChanged != 0 || v.ChangeSummary != nil {
		t.Error("staff edit must not write a change summary to the visit")
	}
}
