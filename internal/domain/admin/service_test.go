package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type mockRepo struct {
	users map[uuid.UUID]*User
	audit []*AuditEntry
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) SetPassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (m *mockRepo) RecordFailedLogin(_ context.Context, id uuid.UUID) (int, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

func (m *mockRepo) LockUntil(_ context.Context, id uuid.UUID, until time.Time) error {
	m.users[id].LockedUntil = &until
	return nil
}

func (m *mockRepo) ResetFailures(_ context.Context, id uuid.UUID, loginAt time.Time, ip string) error {
	u := m.users[id]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &loginAt
	u.LastLoginIP = &ip
	return nil
}

func (m *mockRepo) AppendAudit(_ context.Context, e *AuditEntry) error {
	e.ID = uuid.New()
	m.audit = append(m.audit, e)
	return nil
}

func (m *mockRepo) ListAudit(_ context.Context, f AuditFilter, limit, offset int) ([]*AuditEntry, int, error) {
	var out []*AuditEntry
	for _, e := range m.audit {
		if f.ActionType != "" && e.ActionType != f.ActionType {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// bcrypt at min cost keeps the suite fast.
func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func newTestService(t *testing.T) (*Service, *mockRepo, *User) {
	t.Helper()
	repo := newMockRepo()
	svc := NewService(repo, testSecret, 30*time.Minute, zerolog.Nop())

	u := &User{
		Username:     "jdoe",
		PasswordHash: hashFor(t, "correct-horse"),
		Email:        "jdoe@clinic.example",
		FirstName:    "Jane",
		LastName:     "Doe",
		Role:         RoleStaff,
		IsActive:     true,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return svc, repo, u
}

func TestLogin(t *testing.T) {
	svc, repo, u := newTestService(t)

	res, err := svc.Login(context.Background(), "jdoe", "correct-horse",
		ClientMeta{IPAddress: "10.0.0.9"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.User.ID != u.ID {
		t.Fatal("wrong user returned")
	}
	if u.LastLogin == nil || u.LastLoginIP == nil || *u.LastLoginIP != "10.0.0.9" {
		t.Fatal("last login not recorded")
	}

	if len(repo.audit) != 1 || repo.audit[0].ActionType != ActionLogin {
		t.Fatalf("expected a LOGIN audit row, got %+v", repo.audit)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, repo, u := newTestService(t)

	_, err := svc.Login(context.Background(), "jdoe", "wrong", ClientMeta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if u.FailedLoginAttempts != 1 {
		t.Fatalf("failed attempts = %d, want 1", u.FailedLoginAttempts)
	}
	if len(repo.audit) != 1 || repo.audit[0].ActionType != ActionFailedLogin {
		t.Fatal("failed login must be audited")
	}
}

func TestLoginUnknownUserAudited(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "ghost", "whatever", ClientMeta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(repo.audit) != 1 || repo.audit[0].ActionType != ActionFailedLogin {
		t.Fatal("unknown-user attempt must be audited")
	}
	if repo.audit[0].Username == nil || *repo.audit[0].Username != "ghost" {
		t.Fatal("audit row must carry the submitted username")
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	for i := 0; i < MaxFailedAttempts; i++ {
		if _, err := svc.Login(ctx, "jdoe", "wrong", ClientMeta{}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if u.LockedUntil == nil {
		t.Fatal("account should be locked")
	}

	// Correct password is refused while the lock holds.
	_, err := svc.Login(ctx, "jdoe", "correct-horse", ClientMeta{})
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if got := locked.Until.Sub(time.Now()); got > LockoutDuration || got < LockoutDuration-time.Minute {
		t.Fatalf("lock expiry %v not near %v", got, LockoutDuration)
	}
}

func TestLoginLockExpires(t *testing.T) {
	svc, _, u := newTestService(t)
	past := time.Now().Add(-time.Minute)
	u.FailedLoginAttempts = MaxFailedAttempts
	u.LockedUntil = &past

	res, err := svc.Login(context.Background(), "jdoe", "correct-horse", ClientMeta{})
	if err != nil {
		t.Fatalf("Login after lock expiry: %v", err)
	}
	if res == nil || u.FailedLoginAttempts != 0 || u.LockedUntil != nil {
		t.Fatal("successful login must clear the failure state")
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, u := newTestService(t)
	u.IsActive = false

	if _, err := svc.Login(context.Background(), "jdoe", "correct-horse", ClientMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive account, got %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	svc, repo, actor := newTestService(t)

	u, err := svc.CreateUser(context.Background(), NewUser{
		Username:  "asmith",
		Password:  "s3cret-enough",
		Email:     "ASmith@clinic.example",
		FirstName: "Alex",
		LastName:  "Smith",
		Role:      RoleViewer,
	}, actor.ID, ClientMeta{})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "asmith@clinic.example" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if !u.IsActive {
		t.Error("new accounts start active")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-enough")); err != nil {
		t.Error("stored hash does not match password")
	}

	last := repo.audit[len(repo.audit)-1]
	if last.ActionType != ActionCreate || last.RecordID == nil || *last.RecordID != u.ID {
		t.Fatal("creation must be audited against the new account")
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, actor := newTestService(t)
	ctx := context.Background()

	valid := NewUser{
		Username: "new", Password: "long-enough", Email: "n@x.example",
		FirstName: "N", LastName: "U", Role: RoleStaff,
	}

	cases := []struct {
		name   string
		mutate func(*NewUser)
	}{
		{"missing username", func(u *NewUser) { u.Username = "" }},
		{"duplicate username", func(u *NewUser) { u.Username = "jdoe" }},
		{"short password", func(u *NewUser) { u.Password = "short" }},
		{"bad email", func(u *NewUser) { u.Email = "not-an-email" }},
		{"bad role", func(u *NewUser) { u.Role = "superuser" }},
		{"missing name", func(u *NewUser) { u.FirstName = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := svc.CreateUser(ctx, in, actor.ID, ClientMeta{})
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateUserAndDeactivate(t *testing.T) {
	svc, repo, actor := newTestService(t)
	ctx := context.Background()

	target, err := svc.CreateUser(ctx, NewUser{
		Username: "asmith", Password: "long-enough", Email: "a@x.example",
		FirstName: "Alex", LastName: "Smith", Role: RoleViewer,
	}, actor.ID, ClientMeta{})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateUser(ctx, target.ID, UserUpdate{Role: RoleStaff}, actor.ID, ClientMeta{})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.Role != RoleStaff {
		t.Fatalf("role = %q, want staff", updated.Role)
	}

	if err := svc.DeactivateUser(ctx, target.ID, actor.ID, ClientMeta{}); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if repo.users[target.ID].IsActive {
		t.Fatal("account should be inactive")
	}
}

func TestDeactivateSelfRefused(t *testing.T) {
	svc, _, actor := newTestService(t)

	err := svc.DeactivateUser(context.Background(), actor.ID, actor.ID, ClientMeta{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, actor := newTestService(t)
	ctx := context.Background()

	if err := svc.ChangePassword(ctx, actor.ID, "brand-new-pass", actor.ID, ClientMeta{}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	hash := repo.users[actor.ID].PasswordHash
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("brand-new-pass")); err != nil {
		t.Fatal("new password not stored")
	}

	var ve *ValidationError
	if err := svc.ChangePassword(ctx, actor.ID, "short", actor.ID, ClientMeta{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for short password, got %v", err)
	}
}

func TestAuditCarriesPatientFlag(t *testing.T) {
	svc, repo, actor := newTestService(t)
	patientID := uuid.New()

	svc.Audit(context.Background(), &AuditEntry{
		UserID:      &actor.ID,
		ActionType:  ActionView,
		PatientID:   &patientID,
		Description: "viewed patient chart",
	}, ClientMeta{IPAddress: "10.1.1.1", UserAgent: "browser"})

	e := repo.audit[len(repo.audit)-1]
	if !e.PHIAccessed {
		t.Fatal("patient-scoped actions must set the PHI flag")
	}
	if e.IPAddress != "10.1.1.1" || e.UserAgent != "browser" {
		t.Fatal("client attribution missing")
	}
}
