package admin

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clearpath/intake/internal/platform/auth"
)

const (
	// MaxFailedAttempts wrong passwords lock the account for LockoutDuration.
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute

	DefaultTokenTTL = 30 * time.Minute

	minPasswordLen = 8
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// LockedError is returned when the account is locked out after repeated
// failed logins. Until is when the lock expires.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return "account is locked due to multiple failed login attempts"
}

// ValidationError reports a rejected field on user management input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

// ClientMeta carries the request attribution recorded on audit rows.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Service manages staff accounts, authentication, and the action log.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, jwtSecret []byte, tokenTTL time.Duration, log zerolog.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		repo:      repo,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		log:       log.With().Str("component", "admin").Logger(),
		now:       time.Now,
	}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// Login verifies the credentials and mints an access token. Failed attempts
// are counted per account; MaxFailedAttempts failures lock the account for
// LockoutDuration. Both failure paths land in the audit log.
func (s *Service) Login(ctx context.Context, username, password string, meta ClientMeta) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	now := s.now()

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.auditFailedLogin(ctx, username, "unknown username", meta)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.IsActive {
		s.auditFailedLogin(ctx, username, "inactive account", meta)
		return nil, ErrInvalidCredentials
	}
	if u.Locked(now) {
		return nil, &LockedError{Until: *u.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		count, rerr := s.repo.RecordFailedLogin(ctx, u.ID)
		if rerr != nil {
			s.log.Error().Err(rerr).Str("username", username).Msg("record failed login")
		} else if count >= MaxFailedAttempts {
			until := now.Add(LockoutDuration)
			if lerr := s.repo.LockUntil(ctx, u.ID, until); lerr != nil {
				s.log.Error().Err(lerr).Str("username", username).Msg("lock account")
			} else {
				s.log.Warn().Str("username", username).Time("until", until).
					Msg("account locked after repeated failed logins")
			}
		}
		s.auditFailedLogin(ctx, username, "wrong password", meta)
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.ResetFailures(ctx, u.ID, now, meta.IPAddress); err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("reset login failures")
	}

	token, err := auth.IssueToken(s.jwtSecret, u.ID.String(), u.Username, u.FullName(),
		[]string{u.Role}, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.Audit(ctx, &AuditEntry{
		UserID:      &u.ID,
		Username:    &u.Username,
		ActionType:  ActionLogin,
		Description: "successful login",
	}, meta)

	return &LoginResult{Token: token, ExpiresAt: now.Add(s.tokenTTL), User: u}, nil
}

// Logout just records the event; tokens expire on their own.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, username string, meta ClientMeta) {
	s.Audit(ctx, &AuditEntry{
		UserID:      &userID,
		Username:    &username,
		ActionType:  ActionLogout,
		Description: "user logged out",
	}, meta)
}

// NewUser is the input for creating a staff account.
type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func (s *Service) CreateUser(ctx context.Context, in NewUser, actorID uuid.UUID, meta ClientMeta) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" {
		return nil, &ValidationError{Field: "username", Msg: "is required"}
	}
	if len(in.Password) < minPasswordLen {
		return nil, &ValidationError{Field: "password", Msg: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, &ValidationError{Field: "email", Msg: "is not a valid email address"}
	}
	if !validRoles[in.Role] {
		return nil, &ValidationError{Field: "role", Msg: "must be admin, staff, or viewer"}
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, &ValidationError{Field: "name", Msg: "first and last name are required"}
	}

	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return nil, &ValidationError{Field: "username", Msg: "is already taken"}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Username:     in.Username,
		PasswordHash: string(hash),
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.Audit(ctx, &AuditEntry{
		UserID:      &actorID,
		ActionType:  ActionCreate,
		TableName:   strPtr("users"),
		RecordID:    &u.ID,
		Description: "created staff account " + u.Username,
	}, meta)

	return u, nil
}

// UserUpdate carries the editable fields of a staff account.
type UserUpdate struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	IsActive  *bool  `json:"is_active"`
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UserUpdate, actorID uuid.UUID, meta ClientMeta) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != "" {
		email := strings.ToLower(strings.TrimSpace(in.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, &ValidationError{Field: "email", Msg: "is not a valid email address"}
		}
		u.Email = email
	}
	if in.FirstName != "" {
		u.FirstName = strings.TrimSpace(in.FirstName)
	}
	if in.LastName != "" {
		u.LastName = strings.TrimSpace(in.LastName)
	}
	if in.Role != "" {
		if !validRoles[in.Role] {
			return nil, &ValidationError{Field: "role", Msg: "must be admin, staff, or viewer"}
		}
		u.Role = in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:      &actorID,
		ActionType:  ActionUpdate,
		TableName:   strPtr("users"),
		RecordID:    &u.ID,
		Description: "updated staff account " + u.Username,
	}, meta)

	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, password string, actorID uuid.UUID, meta ClientMeta) error {
	if len(password) < minPasswordLen {
		return &ValidationError{Field: "password", Msg: fmt.Sprintf("must be at least %d characters", minPasswordLen)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:      &actorID,
		ActionType:  ActionUpdate,
		TableName:   strPtr("users"),
		RecordID:    &id,
		Description: "changed account password",
	}, meta)
	return nil
}

// DeactivateUser disables the account; rows are never deleted so the audit
// trail keeps its references.
func (s *Service) DeactivateUser(ctx context.Context, id, actorID uuid.UUID, meta ClientMeta) error {
	if id == actorID {
		return &ValidationError{Field: "id", Msg: "cannot deactivate your own account"}
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}

	s.Audit(ctx, &AuditEntry{
		UserID:      &actorID,
		ActionType:  ActionDelete,
		TableName:   strPtr("users"),
		RecordID:    &id,
		Description: "deactivated staff account",
	}, meta)
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Audit appends an action-log row, filling attribution and the PHI flag.
// Append failures are logged and swallowed so audit never breaks the action
// itself.
func (s *Service) Audit(ctx context.Context, e *AuditEntry, meta ClientMeta) {
	e.IPAddress = meta.IPAddress
	e.UserAgent = meta.UserAgent
	e.PHIAccessed = e.PatientID != nil
	if err := s.repo.AppendAudit(ctx, e); err != nil {
		s.log.Error().Err(err).Str("action", e.ActionType).Msg("append audit entry")
	}
}

func (s *Service) AuditTrail(ctx context.Context, f AuditFilter, limit, offset int) ([]*AuditEntry, int, error) {
	return s.repo.ListAudit(ctx, f, limit, offset)
}

func (s *Service) auditFailedLogin(ctx context.Context, username, reason string, meta ClientMeta) {
	s.Audit(ctx, &AuditEntry{
		Username:    &username,
		ActionType:  ActionFailedLogin,
		Description: reason,
	}, meta)
}

func strPtr(s string) *string { return &s }
