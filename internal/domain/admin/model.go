package admin

import (
	"time"

	"github.com/google/uuid"
)

// Staff roles, from broadest to narrowest. An admin passes every role gate.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleViewer = "viewer"
)

var validRoles = map[string]bool{
	RoleAdmin:  true,
	RoleStaff:  true,
	RoleViewer: true,
}

// User is a staff account for the admin panel.
type User struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	Username            string     `db:"username" json:"username"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	Email               string     `db:"email" json:"email"`
	FirstName           string     `db:"first_name" json:"first_name"`
	LastName            string     `db:"last_name" json:"last_name"`
	Role                string     `db:"role" json:"role"`
	IsActive            bool       `db:"is_active" json:"is_active"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	LastLoginIP         *string    `db:"last_login_ip" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used in tokens and audit rows.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Action types recorded in the staff audit log.
const (
	ActionLogin       = "LOGIN"
	ActionLogout      = "LOGOUT"
	ActionFailedLogin = "FAILED_LOGIN"
	ActionView        = "VIEW"
	ActionCreate      = "CREATE"
	ActionUpdate      = "UPDATE"
	ActionDelete      = "DELETE"
	ActionExport      = "EXPORT"
)

// AuditEntry is one row of the staff action log. PatientID is set whenever
// the action touched patient data, which also flips PHIAccessed.
type AuditEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Username    *string    `db:"username" json:"username,omitempty"`
	ActionType  string     `db:"action_type" json:"action_type"`
	TableName   *string    `db:"table_name" json:"table_name,omitempty"`
	RecordID    *uuid.UUID `db:"record_id" json:"record_id,omitempty"`
	Description string     `db:"description" json:"description"`
	OldValues   []byte     `db:"old_values" json:"old_values,omitempty"`
	NewValues   []byte     `db:"new_values" json:"new_values,omitempty"`
	IPAddress   string     `db:"ip_address" json:"ip_address"`
	UserAgent   string     `db:"user_agent" json:"user_agent"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	PHIAccessed bool       `db:"phi_accessed" json:"phi_accessed"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
