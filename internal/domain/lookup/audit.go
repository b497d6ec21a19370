package lookup

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lookup outcomes recorded on the audit trail.
const (
	OutcomeMatched   = "matched"
	OutcomeNotFound  = "not_found"
	OutcomeThrottled = "throttled"
	OutcomeError     = "error"
)

// AuditEntry is one row of the lookup audit trail. Every attempt is
// recorded, including throttled ones, with exactly what the caller
// submitted.
type AuditEntry struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	SubmittedEmail string     `db:"submitted_email" json:"submitted_email"`
	SubmittedDOB   string     `db:"submitted_dob" json:"submitted_dob"`
	Outcome        string     `db:"outcome" json:"outcome"`
	Found          bool       `db:"found" json:"found"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	PatientName    *string    `db:"patient_name" json:"patient_name,omitempty"`
	IPAddress      string     `db:"ip_address" json:"ip_address"`
	UserAgent      string     `db:"user_agent" json:"user_agent"`
	SessionID      string     `db:"session_id" json:"session_id"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AuditStore appends and reads the lookup audit trail. Append is never
// transactional with the lookup itself: a failed lookup still audits, and
// an audit failure does not fail a successful lookup.
type AuditStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error)
	ListByIP(ctx context.Context, ip string, limit, offset int) ([]*AuditEntry, int, error)
}
