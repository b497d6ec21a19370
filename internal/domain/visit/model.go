package visit

import (
	"time"

	"github.com/google/uuid"
)

// Visit types.
const (
	TypeNew       = "new"
	TypeReturning = "returning"
)

// Check-in statuses. A visit moves open -> updated -> completed and never
// transitions backwards.
const (
	StatusOpen      = "open"
	StatusUpdated   = "updated"
	StatusCompleted = "completed"
)

// Visit maps to the patient_visits table. One row per patient encounter.
type Visit struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	VisitType         string     `db:"visit_type" json:"visit_type"`
	ReasonForVisit    *string    `db:"reason_for_visit" json:"reason_for_visit,omitempty"`
	ChangeSummary     *string    `db:"change_summary" json:"change_summary,omitempty"`
	FieldsChanged     int        `db:"fields_changed_count" json:"fields_changed_count"`
	CheckInStatus     string     `db:"check_in_status" json:"check_in_status"`
	AllFormsCompleted bool       `db:"all_forms_completed" json:"all_forms_completed"`
	IPAddress         string     `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent         string     `db:"user_agent" json:"user_agent,omitempty"`
	SessionID         string     `db:"session_id" json:"session_id,omitempty"`
	VisitDate         time.Time  `db:"visit_date" json:"visit_date"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ClientMeta captures where a visit was opened from.
type ClientMeta struct {
	IPAddress string
	UserAgent string
	SessionID string
}
