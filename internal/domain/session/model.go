package session

import (
	"time"

	"github.com/google/uuid"
)

// LookupSession is a short-lived grant proving a successful patient lookup
// (or a fresh registration). It gates access to the pre-fill-capable forms.
// Lifecycle: unissued -> active -> (expired | revoked); the terminal states
// never transition back — a new lookup issues a logically new session.
type LookupSession struct {
	Token     uuid.UUID `db:"token" json:"token"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Revoked   bool      `db:"revoked" json:"-"`
}

// ExpiredAt reports whether the session has passed its expiry at the given
// instant.
func (s *LookupSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
