package lookup

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type auditPG struct{ pool *pgxpool.Pool }

func NewAuditPG(pool *pgxpool.Pool) AuditStore { return &auditPG{pool: pool} }

const auditCols = `id, submitted_email, submitted_dob, outcome, found, patient_id, patient_name,
	ip_address, user_agent, session_id, created_at`

func (a *auditPG) Append(ctx context.Context, e *AuditEntry) error {
	e.ID = uuid.New()
	_, err := a.pool.Exec(ctx, `
		INSERT INTO audit_patient_lookup (id, submitted_email, submitted_dob, outcome, found,
			patient_id, patient_name, ip_address, user_agent, session_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.SubmittedEmail, e.SubmittedDOB, e.Outcome, e.Found,
		e.PatientID, e.PatientName, e.IPAddress, e.UserAgent, e.SessionID)
	return err
}

func (a *auditPG) List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	var total int
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_patient_lookup`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := a.pool.Query(ctx, `SELECT `+auditCols+` FROM audit_patient_lookup ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectAudit(rows, total)
}

func (a *auditPG) ListByIP(ctx context.Context, ip string, limit, offset int) ([]*AuditEntry, int, error) {
	var total int
	if err := a.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_patient_lookup WHERE ip_address = $1`, ip).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := a.pool.Query(ctx, `
		SELECT `+auditCols+` FROM audit_patient_lookup
		WHERE ip_address = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ip, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectAudit(rows, total)
}

func collectAudit(rows pgx.Rows, total int) ([]*AuditEntry, int, error) {
	var items []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.SubmittedEmail, &e.SubmittedDOB, &e.Outcome, &e.Found,
			&e.PatientID, &e.PatientName, &e.IPAddress, &e.UserAgent, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
