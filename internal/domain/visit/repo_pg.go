package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const visitCols = `id, patient_id, visit_type, reason_for_visit, change_summary,
	fields_changed_count, check_in_status, all_forms_completed,
	ip_address, user_agent, session_id, visit_date, completed_at, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.VisitType, &v.ReasonForVisit, &v.ChangeSummary,
		&v.FieldsChanged, &v.CheckInStatus, &v.AllFormsCompleted,
		&v.IPAddress, &v.UserAgent, &v.SessionID, &v.VisitDate, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &v, err
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_visits (id, patient_id, visit_type, reason_for_visit, check_in_status,
			ip_address, user_agent, session_id, visit_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`,
		v.ID, v.PatientID, v.VisitType, v.ReasonForVisit, StatusOpen,
		v.IPAddress, v.UserAgent, v.SessionID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+visitCols+` FROM patient_visits WHERE id = $1`, id))
}

func (r *repoPG) AttachChanges(ctx context.Context, id uuid.UUID, summary string, fieldsChanged int, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_visits
		SET change_summary = $2, fields_changed_count = $3, reason_for_visit = $4,
			check_in_status = $5, updated_at = NOW()
		WHERE id = $1 AND all_forms_completed = FALSE`,
		id, summary, fieldsChanged, reason, StatusUpdated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_visits
		SET all_forms_completed = TRUE, completed_at = NOW(),
			check_in_status = $2, updated_at = NOW()
		WHERE id = $1 AND all_forms_completed = FALSE`,
		id, StatusCompleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already completed or missing; distinguish for the caller.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patient_visits WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient_visits`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+visitCols+` FROM patient_visits ORDER BY visit_date DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient_visits WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+visitCols+` FROM patient_visits WHERE patient_id = $1 ORDER BY visit_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) LastByPatient(ctx context.Context, patientID uuid.UUID) (*Visit, error) {
	return r.scan(r.pool.QueryRow(ctx, `
		SELECT `+visitCols+` FROM patient_visits
		WHERE patient_id = $1 ORDER BY visit_date DESC LIMIT 1`, patientID))
}
