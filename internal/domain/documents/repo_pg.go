package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const documentCols = `id, patient_id, document_type, document_category,
	original_filename, storage_key, file_size, mime_type, file_extension,
	uploaded_by, uploaded_by_user_id, ip_address, user_agent, description,
	status, verified_by_user_id, verified_at, rejection_reason, is_deleted, created_at`

func (r *repoPG) scan(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.DocumentType, &d.DocumentCategory,
		&d.OriginalFilename, &d.StorageKey, &d.FileSize, &d.MimeType, &d.FileExtension,
		&d.UploadedBy, &d.UploadedByUserID, &d.IPAddress, &d.UserAgent, &d.Description,
		&d.Status, &d.VerifiedByUserID, &d.VerifiedAt, &d.RejectionReason, &d.IsDeleted, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_documents (id, patient_id, document_type, document_category,
			original_filename, storage_key, file_size, mime_type, file_extension,
			uploaded_by, uploaded_by_user_id, ip_address, user_agent, description, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		d.ID, d.PatientID, d.DocumentType, d.DocumentCategory,
		d.OriginalFilename, d.StorageKey, d.FileSize, d.MimeType, d.FileExtension,
		d.UploadedBy, d.UploadedByUserID, d.IPAddress, d.UserAgent, d.Description, d.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM patient_documents WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, includeDeleted bool) ([]*Document, error) {
	q := `SELECT ` + documentCols + ` FROM patient_documents WHERE patient_id = $1`
	if !includeDeleted {
		q += ` AND is_deleted = FALSE`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Document
	for rows.Next() {
		d, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) CountActiveByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_documents WHERE patient_id = $1 AND is_deleted = FALSE`,
		patientID).Scan(&n)
	return n, err
}

func (r *repoPG) Verify(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_documents
		SET status = $2, verified_by_user_id = $3, verified_at = NOW(), rejection_reason = NULL
		WHERE id = $1 AND is_deleted = FALSE`,
		id, StatusVerified, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Reject(ctx context.Context, id, userID uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_documents
		SET status = $2, verified_by_user_id = $3, verified_at = NOW(), rejection_reason = $4
		WHERE id = $1 AND is_deleted = FALSE`,
		id, StatusRejected, userID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_documents SET is_deleted = TRUE WHERE id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) LogAccess(ctx context.Context, e *AccessLogEntry) error {
	e.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO document_access_log (id, document_id, patient_id, action, accessed_by, user_id, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.DocumentID, e.PatientID, e.Action, e.AccessedBy, e.UserID, e.Notes)
	return err
}

func (r *repoPG) AccessLog(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*AccessLogEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_access_log WHERE document_id = $1`, documentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, patient_id, action, accessed_by, user_id, notes, created_at
		FROM document_access_log WHERE document_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, documentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*AccessLogEntry
	for rows.Next() {
		var e AccessLogEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.PatientID, &e.Action, &e.AccessedBy,
			&e.UserID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
