package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (r *storePG) Create(ctx context.Context, s *LookupSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_sessions (token, patient_id, visit_id, issued_at, expires_at)
		VALUES ($1,$2,$3,$4,$5)`,
		s.Token, s.PatientID, s.VisitID, s.IssuedAt, s.ExpiresAt)
	return err
}

func (r *storePG) Get(ctx context.Context, token uuid.UUID) (*LookupSession, error) {
	var s LookupSession
	err := r.pool.QueryRow(ctx, `
		SELECT token, patient_id, visit_id, issued_at, expires_at, revoked
		FROM patient_sessions WHERE token = $1`, token).
		Scan(&s.Token, &s.PatientID, &s.VisitID, &s.IssuedAt, &s.ExpiresAt, &s.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *storePG) SetExpiry(ctx context.Context, token uuid.UUID, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_sessions SET expires_at = $2
		WHERE token = $1 AND revoked = FALSE`, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storePG) Revoke(ctx context.Context, token uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient_sessions SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *storePG) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM patient_sessions WHERE expires_at < $1 OR revoked = TRUE`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// resolverPG checks referenced entities directly against their tables.
type resolverPG struct{ pool *pgxpool.Pool }

func NewResolverPG(pool *pgxpool.Pool) EntityResolver { return &resolverPG{pool: pool} }

func (r *resolverPG) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *resolverPG) VisitExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patient_visits WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
