package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, first_name, middle_name, last_name, date_of_birth, gender, marital_status, ssn,
	address, city, state, zip_code, home_phone, cell_phone, email,
	emergency_contact_name, emergency_contact_phone, emergency_relationship,
	insurance_provider, policy_number, group_number, policy_holder_name, policy_holder_dob,
	pcp_name, pcp_phone, allergies, current_medications, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.MiddleName, &p.LastName, &p.DateOfBirth, &p.Gender, &p.MaritalStatus, &p.SSN,
		&p.Address, &p.City, &p.State, &p.ZipCode, &p.HomePhone, &p.CellPhone, &p.Email,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.EmergencyRelationship,
		&p.InsuranceProvider, &p.PolicyNumber, &p.GroupNumber, &p.PolicyHolderName, &p.PolicyHolderDOB,
		&p.PCPName, &p.PCPPhone, &p.Allergies, &p.CurrentMedications, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, first_name, middle_name, last_name, date_of_birth, gender, marital_status, ssn,
			address, city, state, zip_code, home_phone, cell_phone, email,
			emergency_contact_name, emergency_contact_phone, emergency_relationship,
			insurance_provider, policy_number, group_number, policy_holder_name, policy_holder_dob,
			pcp_name, pcp_phone, allergies, current_medications)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.DateOfBirth, p.Gender, p.MaritalStatus, p.SSN,
		p.Address, p.City, p.State, p.ZipCode, p.HomePhone, p.CellPhone, p.Email,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyRelationship,
		p.InsuranceProvider, p.PolicyNumber, p.GroupNumber, p.PolicyHolderName, p.PolicyHolderDOB,
		p.PCPName, p.PCPPhone, p.Allergies, p.CurrentMedications)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients SET
			first_name = $2, middle_name = $3, last_name = $4, date_of_birth = $5, gender = $6,
			marital_status = $7, ssn = $8, address = $9, city = $10, state = $11, zip_code = $12,
			home_phone = $13, cell_phone = $14, email = $15,
			emergency_contact_name = $16, emergency_contact_phone = $17, emergency_relationship = $18,
			insurance_provider = $19, policy_number = $20, group_number = $21,
			policy_holder_name = $22, policy_holder_dob = $23,
			pcp_name = $24, pcp_phone = $25, allergies = $26, current_medications = $27,
			updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.DateOfBirth, p.Gender,
		p.MaritalStatus, p.SSN, p.Address, p.City, p.State, p.ZipCode,
		p.HomePhone, p.CellPhone, p.Email,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyRelationship,
		p.InsuranceProvider, p.PolicyNumber, p.GroupNumber,
		p.PolicyHolderName, p.PolicyHolderDOB,
		p.PCPName, p.PCPPhone, p.Allergies, p.CurrentMedications)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR cell_phone ILIKE $1`,
		pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR cell_phone ILIKE $1
		ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*Patient, int, error) {
	var items []*Patient
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) FindByEmailDOB(ctx context.Context, email string, dob time.Time) (*Patient, error) {
	return r.scan(r.pool.QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE lower(email) = lower($1) AND date_of_birth = $2
		ORDER BY created_at DESC LIMIT 1`,
		email, dob))
}

func (r *repoPG) ExistsByEmailDOB(ctx context.Context, email string, dob time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM patients WHERE lower(email) = lower($1) AND date_of_birth = $2)`,
		email, dob).Scan(&exists)
	return exists, err
}
