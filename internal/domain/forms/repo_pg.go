package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) SaveMedicalHistory(ctx context.Context, f *MedicalHistory) error {
	f.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medical_history (id, patient_id, visit_id, smokes, smoking_frequency,
			drinks_alcohol, alcohol_frequency, medical_conditions, other_conditions,
			previous_surgeries, surgery_details, current_medications,
			has_allergies, allergy_details, family_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		f.ID, f.PatientID, f.VisitID, f.Smokes, f.SmokingFrequency,
		f.DrinksAlcohol, f.AlcoholFrequency, f.MedicalConditions, f.OtherConditions,
		f.PreviousSurgeries, f.SurgeryDetails, f.CurrentMedications,
		f.HasAllergies, f.AllergyDetails, f.FamilyHistory)
	return err
}

func (r *repoPG) LatestMedicalHistory(ctx context.Context, patientID uuid.UUID) (*MedicalHistory, error) {
	var f MedicalHistory
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, visit_id, smokes, smoking_frequency,
			drinks_alcohol, alcohol_frequency, medical_conditions, other_conditions,
			previous_surgeries, surgery_details, current_medications,
			has_allergies, allergy_details, family_history, created_at
		FROM medical_history WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID).
		Scan(&f.ID, &f.PatientID, &f.VisitID, &f.Smokes, &f.SmokingFrequency,
			&f.DrinksAlcohol, &f.AlcoholFrequency, &f.MedicalConditions, &f.OtherConditions,
			&f.PreviousSurgeries, &f.SurgeryDetails, &f.CurrentMedications,
			&f.HasAllergies, &f.AllergyDetails, &f.FamilyHistory, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) SaveConsent(ctx context.Context, f *Consent) error {
	f.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_consents (id, patient_id, visit_id,
			read_and_understood, questions_answered, voluntary_consent,
			signature_name, signature, signature_date,
			guardian_name, guardian_relationship, guardian_signature, guardian_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		f.ID, f.PatientID, f.VisitID,
		f.ReadAndUnderstood, f.QuestionsAnswered, f.VoluntaryConsent,
		f.SignatureName, f.Signature, f.SignatureDate,
		f.GuardianName, f.GuardianRelationship, f.GuardianSignature, f.GuardianDate)
	return err
}

func (r *repoPG) LatestConsent(ctx context.Context, patientID uuid.UUID) (*Consent, error) {
	var f Consent
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, visit_id,
			read_and_understood, questions_answered, voluntary_consent,
			signature_name, signature, signature_date,
			guardian_name, guardian_relationship, guardian_signature, guardian_date, created_at
		FROM patient_consents WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID).
		Scan(&f.ID, &f.PatientID, &f.VisitID,
			&f.ReadAndUnderstood, &f.QuestionsAnswered, &f.VoluntaryConsent,
			&f.SignatureName, &f.Signature, &f.SignatureDate,
			&f.GuardianName, &f.GuardianRelationship, &f.GuardianSignature, &f.GuardianDate, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) SaveFinancialAgreement(ctx context.Context, f *FinancialAgreement) error {
	f.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO financial_agreements (id, patient_id, visit_id,
			payment_method, read_and_understood, agree_to_terms,
			authorize_insurance, responsible_for_balance,
			signature_name, signature, signature_date, relationship_to_patient)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		f.ID, f.PatientID, f.VisitID,
		f.PaymentMethod, f.ReadAndUnderstood, f.AgreeToTerms,
		f.AuthorizeInsurance, f.ResponsibleForBalance,
		f.SignatureName, f.Signature, f.SignatureDate, f.RelationshipToPatient)
	return err
}

func (r *repoPG) LatestFinancialAgreement(ctx context.Context, patientID uuid.UUID) (*FinancialAgreement, error) {
	var f FinancialAgreement
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, visit_id,
			payment_method, read_and_understood, agree_to_terms,
			authorize_insurance, responsible_for_balance,
			signature_name, signature, signature_date, relationship_to_patient, created_at
		FROM financial_agreements WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID).
		Scan(&f.ID, &f.PatientID, &f.VisitID,
			&f.PaymentMethod, &f.ReadAndUnderstood, &f.AgreeToTerms,
			&f.AuthorizeInsurance, &f.ResponsibleForBalance,
			&f.SignatureName, &f.Signature, &f.SignatureDate, &f.RelationshipToPatient, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) SaveAdditionalConsents(ctx context.Context, f *AdditionalConsents) error {
	f.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO additional_consents (id, patient_id, visit_id,
			hipaa_acknowledged, communication_preferences, contact_methods, voicemail_authorization,
			portal_access, portal_email,
			authorized_person_name, authorized_person_relation, authorized_person_phone, authorize_discussion,
			all_forms_complete, consent_to_all,
			signature_name, signature, signature_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		f.ID, f.PatientID, f.VisitID,
		f.HIPAAAcknowledged, f.CommunicationPreferences, f.ContactMethods, f.VoicemailAuthorization,
		f.PortalAccess, f.PortalEmail,
		f.AuthorizedPersonName, f.AuthorizedPersonRelation, f.AuthorizedPersonPhone, f.AuthorizeDiscussion,
		f.AllFormsComplete, f.ConsentToAll,
		f.SignatureName, f.Signature, f.SignatureDate)
	return err
}

func (r *repoPG) LatestAdditionalConsents(ctx context.Context, patientID uuid.UUID) (*AdditionalConsents, error) {
	var f AdditionalConsents
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, visit_id,
			hipaa_acknowledged, communication_preferences, contact_methods, voicemail_authorization,
			portal_access, portal_email,
			authorized_person_name, authorized_person_relation, authorized_person_phone, authorize_discussion,
			all_forms_complete, consent_to_all,
			signature_name, signature, signature_date, created_at
		FROM additional_consents WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT 1`, patientID).
		Scan(&f.ID, &f.PatientID, &f.VisitID,
			&f.HIPAAAcknowledged, &f.CommunicationPreferences, &f.ContactMethods, &f.VoicemailAuthorization,
			&f.PortalAccess, &f.PortalEmail,
			&f.AuthorizedPersonName, &f.AuthorizedPersonRelation, &f.AuthorizedPersonPhone, &f.AuthorizeDiscussion,
			&f.AllFormsComplete, &f.ConsentToAll,
			&f.SignatureName, &f.Signature, &f.SignatureDate, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) Progress(ctx context.Context, visitID uuid.UUID) (*Progress, error) {
	var p Progress
	err := r.pool.QueryRow(ctx, `
		SELECT visit_id, patient_id,
			medical_history_completed, consent_completed, financial_completed, additional_consents_completed,
			medical_history_completed_at, consent_completed_at, financial_completed_at, additional_consents_completed_at,
			all_forms_completed, completed_at
		FROM form_submissions WHERE visit_id = $1`, visitID).
		Scan(&p.VisitID, &p.PatientID,
			&p.MedicalHistoryCompleted, &p.ConsentCompleted, &p.FinancialCompleted, &p.AdditionalConsentsCompleted,
			&p.MedicalHistoryCompletedAt, &p.ConsentCompletedAt, &p.FinancialCompletedAt, &p.AdditionalConsentsCompletedAt,
			&p.AllFormsCompleted, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Progress{VisitID: visitID}, nil
	}
	return &p, err
}

var stepColumns = map[string]string{
	StepMedicalHistory:     "medical_history",
	StepConsent:            "consent",
	StepFinancial:          "financial",
	StepAdditionalConsents: "additional_consents",
}

func (r *repoPG) MarkStep(ctx context.Context, visitID, patientID uuid.UUID, step string) error {
	col, ok := stepColumns[step]
	if !ok {
		return fmt.Errorf("unknown intake step %q", step)
	}
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO form_submissions (visit_id, patient_id, %[1]s_completed, %[1]s_completed_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (visit_id) DO UPDATE SET
			%[1]s_completed = TRUE, %[1]s_completed_at = NOW()`, col),
		visitID, patientID)
	return err
}

func (r *repoPG) MarkAllComplete(ctx context.Context, visitID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE form_submissions
		SET all_forms_completed = TRUE, completed_at = NOW()
		WHERE visit_id = $1`, visitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
