package forms

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Intake step names, in flow order. Registration is tracked implicitly by
// the visit row; progress here covers the four post-registration forms.
const (
	StepMedicalHistory     = "medical_history"
	StepConsent            = "consent"
	StepFinancial          = "financial_agreement"
	StepAdditionalConsents = "additional_consents"
)

// ValidationError names the first field that failed form validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Msg: "is required"}
	}
	return nil
}

func acknowledged(field string, value bool) error {
	if !value {
		return &ValidationError{Field: field, Msg: "must be acknowledged"}
	}
	return nil
}

// MedicalHistory is one submission of the medical history form. Submissions
// are append-only; the latest per patient drives pre-fill.
type MedicalHistory struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`

	Smokes           string `db:"smokes" json:"smokes"`
	SmokingFrequency string `db:"smoking_frequency" json:"smoking_frequency,omitempty"`
	DrinksAlcohol    string `db:"drinks_alcohol" json:"drinks_alcohol"`
	AlcoholFrequency string `db:"alcohol_frequency" json:"alcohol_frequency,omitempty"`

	MedicalConditions string `db:"medical_conditions" json:"medical_conditions,omitempty"`
	OtherConditions   string `db:"other_conditions" json:"other_conditions,omitempty"`
	PreviousSurgeries string `db:"previous_surgeries" json:"previous_surgeries,omitempty"`
	SurgeryDetails    string `db:"surgery_details" json:"surgery_details,omitempty"`

	CurrentMedications string `db:"current_medications" json:"current_medications,omitempty"`
	HasAllergies       string `db:"has_allergies" json:"has_allergies,omitempty"`
	AllergyDetails     string `db:"allergy_details" json:"allergy_details,omitempty"`
	FamilyHistory      string `db:"family_history" json:"family_history,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (f *MedicalHistory) Validate() error {
	if err := required("smokes", f.Smokes); err != nil {
		return err
	}
	return required("drinks_alcohol", f.DrinksAlcohol)
}

func (f *MedicalHistory) FieldMap() map[string]string {
	return map[string]string{
		"smokes":              f.Smokes,
		"smoking_frequency":   f.SmokingFrequency,
		"drinks_alcohol":      f.DrinksAlcohol,
		"alcohol_frequency":   f.AlcoholFrequency,
		"medical_conditions":  f.MedicalConditions,
		"other_conditions":    f.OtherConditions,
		"previous_surgeries":  f.PreviousSurgeries,
		"surgery_details":     f.SurgeryDetails,
		"current_medications": f.CurrentMedications,
		"has_allergies":       f.HasAllergies,
		"allergy_details":     f.AllergyDetails,
		"family_history":      f.FamilyHistory,
	}
}

// Consent is the consent-for-treatment form. Minors carry the guardian
// fields.
type Consent struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`

	ReadAndUnderstood bool `db:"read_and_understood" json:"read_and_understood"`
	QuestionsAnswered bool `db:"questions_answered" json:"questions_answered"`
	VoluntaryConsent  bool `db:"voluntary_consent" json:"voluntary_consent"`

	SignatureName string `db:"signature_name" json:"signature_name"`
	Signature     string `db:"signature" json:"signature"`
	SignatureDate string `db:"signature_date" json:"signature_date"`

	GuardianName         string `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianRelationship string `db:"guardian_relationship" json:"guardian_relationship,omitempty"`
	GuardianSignature    string `db:"guardian_signature" json:"guardian_signature,omitempty"`
	GuardianDate         string `db:"guardian_date" json:"guardian_date,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (f *Consent) Validate() error {
	acks := []struct {
		field string
		value bool
	}{
		{"read_and_understood", f.ReadAndUnderstood},
		{"questions_answered", f.QuestionsAnswered},
		{"voluntary_consent", f.VoluntaryConsent},
	}
	for _, a := range acks {
		if err := acknowledged(a.field, a.value); err != nil {
			return err
		}
	}
	checks := []struct{ field, value string }{
		{"signature_name", f.SignatureName},
		{"signature", f.Signature},
		{"signature_date", f.SignatureDate},
	}
	for _, c := range checks {
		if err := required(c.field, c.value); err != nil {
			return err
		}
	}
	return nil
}

// FinancialAgreement is the payment-responsibility form.
type FinancialAgreement struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`

	PaymentMethod         string `db:"payment_method" json:"payment_method"`
	ReadAndUnderstood     bool   `db:"read_and_understood" json:"read_and_understood"`
	AgreeToTerms          bool   `db:"agree_to_terms" json:"agree_to_terms"`
	AuthorizeInsurance    bool   `db:"authorize_insurance" json:"authorize_insurance"`
	ResponsibleForBalance bool   `db:"responsible_for_balance" json:"responsible_for_balance"`

	SignatureName         string `db:"signature_name" json:"signature_name"`
	Signature             string `db:"signature" json:"signature"`
	SignatureDate         string `db:"signature_date" json:"signature_date"`
	RelationshipToPatient string `db:"relationship_to_patient" json:"relationship_to_patient,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (f *FinancialAgreement) Validate() error {
	if err := required("payment_method", f.PaymentMethod); err != nil {
		return err
	}
	acks := []struct {
		field string
		value bool
	}{
		{"agree_to_terms", f.AgreeToTerms},
		{"responsible_for_balance", f.ResponsibleForBalance},
	}
	for _, a := range acks {
		if err := acknowledged(a.field, a.value); err != nil {
			return err
		}
	}
	checks := []struct{ field, value string }{
		{"signature_name", f.SignatureName},
		{"signature", f.Signature},
		{"signature_date", f.SignatureDate},
	}
	for _, c := range checks {
		if err := required(c.field, c.value); err != nil {
			return err
		}
	}
	return nil
}

// AdditionalConsents is the final form of the flow: HIPAA acknowledgement,
// communication preferences, and the closing signature. Saving it completes
// the visit.
type AdditionalConsents struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`

	HIPAAAcknowledged        bool   `db:"hipaa_acknowledged" json:"hipaa_acknowledged"`
	CommunicationPreferences string `db:"communication_preferences" json:"communication_preferences,omitempty"`
	ContactMethods           string `db:"contact_methods" json:"contact_methods"`
	VoicemailAuthorization   bool   `db:"voicemail_authorization" json:"voicemail_authorization,omitempty"`

	PortalAccess string `db:"portal_access" json:"portal_access,omitempty"`
	PortalEmail  string `db:"portal_email" json:"portal_email,omitempty"`

	AuthorizedPersonName     string `db:"authorized_person_name" json:"authorized_person_name,omitempty"`
	AuthorizedPersonRelation string `db:"authorized_person_relation" json:"authorized_person_relation,omitempty"`
	AuthorizedPersonPhone    string `db:"authorized_person_phone" json:"authorized_person_phone,omitempty"`
	AuthorizeDiscussion      bool   `db:"authorize_discussion" json:"authorize_discussion,omitempty"`

	AllFormsComplete bool `db:"all_forms_complete" json:"all_forms_complete"`
	ConsentToAll     bool `db:"consent_to_all" json:"consent_to_all"`

	SignatureName string `db:"signature_name" json:"signature_name"`
	Signature     string `db:"signature" json:"signature"`
	SignatureDate string `db:"signature_date" json:"signature_date"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (f *AdditionalConsents) Validate() error {
	acks := []struct {
		field string
		value bool
	}{
		{"hipaa_acknowledged", f.HIPAAAcknowledged},
		{"all_forms_complete", f.AllFormsComplete},
		{"consent_to_all", f.ConsentToAll},
	}
	for _, a := range acks {
		if err := acknowledged(a.field, a.value); err != nil {
			return err
		}
	}
	checks := []struct{ field, value string }{
		{"signature_name", f.SignatureName},
		{"signature", f.Signature},
		{"signature_date", f.SignatureDate},
	}
	for _, c := range checks {
		if err := required(c.field, c.value); err != nil {
			return err
		}
	}
	if strings.TrimSpace(f.ContactMethods) == "" {
		return &ValidationError{Field: "contact_methods", Msg: "select at least one contact method"}
	}
	return nil
}

// Progress tracks which forms have been completed for one visit.
type Progress struct {
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`

	MedicalHistoryCompleted     bool `db:"medical_history_completed" json:"medical_history_completed"`
	ConsentCompleted            bool `db:"consent_completed" json:"consent_completed"`
	FinancialCompleted          bool `db:"financial_completed" json:"financial_completed"`
	AdditionalConsentsCompleted bool `db:"additional_consents_completed" json:"additional_consents_completed"`

	MedicalHistoryCompletedAt     *time.Time `db:"medical_history_completed_at" json:"medical_history_completed_at,omitempty"`
	ConsentCompletedAt            *time.Time `db:"consent_completed_at" json:"consent_completed_at,omitempty"`
	FinancialCompletedAt          *time.Time `db:"financial_completed_at" json:"financial_completed_at,omitempty"`
	AdditionalConsentsCompletedAt *time.Time `db:"additional_consents_completed_at" json:"additional_consents_completed_at,omitempty"`

	AllFormsCompleted bool       `db:"all_forms_completed" json:"all_forms_completed"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
