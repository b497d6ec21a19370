package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient is the demographic and insurance record collected at registration.
// The reason for visit is visit-scoped and lives on the visit record.
type Patient struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FirstName     string    `db:"first_name" json:"first_name"`
	MiddleName    string    `db:"middle_name" json:"middle_name,omitempty"`
	LastName      string    `db:"last_name" json:"last_name"`
	DateOfBirth   time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender        string    `db:"gender" json:"gender"`
	MaritalStatus string    `db:"marital_status" json:"marital_status,omitempty"`

	// SSN is never serialized; use MaskedSSN for display.
	SSN string `db:"ssn" json:"-"`

	Address string `db:"address" json:"address"`
	City    string `db:"city" json:"city"`
	State   string `db:"state" json:"state"`
	ZipCode string `db:"zip_code" json:"zip_code"`

	HomePhone string `db:"home_phone" json:"home_phone,omitempty"`
	CellPhone string `db:"cell_phone" json:"cell_phone"`
	Email     string `db:"email" json:"email"`

	EmergencyContactName  string `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactPhone string `db:"emergency_contact_phone" json:"emergency_contact_phone"`
	EmergencyRelationship string `db:"emergency_relationship" json:"emergency_relationship"`

	InsuranceProvider string     `db:"insurance_provider" json:"insurance_provider,omitempty"`
	PolicyNumber      string     `db:"policy_number" json:"policy_number,omitempty"`
	GroupNumber       string     `db:"group_number" json:"group_number,omitempty"`
	PolicyHolderName  string     `db:"policy_holder_name" json:"policy_holder_name,omitempty"`
	PolicyHolderDOB   *time.Time `db:"policy_holder_dob" json:"policy_holder_dob,omitempty"`

	PCPName  string `db:"pcp_name" json:"pcp_name,omitempty"`
	PCPPhone string `db:"pcp_phone" json:"pcp_phone,omitempty"`

	Allergies          string `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications string `db:"current_medications" json:"current_medications,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Age in whole years at the given instant.
func (p *Patient) Age(now time.Time) int {
	years := now.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// MaskedSSN keeps only the last four digits visible.
func (p *Patient) MaskedSSN() string {
	return MaskSSN(p.SSN)
}

// MaskSSN replaces all but the last four characters of an SSN with the
// familiar ***-**-XXXX form. Empty input stays empty.
func MaskSSN(ssn string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, ssn)
	if digits == "" {
		return ""
	}
	if len(digits) < 4 {
		return "***-**-****"
	}
	return "***-**-" + digits[len(digits)-4:]
}

const dateLayout = "2006-01-02"

// FieldMap flattens the record into the comparable field set used for
// change tracking and form pre-fill. SSN appears masked so change
// summaries never carry the full number. The reason for visit is
// deliberately absent: it describes the visit, not the patient.
func (p *Patient) FieldMap() map[string]string {
	m := map[string]string{
		"first_name":              p.FirstName,
		"middle_name":             p.MiddleName,
		"last_name":               p.LastName,
		"date_of_birth":           p.DateOfBirth.Format(dateLayout),
		"gender":                  p.Gender,
		"marital_status":          p.MaritalStatus,
		"ssn":                     MaskSSN(p.SSN),
		"address":                 p.Address,
		"city":                    p.City,
		"state":                   p.State,
		"zip_code":                p.ZipCode,
		"home_phone":              p.HomePhone,
		"cell_phone":              p.CellPhone,
		"email":                   p.Email,
		"emergency_contact_name":  p.EmergencyContactName,
		"emergency_contact_phone": p.EmergencyContactPhone,
		"emergency_relationship":  p.EmergencyRelationship,
		"insurance_provider":      p.InsuranceProvider,
		"policy_number":           p.PolicyNumber,
		"group_number":            p.GroupNumber,
		"policy_holder_name":      p.PolicyHolderName,
		"pcp_name":                p.PCPName,
		"pcp_phone":               p.PCPPhone,
		"allergies":               p.Allergies,
		"current_medications":     p.CurrentMedications,
	}
	if p.PolicyHolderDOB != nil {
		m["policy_holder_dob"] = p.PolicyHolderDOB.Format(dateLayout)
	} else {
		m["policy_holder_dob"] = ""
	}
	return m
}
