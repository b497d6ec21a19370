package documents

import (
	"time"

	"github.com/google/uuid"
)

// Document types patients may upload.
const (
	TypeInsuranceCardFront = "insurance_card_front"
	TypeInsuranceCardBack  = "insurance_card_back"
	TypePhotoIDFront       = "photo_id_front"
	TypePhotoIDBack        = "photo_id_back"
	TypeMedicalRecords     = "medical_records"
	TypePrescription       = "prescription"
	TypeReferral           = "referral"
	TypeOther              = "other"
)

// categories groups types for the staff review screens.
var categories = map[string]string{
	TypeInsuranceCardFront: "insurance",
	TypeInsuranceCardBack:  "insurance",
	TypePhotoIDFront:       "identification",
	TypePhotoIDBack:        "identification",
	TypeMedicalRecords:     "medical",
	TypePrescription:       "medical",
	TypeReferral:           "medical",
	TypeOther:              "other",
}

// Verification states.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"
)

// Access-log actions.
const (
	ActionUpload   = "upload"
	ActionView     = "view"
	ActionDownload = "download"
	ActionVerify   = "verify"
	ActionReject   = "reject"
	ActionDelete   = "delete"
)

// Document is one uploaded file. The bytes live in the blob store under
// StorageKey; rows are soft-deleted so the access history stays intact.
type Document struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`

	DocumentType     string `db:"document_type" json:"document_type"`
	DocumentCategory string `db:"document_category" json:"document_category"`

	OriginalFilename string `db:"original_filename" json:"original_filename"`
	StorageKey       string `db:"storage_key" json:"-"`
	FileSize         int64  `db:"file_size" json:"file_size"`
	MimeType         string `db:"mime_type" json:"mime_type"`
	FileExtension    string `db:"file_extension" json:"file_extension"`

	UploadedBy       string     `db:"uploaded_by" json:"uploaded_by"`
	UploadedByUserID *uuid.UUID `db:"uploaded_by_user_id" json:"uploaded_by_user_id,omitempty"`
	IPAddress        string     `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent        string     `db:"user_agent" json:"-"`
	Description      *string    `db:"description" json:"description,omitempty"`

	Status           string     `db:"status" json:"status"`
	VerifiedByUserID *uuid.UUID `db:"verified_by_user_id" json:"verified_by_user_id,omitempty"`
	VerifiedAt       *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	RejectionReason  *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`

	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AccessLogEntry records one touch of a document, kept for compliance.
type AccessLogEntry struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DocumentID uuid.UUID  `db:"document_id" json:"document_id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	Action     string     `db:"action" json:"action"`
	AccessedBy string     `db:"accessed_by" json:"accessed_by"`
	UserID     *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Notes      *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// ValidationError rejects an upload before anything is stored.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
