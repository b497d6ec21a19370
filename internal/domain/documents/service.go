package documents

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
	"github.com/clearpath/intake/internal/platform/blobstore"
)

// DefaultMaxPerPatient caps active documents per patient.
const DefaultMaxPerPatient = 20

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// Upload is one incoming file with its declared metadata.
type Upload struct {
	DocumentType string
	Description  string
	Filename     string
	Size         int64
	ContentType  string
	Body         io.Reader
}

// Service stores, serves, and verifies patient documents. File bytes live
// in the blob store; metadata and the compliance access log live in the
// repository. Deletion is soft: the row is flagged and the blob kept.
type Service struct {
	repo     Repository
	blobs    blobstore.BlobStore
	sessions *session.Service

	maxBytes      int64
	maxPerPatient int
	log           zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.BlobStore, sessions *session.Service,
	maxBytes int64, log zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		blobs:         blobs,
		sessions:      sessions,
		maxBytes:      maxBytes,
		maxPerPatient: DefaultMaxPerPatient,
		log:           log.With().Str("component", "documents").Logger(),
	}
}

// UploadForSession is the patient-facing upload path: the lookup session
// names the patient.
func (s *Service) UploadForSession(ctx context.Context, token uuid.UUID, up *Upload, meta visit.ClientMeta) (*Document, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, sess.PatientID, "patient", nil, up, meta)
}

// UploadForStaff stores a document on behalf of a patient from the admin
// panel.
func (s *Service) UploadForStaff(ctx context.Context, patientID, userID uuid.UUID, up *Upload, meta visit.ClientMeta) (*Document, error) {
	return s.store(ctx, patientID, "staff", &userID, up, meta)
}

func (s *Service) store(ctx context.Context, patientID uuid.UUID, uploadedBy string, userID *uuid.UUID, up *Upload, meta visit.ClientMeta) (*Document, error) {
	ext, err := s.validate(up)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountActiveByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count >= s.maxPerPatient {
		return nil, &ValidationError{Msg: "maximum documents per patient exceeded"}
	}

	key := storageKey(patientID, up.DocumentType, ext)
	written, err := s.blobs.Put(ctx, key, io.LimitReader(up.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if written == 0 {
		s.discardBlob(ctx, key)
		return nil, &ValidationError{Msg: "file is empty"}
	}
	if written > s.maxBytes {
		s.discardBlob(ctx, key)
		return nil, &ValidationError{Msg: fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes/(1<<20))}
	}

	doc := &Document{
		PatientID:        patientID,
		DocumentType:     up.DocumentType,
		DocumentCategory: categories[up.DocumentType],
		OriginalFilename: up.Filename,
		StorageKey:       key,
		FileSize:         written,
		MimeType:         up.ContentType,
		FileExtension:    strings.TrimPrefix(ext, "."),
		UploadedBy:       uploadedBy,
		UploadedByUserID: userID,
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		Status:           StatusPending,
	}
	if up.Description != "" {
		doc.Description = &up.Description
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		s.discardBlob(ctx, key)
		return nil, fmt.Errorf("create document record: %w", err)
	}

	s.logAccess(ctx, doc, ActionUpload, uploadedBy, userID, nil)
	return doc, nil
}

func (s *Service) validate(up *Upload) (string, error) {
	if up.DocumentType == "" {
		return "", &ValidationError{Msg: "document type is required"}
	}
	if _, ok := categories[up.DocumentType]; !ok {
		return "", &ValidationError{Msg: "invalid document type"}
	}
	if up.Size > s.maxBytes {
		return "", &ValidationError{Msg: fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes/(1<<20))}
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", &ValidationError{Msg: "file type not allowed, use jpg, png, or pdf"}
	}
	if mt := strings.ToLower(strings.TrimSpace(up.ContentType)); mt != "" && !allowedMimeTypes[mt] {
		return "", &ValidationError{Msg: "invalid file type detected"}
	}
	return ext, nil
}

// Get returns the metadata row and logs the view.
func (s *Service) Get(ctx context.Context, id uuid.UUID, accessedBy string, userID *uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted {
		return nil, ErrNotFound
	}
	s.logAccess(ctx, doc, ActionView, accessedBy, userID, nil)
	return doc, nil
}

// Open returns the document bytes for serving, logging the download.
func (s *Service) Open(ctx context.Context, id uuid.UUID, accessedBy string, userID *uuid.UUID) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.IsDeleted {
		return nil, nil, ErrNotFound
	}

	rc, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document blob: %w", err)
	}
	s.logAccess(ctx, doc, ActionDownload, accessedBy, userID, nil)
	return doc, rc, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Document, error) {
	return s.repo.ListByPatient(ctx, patientID, false)
}

// Verify marks the document reviewed and accepted.
func (s *Service) Verify(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.Verify(ctx, id, userID); err != nil {
		return err
	}
	if doc, err := s.repo.GetByID(ctx, id); err == nil {
		s.logAccess(ctx, doc, ActionVerify, "staff", &userID, nil)
	}
	return nil
}

// Reject marks the document unusable with a reason the patient can act on.
func (s *Service) Reject(ctx context.Context, id, userID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return &ValidationError{Msg: "a rejection reason is required"}
	}
	if err := s.repo.Reject(ctx, id, userID, reason); err != nil {
		return err
	}
	if doc, err := s.repo.GetByID(ctx, id); err == nil {
		s.logAccess(ctx, doc, ActionReject, "staff", &userID, &reason)
	}
	return nil
}

// Delete soft-deletes the row. The blob is retained for the record.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logAccess(ctx, doc, ActionDelete, "staff", &userID, nil)
	return nil
}

func (s *Service) AccessLog(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*AccessLogEntry, int, error) {
	return s.repo.AccessLog(ctx, documentID, limit, offset)
}

func (s *Service) logAccess(ctx context.Context, doc *Document, action, accessedBy string, userID *uuid.UUID, notes *string) {
	err := s.repo.LogAccess(ctx, &AccessLogEntry{
		DocumentID: doc.ID,
		PatientID:  doc.PatientID,
		Action:     action,
		AccessedBy: accessedBy,
		UserID:     userID,
		Notes:      notes,
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("document_id", doc.ID.String()).
			Str("action", action).
			Msg("document access log append failed")
	}
}

func (s *Service) discardBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("failed to remove rejected blob")
	}
}

func storageKey(patientID uuid.UUID, documentType, ext string) string {
	return fmt.Sprintf("patients/%s/%s_%d_%s%s",
		patientID, documentType, time.Now().Unix(), uuid.New().String()[:8], ext)
}
