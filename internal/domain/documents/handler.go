package documents

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
	"github.com/clearpath/intake/internal/platform/auth"
	"github.com/clearpath/intake/internal/platform/blobstore"
	"github.com/clearpath/intake/pkg/pagination"
)

// SessionHeader carries the lookup session token on patient uploads.
const SessionHeader = "X-Intake-Session"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the patient-facing upload endpoint.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/documents", h.UploadDocument)
}

// RegisterRoutes mounts the staff document endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "staff", "viewer"))
	read.GET("/patients/:id/documents", h.ListPatientDocuments)
	read.GET("/documents/:id", h.GetDocument)
	read.GET("/documents/:id/download", h.DownloadDocument)
	read.GET("/documents/:id/access-log", h.GetAccessLog)

	write := api.Group("", auth.RequireRole("admin", "staff"))
	write.POST("/patients/:id/documents", h.StaffUploadDocument)
	write.POST("/documents/:id/verify", h.VerifyDocument)
	write.POST("/documents/:id/reject", h.RejectDocument)
	write.DELETE("/documents/:id", h.DeleteDocument)
}

func (h *Handler) UploadDocument(c echo.Context) error {
	raw := c.Request().Header.Get(SessionHeader)
	token, err := uuid.Parse(raw)
	if raw == "" || err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "valid session token required")
	}

	up, file, err := bindUpload(c)
	if err != nil {
		return err
	}
	defer file.Close()

	meta := visit.ClientMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	doc, err := h.svc.UploadForSession(c.Request().Context(), token, up, meta)
	if err != nil {
		return documentError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) StaffUploadDocument(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	userID, err := staffUserID(c)
	if err != nil {
		return err
	}

	up, file, err := bindUpload(c)
	if err != nil {
		return err
	}
	defer file.Close()

	meta := visit.ClientMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
	doc, err := h.svc.UploadForStaff(c.Request().Context(), patientID, userID, up, meta)
	if err != nil {
		return documentError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListPatientDocuments(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	docs, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) GetDocument(c echo.Context) error {
	id, userID, httpErr := documentAndUser(c)
	if httpErr != nil {
		return httpErr
	}
	doc, err := h.svc.Get(c.Request().Context(), id, "staff", &userID)
	if err != nil {
		return documentError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, userID, httpErr := documentAndUser(c)
	if httpErr != nil {
		return httpErr
	}
	doc, rc, err := h.svc.Open(c.Request().Context(), id, "staff", &userID)
	if err != nil {
		return documentError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+doc.OriginalFilename+`"`)
	return c.Stream(http.StatusOK, doc.MimeType, rc)
}

func (h *Handler) VerifyDocument(c echo.Context) error {
	id, userID, httpErr := documentAndUser(c)
	if httpErr != nil {
		return httpErr
	}
	if err := h.svc.Verify(c.Request().Context(), id, userID); err != nil {
		return documentError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectDocument(c echo.Context) error {
	id, userID, httpErr := documentAndUser(c)
	if httpErr != nil {
		return httpErr
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Reject(c.Request().Context(), id, userID, req.Reason); err != nil {
		return documentError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, userID, httpErr := documentAndUser(c)
	if httpErr != nil {
		return httpErr
	}
	if err := h.svc.Delete(c.Request().Context(), id, userID); err != nil {
		return documentError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetAccessLog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AccessLog(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func bindUpload(c echo.Context) (*Upload, multipart.File, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "a file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	return &Upload{
		DocumentType: c.FormValue("document_type"),
		Description:  c.FormValue("description"),
		Filename:     fh.Filename,
		Size:         fh.Size,
		ContentType:  fh.Header.Get("Content-Type"),
		Body:         f,
	}, f, nil
}

func documentAndUser(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	userID, httpErr := staffUserID(c)
	if httpErr != nil {
		return uuid.Nil, uuid.Nil, httpErr
	}
	return id, userID, nil
}

func staffUserID(c echo.Context) (uuid.UUID, error) {
	raw := auth.UserIDFromContext(c.Request().Context())
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return userID, nil
}

func documentError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document file missing from storage")
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, "session is no longer valid, please look up again")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
