package forms

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
	"github.com/clearpath/intake/internal/platform/auth"
)

// SessionHeader carries the lookup session token on form requests.
const SessionHeader = "X-Intake-Session"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the patient-facing form flow. Every endpoint
// requires the session token header.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/forms/prefill", h.Prefill)
	g.GET("/forms/progress", h.Progress)
	g.POST("/forms/medical-history", h.SubmitMedicalHistory)
	g.POST("/forms/consent", h.SubmitConsent)
	g.POST("/forms/financial-agreement", h.SubmitFinancialAgreement)
	g.POST("/forms/additional-consents", h.SubmitAdditionalConsents)
}

// RegisterRoutes mounts the staff review endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff", "viewer"))
	g.GET("/patients/:id/forms", h.PatientForms)
}

func (h *Handler) Prefill(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	data, err := h.svc.Prefill(c.Request().Context(), token)
	if err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusOK, data)
}

func (h *Handler) Progress(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Progress(c.Request().Context(), token)
	if err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SubmitMedicalHistory(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	var f MedicalHistory
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SubmitMedicalHistory(c.Request().Context(), token, &f); err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) SubmitConsent(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	var f Consent
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SubmitConsent(c.Request().Context(), token, &f); err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) SubmitFinancialAgreement(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	var f FinancialAgreement
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SubmitFinancialAgreement(c.Request().Context(), token, &f); err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) SubmitAdditionalConsents(c echo.Context) error {
	token, err := sessionToken(c)
	if err != nil {
		return err
	}
	var f AdditionalConsents
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.SubmitAdditionalConsents(c.Request().Context(), token, &f); err != nil {
		return formError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) PatientForms(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	out, err := h.svc.LatestForPatient(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

func sessionToken(c echo.Context) (uuid.UUID, error) {
	raw := c.Request().Header.Get(SessionHeader)
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "session token required")
	}
	token, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
	}
	return token, nil
}

func formError(err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, "session is no longer valid, please look up again")
	case errors.Is(err, visit.ErrCompleted):
		return echo.NewHTTPError(http.StatusConflict, "this visit is already completed")
	case errors.Is(err, visit.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "visit not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
