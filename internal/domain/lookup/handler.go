package lookup

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clearpath/intake/internal/domain/session"
	"github.com/clearpath/intake/internal/domain/visit"
	"github.com/clearpath/intake/internal/platform/auth"
	"github.com/clearpath/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the patient-facing lookup and session
// endpoints.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.POST("/lookup", h.Lookup)
	g.POST("/session/extend", h.ExtendSession)
	g.POST("/session/leave", h.LeaveSession)
}

// RegisterRoutes mounts the staff-facing audit trail.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff"))
	g.GET("/lookup-audit", h.AuditTrail)
}

func (h *Handler) Lookup(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	meta := visit.ClientMeta{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
	if rid, ok := c.Get("request_id").(string); ok {
		meta.SessionID = rid
	}

	res, err := h.svc.Lookup(c.Request().Context(), &req, meta)
	if err != nil {
		var (
			invalid   *InvalidInputError
			throttled *ThrottledError
		)
		switch {
		case errors.As(err, &invalid):
			return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
		case errors.As(err, &throttled):
			retry := int(throttled.RetryAfter(time.Now()).Seconds())
			c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
			return echo.NewHTTPError(http.StatusTooManyRequests,
				"too many lookup attempts, please try again later")
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound,
				"no record found, you can register as a new patient")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, res)
}

type sessionRequest struct {
	Token string `json:"token"`
}

func (h *Handler) ExtendSession(c echo.Context) error {
	token, httpErr := bindToken(c)
	if httpErr != nil {
		return httpErr
	}
	sess, err := h.svc.Extend(c.Request().Context(), token)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) LeaveSession(c echo.Context) error {
	token, httpErr := bindToken(c)
	if httpErr != nil {
		return httpErr
	}
	if err := h.svc.Leave(c.Request().Context(), token); err != nil {
		return sessionError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AuditTrail(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.AuditTrail(c.Request().Context(), c.QueryParam("ip"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func bindToken(c echo.Context) (uuid.UUID, error) {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, err := uuid.Parse(req.Token)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session token")
	}
	return token, nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, session.ErrInvalid):
		return echo.NewHTTPError(http.StatusUnauthorized, "session is no longer valid, please look up again")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
