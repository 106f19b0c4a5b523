package rules

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/platform/auth"
	"github.com/claimops/claimops/pkg/pagination"
)

type Handler struct {
	svc    *Service
	claims *claims.Service
}

func NewHandler(svc *Service, claimSvc *claims.Service) *Handler {
	return &Handler{svc: svc, claims: claimSvc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "ops"))
	read.GET("/rules", h.ListRules)
	read.GET("/rules/:id", h.GetRule)
	read.GET("/execution-logs", h.ListExecutionLogs)
	read.POST("/claims/:id/override", h.ManualOverride)

	// Rule configuration changes automation behavior; admins only.
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/rules", h.CreateRule)
	admin.PUT("/rules/:id", h.UpdateRule)
	admin.POST("/rules/:id/enable", h.EnableRule)
	admin.POST("/rules/:id/disable", h.DisableRule)
}

func (h *Handler) CreateRule(c echo.Context) error {
	var r AutomationRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule id")
	}
	var r AutomationRule
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r.ID = id
	if err := h.svc.UpdateRule(c.Request().Context(), &r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) GetRule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule id")
	}
	r, err := h.svc.GetRule(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "rule not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListRules(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListRules(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) EnableRule(c echo.Context) error  { return h.setEnabled(c, true) }
func (h *Handler) DisableRule(c echo.Context) error { return h.setEnabled(c, false) }

func (h *Handler) setEnabled(c echo.Context, enabled bool) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid rule id")
	}
	if err := h.svc.SetEnabled(c.Request().Context(), id, enabled); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListExecutionLogs(c echo.Context) error {
	claimID, err := uuid.Parse(c.QueryParam("claim_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "claim_id query parameter is required")
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListExecutionLogs(c.Request().Context(), claimID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

type overrideRequest struct {
	Context map[string]interface{} `json:"context"`
}

func (h *Handler) ManualOverride(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	claim, err := h.claims.GetClaim(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	results, err := h.svc.ManualOverride(c.Request().Context(), claim, req.Context)
	if err != nil {
		if errors.Is(err, ErrConflictingActions) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}
