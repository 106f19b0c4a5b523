package reports

import (
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
	g := api.Group("", auth.RequireRole("admin", "ops"))
	g.POST("/reports/weekly", h.RunWeekly)
	g.GET("/reports/:id", h.GetRun)
	g.GET("/reports", h.ListRuns)
}

type weeklyRequest struct {
	CustomerID uuid.UUID `json:"customer_id"`
}

// RunWeekly executes the full report pipeline for one customer on
// demand, outside the cron schedule.
func (h *Handler) RunWeekly(c echo.Context) error {
	var req weeklyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	customer, err := h.claims.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}
	payers, err := h.claims.ListPayersByCustomer(ctx, customer.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	run, err := h.svc.Run(ctx, customer, payers)
	if err != nil {
		// The run carries its failure state; return it with the error.
		if run != nil {
			return c.JSON(http.StatusInternalServerError, run)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, run)
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report run id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRuns(c echo.Context) error {
	customerID, err := uuid.Parse(c.QueryParam("customer_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id query parameter is required")
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.ListRuns(c.Request().Context(), customerID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
