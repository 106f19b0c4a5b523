package drift

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/claimops/claimops/internal/domain/claims"
	"github.com/claimops/claimops/internal/platform/auth"
	"github.com/claimops/claimops/pkg/pagination"
)

type Handler struct {
	detector *Detector
	claims   *claims.Service
}

func NewHandler(detector *Detector, claimSvc *claims.Service) *Handler {
	return &Handler{detector: detector, claims: claimSvc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "ops"))
	g.POST("/drift/detect", h.Detect)
	g.GET("/drift-events", h.ListEvents)
}

type detectRequest struct {
	CustomerID  uuid.UUID `json:"customer_id"`
	PayerID     uuid.UUID `json:"payer_id"`
	Metric      Metric    `json:"metric"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Detect runs one on-demand detection pass. An empty window defaults to
// the customer's configured trailing current window ending now.
func (h *Handler) Detect(c echo.Context) error {
	var req detectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Metric.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "metric must be denial_rate or decision_time")
	}

	ctx := c.Request().Context()
	customer, err := h.claims.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "customer not found")
	}
	payer, err := h.claims.GetPayer(ctx, req.PayerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "payer not found")
	}

	window := Window{Start: req.WindowStart, End: req.WindowEnd}
	if window.Start.IsZero() || window.End.IsZero() {
		window = TrailingWindow(time.Now().UTC(), customer.CurrentWindowDays)
	}
	if !window.End.After(window.Start) {
		return echo.NewHTTPError(http.StatusBadRequest, "window_end must be after window_start")
	}

	event, err := h.detector.Detect(ctx, customer, payer, req.Metric, window)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if event == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusCreated, event)
}

func (h *Handler) ListEvents(c echo.Context) error {
	customerID, err := uuid.Parse(c.QueryParam("customer_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id query parameter is required")
	}
	p := pagination.FromContext(c)
	items, total, err := h.detector.ListEvents(c.Request().Context(), customerID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
