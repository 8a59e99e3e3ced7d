package fulfillment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/woundcare/intake/internal/platform/auth"
	"github.com/woundcare/intake/pkg/pagination"
)

// Handler exposes the submission history for back-office tracking. The live
// session endpoints only return the current submission; this surface lists
// every record for an intake, superseded ones included.
type Handler struct {
	store SubmissionStore
}

func NewHandler(store SubmissionStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/submissions", auth.RequireRole("order_management", "admin"))
	g.GET("", h.ListBySession)
	g.GET("/:id", h.GetSubmission)
}

// ListBySession handles GET /submissions?session_id=<uuid>.
func (h *Handler) ListBySession(c echo.Context) error {
	sessionID, err := uuid.Parse(c.QueryParam("session_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id must be a valid UUID")
	}

	records, err := h.store.ListBySession(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	params := pagination.FromContext(c)
	start, end := params.Slice(len(records))
	return c.JSON(http.StatusOK, pagination.NewResponse(records[start:end], len(records), params.Limit, params.Offset))
}

// GetSubmission handles GET /submissions/:id.
func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id must be a valid UUID")
	}
	rec, err := h.store.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	return c.JSON(http.StatusOK, rec)
}
