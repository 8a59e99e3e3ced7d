package manufacturer

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/woundcare/intake/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/manufacturers", auth.RequireRole("provider", "office_admin", "order_management"))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	m, err := h.svc.GetConfig(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "manufacturer not found")
	}
	return c.JSON(http.StatusOK, m)
}
