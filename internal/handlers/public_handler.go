package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"storefront_app/internal/services"
)

// PublicHandler serves unauthenticated storefront reads and health checks
type PublicHandler struct {
	db      *gorm.DB
	tenants *services.TenantService
}

func NewPublicHandler(db *gorm.DB, tenants *services.TenantService) *PublicHandler {
	return &PublicHandler{db: db, tenants: tenants}
}

// ShowStore handles GET /api/stores/:slug
func (h *PublicHandler) ShowStore(c echo.Context) error {
	view, err := h.tenants.PublicStore(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Healthz reports whether the database answers
func (h *PublicHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
