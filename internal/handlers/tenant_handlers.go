package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	authMiddleware "storefront_app/internal/middleware"
	"storefront_app/internal/models"
	"storefront_app/internal/services"
)

// TenantHandler serves the store owner admin API. Every route runs behind RequireAuth.
type TenantHandler struct {
	tenants *services.TenantService
}

func NewTenantHandler(tenants *services.TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// RegisterTenant handles POST /api/admin/tenants
func (h *TenantHandler) RegisterTenant(c echo.Context) error {
	var in services.RegisterTenantInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	tenant, err := h.tenants.RegisterTenant(c.Request().Context(), authMiddleware.UserUID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tenant)
}

// UpdatePaymentSettings handles PUT /api/admin/tenants/:slug/payment-settings
func (h *TenantHandler) UpdatePaymentSettings(c echo.Context) error {
	var in services.PaymentSettingsInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	view, err := h.tenants.UpdatePaymentSettings(c.Request().Context(), c.Param("slug"), authMiddleware.UserUID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// ListOrders handles GET /api/admin/tenants/:slug/orders?page=&pageSize=
func (h *TenantHandler) ListOrders(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))

	out, err := h.tenants.ListOrders(c.Request().Context(), c.Param("slug"), authMiddleware.UserUID(c), page, pageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

type deliveryStatusRequest struct {
	DeliveryStatus models.DeliveryStatus `json:"deliveryStatus"`
}

// UpdateDeliveryStatus handles PATCH /api/admin/tenants/:slug/orders/:orderId
func (h *TenantHandler) UpdateDeliveryStatus(c echo.Context) error {
	var in deliveryStatusRequest
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	order, err := h.tenants.UpdateDeliveryStatus(c.Request().Context(), c.Param("slug"), authMiddleware.UserUID(c), c.Param("orderId"), in.DeliveryStatus)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

// UpsertProduct handles PUT /api/admin/tenants/:slug/products
func (h *TenantHandler) UpsertProduct(c echo.Context) error {
	var in services.ProductInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	product, err := h.tenants.UpsertProduct(c.Request().Context(), c.Param("slug"), authMiddleware.UserUID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, product)
}
