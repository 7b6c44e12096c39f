package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
	"storefront_app/internal/services"
)

// CheckoutHandler serves the customer facing payment endpoints
type CheckoutHandler struct {
	payments *services.PaymentService
	cash     *services.CashOrderService
}

func NewCheckoutHandler(payments *services.PaymentService, cash *services.CashOrderService) *CheckoutHandler {
	return &CheckoutHandler{payments: payments, cash: cash}
}

// bindJSON decodes the request body, reporting decode failures as validation errors
func bindJSON(c echo.Context, dest interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dest); err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	return nil
}

// CreateOrderIntent opens an online checkout: POST /api/checkout/orders
func (h *CheckoutHandler) CreateOrderIntent(c echo.Context) error {
	var in services.OrderIntentInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	res, err := h.payments.CreateOrderIntent(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// VerifyPayment confirms a completed checkout: POST /api/checkout/verify
func (h *CheckoutHandler) VerifyPayment(c echo.Context) error {
	var in services.VerifyPaymentInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	res, err := h.payments.VerifyPayment(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// PlaceCashOrder records a cash on delivery order: POST /api/checkout/cod
func (h *CheckoutHandler) PlaceCashOrder(c echo.Context) error {
	var in services.CashOrderInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	res, err := h.cash.PlaceOrder(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
