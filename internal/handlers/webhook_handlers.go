package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
	"storefront_app/internal/services"
)

const (
	maxWebhookBody = 1 << 20

	headerRazorpaySignature = "X-Razorpay-Signature"
	headerRazorpayEventID   = "X-Razorpay-Event-Id"
)

// WebhookHandler receives gateway pushed payment events
type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Razorpay handles POST /api/webhooks/razorpay. The signature covers the exact bytes sent, so
// the body is read raw and never re-encoded.
func (h *WebhookHandler) Razorpay(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return apperr.Validation("could not read webhook body")
	}
	if len(body) > maxWebhookBody {
		return apperr.Validation("webhook body too large")
	}

	req := c.Request()
	res, err := h.webhooks.Handle(req.Context(), body, req.Header.Get(headerRazorpaySignature), req.Header.Get(headerRazorpayEventID))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"outcome": res.Outcome,
	})
}
