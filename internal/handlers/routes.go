package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	authMiddleware "storefront_app/internal/middleware"
)

// Routes bundles everything the HTTP surface needs
type Routes struct {
	Auth     *AuthHandler
	Checkout *CheckoutHandler
	Webhooks *WebhookHandler
	Tenants  *TenantHandler
	Public   *PublicHandler
	Verifier authMiddleware.TokenVerifier
	Limiter  authMiddleware.Limiter
	Logger   *slog.Logger
}

// Register mounts every route on e
func (r Routes) Register(e *echo.Echo) {
	e.GET("/healthz", r.Public.Healthz)

	api := e.Group("/api")
	api.GET("/stores/:slug", r.Public.ShowStore)

	checkout := api.Group("/checkout")
	checkout.POST("/orders", r.Checkout.CreateOrderIntent, authMiddleware.RateLimit(r.Limiter, "intent", r.Logger))
	checkout.POST("/verify", r.Checkout.VerifyPayment, authMiddleware.RateLimit(r.Limiter, "verify", r.Logger))
	checkout.POST("/cod", r.Checkout.PlaceCashOrder, authMiddleware.RateLimit(r.Limiter, "cod", r.Logger))

	api.POST("/webhooks/razorpay", r.Webhooks.Razorpay)

	api.POST("/auth/login", r.Auth.HandleLogin)
	api.POST("/auth/logout", r.Auth.HandleLogout)

	admin := api.Group("/admin", authMiddleware.RequireAuth(r.Verifier))
	admin.POST("/tenants", r.Tenants.RegisterTenant)
	admin.PUT("/tenants/:slug/payment-settings", r.Tenants.UpdatePaymentSettings)
	admin.GET("/tenants/:slug/orders", r.Tenants.ListOrders)
	admin.PATCH("/tenants/:slug/orders/:orderId", r.Tenants.UpdateDeliveryStatus)
	admin.PUT("/tenants/:slug/products", r.Tenants.UpsertProduct)
}
