package services

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"storefront_app/internal/models"
)

// GatewayOrderRequest asks the gateway to open a checkout session for an exact amount
type GatewayOrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the remote order the client completes payment against
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Raw      map[string]interface{}
}

// PaymentGateway creates remote orders with one tenant's credentials
type PaymentGateway interface {
	Name() models.PaymentGateway
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error)
}

// GatewayFactory builds a gateway bound to a tenant's credentials.
// There is no platform-level fallback client.
type GatewayFactory func(creds GatewayCredentials) PaymentGateway

// RazorpayGateway wraps the Razorpay orders API
type RazorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(creds GatewayCredentials) PaymentGateway {
	return &RazorpayGateway{client: razorpay.NewClient(creds.KeyID, creds.KeySecret)}
}

func (g *RazorpayGateway) Name() models.PaymentGateway {
	return models.PaymentGatewayRazorpay
}

// CreateOrder creates a Razorpay order for the exact minor-unit amount
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order error: %w", err)
	}

	order, err := parseRazorpayOrder(body)
	if err != nil {
		return nil, err
	}
	if order.Amount != req.Amount {
		return nil, fmt.Errorf("razorpay order %s amount %d does not match requested %d", order.ID, order.Amount, req.Amount)
	}
	return order, nil
}

func parseRazorpayOrder(body map[string]interface{}) (*GatewayOrder, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order returned no id")
	}

	amount, ok := toInt64(body["amount"])
	if !ok {
		return nil, fmt.Errorf("razorpay order %s has no amount", id)
	}

	currency, _ := body["currency"].(string)
	status, _ := body["status"].(string)

	return &GatewayOrder{
		ID:       id,
		Amount:   amount,
		Currency: currency,
		Status:   status,
		Raw:      body,
	}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
