package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront_app/internal/models"
	"storefront_app/internal/testutil"
)

const (
	testKeyID     = "rzp_test_abc"
	testKeySecret = "secret_xyz"
	testOwner     = "owner-uid-1"
)

var testBaseTime = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	err      error
	requests []GatewayOrderRequest
	creds    []GatewayCredentials
}

func (g *fakeGateway) factory(creds GatewayCredentials) PaymentGateway {
	g.mu.Lock()
	g.creds = append(g.creds, creds)
	g.mu.Unlock()
	return g
}

func (g *fakeGateway) Name() models.PaymentGateway {
	return models.PaymentGatewayRazorpay
}

func (g *fakeGateway) CreateOrder(_ context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	id := fmt.Sprintf("order_test%d", g.calls)
	return &GatewayOrder{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
		Raw:      map[string]interface{}{"id": id, "amount": req.Amount, "status": "created"},
	}, nil
}

type notifierSpy struct {
	mu     sync.Mutex
	orders []models.Order
}

func (n *notifierSpy) notify(tx *gorm.DB, _ models.Tenant, order models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order)
	return nil
}

type seedOptions struct {
	slug      string
	owner     string
	online    bool
	cod       bool
	plainKeys bool
	noKeys    bool
}

func seedTenant(t *testing.T, db *gorm.DB, vault *CredentialVault, opts seedOptions) *models.Tenant {
	t.Helper()
	if opts.slug == "" {
		opts.slug = "acme"
	}
	if opts.owner == "" {
		opts.owner = testOwner
	}

	tenant := &models.Tenant{
		Slug:           opts.slug,
		Name:           "Acme Crafts",
		Phone:          "9876543210",
		WhatsApp:       "919876543210",
		OwnerUID:       opts.owner,
		Status:         models.TenantStatusActive,
		PaymentMethods: models.PaymentMethods{COD: opts.cod, Online: opts.online},
		GatewayEnabled: opts.online,
		NotifyChannel:  models.NotificationChannelWhatsapp,
	}
	switch {
	case opts.noKeys:
	case opts.plainKeys:
		id, secret := testKeyID, testKeySecret
		tenant.GatewayKeyID = &id
		tenant.GatewayKeySecret = &secret
	default:
		require.NoError(t, vault.Store(tenant, testKeyID, testKeySecret))
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

func seedProduct(t *testing.T, db *gorm.DB, tenantID uint, name string, price int64) models.Product {
	t.Helper()
	p := models.Product{TenantID: tenantID, Name: name, Price: price, ImageURL: "https://cdn.example.com/" + name + ".jpg", IsActive: true}
	require.NoError(t, db.Create(&p).Error)
	return p
}

type paymentFixture struct {
	db       *gorm.DB
	vault    *CredentialVault
	gateway  *fakeGateway
	pub      *recordingPublisher
	notifier *notifierSpy
	svc      *PaymentService
	tenant   *models.Tenant
	product  models.Product
	clock    time.Time
}

func newPaymentFixture(t *testing.T, opts seedOptions) *paymentFixture {
	t.Helper()
	db := testutil.NewDB(t)
	vault := newTestVault(t)
	gw := &fakeGateway{}
	pub := &recordingPublisher{}
	spy := &notifierSpy{}

	f := &paymentFixture{db: db, vault: vault, gateway: gw, pub: pub, notifier: spy, clock: testBaseTime}
	f.svc = NewPaymentService(db, vault, gw.factory, pub, PaymentConfig{
		CommissionPercent: decimal.NewFromInt(5),
		Currency:          "INR",
		IntentTTL:         30 * time.Minute,
	})
	f.svc.now = func() time.Time { return f.clock }
	f.svc.SetOrderNotifier(spy.notify)

	f.tenant = seedTenant(t, db, vault, opts)
	f.product = seedProduct(t, db, f.tenant.ID, "tote-bag", 19900)
	return f
}

func (f *paymentFixture) intentInput() OrderIntentInput {
	return OrderIntentInput{
		TenantSlug: f.tenant.Slug,
		Amount:     19900,
		Customer:   models.CustomerInfo{Name: "Priya", Phone: "9123456780"},
		Address:    models.ShippingAddress{Line1: "12 MG Road", City: "Pune", PostalCode: "411001"},
		Items:      []CheckoutItem{{ProductID: f.product.ID, Quantity: 1}},
		Notes:      "leave at door",
	}
}

func (f *paymentFixture) transaction(t *testing.T, internalID string) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, f.db.Where("internal_order_id = ?", internalID).First(&txn).Error)
	return txn
}

func (f *paymentFixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&n).Error)
	return n
}
