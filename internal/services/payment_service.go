package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

var errSignatureMismatch = errors.New("payment signature mismatch")

// PaymentConfig holds the platform settings snapshotted onto every transaction
type PaymentConfig struct {
	CommissionPercent decimal.Decimal
	Currency          string
	IntentTTL         time.Duration
	AllowClientPrices bool
}

// PaymentService runs the online checkout: order intent creation and client-side payment verification
type PaymentService struct {
	db        *gorm.DB
	vault     *CredentialVault
	gateways  GatewayFactory
	catalog   *Catalog
	publisher Publisher
	notify    OrderNotifier
	cfg       PaymentConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewPaymentService(db *gorm.DB, vault *CredentialVault, gateways GatewayFactory, publisher Publisher, cfg PaymentConfig) *PaymentService {
	return &PaymentService{
		db:        db,
		vault:     vault,
		gateways:  gateways,
		catalog:   NewCatalog(db),
		publisher: publisher,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetOrderNotifier registers the hook run when a paid order is first recorded
func (s *PaymentService) SetOrderNotifier(notify OrderNotifier) {
	s.notify = notify
}

// OrderIntentInput is a purchase request from the storefront
type OrderIntentInput struct {
	TenantSlug string                 `json:"tenantId" validate:"required,max=100"`
	Amount     int64                  `json:"amount" validate:"gt=0,lte=100000000000"`
	Customer   models.CustomerInfo    `json:"customer"`
	Address    models.ShippingAddress `json:"address"`
	Items      []CheckoutItem         `json:"items" validate:"required,min=1,max=50,dive"`
	Notes      string                 `json:"notes" validate:"max=1000"`
}

// OrderIntentResult is what the client needs to open the gateway checkout
type OrderIntentResult struct {
	RemoteOrderID   string    `json:"remoteOrderId"`
	PublicKeyID     string    `json:"publicKeyId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	InternalOrderID string    `json:"internalOrderId"`
	Breakdown       Breakdown `json:"breakdown"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// CreateOrderIntent validates the request, records a pending transaction, creates the remote
// gateway order and links it. A gateway failure leaves the transaction failed, never pending
// without a remote id.
func (s *PaymentService) CreateOrderIntent(ctx context.Context, in OrderIntentInput) (*OrderIntentResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	tenant, err := findTenantBySlug(ctx, s.db, in.TenantSlug)
	if err != nil {
		return nil, err
	}
	if !tenant.AcceptsOnline() {
		return nil, apperr.ConfigurationMsg("online payments are not enabled for this store")
	}

	creds, err := s.vault.Credentials(tenant)
	if err != nil {
		s.logger.WarnContext(ctx, "tenant gateway credentials unusable", "tenant_id", tenant.ID, "err", err)
		return nil, apperr.Configuration(err)
	}

	items, total, err := s.catalog.Snapshot(ctx, tenant.ID, in.Items, s.cfg.AllowClientPrices)
	if err != nil {
		return nil, err
	}
	if total != in.Amount {
		return nil, apperr.ValidationFields("amount does not match items", map[string]string{
			"amount": fmt.Sprintf("expected %d", total),
		})
	}

	internalID, err := NewOrderID()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	split := SplitCommission(total, s.cfg.CommissionPercent)
	now := s.now()

	gateway := s.gateways(*creds)
	req := GatewayOrderRequest{
		Amount:   total,
		Currency: s.cfg.Currency,
		Receipt:  internalID,
		Notes: map[string]string{
			"tenant":            tenant.Slug,
			"internal_order_id": internalID,
		},
	}
	reqMeta, _ := json.Marshal(req)

	txn := models.Transaction{
		InternalOrderID:   internalID,
		PaymentGateway:    gateway.Name(),
		TenantID:          tenant.ID,
		Status:            models.TransactionStatusPending,
		TotalAmount:       split.Total,
		CommissionAmount:  split.Commission,
		SellerAmount:      split.Seller,
		CommissionPercent: split.Percent,
		Currency:          s.cfg.Currency,
		CustomerName:      in.Customer.Name,
		CustomerPhone:     in.Customer.Phone,
		OrderSnapshot: &models.OrderSnapshot{
			Customer: in.Customer,
			Address:  in.Address,
			Items:    items,
			Notes:    in.Notes,
		},
		RequestMetadata: reqMeta,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&txn).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("failed to record transaction: %w", err))
	}

	order, gwErr := gateway.CreateOrder(ctx, req)
	if gwErr != nil {
		s.failIntent(ctx, &txn, models.FailureReasonGatewayError)
		s.logger.ErrorContext(ctx, "gateway order creation failed", "tenant_id", tenant.ID, "order_id", internalID, "err", gwErr)
		return nil, apperr.Upstream("payment gateway is unavailable, please try again", gwErr)
	}

	respMeta, _ := json.Marshal(order.Raw)
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
		Updates(map[string]interface{}{
			"gateway_order_id":  order.ID,
			"response_metadata": json.RawMessage(respMeta),
		})
	if res.Error != nil || res.RowsAffected != 1 {
		s.failIntent(ctx, &txn, models.FailureReasonGatewayError)
		return nil, apperr.Internal(fmt.Errorf("failed to link gateway order %s: rows=%d err=%v", order.ID, res.RowsAffected, res.Error))
	}

	s.logger.InfoContext(ctx, "order intent created",
		"tenant_id", tenant.ID,
		"order_id", internalID,
		"gateway_order_id", order.ID,
		"amount", total,
	)

	return &OrderIntentResult{
		RemoteOrderID:   order.ID,
		PublicKeyID:     creds.KeyID,
		Amount:          total,
		Currency:        s.cfg.Currency,
		InternalOrderID: internalID,
		Breakdown:       split.Breakdown(),
		ExpiresAt:       now.Add(s.cfg.IntentTTL),
	}, nil
}

func (s *PaymentService) failIntent(ctx context.Context, txn *models.Transaction, reason string) {
	ok, err := markFailed(context.WithoutCancel(ctx), s.db, txn.ID, reason)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark transaction failed", "order_id", txn.InternalOrderID, "err", err)
		return
	}
	if ok {
		txn.Status = models.TransactionStatusFailed
		txn.FailureReason = &reason
		publishBestEffort(ctx, s.logger, s.publisher, TopicPaymentFailed, txn.InternalOrderID, paymentEventFrom(*txn, "intent", s.now()))
	}
}

// VerifyPaymentInput is the confirmation the client returns after paying
type VerifyPaymentInput struct {
	RemoteOrderID   string                `json:"remoteOrderId" validate:"required,max=100"`
	RemotePaymentID string                `json:"remotePaymentId" validate:"required,max=100"`
	Signature       string                `json:"signature" validate:"required,max=256"`
	TenantSlug      string                `json:"tenantId" validate:"max=100"`
	OrderMetadata   *models.OrderSnapshot `json:"orderMetadata,omitempty"`
}

// TransactionSummary is the ledger view returned to the customer
type TransactionSummary struct {
	ID              uint      `json:"id"`
	InternalOrderID string    `json:"internalOrderId"`
	PaymentID       string    `json:"paymentId"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Breakdown       Breakdown `json:"breakdown"`
}

// BusinessContact tells the customer how to reach the store
type BusinessContact struct {
	Name           string `json:"name"`
	ContactChannel string `json:"contactChannel"`
}

// VerifyPaymentResult is returned on successful verification
type VerifyPaymentResult struct {
	Success          bool               `json:"success"`
	OrderID          string             `json:"orderId"`
	AlreadyProcessed bool               `json:"alreadyProcessed"`
	Transaction      TransactionSummary `json:"transaction"`
	Business         BusinessContact    `json:"business"`
}

// VerifyPayment checks the client supplied signature with the tenant's secret, completes the
// transaction and records the order. Calling it again with the same confirmation returns the
// same result without a second order or a new completion time.
func (s *PaymentService) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*VerifyPaymentResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where("gateway_order_id = ?", in.RemoteOrderID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("transaction not found")
		}
		return nil, apperr.Internal(err)
	}

	tenant, err := findTenantByID(ctx, s.db, txn.TenantID)
	if err != nil {
		return nil, err
	}
	if in.TenantSlug != "" && in.TenantSlug != tenant.Slug {
		return nil, apperr.NotFound("transaction not found")
	}

	creds, err := s.vault.Credentials(tenant)
	if err != nil {
		s.logger.WarnContext(ctx, "tenant gateway credentials unusable", "tenant_id", tenant.ID, "err", err)
		return nil, apperr.Configuration(err)
	}

	log := s.logger.With("tenant_id", tenant.ID, "order_id", txn.InternalOrderID, "payment_id", in.RemotePaymentID)

	if !VerifyPaymentSignature(in.RemoteOrderID, in.RemotePaymentID, in.Signature, creds.KeySecret) {
		log.WarnContext(ctx, "payment signature rejected", "status", txn.Status)
		if txn.Status == models.TransactionStatusPending {
			s.failIntent(ctx, &txn, models.FailureReasonSignatureMismatch)
		}
		return nil, apperr.Authenticity(errSignatureMismatch)
	}

	switch txn.Status {
	case models.TransactionStatusFailed:
		return nil, apperr.Conflict("this payment attempt has failed, please start a new checkout")
	case models.TransactionStatusRefunded:
		return nil, apperr.Conflict("this payment has been refunded")
	case models.TransactionStatusPending:
		if txn.ExpiredAt(s.now(), s.cfg.IntentTTL) {
			log.WarnContext(ctx, "payment confirmation after intent expiry")
			s.failIntent(ctx, &txn, models.FailureReasonExpired)
			return nil, apperr.Conflict("the payment session has expired, please start a new checkout")
		}
	}

	if !SplitCommission(txn.TotalAmount, txn.CommissionPercent).matches(txn) {
		return nil, apperr.Internal(fmt.Errorf("transaction %s split does not reconcile", txn.InternalOrderID))
	}

	var (
		transitioned bool
		order        models.Order
		orderCreated bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completedAt := s.now()
		ok, err := transitionTransaction(ctx, tx, txn.ID, models.TransactionStatusPending, models.TransactionStatusCompleted, map[string]interface{}{
			"gateway_payment_id": in.RemotePaymentID,
			"completed_at":       completedAt,
		})
		if err != nil {
			return err
		}
		transitioned = ok

		if err := tx.First(&txn, txn.ID).Error; err != nil {
			return err
		}
		if txn.Status != models.TransactionStatusCompleted {
			return apperr.Conflict("this payment attempt is no longer payable")
		}
		if txn.GatewayPaymentID != nil && *txn.GatewayPaymentID != in.RemotePaymentID {
			return apperr.Conflict("this order was already paid with a different payment")
		}

		order = onlineOrderFrom(txn, in.OrderMetadata)
		orderCreated, err = insertOrder(ctx, tx, *tenant, &order, s.notify)
		return err
	})
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Internal(err)
	}

	if transitioned {
		log.InfoContext(ctx, "payment verified")
		publishBestEffort(ctx, s.logger, s.publisher, TopicPaymentCompleted, txn.InternalOrderID, paymentEventFrom(txn, "verify", s.now()))
	}
	if orderCreated {
		publishBestEffort(ctx, s.logger, s.publisher, TopicOrderPlaced, orderEventKey(order), orderPlacedEventFrom(order, s.now()))
	}

	paymentID := ""
	if txn.GatewayPaymentID != nil {
		paymentID = *txn.GatewayPaymentID
	}

	return &VerifyPaymentResult{
		Success:          true,
		OrderID:          txn.InternalOrderID,
		AlreadyProcessed: !transitioned && !orderCreated,
		Transaction: TransactionSummary{
			ID:              txn.ID,
			InternalOrderID: txn.InternalOrderID,
			PaymentID:       paymentID,
			Status:          string(txn.Status),
			Amount:          txn.TotalAmount,
			Currency:        txn.Currency,
			Breakdown:       SplitCommission(txn.TotalAmount, txn.CommissionPercent).Breakdown(),
		},
		Business: BusinessContact{
			Name:           tenant.Name,
			ContactChannel: tenant.ContactChannel(),
		},
	}, nil
}

func (s Split) matches(t models.Transaction) bool {
	return s.Commission == t.CommissionAmount &&
		s.Seller == t.SellerAmount &&
		t.CommissionAmount+t.SellerAmount == t.TotalAmount
}

// onlineOrderFrom builds the order record from the snapshot stored at intent time. Client
// metadata is only used for rows that carry no snapshot; amounts always come from the ledger.
func onlineOrderFrom(txn models.Transaction, clientMeta *models.OrderSnapshot) models.Order {
	snapshot := txn.OrderSnapshot
	if snapshot == nil {
		snapshot = clientMeta
	}
	if snapshot == nil {
		snapshot = &models.OrderSnapshot{
			Customer: models.CustomerInfo{Name: txn.CustomerName, Phone: txn.CustomerPhone},
		}
	}

	txnID := txn.ID
	return models.Order{
		TenantID:      txn.TenantID,
		OrderID:       txn.InternalOrderID,
		TransactionID: &txnID,
		Customer:      snapshot.Customer,
		Address:       snapshot.Address,
		Items:         snapshot.Items,
		ItemCount:     ItemCount(snapshot.Items),
		Notes:         snapshot.Notes,
		Payment: models.OrderPayment{
			Method:           models.PaymentMethodOnline,
			Status:           models.OrderPaymentStatusPaid,
			TotalAmount:      txn.TotalAmount,
			CommissionAmount: txn.CommissionAmount,
			SellerAmount:     txn.SellerAmount,
			Currency:         txn.Currency,
		},
		DeliveryStatus: models.DeliveryStatusPending,
	}
}
