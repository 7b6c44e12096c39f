package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

func TestCreateOrderIntent(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true, cod: true})
	ctx := context.Background()

	res, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	assert.Equal(t, "order_test1", res.RemoteOrderID)
	assert.Equal(t, testKeyID, res.PublicKeyID)
	assert.Equal(t, int64(19900), res.Amount)
	assert.Equal(t, "INR", res.Currency)
	assert.Regexp(t, `^ord_[0-9a-f]{32}$`, res.InternalOrderID)
	assert.Equal(t, "199.00", res.Breakdown.Total.StringFixed(2))
	assert.Equal(t, "9.95", res.Breakdown.PlatformFee.StringFixed(2))
	assert.Equal(t, "189.05", res.Breakdown.SellerAmount.StringFixed(2))
	assert.True(t, res.ExpiresAt.Equal(testBaseTime.Add(30*time.Minute)))

	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, int64(19900), f.gateway.requests[0].Amount)
	assert.Equal(t, res.InternalOrderID, f.gateway.requests[0].Receipt)
	assert.Equal(t, GatewayCredentials{KeyID: testKeyID, KeySecret: testKeySecret}, f.gateway.creds[0])

	txn := f.transaction(t, res.InternalOrderID)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	require.NotNil(t, txn.GatewayOrderID)
	assert.Equal(t, "order_test1", *txn.GatewayOrderID)
	assert.Nil(t, txn.GatewayPaymentID)
	assert.Equal(t, int64(19900), txn.TotalAmount)
	assert.Equal(t, int64(995), txn.CommissionAmount)
	assert.Equal(t, int64(18905), txn.SellerAmount)
	assert.True(t, txn.CommissionPercent.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, f.tenant.ID, txn.TenantID)
	assert.Equal(t, "Priya", txn.CustomerName)
	require.NotNil(t, txn.OrderSnapshot)
	require.Len(t, txn.OrderSnapshot.Items, 1)
	assert.Equal(t, "tote-bag", txn.OrderSnapshot.Items[0].Name)
	assert.NotEmpty(t, txn.ResponseMetadata)

	assert.Zero(t, f.orderCount(t), "an intent must not create an order")
}

func TestCreateOrderIntentValidation(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(in *OrderIntentInput)
		wantField string
	}{
		{"zero amount", func(in *OrderIntentInput) { in.Amount = 0 }, "amount"},
		{"negative amount", func(in *OrderIntentInput) { in.Amount = -100 }, "amount"},
		{"missing tenant", func(in *OrderIntentInput) { in.TenantSlug = "" }, "tenantId"},
		{"missing customer name", func(in *OrderIntentInput) { in.Customer.Name = "" }, "customer.name"},
		{"missing phone", func(in *OrderIntentInput) { in.Customer.Phone = "" }, "customer.phone"},
		{"missing address", func(in *OrderIntentInput) { in.Address.Line1 = "" }, "address.line1"},
		{"no items", func(in *OrderIntentInput) { in.Items = nil }, "items"},
		{"zero quantity", func(in *OrderIntentInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"amount differs from catalog", func(in *OrderIntentInput) { in.Amount = 100 }, "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.intentInput()
			tt.mutate(&in)

			_, err := f.svc.CreateOrderIntent(ctx, in)
			appErr, ok := apperr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			assert.Contains(t, appErr.Fields, tt.wantField)
		})
	}

	assert.Zero(t, f.gateway.calls)
	var n int64
	require.NoError(t, f.db.Model(&models.Transaction{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreateOrderIntentUnknownItem(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})

	in := f.intentInput()
	in.Items = []CheckoutItem{{ProductID: 9999, Name: "ghost", UnitPrice: 19900, Quantity: 1}}

	_, err := f.svc.CreateOrderIntent(context.Background(), in)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateOrderIntentRejectsTenantState(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown store", func(t *testing.T) {
		f := newPaymentFixture(t, seedOptions{online: true})
		in := f.intentInput()
		in.TenantSlug = "nope"
		_, err := f.svc.CreateOrderIntent(ctx, in)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("online disabled", func(t *testing.T) {
		f := newPaymentFixture(t, seedOptions{cod: true})
		_, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	})

	t.Run("plaintext credentials fail closed", func(t *testing.T) {
		f := newPaymentFixture(t, seedOptions{online: true, plainKeys: true})
		_, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
		assert.Equal(t, apperr.MsgPaymentNotConfigured, apperr.PublicMessage(err))
		assert.Zero(t, f.gateway.calls)
	})

	t.Run("missing credentials", func(t *testing.T) {
		f := newPaymentFixture(t, seedOptions{online: true, noKeys: true})
		_, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
		assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
		assert.Zero(t, f.gateway.calls)
	})
}

func TestCreateOrderIntentGatewayFailureMarksFailed(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	f.gateway.err = errors.New("connection reset by peer")

	_, err := f.svc.CreateOrderIntent(context.Background(), f.intentInput())
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.NotContains(t, apperr.PublicMessage(err), "connection reset")

	var txns []models.Transaction
	require.NoError(t, f.db.Find(&txns).Error)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionStatusFailed, txns[0].Status)
	assert.Nil(t, txns[0].GatewayOrderID)
	require.NotNil(t, txns[0].FailureReason)
	assert.Equal(t, models.FailureReasonGatewayError, *txns[0].FailureReason)

	assert.Equal(t, []string{TopicPaymentFailed}, f.pub.topics())
}

func TestVerifyPayment(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	f.clock = testBaseTime.Add(2 * time.Minute)
	res, err := f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, intent.InternalOrderID, res.OrderID)
	assert.Equal(t, "pay_001", res.Transaction.PaymentID)
	assert.Equal(t, "completed", res.Transaction.Status)
	assert.Equal(t, int64(19900), res.Transaction.Amount)
	assert.Equal(t, "9.95", res.Transaction.Breakdown.PlatformFee.StringFixed(2))
	assert.Equal(t, "Acme Crafts", res.Business.Name)
	assert.Equal(t, "919876543210", res.Business.ContactChannel)

	txn := f.transaction(t, intent.InternalOrderID)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.CompletedAt)
	assert.True(t, txn.CompletedAt.Equal(f.clock))
	assert.Equal(t, int64(995)+int64(18905), txn.TotalAmount)

	var order models.Order
	require.NoError(t, f.db.Where("tenant_id = ? AND order_id = ?", f.tenant.ID, intent.InternalOrderID).First(&order).Error)
	require.NotNil(t, order.TransactionID)
	assert.Equal(t, txn.ID, *order.TransactionID)
	assert.Equal(t, models.PaymentMethodOnline, order.Payment.Method)
	assert.Equal(t, models.OrderPaymentStatusPaid, order.Payment.Status)
	assert.Equal(t, int64(19900), order.Payment.TotalAmount)
	assert.Equal(t, int64(995), order.Payment.CommissionAmount)
	assert.Equal(t, models.DeliveryStatusPending, order.DeliveryStatus)
	assert.Equal(t, "Priya", order.Customer.Name)
	assert.Equal(t, "12 MG Road", order.Address.Line1)
	require.Len(t, order.Items, 1)
	assert.Equal(t, f.product.ID, order.Items[0].ProductID)
	assert.Equal(t, int64(19900), order.Items[0].UnitPrice)
	assert.Equal(t, 1, order.ItemCount)

	assert.Len(t, f.notifier.orders, 1)
	assert.Equal(t, []string{TopicPaymentCompleted, TopicOrderPlaced}, f.pub.topics())
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	in := VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
	}

	f.clock = testBaseTime.Add(time.Minute)
	_, err = f.svc.VerifyPayment(ctx, in)
	require.NoError(t, err)
	first := f.transaction(t, intent.InternalOrderID)

	f.clock = testBaseTime.Add(5 * time.Minute)
	again, err := f.svc.VerifyPayment(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyProcessed)

	second := f.transaction(t, intent.InternalOrderID)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt), "completed_at must not move")
	assert.Equal(t, int64(1), f.orderCount(t))
	assert.Len(t, f.notifier.orders, 1)
	assert.Equal(t, []string{TopicPaymentCompleted, TopicOrderPlaced}, f.pub.topics())
}

func TestVerifyPaymentWrongSignature(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", "attacker-guess"),
	})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindAuthenticity, appErr.Kind)
	assert.Equal(t, apperr.MsgVerificationFailed, appErr.PublicMsg)

	txn := f.transaction(t, intent.InternalOrderID)
	assert.Equal(t, models.TransactionStatusFailed, txn.Status)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, models.FailureReasonSignatureMismatch, *txn.FailureReason)
	assert.Nil(t, txn.CompletedAt)
	assert.Zero(t, f.orderCount(t))
	assert.Empty(t, f.notifier.orders)

	// a correct signature afterwards cannot revive the failed attempt
	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, f.orderCount(t))
}

func TestVerifyPaymentWrongSignatureLeavesCompletedAlone(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)
	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
	})
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       "deadbeef",
	})
	assert.Equal(t, apperr.KindAuthenticity, apperr.KindOf(err))
	assert.Equal(t, models.TransactionStatusCompleted, f.transaction(t, intent.InternalOrderID).Status)
}

func TestVerifyPaymentExpired(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	f.clock = testBaseTime.Add(31 * time.Minute)
	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	txn := f.transaction(t, intent.InternalOrderID)
	assert.Equal(t, models.TransactionStatusFailed, txn.Status)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, models.FailureReasonExpired, *txn.FailureReason)
	assert.Zero(t, f.orderCount(t))
}

func TestVerifyPaymentLookupFailures(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   "order_unknown",
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature("order_unknown", "pay_001", testKeySecret),
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	other := seedTenant(t, f.db, f.vault, seedOptions{slug: "other-shop", online: true})
	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
		RemoteOrderID:   intent.RemoteOrderID,
		RemotePaymentID: "pay_001",
		Signature:       PaymentSignature(intent.RemoteOrderID, "pay_001", testKeySecret),
		TenantSlug:      other.Slug,
	})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, models.TransactionStatusPending, f.transaction(t, intent.InternalOrderID).Status)

	_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{RemoteOrderID: intent.RemoteOrderID})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerifyPaymentRejectsSecondPaymentID(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	intent, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	for i, paymentID := range []string{"pay_001", "pay_002"} {
		_, err = f.svc.VerifyPayment(ctx, VerifyPaymentInput{
			RemoteOrderID:   intent.RemoteOrderID,
			RemotePaymentID: paymentID,
			Signature:       PaymentSignature(intent.RemoteOrderID, paymentID, testKeySecret),
		})
		if i == 0 {
			require.NoError(t, err)
		} else {
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}

	txn := f.transaction(t, intent.InternalOrderID)
	require.NotNil(t, txn.GatewayPaymentID)
	assert.Equal(t, "pay_001", *txn.GatewayPaymentID)
	assert.Equal(t, int64(1), f.orderCount(t))
}

func TestExpireStalePending(t *testing.T) {
	f := newPaymentFixture(t, seedOptions{online: true})
	ctx := context.Background()

	stale, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	f.clock = testBaseTime.Add(20 * time.Minute)
	fresh, err := f.svc.CreateOrderIntent(ctx, f.intentInput())
	require.NoError(t, err)

	expired, err := ExpireStalePending(ctx, f.db, 30*time.Minute, testBaseTime.Add(40*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.InternalOrderID, expired[0].InternalOrderID)

	assert.Equal(t, models.TransactionStatusFailed, f.transaction(t, stale.InternalOrderID).Status)
	assert.Equal(t, models.TransactionStatusPending, f.transaction(t, fresh.InternalOrderID).Status)

	again, err := ExpireStalePending(ctx, f.db, 30*time.Minute, testBaseTime.Add(40*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again)
}
