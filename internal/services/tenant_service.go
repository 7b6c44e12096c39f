package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"

	"storefront_app/internal/apperr"
	"storefront_app/internal/models"
)

const storeCacheTTL = 5 * time.Minute

// TenantService is the admin surface for stores: registration, payment settings, catalog and orders
type TenantService struct {
	db     *gorm.DB
	vault  *CredentialVault
	cache  *RedisCache
	logger *slog.Logger
}

// NewTenantService creates the service; cache may be nil
func NewTenantService(db *gorm.DB, vault *CredentialVault, cache *RedisCache) *TenantService {
	return &TenantService{db: db, vault: vault, cache: cache, logger: slog.Default()}
}

func (s *TenantService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// RegisterTenantInput is the registration form
type RegisterTenantInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Phone    string `json:"phone" validate:"required,min=6,max=20"`
	WhatsApp string `json:"whatsapp" validate:"omitempty,min=6,max=20"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
}

// Slugify lowercases name and collapses every run of other characters into one dash
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "store"
	}
	return slug
}

// RegisterTenant creates a store owned by ownerUID with a unique slug. COD starts enabled
// and online payments start disabled until credentials are configured.
func (s *TenantService) RegisterTenant(ctx context.Context, ownerUID string, in RegisterTenantInput) (*models.Tenant, error) {
	if ownerUID == "" {
		return nil, apperr.Unauthorized("please log in to continue")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, Slugify(in.Name))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	notify := models.NotificationChannelNone
	switch {
	case in.WhatsApp != "":
		notify = models.NotificationChannelWhatsapp
	case in.Email != "":
		notify = models.NotificationChannelEmail
	}

	tenant := models.Tenant{
		Slug:           slug,
		Name:           strings.TrimSpace(in.Name),
		Phone:          in.Phone,
		WhatsApp:       in.WhatsApp,
		Email:          in.Email,
		OwnerUID:       ownerUID,
		Status:         models.TenantStatusActive,
		PaymentMethods: models.PaymentMethods{COD: true},
		NotifyChannel:  notify,
	}
	if err := s.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("store name is taken, please try again")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.InfoContext(ctx, "tenant registered", "tenant_id", tenant.ID, "slug", tenant.Slug)
	return &tenant, nil
}

func (s *TenantService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; n < 1000; n++ {
		var count int64
		if err := s.db.WithContext(ctx).Unscoped().Model(&models.Tenant{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return "", fmt.Errorf("no free slug for %q", base)
}

// ownedTenant loads a tenant and checks that ownerUID manages it
func (s *TenantService) ownedTenant(ctx context.Context, slug, ownerUID string) (*models.Tenant, error) {
	tenant, err := findTenantBySlug(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	if ownerUID == "" || tenant.OwnerUID != ownerUID {
		return nil, apperr.Forbidden("you do not manage this store")
	}
	return tenant, nil
}

// PaymentSettingsInput updates accepted methods and, optionally, gateway keys.
// An empty KeySecret keeps the stored secret.
type PaymentSettingsInput struct {
	KeyID     string `json:"keyId" validate:"omitempty,startswith=rzp_,max=100"`
	KeySecret string `json:"keySecret" validate:"max=200"`
	COD       bool   `json:"cod"`
	Online    bool   `json:"online"`
}

// PaymentSettingsView never includes the secret
type PaymentSettingsView struct {
	COD            bool   `json:"cod"`
	Online         bool   `json:"online"`
	GatewayEnabled bool   `json:"gatewayEnabled"`
	KeyIDHint      string `json:"keyIdHint,omitempty"`
}

// UpdatePaymentSettings stores keys sealed and switches payment methods. Online payments
// cannot be enabled without usable credentials.
func (s *TenantService) UpdatePaymentSettings(ctx context.Context, slug, ownerUID string, in PaymentSettingsInput) (*PaymentSettingsView, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.KeyID == "" && in.KeySecret != "" {
		return nil, apperr.ValidationFields("invalid request", map[string]string{"keyId": "is required"})
	}

	tenant, err := s.ownedTenant(ctx, slug, ownerUID)
	if err != nil {
		return nil, err
	}

	if in.KeyID != "" {
		if err := s.vault.Store(tenant, in.KeyID, in.KeySecret); err != nil {
			switch {
			case errors.Is(err, ErrInvalidKeyID):
				return nil, apperr.ValidationFields("invalid request", map[string]string{"keyId": "must start with " + GatewayKeyIDPrefix})
			case errors.Is(err, ErrCredentialsNotConfigured):
				return nil, apperr.ValidationFields("invalid request", map[string]string{"keySecret": "is required"})
			default:
				return nil, apperr.Internal(err)
			}
		}
	}

	var creds *GatewayCredentials
	if in.Online {
		creds, err = s.vault.Credentials(tenant)
		if err != nil {
			s.logger.WarnContext(ctx, "refusing to enable online payments", "tenant_id", tenant.ID, "err", err)
			return nil, apperr.ConfigurationMsg("gateway credentials are required to enable online payments")
		}
	}

	tenant.PaymentMethods = models.PaymentMethods{COD: in.COD, Online: in.Online}
	tenant.GatewayEnabled = in.Online
	if err := s.db.WithContext(ctx).Model(tenant).
		Select("payment_methods", "gateway_enabled", "gateway_key_id", "gateway_key_secret").
		Updates(tenant).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	s.invalidateStore(ctx, tenant.Slug)

	view := &PaymentSettingsView{COD: in.COD, Online: in.Online, GatewayEnabled: tenant.GatewayEnabled}
	if creds == nil && tenant.HasGatewayCredentials() {
		creds, _ = s.vault.Credentials(tenant)
	}
	if creds != nil {
		view.KeyIDHint = MaskKeyID(creds.KeyID)
	}
	return view, nil
}

// MaskKeyID keeps the key prefix and last four characters
func MaskKeyID(keyID string) string {
	if len(keyID) <= 12 {
		return strings.Repeat("*", len(keyID))
	}
	return keyID[:9] + strings.Repeat("*", len(keyID)-13) + keyID[len(keyID)-4:]
}

// OrderPage is one page of a tenant's orders, newest first
type OrderPage struct {
	Orders   []models.Order `json:"orders"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
}

// ListOrders returns a page of orders for the owner's store
func (s *TenantService) ListOrders(ctx context.Context, slug, ownerUID string, page, pageSize int) (*OrderPage, error) {
	tenant, err := s.ownedTenant(ctx, slug, ownerUID)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	out := &OrderPage{Page: page, PageSize: pageSize, Orders: []models.Order{}}
	q := s.db.WithContext(ctx).Model(&models.Order{}).Where("tenant_id = ?", tenant.ID)
	if err := q.Count(&out.Total).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out.Orders).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// UpdateDeliveryStatus moves an order along the delivery lifecycle. This is the only change
// allowed on an order after it is placed.
func (s *TenantService) UpdateDeliveryStatus(ctx context.Context, slug, ownerUID, orderID string, status models.DeliveryStatus) (*models.Order, error) {
	tenant, err := s.ownedTenant(ctx, slug, ownerUID)
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND order_id = ?", tenant.ID, orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, apperr.Internal(err)
	}

	if !order.DeliveryStatus.CanTransition(status) {
		return nil, apperr.Validation(fmt.Sprintf("cannot change delivery status from %s to %s", order.DeliveryStatus, status))
	}

	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND delivery_status = ?", order.ID, order.DeliveryStatus).
		Update("delivery_status", status)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Conflict("order was updated concurrently, please reload")
	}

	order.DeliveryStatus = status
	return &order, nil
}

// ProductInput creates a product when ID is zero, otherwise updates it
type ProductInput struct {
	ID       uint   `json:"id"`
	Name     string `json:"name" validate:"required,max=255"`
	Price    int64  `json:"price" validate:"gt=0,lte=100000000000"`
	ImageURL string `json:"imageUrl" validate:"omitempty,url,max=2000"`
	IsActive *bool  `json:"isActive"`
}

// UpsertProduct writes a catalog entry for the owner's store
func (s *TenantService) UpsertProduct(ctx context.Context, slug, ownerUID string, in ProductInput) (*models.Product, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tenant, err := s.ownedTenant(ctx, slug, ownerUID)
	if err != nil {
		return nil, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	product := models.Product{TenantID: tenant.ID}
	if in.ID != 0 {
		if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", in.ID, tenant.ID).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("product not found")
			}
			return nil, apperr.Internal(err)
		}
	}

	product.Name = strings.TrimSpace(in.Name)
	product.Price = in.Price
	product.ImageURL = in.ImageURL
	product.IsActive = active

	if err := s.db.WithContext(ctx).Save(&product).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	s.invalidateStore(ctx, tenant.Slug)
	return &product, nil
}

// StoreView is the public payment-facing view of a store
type StoreView struct {
	Slug           string                `json:"slug"`
	Name           string                `json:"name"`
	ContactChannel string                `json:"contactChannel"`
	PaymentMethods models.PaymentMethods `json:"paymentMethods"`
	Products       []ProductView         `json:"products"`
}

// ProductView is a catalog entry as shown to customers
type ProductView struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// PublicStore returns the storefront view, cached in Redis when a cache is configured
func (s *TenantService) PublicStore(ctx context.Context, slug string) (*StoreView, error) {
	load := func() (*StoreView, error) { return s.loadStore(ctx, slug) }
	if s.cache == nil {
		return load()
	}
	return GetOrSet(s.cache, ctx, storeCacheKey(slug), storeCacheTTL, load)
}

func (s *TenantService) loadStore(ctx context.Context, slug string) (*StoreView, error) {
	tenant, err := findTenantBySlug(ctx, s.db, slug)
	if err != nil {
		return nil, err
	}
	if tenant.Status != models.TenantStatusActive {
		return nil, apperr.NotFound("store not found")
	}

	var products []models.Product
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenant.ID, true).
		Order("id").
		Find(&products).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	view := &StoreView{
		Slug:           tenant.Slug,
		Name:           tenant.Name,
		ContactChannel: tenant.ContactChannel(),
		PaymentMethods: models.PaymentMethods{
			COD:    tenant.AcceptsCOD(),
			Online: tenant.AcceptsOnline() && tenant.HasGatewayCredentials(),
		},
		Products: make([]ProductView, 0, len(products)),
	}
	for _, p := range products {
		view.Products = append(view.Products, ProductView{ID: p.ID, Name: p.Name, Price: p.Price, ImageURL: p.ImageURL})
	}
	return view, nil
}

func (s *TenantService) invalidateStore(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, storeCacheKey(slug)); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate store cache", "slug", slug, "err", err)
	}
}

func storeCacheKey(slug string) string {
	return "store:" + slug
}
