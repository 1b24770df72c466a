package handlers

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"storefront/internal/config"
	"storefront/internal/pricing"
	"storefront/internal/services"
)

type Deps struct {
	Auth *services.AuthService

	AuthHandler      *AuthHandler
	CartHandler      *CartHandler
	OrderHandler     *OrderHandler
	AddressHandler   *AddressHandler
	InventoryHandler *InventoryHandler
	AdminHandler     *AdminHandler
	PayHandler       *PayHandler
}

// NewDeps builds services and handlers. idem may be nil, which turns off
// idempotency keys on checkout.
func NewDeps(db *sqlx.DB, cfg config.Config, idem services.IdempotencyStore) (*Deps, error) {
	rules, err := pricing.ParseRules(
		cfg.Pricing.FreeShippingThreshold,
		cfg.Pricing.FlatShippingRate,
		cfg.Pricing.TaxRate,
		cfg.Pricing.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("pricing rules: %w", err)
	}

	authSvc := services.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TTL)
	cartSvc := services.NewCartService(db)
	cartSvc.Currency = rules.Currency
	invSvc := services.NewInventoryService(db)
	addrSvc := services.NewAddressService(db)

	orderSvc := services.NewOrderService(db, rules)
	orderSvc.RequireAddress = cfg.Checkout.RequireAddress
	orderSvc.Timeout = cfg.Checkout.Timeout
	if cfg.Payments.CheckoutBaseURL != "" {
		orderSvc.CheckoutBaseURL = cfg.Payments.CheckoutBaseURL
	}
	orderSvc.Idem = idem

	orderH := &OrderHandler{Order: orderSvc}
	return &Deps{
		Auth:             authSvc,
		AuthHandler:      &AuthHandler{Auth: authSvc},
		CartHandler:      &CartHandler{Cart: cartSvc},
		OrderHandler:     orderH,
		AddressHandler:   &AddressHandler{Addr: addrSvc},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
		AdminHandler:     &AdminHandler{OrderH: orderH, Inv: invSvc},
		PayHandler:       &PayHandler{Order: orderSvc},
	}, nil
}
