package domain

import "github.com/shopspring/decimal"

// Currency every price in the shop is quoted in.
const Currency = "EUR"

type Product struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Currency  string          `db:"currency" json:"currency"`
	Stock     int             `db:"stock" json:"stock"`
	IsActive  bool            `db:"is_active" json:"isActive"`
	CreatedAt string          `db:"created_at" json:"createdAt"`
	UpdatedAt string          `db:"updated_at" json:"updatedAt,omitempty"`
}

// CartLine is one (product, variant, quantity) entry of a user's cart.
// An empty VariantID means the line has no variant.
type CartLine struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"-"`
	ProductID string `db:"product_id" json:"productId"`
	VariantID string `db:"variant_id" json:"variantId,omitempty"`
	Quantity  int    `db:"quantity" json:"quantity"`
	CreatedAt string `db:"created_at" json:"-"`
}

// CartProduct is the live product snapshot joined onto a cart line. It is
// display-only; checkout re-reads product state inside its transaction.
type CartProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Stock    int             `json:"stock"`
	IsActive bool            `json:"isActive"`
}

type CartItem struct {
	CartLine
	Product   CartProduct     `json:"product"`
	ItemTotal decimal.Decimal `json:"itemTotal"`
}

type CartView struct {
	Items     []CartItem      `json:"items"`
	ItemCount int             `json:"itemCount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Currency  string          `json:"currency"`
}

type Address struct {
	ID         string `db:"id" json:"id"`
	UserID     string `db:"user_id" json:"-"`
	FirstName  string `db:"first_name" json:"firstName"`
	LastName   string `db:"last_name" json:"lastName"`
	Street     string `db:"street" json:"street"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state,omitempty"`
	PostalCode string `db:"postal_code" json:"postalCode"`
	Country    string `db:"country" json:"country"`
	Phone      string `db:"phone" json:"phone,omitempty"`
	IsDefault  bool   `db:"is_default" json:"isDefault"`
	CreatedAt  string `db:"created_at" json:"createdAt"`
}

type Order struct {
	ID                string          `db:"id" json:"id"`
	OrderNumber       string          `db:"order_number" json:"orderNumber"`
	UserID            string          `db:"user_id" json:"userId"`
	AddressID         *string         `db:"address_id" json:"addressId"`
	Status            OrderStatus     `db:"status" json:"status"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost      decimal.Decimal `db:"shipping_cost" json:"shippingCost"`
	Tax               decimal.Decimal `db:"tax" json:"tax"`
	Total             decimal.Decimal `db:"total" json:"total"`
	Currency          string          `db:"currency" json:"currency"`
	Notes             string          `db:"notes" json:"notes,omitempty"`
	CheckoutSessionID *string         `db:"checkout_session_id" json:"checkoutSessionId,omitempty"`
	CreatedAt         string          `db:"created_at" json:"createdAt"`
	UpdatedAt         string          `db:"updated_at" json:"updatedAt"`

	Items   []OrderItem `db:"-" json:"items"`
	Address *Address    `db:"-" json:"address"`
}

// OrderItem freezes name and price at order time; later product edits
// never reach it.
type OrderItem struct {
	ID          string          `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"-"`
	ProductID   string          `db:"product_id" json:"productId"`
	Name        string          `db:"name" json:"name"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	VariantInfo string          `db:"variant_info" json:"variantInfo,omitempty"`
	Position    int             `db:"position" json:"-"`
}

type Availability struct {
	Status string `json:"status"` // IN_STOCK | LOW_STOCK | OUT_OF_STOCK
	Qty    int    `json:"qty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}
