package domain

import (
	"errors"
	"fmt"
)

// Expected, caller-actionable failures. Services wrap them with context
// (fmt.Errorf("%w: ...")) and handlers map them to 4xx responses.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("product is not available")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrAddressRequired   = errors.New("shipping address required")
	ErrInvalidInput      = errors.New("invalid input")
)

// StockError names the product that could not be served and how many units
// are left.
type StockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: only %d available", name, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Kind returns the stable machine-readable code for err, or "" for
// unexpected errors.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrAddressRequired):
		return "ADDRESS_REQUIRED"
	case errors.Is(err, ErrInvalidInput):
		return "VALIDATION"
	}
	return ""
}
