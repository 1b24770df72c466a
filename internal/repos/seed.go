package repos

import (
	"context"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
)

// Demo catalog ids are fixed so API examples stay copy-pasteable.
const (
	SeedHeadphonesID = "7d1f2a5e-3c1b-4e8a-9b6f-0a1d2c3b4e01"
	SeedKeyboardID   = "7d1f2a5e-3c1b-4e8a-9b6f-0a1d2c3b4e02"
	SeedMugID        = "7d1f2a5e-3c1b-4e8a-9b6f-0a1d2c3b4e03"
	SeedPosterID     = "7d1f2a5e-3c1b-4e8a-9b6f-0a1d2c3b4e04"

	SeedCustomerID = "2b9e8c41-6d7a-4f3e-8a21-5c4d3e2f1a01"
	SeedAdminID    = "2b9e8c41-6d7a-4f3e-8a21-5c4d3e2f1a02"
)

func seedIfEmpty(ctx context.Context, db *sqlx.DB) error {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting demo users/products")

	return InTx(ctx, db, func(tx *sqlx.Tx) error {
		users := NewUserRepo(tx)
		for _, u := range []struct{ id, email, name, role, raw string }{
			{SeedCustomerID, "customer@example.com", "John Doe", domain.RoleUser, "customer123"},
			{SeedAdminID, "admin@example.com", "Admin User", domain.RoleAdmin, "admin123"},
		} {
			h, err := bcrypt.GenerateFromPassword([]byte(u.raw), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			if err := users.Create(ctx, domain.User{ID: u.id, Email: u.email, Name: u.name, Role: u.role, Hash: string(h)}); err != nil {
				return err
			}
		}

		prods := NewProductRepo(tx)
		for _, p := range []domain.Product{
			{ID: SeedHeadphonesID, Name: "Wireless Headphones", Price: decimal.RequireFromString("89.99"), Stock: 25, IsActive: true},
			{ID: SeedKeyboardID, Name: "Mechanical Keyboard", Price: decimal.RequireFromString("129.00"), Stock: 10, IsActive: true},
			{ID: SeedMugID, Name: "Ceramic Mug", Price: decimal.RequireFromString("12.50"), Stock: 100, IsActive: true},
			{ID: SeedPosterID, Name: "Vintage Poster", Price: decimal.RequireFromString("24.00"), Stock: 0, IsActive: false},
		} {
			if err := prods.Upsert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}
