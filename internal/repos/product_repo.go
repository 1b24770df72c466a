package repos

import (
	"context"

	"storefront/internal/domain"
)

type ProductRepo struct{ db Querier }

func NewProductRepo(db Querier) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `id, name, price, currency, stock, is_active, created_at, updated_at`

// Get always reads the row fresh; nothing in this package caches products.
func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.GetContext(ctx, &p, `SELECT `+productCols+` FROM products WHERE id = ?`, id)
	if err != nil {
		return domain.Product{}, notFound(err, "product")
	}
	return p, nil
}

// Upsert writes catalog fields. The catalog itself is owned elsewhere; this
// exists for seeding and catalog sync.
func (r *ProductRepo) Upsert(ctx context.Context, p domain.Product) error {
	if p.Currency == "" {
		p.Currency = domain.Currency
	}
	ts := now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET name = ?, price = ?, currency = ?, stock = ?, is_active = ?, updated_at = ?
		WHERE id = ?`, p.Name, p.Price, p.Currency, p.Stock, p.IsActive, ts, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products(id, name, price, currency, stock, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, p.ID, p.Name, p.Price, p.Currency, p.Stock, p.IsActive, ts, ts)
	return err
}
