package repos

import (
	"context"
	"fmt"

	"storefront/internal/domain"
)

// InventoryRepo is the stock ledger: products.stock is the only
// authoritative quantity-on-hand.
type InventoryRepo struct{ db Querier }

func NewInventoryRepo(db Querier) *InventoryRepo { return &InventoryRepo{db: db} }

// Row used by admin inventory pages
type InventoryRow struct {
	ProductID string `db:"product_id" json:"productId"`
	Name      string `db:"name" json:"name"`
	Stock     int    `db:"stock" json:"stock"`
	IsActive  bool   `db:"is_active" json:"isActive"`
}

// ListAll returns every product's stock, for /admin/inventory.
func (r *InventoryRepo) ListAll(ctx context.Context) ([]InventoryRow, error) {
	rows := []InventoryRow{}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id AS product_id, name, stock, is_active
		FROM products
		ORDER BY name
	`)
	return rows, err
}

// Stock returns current stock for a product.
func (r *InventoryRepo) Stock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := r.db.GetContext(ctx, &qty, `SELECT stock FROM products WHERE id = ?`, productID)
	if err != nil {
		return 0, notFound(err, "product")
	}
	return qty, nil
}

// Decrement subtracts by units in one conditional statement. When the guard
// fails nothing changes and a *domain.StockError reports what is left.
func (r *InventoryRepo) Decrement(ctx context.Context, productID string, by int) error {
	if by <= 0 {
		return fmt.Errorf("%w: decrement by %d", domain.ErrInvalidInput, by)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?
		WHERE id = ? AND stock >= ?
	`, by, productID, by)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	left, err := r.Stock(ctx, productID)
	if err != nil {
		return err
	}
	return &domain.StockError{ProductID: productID, Requested: by, Available: left}
}

// SetStock overwrites the quantity on hand (admin restock / correction).
func (r *InventoryRepo) SetStock(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: stock must be >= 0", domain.ErrInvalidInput)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`, qty, now(), productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: product", domain.ErrNotFound)
	}
	return nil
}
