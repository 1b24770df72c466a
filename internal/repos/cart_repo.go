package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

type CartRepo struct{ db Querier }

func NewCartRepo(db Querier) *CartRepo { return &CartRepo{db: db} }

type cartRow struct {
	domain.CartLine
	Name     string          `db:"name"`
	Price    decimal.Decimal `db:"price"`
	Currency string          `db:"currency"`
	Stock    int             `db:"stock"`
	IsActive bool            `db:"is_active"`
}

// Items returns the user's lines joined with the live product row, newest
// first.
func (r *CartRepo) Items(ctx context.Context, userID string) ([]domain.CartItem, error) {
	var rows []cartRow
	if err := r.db.SelectContext(ctx, &rows, `
	  SELECT ci.id, ci.user_id, ci.product_id, ci.variant_id, ci.quantity, ci.created_at,
	         p.name, p.price, p.currency, p.stock, p.is_active
	  FROM cart_items ci JOIN products p ON p.id = ci.product_id
	  WHERE ci.user_id = ?
	  ORDER BY ci.created_at DESC, ci.id
	`, userID); err != nil {
		return nil, err
	}
	out := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.CartItem{
			CartLine: row.CartLine,
			Product: domain.CartProduct{
				ID:       row.ProductID,
				Name:     row.Name,
				Price:    row.Price,
				Currency: row.Currency,
				Stock:    row.Stock,
				IsActive: row.IsActive,
			},
		})
	}
	return out, nil
}

// Find looks up the line for (user, product, variant); nil when absent.
func (r *CartRepo) Find(ctx context.Context, userID, productID, variantID string) (*domain.CartLine, error) {
	var l domain.CartLine
	err := r.db.GetContext(ctx, &l, `
		SELECT id, user_id, product_id, variant_id, quantity, created_at
		FROM cart_items
		WHERE user_id = ? AND product_id = ? AND variant_id = ?
	`, userID, productID, variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Line fetches one line; ownership is part of the predicate.
func (r *CartRepo) Line(ctx context.Context, userID, lineID string) (domain.CartLine, error) {
	var l domain.CartLine
	err := r.db.GetContext(ctx, &l, `
		SELECT id, user_id, product_id, variant_id, quantity, created_at
		FROM cart_items WHERE id = ? AND user_id = ?
	`, lineID, userID)
	if err != nil {
		return domain.CartLine{}, notFound(err, "cart item")
	}
	return l, nil
}

func (r *CartRepo) Insert(ctx context.Context, userID, productID, variantID string, qty int) (domain.CartLine, error) {
	l := domain.CartLine{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
		CreatedAt: now(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items(id, user_id, product_id, variant_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.UserID, l.ProductID, l.VariantID, l.Quantity, l.CreatedAt, l.CreatedAt)
	if isUniqueViolation(err) {
		return domain.CartLine{}, fmt.Errorf("%w: cart line already exists", domain.ErrConflict)
	}
	return l, err
}

func (r *CartRepo) SetQuantity(ctx context.Context, userID, lineID string, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ? AND user_id = ?
	`, qty, now(), lineID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: cart item", domain.ErrNotFound)
	}
	return nil
}

func (r *CartRepo) Delete(ctx context.Context, userID, lineID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND user_id = ?`, lineID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: cart item", domain.ErrNotFound)
	}
	return nil
}

// Clear removes every line of the user and reports how many went.
func (r *CartRepo) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
