package repos

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

type OrderRepo struct{ db Querier }

func NewOrderRepo(db Querier) *OrderRepo { return &OrderRepo{db: db} }

const orderCols = `id, order_number, user_id, address_id, status, subtotal, shipping_cost, tax, total,
	currency, notes, checkout_session_id, created_at, updated_at`

// ---------- writes (run inside the checkout transaction) ----------

// Insert stores the order header. A duplicate order number is reported as
// domain.ErrConflict.
func (r *OrderRepo) Insert(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	ts := now()
	o.CreatedAt, o.UpdatedAt = ts, ts
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO orders
	    (id, order_number, user_id, address_id, status, subtotal, shipping_cost, tax, total, currency, notes, created_at, updated_at)
	  VALUES
	    (?,  ?,            ?,       ?,          ?,      ?,        ?,             ?,   ?,     ?,        ?,     ?,          ?)
	`, o.ID, o.OrderNumber, o.UserID, o.AddressID, o.Status, o.Subtotal, o.ShippingCost, o.Tax, o.Total, o.Currency, o.Notes, ts, ts)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order number %s already exists", domain.ErrConflict, o.OrderNumber)
	}
	return err
}

// InsertItem stores one frozen line of the order.
func (r *OrderRepo) InsertItem(ctx context.Context, it *domain.OrderItem) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
	  INSERT INTO order_items(id, order_id, product_id, name, price, quantity, variant_info, position)
	  VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.OrderID, it.ProductID, it.Name, it.Price, it.Quantity, it.VariantInfo, it.Position)
	return err
}

// ---------- reads ----------

// Get loads the header. scope is the owning user id; "" skips the owner
// check (admin reads).
func (r *OrderRepo) Get(ctx context.Context, scope, id string) (domain.Order, error) {
	return r.getBy(ctx, "id", scope, id)
}

func (r *OrderRepo) GetByNumber(ctx context.Context, scope, number string) (domain.Order, error) {
	return r.getBy(ctx, "order_number", scope, number)
}

func (r *OrderRepo) getBy(ctx context.Context, col, scope, val string) (domain.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders WHERE ` + col + ` = ?`
	args := []any{val}
	if scope != "" {
		q += ` AND user_id = ?`
		args = append(args, scope)
	}
	var o domain.Order
	if err := r.db.GetContext(ctx, &o, q, args...); err != nil {
		return domain.Order{}, notFound(err, "order")
	}
	return o, nil
}

// Items returns the order lines in the order they were placed.
func (r *OrderRepo) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	items := []domain.OrderItem{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, order_id, product_id, name, price, quantity, variant_info, position
		FROM order_items
		WHERE order_id = ?
		ORDER BY position
	`, orderID)
	return items, err
}

// List pages through orders newest first. scope "" lists every user's orders.
func (r *OrderRepo) List(ctx context.Context, scope string, limit, offset int) ([]domain.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders`
	var args []any
	if scope != "" {
		q += ` WHERE user_id = ?`
		args = append(args, scope)
	}
	q += ` ORDER BY created_at DESC, order_number DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	out := []domain.Order{}
	err := r.db.SelectContext(ctx, &out, q, args...)
	return out, err
}

func (r *OrderRepo) Count(ctx context.Context, scope string) (int, error) {
	q := `SELECT COUNT(*) FROM orders`
	var args []any
	if scope != "" {
		q += ` WHERE user_id = ?`
		args = append(args, scope)
	}
	var n int
	err := r.db.GetContext(ctx, &n, q, args...)
	return n, err
}

// ---------- state changes ----------

// SetCheckoutSession stores sessionID only if the order is still PENDING
// and has no session yet. Reports whether the row changed.
func (r *OrderRepo) SetCheckoutSession(ctx context.Context, orderID, sessionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET checkout_session_id = ?, updated_at = ?
		WHERE id = ? AND checkout_session_id IS NULL AND status = ?
	`, sessionID, now(), orderID, domain.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// BySession finds the order owning a checkout session.
func (r *OrderRepo) BySession(ctx context.Context, sessionID string) (domain.Order, error) {
	var o domain.Order
	err := r.db.GetContext(ctx, &o, `SELECT `+orderCols+` FROM orders WHERE checkout_session_id = ?`, sessionID)
	if err != nil {
		return domain.Order{}, notFound(err, "checkout session")
	}
	return o, nil
}

// UpdateStatusIf moves the order from `from` to `to`. false means somebody
// else changed the status first.
func (r *OrderRepo) UpdateStatusIf(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, to, now(), orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
