package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/events"
	applog "storefront/internal/log"
	"storefront/internal/pricing"
	"storefront/internal/repos"
)

// IdempotencyStore guards order creation against double submits. scope is
// the user id so keys from different users never collide.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Remember(ctx context.Context, scope, key, orderID string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
	Release(ctx context.Context, scope, key string) error
}

type CreateOrderInput struct {
	AddressID      string        `json:"addressId"`
	Address        *AddressInput `json:"address"`
	Notes          string        `json:"notes"`
	IdempotencyKey string        `json:"-"`
}

type CheckoutSession struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

type OrderService struct {
	DB    *sqlx.DB
	Rules pricing.Rules

	RequireAddress  bool
	Timeout         time.Duration // bound on the checkout transaction; 0 = caller's ctx only
	CheckoutBaseURL string
	Idem            IdempotencyStore // nil disables X-Idempotency-Key handling

	// test hooks
	beforeDecrement func(ctx context.Context, tx *sqlx.Tx) error
	readBack        func(ctx context.Context, scope, id string) (domain.Order, error)
}

func NewOrderService(db *sqlx.DB, rules pricing.Rules) *OrderService {
	return &OrderService{DB: db, Rules: rules, CheckoutBaseURL: "/pay/"}
}

func newOrderNumber() string { return "ORD-" + ulid.Make().String() }

// Create turns the user's cart into a PENDING order. Stock check, address,
// order rows, stock decrement, cart clearing and the outbox event commit
// together or not at all.
func (s *OrderService) Create(ctx context.Context, userID string, in CreateOrderInput) (domain.Order, error) {
	if in.IdempotencyKey == "" || s.Idem == nil {
		o, err := s.commit(ctx, userID, in)
		if err != nil {
			return domain.Order{}, err
		}
		return s.reload(ctx, userID, o), nil
	}

	key := in.IdempotencyKey
	if id, ok, err := s.Idem.Recall(ctx, userID, key); err != nil {
		return domain.Order{}, err
	} else if ok {
		return s.Get(ctx, userID, id)
	}
	locked, err := s.Idem.TryLock(ctx, userID, key)
	if err != nil {
		return domain.Order{}, err
	}
	if !locked {
		return domain.Order{}, fmt.Errorf("%w: request with this idempotency key is still in progress", domain.ErrConflict)
	}
	// another request may have finished between Recall and TryLock
	if id, ok, err := s.Idem.Recall(ctx, userID, key); err != nil || ok {
		s.release(ctx, userID, key)
		if err != nil {
			return domain.Order{}, err
		}
		return s.Get(ctx, userID, id)
	}

	o, err := s.commit(ctx, userID, in)
	if err != nil {
		s.release(ctx, userID, key)
		return domain.Order{}, err
	}
	if err := s.Idem.Remember(context.WithoutCancel(ctx), userID, key, o.ID); err != nil {
		// the order exists; a lost mapping only weakens replay protection
		applog.L().Warn("order.idempotency.remember_fail", zap.String("order_id", o.ID), zap.Error(err))
	}
	return s.reload(ctx, userID, o), nil
}

func (s *OrderService) release(ctx context.Context, userID, key string) {
	if err := s.Idem.Release(context.WithoutCancel(ctx), userID, key); err != nil {
		applog.L().Warn("order.idempotency.release_fail", zap.String("user_id", userID), zap.Error(err))
	}
}

// reload reads the committed order back. The order is already durable, so a
// failed read falls back to the snapshot built inside the transaction.
func (s *OrderService) reload(ctx context.Context, userID string, snap domain.Order) domain.Order {
	get := s.Get
	if s.readBack != nil {
		get = s.readBack
	}
	o, err := get(context.WithoutCancel(ctx), userID, snap.ID)
	if err != nil {
		applog.L().Warn("order.reload_fail", zap.String("order_id", snap.ID), zap.Error(err))
		return snap
	}
	return o
}

// commit runs the checkout transaction and returns the order as written.
func (s *OrderService) commit(ctx context.Context, userID string, in CreateOrderInput) (domain.Order, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var created domain.Order
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		carts := repos.NewCartRepo(tx)
		items, err := carts.Items(ctx, userID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrEmptyCart
		}

		// Lines of the same product with different variants share one stock
		// counter, so check and decrement the per-product sum.
		need := map[string]int{}
		names := map[string]string{}
		byStock := map[string]int{}
		for _, it := range items {
			if !it.Product.IsActive {
				return fmt.Errorf("%w: %s", domain.ErrUnavailable, it.Product.Name)
			}
			need[it.ProductID] += it.Quantity
			names[it.ProductID] = it.Product.Name
			byStock[it.ProductID] = it.Product.Stock
		}
		productIDs := make([]string, 0, len(need))
		for id, q := range need {
			if q > byStock[id] {
				return &domain.StockError{ProductID: id, Name: names[id], Requested: q, Available: byStock[id]}
			}
			productIDs = append(productIDs, id)
		}
		sort.Strings(productIDs) // fixed lock order across concurrent checkouts

		addr, err := resolveAddress(ctx, repos.NewAddressRepo(tx), userID, in.AddressID, in.Address)
		if err != nil {
			return err
		}
		if addr == nil && s.RequireAddress {
			return domain.ErrAddressRequired
		}

		lines := make([]pricing.Line, 0, len(items))
		for _, it := range items {
			lines = append(lines, pricing.Line{Price: it.Product.Price, Quantity: it.Quantity})
		}
		q := s.Rules.Quote(lines)

		o := domain.Order{
			OrderNumber:  newOrderNumber(),
			UserID:       userID,
			Status:       domain.StatusPending,
			Subtotal:     q.Subtotal,
			ShippingCost: q.ShippingCost,
			Tax:          q.Tax,
			Total:        q.Total,
			Currency:     q.Currency,
			Notes:        strings.TrimSpace(in.Notes),
		}
		if addr != nil {
			o.AddressID = &addr.ID
		}
		orders := repos.NewOrderRepo(tx)
		if err := orders.Insert(ctx, &o); err != nil {
			return err
		}
		for i, it := range items {
			oi := domain.OrderItem{
				OrderID:     o.ID,
				ProductID:   it.ProductID,
				Name:        it.Product.Name,
				Price:       it.Product.Price,
				Quantity:    it.Quantity,
				VariantInfo: it.VariantID,
				Position:    i,
			}
			if err := orders.InsertItem(ctx, &oi); err != nil {
				return err
			}
			o.Items = append(o.Items, oi)
		}
		o.Address = addr

		if s.beforeDecrement != nil {
			if err := s.beforeDecrement(ctx, tx); err != nil {
				return err
			}
		}

		inv := repos.NewInventoryRepo(tx)
		for _, id := range productIDs {
			if err := inv.Decrement(ctx, id, need[id]); err != nil {
				var se *domain.StockError
				if errors.As(err, &se) {
					se.Name = names[id]
				}
				return err
			}
		}

		if _, err := carts.Clear(ctx, userID); err != nil {
			return err
		}

		ev := events.OrderCreated{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			UserID:      userID,
			Total:       o.Total,
			Currency:    o.Currency,
			CreatedAt:   o.CreatedAt,
		}
		for _, id := range productIDs {
			ev.Items = append(ev.Items, events.OrderLine{ProductID: id, Quantity: need[id]})
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := repos.NewOutboxRepo(tx).Insert(ctx, events.TopicOrderCreated, payload); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return created, nil
}

// Get returns the order with items and address. scope "" reads any order.
func (s *OrderService) Get(ctx context.Context, scope, id string) (domain.Order, error) {
	o, err := repos.NewOrderRepo(s.DB).Get(ctx, scope, id)
	if err != nil {
		return domain.Order{}, err
	}
	return s.hydrate(ctx, o)
}

func (s *OrderService) GetByNumber(ctx context.Context, scope, number string) (domain.Order, error) {
	o, err := repos.NewOrderRepo(s.DB).GetByNumber(ctx, scope, number)
	if err != nil {
		return domain.Order{}, err
	}
	return s.hydrate(ctx, o)
}

func (s *OrderService) hydrate(ctx context.Context, o domain.Order) (domain.Order, error) {
	items, err := repos.NewOrderRepo(s.DB).Items(ctx, o.ID)
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = items
	if o.AddressID != nil {
		a, err := repos.NewAddressRepo(s.DB).ByID(ctx, *o.AddressID)
		if err != nil {
			return domain.Order{}, err
		}
		o.Address = a
	}
	return o, nil
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// List pages through orders newest first.
func (s *OrderService) List(ctx context.Context, scope string, page, limit int) ([]domain.Order, domain.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	orders := repos.NewOrderRepo(s.DB)
	total, err := orders.Count(ctx, scope)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	rows, err := orders.List(ctx, scope, limit, (page-1)*limit)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	for i := range rows {
		if rows[i], err = s.hydrate(ctx, rows[i]); err != nil {
			return nil, domain.Pagination{}, err
		}
	}
	if rows == nil {
		rows = []domain.Order{}
	}
	pg := domain.Pagination{Page: page, Limit: limit, Total: total, TotalPages: (total + limit - 1) / limit}
	return rows, pg, nil
}

// CreateCheckoutSession attaches a payment session to a PENDING order. The
// first call stores sess_<orderNumber>; later calls return the same session.
func (s *OrderService) CreateCheckoutSession(ctx context.Context, scope, orderID string) (CheckoutSession, error) {
	orders := repos.NewOrderRepo(s.DB)
	o, err := orders.Get(ctx, scope, orderID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if o.Status != domain.StatusPending {
		return CheckoutSession{}, fmt.Errorf("%w: order is %s, not PENDING", domain.ErrInvalidState, o.Status)
	}
	if o.CheckoutSessionID != nil {
		return s.session(*o.CheckoutSessionID), nil
	}

	sid := "sess_" + o.OrderNumber
	ok, err := orders.SetCheckoutSession(ctx, o.ID, sid)
	if err != nil {
		return CheckoutSession{}, err
	}
	if ok {
		return s.session(sid), nil
	}

	// lost a race: either another call stored the session or the status moved
	o, err = orders.Get(ctx, scope, orderID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if o.Status == domain.StatusPending && o.CheckoutSessionID != nil {
		return s.session(*o.CheckoutSessionID), nil
	}
	return CheckoutSession{}, fmt.Errorf("%w: order is %s, not PENDING", domain.ErrInvalidState, o.Status)
}

func (s *OrderService) session(id string) CheckoutSession {
	return CheckoutSession{CheckoutURL: s.CheckoutBaseURL + id, SessionID: id}
}

// BySession backs the stub payment page.
func (s *OrderService) BySession(ctx context.Context, sessionID string) (domain.Order, error) {
	o, err := repos.NewOrderRepo(s.DB).BySession(ctx, sessionID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.hydrate(ctx, o)
}

// UpdateStatus moves an order along the status graph and records the change
// in the outbox. Stock is not restored on CANCELLED or REFUNDED.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	to, ok := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, status)
	}
	err := repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		orders := repos.NewOrderRepo(tx)
		o, err := orders.Get(ctx, "", orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(to) {
			return fmt.Errorf("%w: cannot move order from %s to %s", domain.ErrInvalidState, o.Status, to)
		}
		moved, err := orders.UpdateStatusIf(ctx, o.ID, o.Status, to)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: order status changed concurrently", domain.ErrConflict)
		}
		payload, err := json.Marshal(events.OrderStatusChanged{OrderID: o.ID, From: string(o.Status), To: string(to)})
		if err != nil {
			return err
		}
		_, err = repos.NewOutboxRepo(tx).Insert(ctx, events.TopicOrderStatusChanged, payload)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	return s.Get(ctx, "", orderID)
}
