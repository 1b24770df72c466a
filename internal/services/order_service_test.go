package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/pricing"
	"storefront/internal/repos"
	"storefront/internal/services"
)

func newOrderSvc(t *testing.T) (*services.OrderService, *services.CartService, *repos.ProductRepo) {
	t.Helper()
	db := memdb(t)
	return services.NewOrderService(db, pricing.DefaultRules()), services.NewCartService(db), repos.NewProductRepo(db)
}

func TestOrder_CreateDecrementsStockAndClearsCart(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	db := orders.DB
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 2})
	require.NoError(t, err)

	o, err := orders.Create(ctx, uid, services.CreateOrderInput{Notes: "  leave at door "})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, "leave at door", o.Notes)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Ceramic Mug", o.Items[0].Name)
	assert.Equal(t, 2, o.Items[0].Quantity)

	// 25.00 -> shipping 5.99, tax 5.25
	assert.Equal(t, "25.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "5.99", o.ShippingCost.StringFixed(2))
	assert.Equal(t, "5.25", o.Tax.StringFixed(2))
	assert.Equal(t, "36.24", o.Total.StringFixed(2))

	assert.Equal(t, 98, stockOf(t, db, repos.SeedMugID))
	v, err := cart.Get(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, v.Items)

	pending, err := repos.NewOutboxRepo(db).Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "order.created", pending[0].Topic)
	assert.Contains(t, pending[0].Payload, o.OrderNumber)
}

func TestOrder_EmptyCartCreatesNothing(t *testing.T) {
	orders, _, _ := newOrderSvc(t)

	_, err := orders.Create(context.Background(), repos.SeedCustomerID, services.CreateOrderInput{})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, 0, countRows(t, orders.DB, "orders"))
	assert.Equal(t, 0, countRows(t, orders.DB, "outbox"))
}

func TestOrder_StockDroppedAfterAddRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	db := orders.DB
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	_, err = cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedKeyboardID, Quantity: 5})
	require.NoError(t, err)
	require.NoError(t, repos.NewInventoryRepo(db).SetStock(ctx, repos.SeedKeyboardID, 3))

	_, err = orders.Create(ctx, uid, services.CreateOrderInput{})
	var se *domain.StockError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "Mechanical Keyboard", se.Name)
	assert.Equal(t, 3, se.Available)

	assert.Equal(t, 0, countRows(t, db, "orders"))
	assert.Equal(t, 0, countRows(t, db, "order_items"))
	assert.Equal(t, 100, stockOf(t, db, repos.SeedMugID))
	v, err := cart.Get(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, v.Items, 2)
}

func TestOrder_VariantLinesShareProductStock(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedKeyboardID, Quantity: 6, VariantID: "iso"})
	require.NoError(t, err)
	_, err = cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedKeyboardID, Quantity: 6, VariantID: "ansi"})
	require.NoError(t, err)

	_, err = orders.Create(ctx, uid, services.CreateOrderInput{})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 10, stockOf(t, orders.DB, repos.SeedKeyboardID))
}

func TestOrder_ConcurrentCheckoutsForLastUnits(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	db := orders.DB

	buyers := []string{repos.SeedCustomerID, newUser(t, db)}
	for _, uid := range buyers {
		_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedKeyboardID, Quantity: 10})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, uid := range buyers {
		i, uid := i, uid
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = orders.Create(ctx, uid, services.CreateOrderInput{})
		}()
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, stockOf(t, db, repos.SeedKeyboardID))
	assert.Equal(t, 1, countRows(t, db, "orders"))
}

func TestOrder_ItemsKeepPriceSnapshot(t *testing.T) {
	ctx := context.Background()
	orders, cart, products := newOrderSvc(t)
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedHeadphonesID, Quantity: 1})
	require.NoError(t, err)
	o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)

	p, err := products.Get(ctx, repos.SeedHeadphonesID)
	require.NoError(t, err)
	p.Name = "Wireless Headphones v2"
	p.Price = decimal.RequireFromString("120.00")
	require.NoError(t, products.Upsert(ctx, p))

	again, err := orders.Get(ctx, uid, o.ID)
	require.NoError(t, err)
	require.Len(t, again.Items, 1)
	assert.Equal(t, "Wireless Headphones", again.Items[0].Name)
	assert.Equal(t, "89.99", again.Items[0].Price.StringFixed(2))
	assert.True(t, o.Total.Equal(again.Total))
}

func TestOrder_AddressResolution(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	addrs := services.NewAddressService(orders.DB)
	uid := repos.SeedCustomerID
	other := newUser(t, orders.DB)

	add := func() {
		_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
		require.NoError(t, err)
	}

	// no address at all is allowed by default
	add()
	o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)
	assert.Nil(t, o.AddressID)
	assert.Nil(t, o.Address)

	// inline address is created and attached
	add()
	o, err = orders.Create(ctx, uid, services.CreateOrderInput{Address: &services.AddressInput{
		FirstName: "John", LastName: "Doe", Street: "Gran Via 1", City: "Madrid", PostalCode: "28013",
	}})
	require.NoError(t, err)
	require.NotNil(t, o.Address)
	assert.Equal(t, "ES", o.Address.Country)

	// default address is picked up
	def, err := addrs.Create(ctx, uid, services.AddressInput{
		FirstName: "John", LastName: "Doe", Street: "Calle Mayor 2", City: "Madrid", PostalCode: "28005", IsDefault: true,
	})
	require.NoError(t, err)
	add()
	o, err = orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)
	require.NotNil(t, o.AddressID)
	assert.Equal(t, def.ID, *o.AddressID)

	// someone else's address is not found and nothing is committed
	foreign, err := addrs.Create(ctx, other, services.AddressInput{
		FirstName: "Eve", LastName: "X", Street: "Elm 3", City: "Porto", PostalCode: "4000-001", Country: "PT",
	})
	require.NoError(t, err)
	add()
	_, err = orders.Create(ctx, uid, services.CreateOrderInput{AddressID: foreign.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	v, err := cart.Get(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, v.Items, 1)
}

func TestOrder_RequireAddressPolicy(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	orders.RequireAddress = true

	_, err := cart.Add(ctx, repos.SeedCustomerID, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	_, err = orders.Create(ctx, repos.SeedCustomerID, services.CreateOrderInput{})
	assert.ErrorIs(t, err, domain.ErrAddressRequired)
	assert.Equal(t, 100, stockOf(t, orders.DB, repos.SeedMugID))
}

func TestOrder_ReadsAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	uid := repos.SeedCustomerID
	other := newUser(t, orders.DB)

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)

	_, err = orders.Get(ctx, other, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = orders.GetByNumber(ctx, other, o.OrderNumber)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	byNum, err := orders.GetByNumber(ctx, uid, o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNum.ID)

	// admin scope
	_, err = orders.Get(ctx, "", o.ID)
	assert.NoError(t, err)
}

func TestOrder_ListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	uid := repos.SeedCustomerID

	var numbers []string
	for i := 0; i < 3; i++ {
		_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
		require.NoError(t, err)
		o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
		require.NoError(t, err)
		numbers = append(numbers, o.OrderNumber)
	}

	page1, pg, err := orders.List(ctx, uid, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, pg)
	require.Len(t, page1, 2)
	assert.Equal(t, numbers[2], page1[0].OrderNumber)
	assert.NotEmpty(t, page1[0].Items)

	page2, _, err := orders.List(ctx, uid, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, numbers[0], page2[0].OrderNumber)

	none, pg, err := orders.List(ctx, newUser(t, orders.DB), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 0, pg.Total)
}

func TestOrder_CheckoutSessionIsStable(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	orders.CheckoutBaseURL = "http://shop.test/pay/"
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)

	s1, err := orders.CreateCheckoutSession(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "sess_"+o.OrderNumber, s1.SessionID)
	assert.Equal(t, "http://shop.test/pay/sess_"+o.OrderNumber, s1.CheckoutURL)

	s2, err := orders.CreateCheckoutSession(ctx, uid, o.ID)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	bySess, err := orders.BySession(ctx, s1.SessionID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, bySess.ID)

	_, err = orders.CreateCheckoutSession(ctx, newUser(t, orders.DB), o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = orders.UpdateStatus(ctx, o.ID, "PROCESSING")
	require.NoError(t, err)
	_, err = orders.CreateCheckoutSession(ctx, uid, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOrder_UpdateStatusFollowsTransitions(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	o, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)

	_, err = orders.UpdateStatus(ctx, o.ID, "SHIPPED")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = orders.UpdateStatus(ctx, o.ID, "LOST")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	for _, st := range []string{"processing", "PAID", "SHIPPED"} {
		_, err = orders.UpdateStatus(ctx, o.ID, st)
		require.NoError(t, err, st)
	}
	got, err := orders.UpdateStatus(ctx, o.ID, "REFUNDED")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, got.Status)

	_, err = orders.UpdateStatus(ctx, o.ID, "CANCELLED")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// created + four status changes; rejected moves write nothing
	assert.Equal(t, 5, countRows(t, orders.DB, "outbox"))
}

// memIdem is an in-process IdempotencyStore.
type memIdem struct {
	mu     sync.Mutex
	locked map[string]bool
	done   map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{locked: map[string]bool{}, done: map[string]string{}}
}

func (m *memIdem) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	if m.locked[k] {
		return false, nil
	}
	m.locked[k] = true
	return true, nil
}

func (m *memIdem) Remember(_ context.Context, scope, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	m.done[k] = id
	delete(m.locked, k)
	return nil
}

func (m *memIdem) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.done[scope+":"+key]
	return id, ok, nil
}

func (m *memIdem) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, scope+":"+key)
	return nil
}

func TestOrder_IdempotencyKeyReplaysOrder(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	idem := newMemIdem()
	orders.Idem = idem
	uid := repos.SeedCustomerID

	// a failed attempt releases the key
	_, err := orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0001"})
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	first, err := orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0001"})
	require.NoError(t, err)

	replay, err := orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0001"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, 1, countRows(t, orders.DB, "orders"))

	// in-flight duplicate
	locked, err := idem.TryLock(ctx, uid, "key-0002")
	require.NoError(t, err)
	require.True(t, locked)
	_, err = orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0002"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// A stock change that lands after the pre-check is caught by the guarded
// decrement, and the products already decremented roll back with it.
func TestOrder_DecrementGuardRollsBackEarlierProducts(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	db := orders.DB
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedKeyboardID, Quantity: 1})
	require.NoError(t, err)
	_, err = cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 2})
	require.NoError(t, err)
	keyboard, mug := stockOf(t, db, repos.SeedKeyboardID), stockOf(t, db, repos.SeedMugID)

	// keyboard sorts first, so it is decremented before the mug guard fails
	services.SetBeforeDecrement(orders, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE products SET stock = 1 WHERE id = ?`, repos.SeedMugID)
		return err
	})

	_, err = orders.Create(ctx, uid, services.CreateOrderInput{})
	var se *domain.StockError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, repos.SeedMugID, se.ProductID)
	assert.Equal(t, "Ceramic Mug", se.Name)
	assert.Equal(t, 2, se.Requested)
	assert.Equal(t, 1, se.Available)

	assert.Equal(t, 0, countRows(t, db, "orders"))
	assert.Equal(t, 0, countRows(t, db, "order_items"))
	assert.Equal(t, 0, countRows(t, db, "outbox"))
	assert.Equal(t, keyboard, stockOf(t, db, repos.SeedKeyboardID))
	assert.Equal(t, mug, stockOf(t, db, repos.SeedMugID))
	v, err := cart.Get(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, v.Items, 2)
}

func TestOrder_CommittedOrderSurvivesFailedReload(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	idem := newMemIdem()
	orders.Idem = idem
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 2})
	require.NoError(t, err)
	services.SetReadBack(orders, func(context.Context, string, string) (domain.Order, error) {
		return domain.Order{}, errors.New("read replica lagging")
	})

	o, err := orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0003"})
	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	assert.Equal(t, domain.StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, "25.00", o.Subtotal.StringFixed(2))

	id, ok, err := idem.Recall(ctx, uid, "key-0003")
	require.NoError(t, err)
	assert.True(t, ok, "key stays mapped to the committed order")
	assert.Equal(t, o.ID, id)
	assert.Equal(t, 1, countRows(t, orders.DB, "orders"))
}

// lateIdem hides the mapping on the first Recall, as when another request
// finishes between this request's Recall and TryLock.
type lateIdem struct {
	*memIdem
	calls int
}

func (l *lateIdem) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	l.calls++
	if l.calls == 1 {
		return "", false, nil
	}
	return l.memIdem.Recall(ctx, scope, key)
}

func TestOrder_IdempotencyRechecksAfterLock(t *testing.T) {
	ctx := context.Background()
	orders, cart, _ := newOrderSvc(t)
	uid := repos.SeedCustomerID

	_, err := cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	first, err := orders.Create(ctx, uid, services.CreateOrderInput{})
	require.NoError(t, err)

	idem := &lateIdem{memIdem: newMemIdem()}
	require.NoError(t, idem.Remember(ctx, uid, "key-0004", first.ID))
	orders.Idem = idem

	_, err = cart.Add(ctx, uid, services.AddItem{ProductID: repos.SeedMugID, Quantity: 1})
	require.NoError(t, err)
	got, err := orders.Create(ctx, uid, services.CreateOrderInput{IdempotencyKey: "key-0004"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, countRows(t, orders.DB, "orders"))

	// the lock taken for the recheck is released
	locked, err := idem.TryLock(ctx, uid, "key-0004")
	require.NoError(t, err)
	assert.True(t, locked)
}
