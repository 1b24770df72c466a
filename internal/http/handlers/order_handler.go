package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/metrics"
	"storefront/internal/services"
	"storefront/internal/validate"
)

const idempotencyHeader = "X-Idempotency-Key"

type OrderHandler struct {
	Order *services.OrderService
}

// POST /api/orders
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var in services.CreateOrderInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}

	errs := validate.Errors{}
	if in.AddressID != "" {
		id, okID := validate.ID(in.AddressID)
		if !okID {
			errs.Add("addressId", "must be a valid id")
		}
		in.AddressID = id
	} else if in.Address != nil {
		validAddress(in.Address, errs)
	}
	var okField bool
	if in.Notes, okField = validate.Notes(in.Notes); !okField {
		errs.Add("notes", "up to 500 characters")
	}
	if in.IdempotencyKey, okField = validate.IdempotencyKey(c.Get(idempotencyHeader)); !okField {
		errs.Add(idempotencyHeader, "8 to 128 characters from [A-Za-z0-9_:.-]")
	}
	if !errs.OK() {
		return invalid(c, errs)
	}

	o, err := h.Order.Create(c.UserContext(), userID(c), in)
	if err != nil {
		kind := domain.Kind(err)
		if kind == "" {
			kind = "INTERNAL"
		}
		metrics.ObserveCheckout(kind)
		return respondErr(c, "order.create", err)
	}
	metrics.ObserveCheckout("")
	applog.Audit(c, "order.create", map[string]any{"order_id": o.ID, "order_number": o.OrderNumber, "total": o.Total.StringFixed(2)})
	return respond(c, fiber.StatusCreated, "order created", o)
}

// GET /api/orders
func (h *OrderHandler) List(c *fiber.Ctx) error {
	return h.list(c, userID(c))
}

func (h *OrderHandler) list(c *fiber.Ctx, scope string) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 0)
	orders, pg, err := h.Order.List(c.UserContext(), scope, page, limit)
	if err != nil {
		return err
	}
	return paginated(c, "", orders, pg)
}

// GET /api/orders/:id
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	return h.get(c, userID(c))
}

func (h *OrderHandler) get(c *fiber.Ctx, scope string) error {
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		// malformed ids can't belong to anyone
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "order not found", nil)
	}
	o, err := h.Order.Get(c.UserContext(), scope, id)
	if err != nil {
		return respondErr(c, "order.get", err)
	}
	return respond(c, fiber.StatusOK, "", o)
}

// GET /api/orders/number/:orderNumber
func (h *OrderHandler) GetByNumber(c *fiber.Ctx) error {
	num, okNum := validate.Text(c.Params("orderNumber"), 64)
	if !okNum {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "order not found", nil)
	}
	o, err := h.Order.GetByNumber(c.UserContext(), userID(c), num)
	if err != nil {
		return respondErr(c, "order.get", err)
	}
	return respond(c, fiber.StatusOK, "", o)
}

// POST /api/orders/:id/checkout
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "order not found", nil)
	}
	sess, err := h.Order.CreateCheckoutSession(c.UserContext(), userID(c), id)
	if err != nil {
		return respondErr(c, "order.checkout", err)
	}
	applog.Audit(c, "order.checkout", map[string]any{"order_id": id, "session_id": sess.SessionID})
	return respond(c, fiber.StatusOK, "checkout session created", sess)
}
