package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type CartHandler struct {
	Cart *services.CartService
}

// validItem normalizes one requested line. Quantity 0 means "one unit".
func validItem(in *services.AddItem, errs validate.Errors) {
	if id, ok := validate.ID(in.ProductID); ok {
		in.ProductID = id
	} else {
		errs.Add("productId", "must be a valid id")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	checkQty(in.Quantity, errs)
	v, ok := validate.OptionalText(in.VariantID, 64)
	if !ok {
		errs.Add("variantId", "too long")
	}
	in.VariantID = v
}

func checkQty(n int, errs validate.Errors) {
	switch {
	case n < 1:
		errs.Add("quantity", "must be a positive number")
	case !validate.Qty(n):
		errs.Add("quantity", fmt.Sprintf("must not exceed %d", validate.MaxQty))
	}
}

// GET /api/cart
func (h *CartHandler) View(c *fiber.Ctx) error {
	view, err := h.Cart.Get(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", view)
}

// POST /api/cart
func (h *CartHandler) Add(c *fiber.Ctx) error {
	var in services.AddItem
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	errs := validate.Errors{}
	validItem(&in, errs)
	if !errs.OK() {
		return invalid(c, errs)
	}

	view, err := h.Cart.Add(c.UserContext(), userID(c), in)
	if err != nil {
		return respondErr(c, "cart.add", err)
	}
	return respond(c, fiber.StatusOK, "item added to cart", view)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// PUT /api/cart/:id
func (h *CartHandler) Update(c *fiber.Ctx) error {
	lineID, okID := validate.ID(c.Params("id"))
	var req quantityRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	errs := validate.Errors{}
	if !okID {
		errs.Add("id", "must be a valid id")
	}
	checkQty(req.Quantity, errs)
	if !errs.OK() {
		return invalid(c, errs)
	}

	view, err := h.Cart.UpdateQuantity(c.UserContext(), userID(c), lineID, req.Quantity)
	if err != nil {
		return respondErr(c, "cart.update", err)
	}
	return respond(c, fiber.StatusOK, "cart updated", view)
}

// DELETE /api/cart/:id
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	lineID, okID := validate.ID(c.Params("id"))
	if !okID {
		return invalid(c, validate.Errors{"id": "must be a valid id"})
	}
	view, err := h.Cart.Remove(c.UserContext(), userID(c), lineID)
	if err != nil {
		return respondErr(c, "cart.remove", err)
	}
	return respond(c, fiber.StatusOK, "item removed", view)
}

// DELETE /api/cart
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	view, err := h.Cart.Clear(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "cart cleared", view)
}

type mergeRequest struct {
	Items []services.AddItem `json:"items"`
}

const maxMergeLines = 100

// POST /api/cart/merge
func (h *CartHandler) Merge(c *fiber.Ctx) error {
	var req mergeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if len(req.Items) > maxMergeLines {
		return invalid(c, validate.Errors{"items": "too many lines"})
	}

	// bad lines are dropped, the same way the service drops unknown products
	lines := make([]services.AddItem, 0, len(req.Items))
	for _, in := range req.Items {
		// oversized lines are clamped here and then to stock by the service
		in.Quantity = min(in.Quantity, validate.MaxQty)
		errs := validate.Errors{}
		validItem(&in, errs)
		if errs.OK() {
			lines = append(lines, in)
		}
	}

	view, err := h.Cart.Merge(c.UserContext(), userID(c), lines)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "cart merged", view)
}
