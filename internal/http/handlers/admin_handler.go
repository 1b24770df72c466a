package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type AdminHandler struct {
	OrderH *OrderHandler
	Inv    *services.InventoryService
}

// GET /api/admin/orders
func (h *AdminHandler) Orders(c *fiber.Ctx) error {
	return h.OrderH.list(c, "")
}

// GET /api/admin/orders/:id
func (h *AdminHandler) Order(c *fiber.Ctx) error {
	return h.OrderH.get(c, "")
}

type statusRequest struct {
	Status string `json:"status"`
}

// PATCH /api/admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, okID := validate.ID(c.Params("id"))
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if !okID || req.Status == "" {
		return invalid(c, validate.Errors{"status": "id and status are required"})
	}

	o, err := h.OrderH.Order.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		applog.Error(c, "admin.orders.update.fail", err, map[string]any{"order_id": id, "status": req.Status})
		return respondErr(c, "admin.orders.update", err)
	}
	applog.Audit(c, "admin.orders.update", map[string]any{"order_id": id, "status": o.Status})
	return respond(c, fiber.StatusOK, "order status updated", o)
}

// GET /api/admin/inventory
func (h *AdminHandler) Inventory(c *fiber.Ctx) error {
	rows, err := h.Inv.List(c.UserContext())
	if err != nil {
		applog.Error(c, "admin.inventory.list.fail", err, nil)
		return err
	}
	return respond(c, fiber.StatusOK, "", rows)
}

type stockRequest struct {
	Stock *int `json:"stock"`
}

// PUT /api/admin/inventory/:productId
func (h *AdminHandler) UpdateInventory(c *fiber.Ctx) error {
	pid, okID := validate.ID(c.Params("productId"))
	var req stockRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if !okID || req.Stock == nil || *req.Stock < 0 {
		return invalid(c, validate.Errors{"stock": "product id and a non-negative stock are required"})
	}

	if err := h.Inv.SetStock(c.UserContext(), pid, *req.Stock); err != nil {
		applog.Error(c, "admin.inventory.save.fail", err, map[string]any{"product": pid, "qty": *req.Stock})
		return respondErr(c, "admin.inventory.save", err)
	}
	applog.Audit(c, "admin.inventory.save", map[string]any{"product": pid, "qty": *req.Stock})
	avail, err := h.Inv.CheckAvailability(c.UserContext(), pid)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "inventory saved", fiber.Map{"productId": pid, "availability": avail})
}
