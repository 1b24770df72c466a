package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type InventoryHandler struct {
	Inv *services.InventoryService
}

// GET /api/products/:id/availability
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	productID, okID := validate.ID(c.Params("id"))
	if !okID {
		return invalid(c, validate.Errors{"id": "must be a valid id"})
	}
	avail, err := h.Inv.CheckAvailability(c.UserContext(), productID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", avail)
}
