package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/validate"
)

type envelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *domain.Pagination `json:"pagination,omitempty"`
	Kind       string             `json:"kind,omitempty"`
	Details    any                `json:"details,omitempty"`
}

func respond(c *fiber.Ctx, status int, msg string, data any) error {
	return c.Status(status).JSON(envelope{Success: true, Message: msg, Data: data})
}

func paginated(c *fiber.Ctx, msg string, data any, p domain.Pagination) error {
	return c.Status(fiber.StatusOK).JSON(envelope{Success: true, Message: msg, Data: data, Pagination: &p})
}

func fail(c *fiber.Ctx, status int, kind, msg string, details any) error {
	return c.Status(status).JSON(envelope{Message: msg, Kind: kind, Details: details})
}

func invalid(c *fiber.Ctx, errs validate.Errors) error {
	return fail(c, fiber.StatusBadRequest, "VALIDATION", "invalid input", errs)
}

func badBody(c *fiber.Ctx) error {
	return fail(c, fiber.StatusBadRequest, "VALIDATION", "malformed request body", nil)
}

// statusFor maps an error kind to its response code.
func statusFor(kind string) int {
	switch kind {
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "CONFLICT":
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

// respondErr answers expected domain failures with a 4xx envelope. Anything
// else goes back to fiber so the app error handler logs it and hides the
// detail behind a 500.
func respondErr(c *fiber.Ctx, action string, err error) error {
	kind := domain.Kind(err)
	if kind == "" {
		return err
	}

	var details any
	var se *domain.StockError
	if errors.As(err, &se) {
		details = fiber.Map{"productId": se.ProductID, "requested": se.Requested, "available": se.Available}
	}
	if kind != "NOT_FOUND" {
		applog.Info(c, action+".rejected", map[string]any{"kind": kind, "reason": err.Error()})
	}
	return fail(c, statusFor(kind), kind, err.Error(), details)
}

// renderPage fills the shared layout fields and renders an HTML view.
func renderPage(c *fiber.Ctx, status int, tmpl string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if rid, ok := c.Locals("requestid").(string); ok {
		data["RequestID"] = rid
	}
	return c.Status(status).Render(tmpl, data)
}
