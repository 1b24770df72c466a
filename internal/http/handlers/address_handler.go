package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type AddressHandler struct {
	Addr *services.AddressService
}

const (
	maxNameLen   = 80
	maxStreetLen = 200
	maxCityLen   = 100
)

// validAddress trims and checks a full address in place.
func validAddress(in *services.AddressInput, errs validate.Errors) {
	var okField bool
	if in.FirstName, okField = validate.Text(in.FirstName, maxNameLen); !okField {
		errs.Add("firstName", "required, up to 80 characters")
	}
	if in.LastName, okField = validate.Text(in.LastName, maxNameLen); !okField {
		errs.Add("lastName", "required, up to 80 characters")
	}
	if in.Street, okField = validate.Text(in.Street, maxStreetLen); !okField {
		errs.Add("street", "required, up to 200 characters")
	}
	if in.City, okField = validate.Text(in.City, maxCityLen); !okField {
		errs.Add("city", "required, up to 100 characters")
	}
	if in.State, okField = validate.OptionalText(in.State, maxCityLen); !okField {
		errs.Add("state", "up to 100 characters")
	}
	if in.PostalCode, okField = validate.PostalCode(in.PostalCode); !okField {
		errs.Add("postalCode", "invalid postal code")
	}
	if in.Country, okField = validate.Country(in.Country); !okField {
		errs.Add("country", "must be a two-letter country code")
	}
	if in.Phone, okField = validate.Phone(in.Phone); !okField {
		errs.Add("phone", "invalid phone number")
	}
}

// validPatch checks only the fields present.
func validPatch(p *services.AddressPatch, errs validate.Errors) {
	check := func(field string, v *string, fn func(string) (string, bool), msg string) {
		if v == nil {
			return
		}
		s, okField := fn(*v)
		if !okField {
			errs.Add(field, msg)
		}
		*v = s
	}
	text := func(max int) func(string) (string, bool) {
		return func(s string) (string, bool) { return validate.Text(s, max) }
	}
	check("firstName", p.FirstName, text(maxNameLen), "required, up to 80 characters")
	check("lastName", p.LastName, text(maxNameLen), "required, up to 80 characters")
	check("street", p.Street, text(maxStreetLen), "required, up to 200 characters")
	check("city", p.City, text(maxCityLen), "required, up to 100 characters")
	check("state", p.State, func(s string) (string, bool) { return validate.OptionalText(s, maxCityLen) }, "up to 100 characters")
	check("postalCode", p.PostalCode, validate.PostalCode, "invalid postal code")
	check("country", p.Country, validate.Country, "must be a two-letter country code")
	check("phone", p.Phone, validate.Phone, "invalid phone number")
}

// GET /api/orders/user/addresses
func (h *AddressHandler) List(c *fiber.Ctx) error {
	list, err := h.Addr.List(c.UserContext(), userID(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "", list)
}

// POST /api/orders/user/addresses
func (h *AddressHandler) Create(c *fiber.Ctx) error {
	var in services.AddressInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	errs := validate.Errors{}
	validAddress(&in, errs)
	if !errs.OK() {
		return invalid(c, errs)
	}

	a, err := h.Addr.Create(c.UserContext(), userID(c), in)
	if err != nil {
		return respondErr(c, "address.create", err)
	}
	return respond(c, fiber.StatusCreated, "address created", a)
}

// PUT /api/orders/user/addresses/:id
func (h *AddressHandler) Update(c *fiber.Ctx) error {
	id, okID := validate.ID(c.Params("id"))
	var p services.AddressPatch
	if err := c.BodyParser(&p); err != nil {
		return badBody(c)
	}
	errs := validate.Errors{}
	if !okID {
		errs.Add("id", "must be a valid id")
	}
	validPatch(&p, errs)
	if !errs.OK() {
		return invalid(c, errs)
	}

	a, err := h.Addr.Update(c.UserContext(), userID(c), id, p)
	if err != nil {
		return respondErr(c, "address.update", err)
	}
	return respond(c, fiber.StatusOK, "address updated", a)
}

// DELETE /api/orders/user/addresses/:id
func (h *AddressHandler) Delete(c *fiber.Ctx) error {
	id, okID := validate.ID(c.Params("id"))
	if !okID {
		return invalid(c, validate.Errors{"id": "must be a valid id"})
	}
	if err := h.Addr.Delete(c.UserContext(), userID(c), id); err != nil {
		return respondErr(c, "address.delete", err)
	}
	return respond(c, fiber.StatusOK, "address deleted", nil)
}
