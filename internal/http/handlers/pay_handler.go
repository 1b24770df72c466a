package handlers

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	html "github.com/gofiber/template/html/v2"

	"storefront/internal/domain"
	"storefront/internal/services"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Views returns the template engine for the stub payment page.
func Views() *html.Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return html.NewFileSystem(http.FS(sub), ".html")
}

// PayHandler serves the page a checkout URL points at. The session id is
// the only credential, as with a hosted payment page.
type PayHandler struct {
	Order *services.OrderService
}

// GET /pay/:sessionId
func (h *PayHandler) Page(c *fiber.Ctx) error {
	sid := c.Params("sessionId")
	if !strings.HasPrefix(sid, "sess_") || len(sid) > 64 {
		return renderPage(c, fiber.StatusNotFound, "notfound", fiber.Map{"Message": "Payment session not found"})
	}
	o, err := h.Order.BySession(c.UserContext(), sid)
	if err != nil {
		if domain.Kind(err) == "NOT_FOUND" {
			return renderPage(c, fiber.StatusNotFound, "notfound", fiber.Map{"Message": "Payment session not found"})
		}
		return err
	}
	return renderPage(c, fiber.StatusOK, "pay", fiber.Map{"Order": o, "SessionID": sid})
}
