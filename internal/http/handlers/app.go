package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"storefront/internal/config"
	applog "storefront/internal/log"
	"storefront/internal/metrics"
)

// NewApp wires middleware and routes. Tests build the same app over an
// in-memory database.
func NewApp(d *Deps, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
		Views:   Views(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
				return fail(c, fe.Code, "", fe.Message, nil)
			}
			// Log and show a friendly message
			applog.Error(c, "server.error", err, nil)
			return fail(c, fiber.StatusInternalServerError, "INTERNAL", "Something went wrong. Please try again.", nil)
		},
	})
	// Global body size guard
	bodyLimit := cfg.App.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	app.Server().MaxRequestBodySize = bodyLimit

	// ---------- Middlewares ----------
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{Output: applog.Writer()}))
	app.Use(helmet.New())
	app.Use(metrics.Middleware())
	if cfg.App.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.App.RateLimit,
			Expiration: time.Minute,
			Next: func(c *fiber.Ctx) bool {
				p := c.Path()
				return p == "/healthz" || p == "/metrics"
			},
			LimitReached: func(c *fiber.Ctx) error {
				applog.Security(c, "rate.global.hit", nil)
				return fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry soon", nil)
			},
		}))
	}

	requireUser := RequireUser(d.Auth)
	api := app.Group("/api")

	// Auth (login throttled)
	api.Post("/auth/login", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|login"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, please try again later", nil)
		},
	}), d.AuthHandler.Login)

	// Public availability
	availLimiter := limiter.New(limiter.Config{
		Max:        15,
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|avail"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.availability.hit", nil)
			return fail(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded, retry soon", nil)
		},
	})
	api.Get("/products/:id/availability", availLimiter, d.InventoryHandler.Check)

	// Cart
	cart := api.Group("/cart", requireUser)
	cart.Get("/", d.CartHandler.View)
	cart.Post("/", d.CartHandler.Add)
	cart.Delete("/", d.CartHandler.Clear)
	cart.Post("/merge", d.CartHandler.Merge)
	cart.Put("/:id", d.CartHandler.Update)
	cart.Delete("/:id", d.CartHandler.Remove)

	// Orders & addresses
	orders := api.Group("/orders", requireUser)
	orders.Post("/", d.OrderHandler.Create)
	orders.Get("/", d.OrderHandler.List)
	orders.Get("/number/:orderNumber", d.OrderHandler.GetByNumber)
	orders.Get("/user/addresses", d.AddressHandler.List)
	orders.Post("/user/addresses", d.AddressHandler.Create)
	orders.Put("/user/addresses/:id", d.AddressHandler.Update)
	orders.Delete("/user/addresses/:id", d.AddressHandler.Delete)
	orders.Get("/:id", d.OrderHandler.Get)
	orders.Post("/:id/checkout", d.OrderHandler.Checkout)

	// Admin
	admin := api.Group("/admin", requireUser, RequireAdmin())
	admin.Get("/orders", d.AdminHandler.Orders)
	admin.Get("/orders/:id", d.AdminHandler.Order)
	admin.Patch("/orders/:id/status", d.AdminHandler.UpdateOrderStatus)
	admin.Get("/inventory", d.AdminHandler.Inventory)
	admin.Put("/inventory/:productId", d.AdminHandler.UpdateInventory)

	// Stub payment page
	app.Get("/pay/:sessionId", d.PayHandler.Page)

	// Health, metrics & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/metrics", metrics.Handler())
	app.Use(func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api") {
			return fail(c, fiber.StatusNotFound, "NOT_FOUND", "route not found", nil)
		}
		return renderPage(c, fiber.StatusNotFound, "notfound", fiber.Map{"Message": "Page not found"})
	})
	return app
}
