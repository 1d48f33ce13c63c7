package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fresh-motors/gateway/internal/auth"
	"github.com/fresh-motors/gateway/internal/config"
	"github.com/fresh-motors/gateway/internal/store"
)

// RegisterRoutes wires the gateway's HTTP surface.
func RegisterRoutes(app *fiber.App, logger *zap.Logger, nc *nats.Conn, sessions *store.Sessions,
	mgr *auth.Manager, h *Handler, cfg *config.Config,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc == nil || !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
			checks["nats"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := sessions.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	session := SessionMiddleware(logger, mgr, cfg)

	// Auth routes live outside the maintenance gate so admins can always log in.
	app.Post("/login", session, h.Login)
	app.Post("/logout", session, h.Logout)
	app.Post("/beacon", session, h.Beacon)

	v1 := app.Group("/api/v1", session, h.MaintenanceGate())
	v1.Get("/articles", h.ListArticles)
	v1.Get("/articles/:slug", h.GetArticle)
	v1.Get("/categories", h.ListCategories)
	v1.Get("/ads", h.ListAds)
	v1.Get("/cars/compare", h.CompareCars)
	v1.Get("/cars/:slug", h.GetCarSpec)
	v1.Get("/settings", h.GetSettings)

	admin := v1.Group("/admin")
	admin.Post("/articles", h.CreateArticle)
	admin.Put("/articles/:slug", h.UpdateArticle)
	admin.Delete("/articles/:slug", h.DeleteArticle)
}
