// Package httpserver serves the operational HTTP surface: health, the server
// public key and Prometheus metrics.
package httpserver

import (
	"context"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Options configures the HTTP app.
type Options struct {
	ServerPublicKey string
	Checks          map[string]Check
	Registry        prometheus.Registerer
	Log             *zap.Logger
}

// New builds the fiber app.
func New(o Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "whisperchain",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				o.Log.Warn("http", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	reg := o.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	prom := fiberprometheus.NewWithRegistry(reg, "whisperchain", "http", "", nil)
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)

	app.Get("/health", health(o.Checks))
	app.Get("/api/v1/crypto/server-public-key", func(c *fiber.Ctx) error {
		if o.ServerPublicKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "server key unavailable")
		}
		return c.JSON(fiber.Map{"publicKey": o.ServerPublicKey})
	})
	return app
}

func health(checks map[string]Check) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		code, overall := fiber.StatusOK, "healthy"
		results := fiber.Map{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "unhealthy"
				code, overall = fiber.StatusServiceUnavailable, "unhealthy"
				continue
			}
			results[name] = "healthy"
		}
		return c.Status(code).JSON(fiber.Map{
			"status": overall,
			"checks": results,
			"time":   time.Now().UTC(),
		})
	}
}
