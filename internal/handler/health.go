package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the service cannot run without
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store    Pinger
	services map[string]bool
}

// NewHealthHandler reports store reachability plus the static
// configuration state of the optional backends.
func NewHealthHandler(store Pinger, services map[string]bool) *HealthHandler {
	return &HealthHandler{store: store, services: services}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	storeOK := h.store.Ping(ctx) == nil

	services := fiber.Map{"store": storeOK}
	for name, ok := range h.services {
		services[name] = ok
	}

	status := "ok"
	code := fiber.StatusOK
	if !storeOK {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}
