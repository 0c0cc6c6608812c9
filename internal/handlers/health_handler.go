package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	registry    *tenant.Registry
	liveBackend string
	ping        func(context.Context) error
}

// NewHealthHandler reports on the database reached through ping and the
// configured live backend ("memory" or "redis").
func NewHealthHandler(registry *tenant.Registry, liveBackend string, ping func(context.Context) error) *HealthHandler {
	return &HealthHandler{registry: registry, liveBackend: liveBackend, ping: ping}
}

// Check answers 503 while the database is unreachable so load balancers
// take the instance out of rotation.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthPingTimeout)
	defer cancel()

	resp := dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        "ok",
		Live:      h.liveBackend,
		AppCount:  h.registry.Len(),
	}
	if err := h.ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.DB = "unhealthy: " + err.Error()
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
