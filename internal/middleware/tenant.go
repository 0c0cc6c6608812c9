package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/logging"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// TenantMiddleware resolves the municipality a request belongs to from the
// X-App-ID header, falling back to the app_id query param for EventSource
// clients that cannot set headers. It runs before authentication; the JWT
// middleware later refuses tokens minted for another tenant.
//
// Paths under skipPrefixes (health, static media) carry no tenant.
func TenantMiddleware(registry *tenant.Registry, skipPrefixes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}

		appID, source := c.Get("X-App-ID"), "X-App-ID"
		if appID == "" {
			appID, source = c.Query("app_id"), "app_id"
		}
		if appID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "X-App-ID header is required",
			})
		}

		app, ok := registry.Lookup(appID)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid " + source + ": " + appID,
			})
		}

		c.Locals("app_id", app.AppID)
		c.SetUserContext(logging.WithFields(c.UserContext(), logging.Fields{AppID: app.AppID}))
		return c.Next()
	}
}
