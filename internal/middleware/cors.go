package middleware

import (
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// Headers browsers may send: X-App-ID selects the tenant and Last-Event-ID
// resumes a live stream.
var corsHeaders = []string{
	fiber.HeaderOrigin,
	fiber.HeaderContentType,
	fiber.HeaderAuthorization,
	fiber.HeaderAccept,
	"X-App-ID",
	"Last-Event-ID",
}

func CORS(cfg *config.Config) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  strings.Join(corsHeaders, ", "),
		AllowMethods:  strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodOptions}, ", "),
		ExposeHeaders: "Retry-After",
		MaxAge:        int((12 * time.Hour).Seconds()),
	})
}
