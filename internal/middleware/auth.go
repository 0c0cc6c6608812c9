package middleware

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtConfig(cfg))
}

// OptionalAuth verifies a bearer token when one is sent and lets anonymous
// requests through untouched. A bad token is still rejected.
func OptionalAuth(cfg *config.Config) fiber.Handler {
	jc := jwtConfig(cfg)
	jc.Filter = func(c *fiber.Ctx) bool {
		return c.Get(fiber.HeaderAuthorization) == ""
	}
	return jwtware.New(jc)
}

// RequireUser rejects requests that OptionalAuth let through anonymously.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tenant.GetClaims(c) == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized: sign in required",
			})
		}
		return c.Next()
	}
}

func jwtConfig(cfg *config.Config) jwtware.Config {
	return jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
		// A token is only valid for the municipality it was issued by.
		SuccessHandler: func(c *fiber.Ctx) error {
			claims := tenant.GetClaims(c)
			appID, _ := claims["app_id"].(string)
			if current := tenant.GetAppID(c); current != "" && appID != current {
				return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
					Error: true, Message: "Token was issued for a different app",
				})
			}
			return c.Next()
		},
	}
}
