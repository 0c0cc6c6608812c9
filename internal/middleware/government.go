package middleware

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/dto"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GovernmentRequired admits municipal staff only. Staff are either listed in
// GOVERNMENT_EMAILS / GOVERNMENT_USER_IDS or carry role=government in the
// users table. Must run after JWTProtected.
func GovernmentRequired(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := tenant.GetClaims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		email, _ := claims["email"].(string)
		sub, _ := claims["sub"].(string)

		if cfg.IsGovernment(email, sub) {
			c.Locals(tenant.GovernmentLocal, true)
			return c.Next()
		}

		// The role claim may be stale; the users table is authoritative.
		if userID, err := uuid.Parse(sub); err == nil {
			var user models.User
			err := db.WithContext(c.UserContext()).
				Scopes(tenant.ForTenant(tenant.GetAppID(c))).
				First(&user, "id = ?", userID).Error
			if err == nil && user.Role == models.RoleGovernment {
				c.Locals(tenant.GovernmentLocal, true)
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Municipality staff access required",
		})
	}
}
