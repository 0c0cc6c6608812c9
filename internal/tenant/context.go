package tenant

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Locals key set by the government middleware once staff access is proven.
const GovernmentLocal = "government"

// GetAppID extracts the app_id from Fiber context locals.
func GetAppID(c *fiber.Ctx) string {
	if appID, ok := c.Locals("app_id").(string); ok {
		return appID
	}
	return ""
}

// GetClaims returns the verified JWT claims, or nil for anonymous requests.
func GetClaims(c *fiber.Ctx) jwt.MapClaims {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID extracts the user UUID from JWT claims in context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	claims := GetClaims(c)
	if claims == nil {
		return uuid.Nil, errors.New("invalid token in context")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}

	return uuid.Parse(sub)
}

// GetActor builds the identity the triage controller runs a request as.
func GetActor(c *fiber.Ctx) triage.Actor {
	actor := triage.Actor{AppID: GetAppID(c)}

	if id, err := GetUserID(c); err == nil && id != uuid.Nil {
		actor.UserID = &id
	}
	if staff, ok := c.Locals(GovernmentLocal).(bool); ok && staff {
		actor.Government = true
	} else if claims := GetClaims(c); claims != nil {
		role, _ := claims["role"].(string)
		actor.Government = role == models.RoleGovernment
	}
	return actor
}
