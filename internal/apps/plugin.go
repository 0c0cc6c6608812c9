package apps

import (
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Plugin defines the interface every feature module must implement.
type Plugin interface {
	// ID returns the unique plugin identifier.
	ID() string

	// Models returns the list of GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts routes on the /api/p group. The group carries
	// optional auth: handlers see claims when a valid token was sent.
	RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}

// StaffPlugin extends Plugin with municipality-staff route registration.
type StaffPlugin interface {
	Plugin

	// RegisterStaffRoutes mounts routes on the /api/staff group, which has
	// both JWT and government middleware applied.
	RegisterStaffRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config)
}
