package citizenreports

import (
	"context"
	"sync"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/config"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/database"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/live"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/media"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CitizenReportsPlugin serves report filing, voting, discussion, municipal
// responses and the live update stream.
type CitizenReportsPlugin struct {
	broker live.Broker
	media  media.Store
	// base bounds live streams; cancelled on server shutdown.
	base context.Context

	once    sync.Once
	handler *Handler
}

func New(base context.Context, broker live.Broker, store media.Store) *CitizenReportsPlugin {
	return &CitizenReportsPlugin{base: base, broker: broker, media: store}
}

func (p *CitizenReportsPlugin) ID() string { return "citizenreports" }

func (p *CitizenReportsPlugin) Models() []interface{} {
	return []interface{}{
		&models.Report{},
		&models.Vote{},
		&models.Comment{},
		&models.Message{},
		&models.MunicipalityResponse{},
	}
}

// Public and staff routes share one controller so they share its row locks
// and tally cache.
func (p *CitizenReportsPlugin) setup(db *gorm.DB, cfg *config.Config) *Handler {
	p.once.Do(func() {
		ctrl := NewController(db, cfg, p.broker)
		p.handler = NewHandler(ctrl, p.broker, p.media, HandlerOptions{
			Base:      p.base,
			Heartbeat: cfg.LiveHeartbeat,
		})
	})
	return p.handler
}

// NewController wires the triage controller to the GORM store.
func NewController(db *gorm.DB, cfg *config.Config, pub triage.Publisher) *triage.Controller {
	return triage.NewController(database.NewReportStore(db), pub, triage.Options{
		Policy: triage.TrendingPolicy{
			Min:      cfg.TrendingMin,
			Fraction: cfg.TrendingFraction,
		},
		Location: cfg.StatsLocation(),
	})
}

func (p *CitizenReportsPlugin) RegisterRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := p.setup(db, cfg)
	signedIn := middleware.RequireUser()

	router.Get("/reports", h.ListReports)
	router.Get("/reports/trending", h.Trending)
	router.Get("/reports/stats", h.Stats)
	router.Post("/reports", h.CreateReport)
	router.Get("/reports/:id", h.GetReport)
	router.Get("/reports/:id/messages", h.ListMessages)
	router.Get("/reports/:id/responses", h.ListResponses)
	router.Get("/reports/:id/live", h.Live)

	router.Post("/reports/:id/vote", signedIn, h.Vote)
	router.Post("/reports/:id/comments", signedIn, h.PostComment)
	router.Post("/reports/:id/messages", signedIn, h.PostMessage)
}

func (p *CitizenReportsPlugin) RegisterStaffRoutes(router fiber.Router, db *gorm.DB, cfg *config.Config) {
	h := p.setup(db, cfg)

	router.Put("/reports/:id/status", h.UpdateStatus)
	router.Put("/reports/:id/assignee", h.Assign)
	router.Post("/reports/:id/responses", h.PostResponse)
}
