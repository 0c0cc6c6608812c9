package triage

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/google/uuid"
)

// Tally is the derived engagement count of one report.
type Tally struct {
	Up       int
	Down     int
	Comments int
}

// Store is the persistence boundary of the engine. Implementations return
// ErrReportNotFound for unknown reports and *StorageError for failures.
// Every call is scoped to one tenant (appID).
type Store interface {
	CreateReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error)
	// ListReports returns the tenant's reports in insertion order.
	ListReports(ctx context.Context, appID string) ([]models.Report, error)
	// UpdateStatus moves a report from one status to another only if it is
	// still in `from`; it reports whether the row changed.
	UpdateStatus(ctx context.Context, appID string, id uuid.UUID, from, to models.ReportStatus, resolvedAt *time.Time) (bool, error)
	// SetAssignee changes the assignee of a report that is not resolved.
	SetAssignee(ctx context.Context, appID string, id, assignee uuid.UUID) (bool, error)

	// UpsertVote inserts or overwrites the vote keyed on (report, voter)
	// atomically.
	UpsertVote(ctx context.Context, v *models.Vote) error
	GetVote(ctx context.Context, appID string, reportID, voterID uuid.UUID) (*models.Vote, error)
	ListVotes(ctx context.Context, appID string, reportID uuid.UUID) ([]models.Vote, error)
	// Tallies counts votes and comments per report for the given ids.
	Tallies(ctx context.Context, appID string, reportIDs []uuid.UUID) (map[uuid.UUID]Tally, error)
	UserVotes(ctx context.Context, appID string, voterID uuid.UUID) (map[uuid.UUID]models.VoteType, error)

	CreateComment(ctx context.Context, c *models.Comment) error
	CountComments(ctx context.Context, appID string, reportID uuid.UUID) (int, error)

	CreateMessage(ctx context.Context, m *models.Message) error
	// ListMessages returns a report's messages oldest first.
	ListMessages(ctx context.Context, appID string, reportID uuid.UUID) ([]models.Message, error)
	CreateResponse(ctx context.Context, r *models.MunicipalityResponse) error
	// ListResponses returns a report's responses oldest first.
	ListResponses(ctx context.Context, appID string, reportID uuid.UUID) ([]models.MunicipalityResponse, error)
}
