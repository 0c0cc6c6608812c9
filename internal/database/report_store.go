package database

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/models"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/wastewatch/internal/triage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Keeps IN (...) lists well under driver parameter limits.
const idChunk = 500

// ReportStore is the GORM implementation of triage.Store.
type ReportStore struct {
	db *gorm.DB
}

var _ triage.Store = (*ReportStore)(nil)

func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

func (s *ReportStore) tx(ctx context.Context, appID string) *gorm.DB {
	return s.db.WithContext(ctx).Scopes(tenant.ForTenant(appID))
}

func storageErr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return triage.ErrReportNotFound
	}
	return triage.NewStorageError(op, err)
}

func (s *ReportStore) CreateReport(ctx context.Context, r *models.Report) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return storageErr("create report", err)
	}
	return nil
}

func (s *ReportStore) GetReport(ctx context.Context, appID string, id uuid.UUID) (*models.Report, error) {
	var r models.Report
	if err := s.tx(ctx, appID).First(&r, "id = ?", id).Error; err != nil {
		return nil, storageErr("get report", err)
	}
	return &r, nil
}

func (s *ReportStore) ListReports(ctx context.Context, appID string) ([]models.Report, error) {
	var reports []models.Report
	if err := s.tx(ctx, appID).Order("created_at ASC").Find(&reports).Error; err != nil {
		return nil, storageErr("list reports", err)
	}
	return reports, nil
}

func (s *ReportStore) UpdateStatus(ctx context.Context, appID string, id uuid.UUID, from, to models.ReportStatus, resolvedAt *time.Time) (bool, error) {
	result := s.tx(ctx, appID).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":          to,
			"resolution_date": resolvedAt,
		})
	if result.Error != nil {
		return false, storageErr("update status", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *ReportStore) SetAssignee(ctx context.Context, appID string, id, assignee uuid.UUID) (bool, error) {
	result := s.tx(ctx, appID).Model(&models.Report{}).
		Where("id = ? AND status <> ?", id, models.StatusResolved).
		Update("assignee_id", assignee)
	if result.Error != nil {
		return false, storageErr("set assignee", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// UpsertVote relies on the unique (report_id, voter_id) index, so two
// concurrent votes by the same voter can never produce two rows.
func (s *ReportStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_id"}, {Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_type", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return storageErr("upsert vote", err)
	}
	return nil
}

func (s *ReportStore) GetVote(ctx context.Context, appID string, reportID, voterID uuid.UUID) (*models.Vote, error) {
	var v models.Vote
	err := s.tx(ctx, appID).Where("report_id = ? AND voter_id = ?", reportID, voterID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get vote", err)
	}
	return &v, nil
}

func (s *ReportStore) ListVotes(ctx context.Context, appID string, reportID uuid.UUID) ([]models.Vote, error) {
	var votes []models.Vote
	if err := s.tx(ctx, appID).Where("report_id = ?", reportID).Find(&votes).Error; err != nil {
		return nil, storageErr("list votes", err)
	}
	return votes, nil
}

type voteCount struct {
	ReportID uuid.UUID
	VoteType models.VoteType
	N        int
}

type commentCount struct {
	ReportID uuid.UUID
	N        int
}

func (s *ReportStore) Tallies(ctx context.Context, appID string, reportIDs []uuid.UUID) (map[uuid.UUID]triage.Tally, error) {
	out := make(map[uuid.UUID]triage.Tally, len(reportIDs))
	for start := 0; start < len(reportIDs); start += idChunk {
		ids := reportIDs[start:min(start+idChunk, len(reportIDs))]

		var votes []voteCount
		err := s.tx(ctx, appID).Model(&models.Vote{}).
			Select("report_id, vote_type, COUNT(*) AS n").
			Where("report_id IN ?", ids).
			Group("report_id, vote_type").
			Scan(&votes).Error
		if err != nil {
			return nil, storageErr("tally votes", err)
		}
		for _, vc := range votes {
			t := out[vc.ReportID]
			switch vc.VoteType {
			case models.VoteUp:
				t.Up = vc.N
			case models.VoteDown:
				t.Down = vc.N
			}
			out[vc.ReportID] = t
		}

		var comments []commentCount
		err = s.tx(ctx, appID).Model(&models.Comment{}).
			Select("report_id, COUNT(*) AS n").
			Where("report_id IN ?", ids).
			Group("report_id").
			Scan(&comments).Error
		if err != nil {
			return nil, storageErr("tally comments", err)
		}
		for _, cc := range comments {
			t := out[cc.ReportID]
			t.Comments = cc.N
			out[cc.ReportID] = t
		}
	}
	return out, nil
}

func (s *ReportStore) UserVotes(ctx context.Context, appID string, voterID uuid.UUID) (map[uuid.UUID]models.VoteType, error) {
	var votes []models.Vote
	if err := s.tx(ctx, appID).Where("voter_id = ?", voterID).Find(&votes).Error; err != nil {
		return nil, storageErr("list user votes", err)
	}
	out := make(map[uuid.UUID]models.VoteType, len(votes))
	for _, v := range votes {
		out[v.ReportID] = v.VoteType
	}
	return out, nil
}

func (s *ReportStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return storageErr("create comment", err)
	}
	return nil
}

func (s *ReportStore) CountComments(ctx context.Context, appID string, reportID uuid.UUID) (int, error) {
	var n int64
	if err := s.tx(ctx, appID).Model(&models.Comment{}).Where("report_id = ?", reportID).Count(&n).Error; err != nil {
		return 0, storageErr("count comments", err)
	}
	return int(n), nil
}

func (s *ReportStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return storageErr("create message", err)
	}
	return nil
}

func (s *ReportStore) ListMessages(ctx context.Context, appID string, reportID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.tx(ctx, appID).Where("report_id = ?", reportID).Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, storageErr("list messages", err)
	}
	return msgs, nil
}

func (s *ReportStore) CreateResponse(ctx context.Context, r *models.MunicipalityResponse) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return storageErr("create response", err)
	}
	return nil
}

func (s *ReportStore) ListResponses(ctx context.Context, appID string, reportID uuid.UUID) ([]models.MunicipalityResponse, error) {
	var resps []models.MunicipalityResponse
	if err := s.tx(ctx, appID).Where("report_id = ?", reportID).Order("created_at ASC").Find(&resps).Error; err != nil {
		return nil, storageErr("list responses", err)
	}
	return resps, nil
}
