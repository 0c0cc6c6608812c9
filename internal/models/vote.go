package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

// Vote is unique per (report, voter); re-voting overwrites VoteType.
type Vote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppID     string    `gorm:"size:50;not null;index" json:"-"`
	ReportID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_votes_report_voter" json:"report_id"`
	VoterID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_votes_report_voter" json:"voter_id"`
	VoteType  VoteType  `gorm:"size:10;not null" json:"vote_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Vote) BeforeCreate(_ *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
