package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReportStatus string

const (
	StatusPending    ReportStatus = "pending"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Report is a citizen-filed environmental issue. ResolutionDate is set
// exactly when Status is resolved.
type Report struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	AppID          string       `gorm:"size:50;not null;index" json:"-"`
	Title          string       `gorm:"not null;size:255" json:"title"`
	Description    string       `gorm:"type:text" json:"description,omitempty"`
	Location       string       `gorm:"size:500" json:"location,omitempty"`
	ImageURL       string       `gorm:"type:text" json:"image_url,omitempty"`
	Status         ReportStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Priority       Priority     `gorm:"size:20" json:"priority,omitempty"`
	AssigneeID     *uuid.UUID   `gorm:"type:uuid;index" json:"assignee_id,omitempty"`
	ResolutionDate *time.Time   `json:"resolution_date"`
	CreatorID      *uuid.UUID   `gorm:"type:uuid;index" json:"creator_id,omitempty"`
	CreatedAt      time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (r *Report) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
