package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment only feeds the trend score; its body is opaque to triage.
type Comment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppID     string    `gorm:"size:50;not null;index" json:"-"`
	ReportID  uuid.UUID `gorm:"type:uuid;not null;index" json:"report_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Message is a citizen discussion entry on a report. Append-only.
type Message struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppID     string    `gorm:"size:50;not null;index" json:"-"`
	ReportID  uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_report_created" json:"report_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index:idx_messages_report_created" json:"created_at"`
}

func (m *Message) BeforeCreate(_ *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MunicipalityResponse is an official update posted by municipal staff.
type MunicipalityResponse struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AppID         string    `gorm:"size:50;not null;index" json:"-"`
	ReportID      uuid.UUID `gorm:"type:uuid;not null;index:idx_responses_report_created" json:"report_id"`
	AuthorID      uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Message       string    `gorm:"type:text" json:"message,omitempty"`
	AfterImageURL string    `gorm:"type:text" json:"after_image_url,omitempty"`
	CreatedAt     time.Time `gorm:"index:idx_responses_report_created" json:"created_at"`
}

func (MunicipalityResponse) TableName() string {
	return "municipality_responses"
}

func (r *MunicipalityResponse) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
