package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SystemLog is an ERROR+ record persisted by the database log sink, tagged
// with the municipality and report it concerns when known. Attrs without a
// column of their own land in Extra.
type SystemLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index;index:idx_system_logs_app_time,priority:2" json:"timestamp"`
	Level     string         `gorm:"size:10;not null" json:"level"`
	Message   string         `gorm:"type:text" json:"message"`
	AppID     string         `gorm:"size:50;index:idx_system_logs_app_time,priority:1" json:"app_id"`
	ReportID  *string        `gorm:"size:36;index" json:"report_id,omitempty"`
	ActorID   *string        `gorm:"size:36" json:"actor_id,omitempty"`
	Component string         `gorm:"size:100" json:"component"`
	Error     string         `gorm:"type:text" json:"error,omitempty"`
	Extra     datatypes.JSON `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
