package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ingest run statuses.
const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)

// IngestRun records one ingestion cycle for one channel. It exists so an
// operator can see which (channel, window) slices failed and re-trigger them.
type IngestRun struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Channel     string    `gorm:"type:varchar(100);not null;index" json:"channel"`
	WindowStart time.Time `gorm:"type:timestamptz;not null" json:"window_start"`
	WindowEnd   time.Time `gorm:"type:timestamptz;not null" json:"window_end"`

	Status          string `gorm:"type:varchar(10);not null;index" json:"status"`
	MessagesSeen    int64  `gorm:"not null;default:0" json:"messages_seen"`
	MessagesMatched int64  `gorm:"not null;default:0" json:"messages_matched"`
	EntitiesFlushed int64  `gorm:"not null;default:0" json:"entities_flushed"`
	ScorerFailures  int64  `gorm:"not null;default:0" json:"scorer_failures"`

	Error  string         `gorm:"type:text" json:"error,omitempty"`
	Detail datatypes.JSON `gorm:"type:jsonb" json:"detail,omitempty"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index" json:"started_at"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}
