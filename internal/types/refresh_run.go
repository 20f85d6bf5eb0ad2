package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RefreshRunSucceeded = "succeeded"
	RefreshRunFailed    = "failed"
)

// RefreshRun records one scheduled refresh of one timeframe. Failures stay
// visible here; nothing user-facing surfaces them.
type RefreshRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Timeframe  string    `gorm:"column:timeframe;not null;index" json:"timeframe"`
	Status     string    `gorm:"column:status;not null" json:"status"`
	Error      string    `gorm:"column:error" json:"error,omitempty"`
	StartedAt  time.Time `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt time.Time `gorm:"column:finished_at;not null" json:"finished_at"`
	DurationMS int64     `gorm:"column:duration_ms;not null" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (RefreshRun) TableName() string { return "refresh_run" }
