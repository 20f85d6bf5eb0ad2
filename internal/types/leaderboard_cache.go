package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LeaderboardCache is the durable cache tier: the last materialized payload
// per (section, timeframe). No TTL; freshness comes from refresher cadence.
type LeaderboardCache struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Section   string         `gorm:"column:section;not null;index:idx_section_timeframe,unique" json:"section"`
	Timeframe string         `gorm:"column:timeframe;not null;index:idx_section_timeframe,unique" json:"timeframe"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload;not null" json:"payload"`
	CachedAt  time.Time      `gorm:"column:cached_at;not null" json:"cached_at"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (LeaderboardCache) TableName() string { return "leaderboard_cache" }
