package types

import (
	"math"
	"time"
)

// LeaderboardEntry is one ranked row. Derived, never persisted outside cache
// payloads. Ranking uses points then name; superScore is display-only.
type LeaderboardEntry struct {
	UserID     string  `json:"user_id"`
	Name       string  `json:"name"`
	Avatar     *string `json:"avatar,omitempty"`
	Class      *string `json:"class,omitempty"`
	Points     int     `json:"points"`
	Stars      int     `json:"stars"`
	SuperScore int     `json:"superScore"`
	Rank       int     `json:"rank"`
	Self       bool    `json:"self,omitempty"`
}

// SuperScoreOf computes the display composite round(stars*points/1000).
func SuperScoreOf(stars, points int) int {
	return int(math.Round(float64(stars) * float64(points) / 1000))
}

// CachePayload is the materialized leaderboard stored in both cache tiers.
// Immutable once written: a refresh replaces the whole payload. UserPoints
// holds every ranked user so a requester outside the top slice can be located
// without recomputation.
type CachePayload struct {
	Timeframe  string                      `json:"timeframe"`
	CachedAt   time.Time                   `json:"cached_at"`
	TopEntries []LeaderboardEntry          `json:"topEntries"`
	UserPoints map[string]LeaderboardEntry `json:"userPoints"`
}
