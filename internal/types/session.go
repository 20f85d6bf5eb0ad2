package types

import "time"

// SessionSummary is the loosely-typed summary blob a game mode writes when a
// session ends. Every field is optional; star derivation resolves the
// fallback chain in one place (internal/scoring).
type SessionSummary struct {
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Total     *float64 `json:"total,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Stars     *float64 `json:"stars,omitempty"`
	Completed *bool    `json:"completed,omitempty"`
}

// Session is a row in the remote store's study_session table. Only sessions
// with a non-null ended_at and not explicitly incomplete count toward stars.
type Session struct {
	UserID   string          `json:"user_id"`
	ListName string          `json:"list_name"`
	Mode     string          `json:"mode"`
	Summary  *SessionSummary `json:"summary"`
	EndedAt  *time.Time      `json:"ended_at"`
}
