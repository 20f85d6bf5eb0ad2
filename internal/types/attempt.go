package types

import "time"

// Attempt is one answered question in the remote store's question_attempt
// table. Rows are written by gameplay and never mutated.
type Attempt struct {
	UserID    string    `json:"user_id"`
	Points    *float64  `json:"points"`
	IsCorrect bool      `json:"is_correct"`
	CreatedAt time.Time `json:"created_at"`
}
