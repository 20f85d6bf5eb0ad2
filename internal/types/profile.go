package types

// Timeframes supported by every leaderboard surface.
const (
	TimeframeAll   = "all"
	TimeframeMonth = "month"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// UserProfile is a row in the remote store's user_profile table. Owned by the
// identity/roster system; read-only here.
type UserProfile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Avatar   *string `json:"avatar"`
	Class    *string `json:"class"`
	Role     string  `json:"role"`
}

// DisplayName resolves the name shown on leaderboards.
func (p UserProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Username != "" {
		return p.Username
	}
	return "Student"
}
