package usage

import "time"

// PlanFree is the plan assigned to every new usage row.
const PlanFree = "Free"

// Usage tracks how many valuations a user has run in the current period.
type Usage struct {
	UserID   string    `json:"userId"`
	Plan     string    `json:"plan"`
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resetsAt"`
}

// Remaining returns how many valuations are left, never negative.
func (u Usage) Remaining() int {
	left := u.Limit - u.Used
	if left < 0 {
		return 0
	}
	return left
}
