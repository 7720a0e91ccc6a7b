package entities

import "time"

type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	PasswordHash     string     `json:"-"`
	Plan             *string    `json:"plan"`
	PlanExpiresAt    *time.Time `json:"plan_expires_at"`
	IsVIP            bool       `json:"is_vip"`
	ConversionsUsed  int        `json:"conversions_used"`
	CreatedTimestamp time.Time  `json:"created_at"`
	UpdatedTimestamp time.Time  `json:"-"`
}

// PlanActive reports whether the user has unlimited conversions: either a
// VIP flag or a membership that has not expired yet.
func (u *User) PlanActive(now time.Time) bool {
	if u.IsVIP {
		return true
	}
	if u.PlanExpiresAt == nil {
		return false
	}
	return u.PlanExpiresAt.After(now)
}
