package member

import "time"

// Member is an account holder on this deployment.
type Member struct {
	ID        int64
	Email     string
	Tier      string // "", "vip" or "hero"; see market.FeeSchedule
	State     string
	CreatedAt time.Time
}
