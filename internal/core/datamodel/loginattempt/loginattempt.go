package loginattempt

import "time"

// LoginAttempt tracks failed logins per source address. At most one row per
// address exists; the row is deleted on successful login and recreated on the
// next failure.
type LoginAttempt struct {
	SourceAddress string     `gorm:"column:source_address;primaryKey"`
	Email         string     `gorm:"column:email"`
	Attempts      int        `gorm:"column:attempts;not null"`
	LastAttemptAt time.Time  `gorm:"column:last_attempt_at;not null"`
	IsBlocked     bool       `gorm:"column:is_blocked;not null;default:false"`
	BlockedUntil  *time.Time `gorm:"column:blocked_until"`
}

func (LoginAttempt) TableName() string { return "login_attempts" }
