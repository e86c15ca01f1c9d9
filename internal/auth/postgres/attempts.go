package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/prasetya/cms-auth/internal/core/datamodel/loginattempt"
)

// AttemptStore persists per-source-address failure counters. The failure
// increment is a single conditional upsert so that concurrent failures from
// the same address cannot race past the blocking threshold: the
// increment-and-compare happens inside the database, not in Go.
type AttemptStore struct {
	db            *gorm.DB
	maxAttempts   int
	blockDuration time.Duration
}

func NewAttemptStore(db *gorm.DB, maxAttempts int, blockDuration time.Duration) *AttemptStore {
	return &AttemptStore{
		db:            db,
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
	}
}

func (s *AttemptStore) Get(ctx context.Context, sourceAddr string) (*loginattempt.LoginAttempt, error) {
	var record loginattempt.LoginAttempt
	err := s.db.WithContext(ctx).First(&record, "source_address = ?", sourceAddr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordFailure increments the counter atomically and flips the record into
// the blocked state exactly when the threshold is reached. A row whose block
// has already expired restarts at attempts = 1 instead of incrementing.
func (s *AttemptStore) RecordFailure(ctx context.Context, sourceAddr, email string, now time.Time) (*loginattempt.LoginAttempt, error) {
	blockedUntil := now.Add(s.blockDuration)
	firstBlocked := s.maxAttempts <= 1

	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO login_attempts (source_address, email, attempts, last_attempt_at, is_blocked, blocked_until)
		VALUES (?, ?, 1, ?, ?, CASE WHEN ? THEN ? ELSE NULL END)
		ON CONFLICT (source_address) DO UPDATE SET
			email = excluded.email,
			last_attempt_at = excluded.last_attempt_at,
			attempts = CASE
				WHEN login_attempts.blocked_until IS NOT NULL AND login_attempts.blocked_until <= excluded.last_attempt_at THEN 1
				ELSE login_attempts.attempts + 1
			END,
			is_blocked = CASE
				WHEN login_attempts.blocked_until IS NOT NULL AND login_attempts.blocked_until <= excluded.last_attempt_at THEN ?
				ELSE login_attempts.attempts + 1 >= ?
			END,
			blocked_until = CASE
				WHEN login_attempts.blocked_until IS NOT NULL AND login_attempts.blocked_until <= excluded.last_attempt_at THEN
					CASE WHEN ? THEN ? ELSE NULL END
				WHEN login_attempts.attempts + 1 >= ? THEN ?
				ELSE NULL
			END`,
		sourceAddr, email, now, firstBlocked, firstBlocked, blockedUntil,
		firstBlocked, s.maxAttempts,
		firstBlocked, blockedUntil, s.maxAttempts, blockedUntil,
	).Error
	if err != nil {
		return nil, err
	}

	record, err := s.Get(ctx, sourceAddr)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return record, nil
}

func (s *AttemptStore) Reset(ctx context.Context, sourceAddr string) error {
	return s.db.WithContext(ctx).
		Where("source_address = ?", sourceAddr).
		Delete(&loginattempt.LoginAttempt{}).Error
}
