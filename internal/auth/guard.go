package auth

import (
	"context"
	"log/slog"
	"time"
)

// CheckResult is the guard's verdict for a source address before credential
// verification runs.
type CheckResult struct {
	Allowed           bool
	RemainingAttempts int
	BlockedUntil      *time.Time
}

// Guard counts failed login attempts per source address and blocks the
// address once the threshold is reached. All state lives in the attempt
// store; the guard itself is stateless and safe for concurrent use.
type Guard struct {
	store         AttemptStore
	maxAttempts   int
	blockDuration time.Duration
	logger        *slog.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewGuard(store AttemptStore, maxAttempts int, blockDuration time.Duration, logger *slog.Logger) *Guard {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if blockDuration <= 0 {
		blockDuration = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:         store,
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		logger:        logger,
		Now:           time.Now,
	}
}

// Check must run before credential verification. A block whose expiry has
// passed is reset before the request is evaluated, so a returning address
// starts from a clean slate.
func (g *Guard) Check(ctx context.Context, sourceAddr string) (CheckResult, error) {
	record, err := g.store.Get(ctx, sourceAddr)
	if err != nil {
		return CheckResult{}, err
	}

	if record == nil {
		return CheckResult{Allowed: true, RemainingAttempts: g.maxAttempts}, nil
	}

	now := g.Now()

	if record.IsBlocked && record.BlockedUntil != nil {
		if !now.Before(*record.BlockedUntil) {
			if err := g.store.Reset(ctx, sourceAddr); err != nil {
				return CheckResult{}, err
			}
			return CheckResult{Allowed: true, RemainingAttempts: g.maxAttempts}, nil
		}
		blockedUntil := *record.BlockedUntil
		return CheckResult{Allowed: false, BlockedUntil: &blockedUntil}, nil
	}

	remaining := g.maxAttempts - record.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return CheckResult{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordFailure counts a failed attempt and reports the state after the
// increment. The store performs the increment-and-compare atomically.
func (g *Guard) RecordFailure(ctx context.Context, sourceAddr, email string) (CheckResult, error) {
	record, err := g.store.RecordFailure(ctx, sourceAddr, email, g.Now())
	if err != nil {
		return CheckResult{}, err
	}

	if record.IsBlocked && record.BlockedUntil != nil {
		g.logger.Warn("source address blocked after repeated login failures",
			"source_address", sourceAddr,
			"attempts", record.Attempts,
			"blocked_until", record.BlockedUntil)
		blockedUntil := *record.BlockedUntil
		return CheckResult{Allowed: false, BlockedUntil: &blockedUntil}, nil
	}

	remaining := g.maxAttempts - record.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return CheckResult{Allowed: true, RemainingAttempts: remaining}, nil
}

// RecordSuccess deletes the attempt record so the next failure starts a
// fresh count.
func (g *Guard) RecordSuccess(ctx context.Context, sourceAddr string) error {
	return g.store.Reset(ctx, sourceAddr)
}
