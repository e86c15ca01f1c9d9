package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prasetya/cms-auth/internal/core/datamodel/loginattempt"
)

const keyPrefix = "auth:attempts:"

// staleTTL clears never-blocked counters that stopped failing.
const staleTTL = 24 * time.Hour

// AttemptStore keeps the per-source-address failure counter in a Redis hash.
// HIncrBy makes the increment-and-compare race-free across processes; the
// key's TTL is aligned with the block expiry so an expired block reads as an
// absent record.
type AttemptStore struct {
	client        *redis.Client
	maxAttempts   int
	blockDuration time.Duration
}

func NewAttemptStore(client *redis.Client, maxAttempts int, blockDuration time.Duration) *AttemptStore {
	return &AttemptStore{
		client:        client,
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
	}
}

func (s *AttemptStore) Get(ctx context.Context, sourceAddr string) (*loginattempt.LoginAttempt, error) {
	data, err := s.client.HGetAll(ctx, keyPrefix+sourceAddr).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	record := &loginattempt.LoginAttempt{SourceAddress: sourceAddr}
	record.Email = data["email"]
	if raw, ok := data["attempts"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			record.Attempts = n
		}
	}
	if raw, ok := data["last_attempt_at"]; ok && raw != "" {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
			record.LastAttemptAt = time.Unix(unix, 0).UTC()
		}
	}
	if raw, ok := data["blocked_until"]; ok && raw != "" {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && unix > 0 {
			t := time.Unix(unix, 0).UTC()
			record.BlockedUntil = &t
			record.IsBlocked = true
		}
	}
	return record, nil
}

func (s *AttemptStore) RecordFailure(ctx context.Context, sourceAddr, email string, now time.Time) (*loginattempt.LoginAttempt, error) {
	key := keyPrefix + sourceAddr

	count, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return nil, err
	}

	record := &loginattempt.LoginAttempt{
		SourceAddress: sourceAddr,
		Email:         email,
		Attempts:      int(count),
		LastAttemptAt: now.UTC(),
	}

	if int(count) >= s.maxAttempts {
		blockedUntil := now.Add(s.blockDuration).UTC()
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "email", email, "last_attempt_at", now.Unix(), "blocked_until", blockedUntil.Unix())
			// key expiry doubles as block expiry: once it lapses the
			// address reads as a clean slate
			p.Expire(ctx, key, s.blockDuration)
			return nil
		})
		if err != nil {
			return nil, err
		}
		record.IsBlocked = true
		record.BlockedUntil = &blockedUntil
		return record, nil
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "email", email, "last_attempt_at", now.Unix())
		p.Expire(ctx, key, staleTTL)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *AttemptStore) Reset(ctx context.Context, sourceAddr string) error {
	return s.client.Del(ctx, keyPrefix+sourceAddr).Err()
}
