package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hermnet/hermnet/core"
)

// RedisStore implements the security-state ports (challenges, revocations,
// rate buckets) on Redis. Records carry a native Redis TTL, so Redis itself
// enforces expiry; the sweeper's explicit purges become no-ops here.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// challengeTakeGrace keeps an expired challenge around briefly so a late
// login attempt is answered with "expired" instead of "not found".
const challengeTakeGrace = time.Minute

// NewRedisStore creates a new Redis store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "hermnet:",
	}
}

type challengeRecord struct {
	Nonce     string    `json:"nonce"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type revocationRecord struct {
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expires_at"`
	RevokedAt   time.Time `json:"revoked_at"`
	Reason      string    `json:"reason,omitempty"`
}

func (s *RedisStore) challengeKey(nonce string) string {
	return s.prefix + "challenge:" + nonce
}

func (s *RedisStore) challengeUserKey(userID string) string {
	return s.prefix + "challenge:user:" + userID
}

func (s *RedisStore) revocationKey(fingerprint string) string {
	return s.prefix + "revoked:" + fingerprint
}

func (s *RedisStore) bucketKey(fingerprint string) string {
	return s.prefix + "rate:" + fingerprint
}

// SaveChallenge stores the challenge under its nonce and indexes it by
// owner so DeleteChallengesByUser can find it.
func (s *RedisStore) SaveChallenge(ctx context.Context, challenge core.Challenge) error {
	payload, err := json.Marshal(challengeRecord{
		Nonce:     challenge.Nonce,
		UserID:    challenge.UserID,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt) + challengeTakeGrace
	if ttl <= 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.challengeKey(challenge.Nonce), payload, ttl)
	pipe.Set(ctx, s.challengeUserKey(challenge.UserID), challenge.Nonce, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

// TakeChallenge atomically removes and returns the challenge via GETDEL.
func (s *RedisStore) TakeChallenge(ctx context.Context, nonce string) (core.Challenge, error) {
	payload, err := s.client.GetDel(ctx, s.challengeKey(nonce)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Challenge{}, core.ErrChallengeNotFound
		}
		return core.Challenge{}, fmt.Errorf("failed to take challenge: %w", err)
	}

	var rec challengeRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}

	// Drop the owner index if it still points at this nonce.
	current, err := s.client.Get(ctx, s.challengeUserKey(rec.UserID)).Result()
	if err == nil && current == nonce {
		s.client.Del(ctx, s.challengeUserKey(rec.UserID))
	}

	return core.Challenge{
		Nonce:     rec.Nonce,
		UserID:    rec.UserID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// DeleteChallengesByUser removes the user's outstanding challenge.
func (s *RedisStore) DeleteChallengesByUser(ctx context.Context, userID string) error {
	nonce, err := s.client.Get(ctx, s.challengeUserKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to look up user challenge: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.challengeKey(nonce))
	pipe.Del(ctx, s.challengeUserKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete user challenge: %w", err)
	}
	return nil
}

// DeleteChallengesExpiredBefore is a no-op: Redis expires challenge keys
// itself via their TTL.
func (s *RedisStore) DeleteChallengesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// SaveRevocation records a denylist entry with the token's remaining
// lifetime as its TTL.
func (s *RedisStore) SaveRevocation(ctx context.Context, rec core.RevokedToken) error {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(revocationRecord{
		Fingerprint: rec.Fingerprint,
		ExpiresAt:   rec.ExpiresAt,
		RevokedAt:   rec.RevokedAt,
		Reason:      rec.Reason,
	})
	if err != nil {
		return fmt.Errorf("failed to encode revocation: %w", err)
	}

	if err := s.client.Set(ctx, s.revocationKey(rec.Fingerprint), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save revocation: %w", err)
	}
	return nil
}

// FindRevocation looks up a denylist entry by fingerprint.
func (s *RedisStore) FindRevocation(ctx context.Context, fingerprint string) (core.RevokedToken, bool, error) {
	payload, err := s.client.Get(ctx, s.revocationKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.RevokedToken{}, false, nil
		}
		return core.RevokedToken{}, false, fmt.Errorf("failed to check revocation: %w", err)
	}

	var rec revocationRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return core.RevokedToken{}, false, fmt.Errorf("failed to decode revocation: %w", err)
	}

	return core.RevokedToken{
		Fingerprint: rec.Fingerprint,
		ExpiresAt:   rec.ExpiresAt,
		RevokedAt:   rec.RevokedAt,
		Reason:      rec.Reason,
	}, true, nil
}

// DeleteRevocationsExpiredBefore is a no-op: entries expire with their TTL.
func (s *RedisStore) DeleteRevocationsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// IncrementBucket counts the request with INCR. The first increment of a
// window arms the key's TTL; the window reset time is derived from the
// remaining TTL so all instances agree on it.
func (s *RedisStore) IncrementBucket(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (core.RateBucket, error) {
	key := s.bucketKey(fingerprint)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return core.RateBucket{}, fmt.Errorf("failed to increment rate bucket: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return core.RateBucket{}, fmt.Errorf("failed to arm rate window: %w", err)
		}
		return core.RateBucket{
			Fingerprint:   fingerprint,
			Count:         int(count),
			WindowResetAt: now.Add(window),
		}, nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return core.RateBucket{}, fmt.Errorf("failed to read rate window: %w", err)
	}
	if ttl < 0 {
		// Key lost its TTL (e.g. a crashed arm step); re-arm rather than
		// leaving an immortal counter.
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return core.RateBucket{}, fmt.Errorf("failed to re-arm rate window: %w", err)
		}
		ttl = window
	}

	return core.RateBucket{
		Fingerprint:   fingerprint,
		Count:         int(count),
		WindowResetAt: now.Add(ttl),
	}, nil
}
