package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hermnet/hermnet/core"
)

// MemoryStore is an in-memory implementation of every store port. One
// mutex guards all maps, which makes TakeChallenge and IncrementBucket
// trivially atomic. Intended for tests and single-node development.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]core.User
	challenges  map[string]core.Challenge    // keyed by nonce
	revocations map[string]core.RevokedToken // keyed by fingerprint
	buckets     map[string]core.RateBucket   // keyed by client fingerprint
	messages    map[string]core.Message      // keyed by message id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]core.User),
		challenges:  make(map[string]core.Challenge),
		revocations: make(map[string]core.RevokedToken),
		buckets:     make(map[string]core.RateBucket),
		messages:    make(map[string]core.Message),
	}
}

// CreateUser inserts a user, failing if the id is taken.
func (s *MemoryStore) CreateUser(ctx context.Context, user core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return core.ErrUserExists
	}
	s.users[user.ID] = user
	return nil
}

// FindUserByID looks up a user by id.
func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return user, nil
}

// UserExists reports whether the id is registered.
func (s *MemoryStore) UserExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[id]
	return ok, nil
}

// SaveChallenge stores a challenge keyed by nonce.
func (s *MemoryStore) SaveChallenge(ctx context.Context, challenge core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Nonce] = challenge
	return nil
}

// TakeChallenge atomically removes and returns the challenge for the nonce.
func (s *MemoryStore) TakeChallenge(ctx context.Context, nonce string) (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[nonce]
	if !ok {
		return core.Challenge{}, core.ErrChallengeNotFound
	}
	delete(s.challenges, nonce)
	return challenge, nil
}

// DeleteChallengesByUser removes all challenges owned by the user.
func (s *MemoryStore) DeleteChallengesByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for nonce, challenge := range s.challenges {
		if challenge.UserID == userID {
			delete(s.challenges, nonce)
		}
	}
	return nil
}

// DeleteChallengesExpiredBefore purges challenges past their expiry.
func (s *MemoryStore) DeleteChallengesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for nonce, challenge := range s.challenges {
		if challenge.ExpiresAt.Before(cutoff) {
			delete(s.challenges, nonce)
			n++
		}
	}
	return n, nil
}

// SaveRevocation records a denylist entry.
func (s *MemoryStore) SaveRevocation(ctx context.Context, rec core.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revocations[rec.Fingerprint] = rec
	return nil
}

// FindRevocation looks up a denylist entry by fingerprint.
func (s *MemoryStore) FindRevocation(ctx context.Context, fingerprint string) (core.RevokedToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.revocations[fingerprint]
	return rec, ok, nil
}

// DeleteRevocationsExpiredBefore purges stale denylist entries.
func (s *MemoryStore) DeleteRevocationsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for fp, rec := range s.revocations {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.revocations, fp)
			n++
		}
	}
	return n, nil
}

// IncrementBucket performs the fixed-window fetch-reset-increment under the
// store mutex.
func (s *MemoryStore) IncrementBucket(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (core.RateBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[fingerprint]
	if !ok || !now.Before(bucket.WindowResetAt) {
		bucket = core.RateBucket{
			Fingerprint:   fingerprint,
			Count:         0,
			WindowResetAt: now.Add(window),
		}
	}
	bucket.Count++
	s.buckets[fingerprint] = bucket
	return bucket, nil
}

// SaveMessage stores a mailbox entry.
func (s *MemoryStore) SaveMessage(ctx context.Context, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ID] = msg
	return nil
}

// ListMessagesByRecipient returns the recipient's messages, newest first.
func (s *MemoryStore) ListMessagesByRecipient(ctx context.Context, recipientID string) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []core.Message
	for _, msg := range s.messages {
		if msg.RecipientID == recipientID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// DeleteMessagesOlderThan removes messages created before the cutoff.
func (s *MemoryStore) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, msg := range s.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(s.messages, id)
			n++
		}
	}
	return n, nil
}
