package ports

import (
	"context"
	"time"

	"github.com/hermnet/hermnet/core"
)

// UserStore holds identity records. Owned by the registration subsystem;
// the security core only reads from it.
type UserStore interface {
	// CreateUser inserts a new user. Returns core.ErrUserExists if the id
	// is already taken.
	CreateUser(ctx context.Context, user core.User) error

	// FindUserByID returns core.ErrUserNotFound when the id is unknown.
	FindUserByID(ctx context.Context, id string) (core.User, error)

	// UserExists reports whether the id is already registered.
	UserExists(ctx context.Context, id string) (bool, error)
}

// ChallengeStore holds outstanding login challenges keyed by nonce.
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, challenge core.Challenge) error

	// TakeChallenge atomically finds and deletes the challenge for the
	// nonce. At most one concurrent caller can observe a given challenge;
	// everyone else gets core.ErrChallengeNotFound.
	TakeChallenge(ctx context.Context, nonce string) (core.Challenge, error)

	// DeleteChallengesByUser removes every challenge owned by the user,
	// enforcing the single-live-challenge invariant on issue.
	DeleteChallengesByUser(ctx context.Context, userID string) error

	// DeleteChallengesExpiredBefore purges challenges whose expiry is
	// before the cutoff and reports how many were removed.
	DeleteChallengesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevocationStore holds revoked-token fingerprints.
type RevocationStore interface {
	SaveRevocation(ctx context.Context, rec core.RevokedToken) error

	// FindRevocation reports whether a denylist entry exists for the
	// fingerprint. Expiry of the entry is the caller's concern.
	FindRevocation(ctx context.Context, fingerprint string) (core.RevokedToken, bool, error)

	DeleteRevocationsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitStore holds fixed-window request counters.
type RateLimitStore interface {
	// IncrementBucket is the atomic read-modify-write for one fingerprint:
	// fetch or lazily create the bucket, reset it when the window has
	// elapsed (count=0, reset=now+window), increment, persist, and return
	// the updated bucket. Concurrent increments for the same fingerprint
	// must not lose updates.
	IncrementBucket(ctx context.Context, fingerprint string, window time.Duration, now time.Time) (core.RateBucket, error)
}

// MailboxStore is the narrow surface of the external mailbox the security
// core touches: storage of opaque blobs plus the retention delete.
type MailboxStore interface {
	SaveMessage(ctx context.Context, msg core.Message) error
	ListMessagesByRecipient(ctx context.Context, recipientID string) ([]core.Message, error)

	// DeleteMessagesOlderThan removes messages created before the cutoff
	// and reports how many were removed. Consumed by the retention sweeper.
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
