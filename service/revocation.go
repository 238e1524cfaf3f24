package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/ports"
)

// RevocationRegistry is a denylist of tokens invalidated before their
// natural expiry. Only token fingerprints are stored; a compromised
// registry leaks no live credentials. The triggering policy is the
// caller's concern; the HTTP layer wires it to logout.
type RevocationRegistry struct {
	store     ports.RevocationStore
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	clock     ports.Clock
	log       logrus.FieldLogger
}

// NewRevocationRegistry creates a new revocation registry.
func NewRevocationRegistry(
	store ports.RevocationStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	clock ports.Clock,
	log logrus.FieldLogger,
) *RevocationRegistry {
	return &RevocationRegistry{
		store:     store,
		tokenizer: tokenizer,
		eventPub:  eventPub,
		clock:     clock,
		log:       log,
	}
}

// TokenFingerprint returns the non-reversible fingerprint under which a
// token is denylisted.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke records the token's fingerprint with the token's own expiry, so
// the entry never outlives the token it blocks. Revoking an already
// expired token is a no-op.
func (r *RevocationRegistry) Revoke(ctx context.Context, token, reason string) error {
	session, err := r.tokenizer.TokenToSession(token)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil
		}
		return err
	}

	rec := core.RevokedToken{
		Fingerprint: TokenFingerprint(token),
		ExpiresAt:   session.ExpiresAt,
		RevokedAt:   r.clock.Now(),
		Reason:      reason,
	}

	if err := r.store.SaveRevocation(ctx, rec); err != nil {
		return fmt.Errorf("failed to record revocation: %w", err)
	}

	if err := r.eventPub.PublishRevocation(ctx, session.Subject, rec.Fingerprint, reason); err != nil {
		r.log.WithError(err).Warn("failed to publish revocation event")
	}

	return nil
}

// IsRevoked reports whether the token is currently denylisted. Entries
// past their own expiry count as not-revoked even before the sweeper has
// removed them.
func (r *RevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	rec, found, err := r.store.FindRevocation(ctx, TokenFingerprint(token))
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	if !found {
		return false, nil
	}
	if !r.clock.Now().Before(rec.ExpiresAt) {
		return false, nil
	}
	return true, nil
}
