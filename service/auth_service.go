package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/internal/sigverify"
	"github.com/hermnet/hermnet/ports"
)

// AuthService orchestrates the challenge-response login flow.
type AuthService struct {
	users      ports.UserStore
	challenges ports.ChallengeStore
	tokenizer  ports.Tokenizer
	eventPub   ports.EventPublisher
	clock      ports.Clock
	log        logrus.FieldLogger

	challengeTTL time.Duration
	tokenTTL     time.Duration
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users ports.UserStore,
	challenges ports.ChallengeStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	clock ports.Clock,
	log logrus.FieldLogger,
	challengeTTL time.Duration,
	tokenTTL time.Duration,
) *AuthService {
	return &AuthService{
		users:        users,
		challenges:   challenges,
		tokenizer:    tokenizer,
		eventPub:     eventPub,
		clock:        clock,
		log:          log,
		challengeTTL: challengeTTL,
		tokenTTL:     tokenTTL,
	}
}

// RequestChallenge issues a fresh login challenge for the user and returns
// the nonce the client must sign. Any previous challenge for the same user
// is superseded.
func (s *AuthService) RequestChallenge(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := s.challenges.DeleteChallengesByUser(ctx, user.ID); err != nil {
		return "", fmt.Errorf("failed to supersede previous challenge: %w", err)
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.clock.Now()
	challenge := core.Challenge{
		Nonce:     hex.EncodeToString(nonceBytes),
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	if err := s.challenges.SaveChallenge(ctx, challenge); err != nil {
		return "", fmt.Errorf("failed to save challenge: %w", err)
	}

	return challenge.Nonce, nil
}

// CompleteLogin verifies a signed nonce and, on success, consumes the
// challenge and issues an access token.
//
// The challenge is taken (found and deleted) atomically up front, so a
// replay of a consumed nonce always observes "not found" and at most one
// concurrent caller can win. A failed signature check is not proof of
// replay, so the challenge is put back and the client may retry within
// the TTL.
func (s *AuthService) CompleteLogin(ctx context.Context, nonce, signatureB64 string) (string, error) {
	if nonce == "" || signatureB64 == "" {
		return "", core.ErrChallengeNotFound
	}

	challenge, err := s.challenges.TakeChallenge(ctx, nonce)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if now.After(challenge.ExpiresAt) {
		// Already removed by the take; just report the expiry.
		return "", core.ErrChallengeExpired
	}

	user, err := s.users.FindUserByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return "", core.ErrChallengeNotFound
		}
		return "", err
	}

	if !sigverify.Verify(user.PublicKey, challenge.Nonce, signatureB64) {
		if saveErr := s.challenges.SaveChallenge(ctx, challenge); saveErr != nil {
			s.log.WithError(saveErr).Warn("failed to restore challenge after bad signature")
		}
		return "", core.ErrInvalidSignature
	}

	session := &core.Session{
		ID:        uuid.New().String(),
		Subject:   user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}

	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	if err := s.eventPub.PublishLogin(ctx, user.ID, session.ID); err != nil {
		s.log.WithError(err).Warn("failed to publish login event")
	}

	return token, nil
}
