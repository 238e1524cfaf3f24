package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/hermnet/hermnet/ports"
)

const (
	// LoginTopic carries successful login events.
	LoginTopic = "hermnet.auth.login"

	// RevocationTopic carries token revocation events.
	RevocationTopic = "hermnet.auth.revoked"
)

// LoginEvent is published on each successful login.
type LoginEvent struct {
	UserID  string `json:"user_id"`
	TokenID string `json:"token_id"`
}

// RevocationEvent is published when a token is revoked before expiry.
// Only the fingerprint travels on the bus, never the token.
type RevocationEvent struct {
	Subject     string `json:"subject"`
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a login event.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, userID, tokenID string) error {
	payload, err := json.Marshal(LoginEvent{UserID: userID, TokenID: tokenID})
	if err != nil {
		return fmt.Errorf("failed to marshal login event: %w", err)
	}

	if err := p.publisher.Publish(LoginTopic, message.NewMessage(tokenID, payload)); err != nil {
		return fmt.Errorf("failed to publish login event: %w", err)
	}
	return nil
}

// PublishRevocation publishes a revocation event.
func (p *WatermillPublisher) PublishRevocation(ctx context.Context, subject, fingerprint, reason string) error {
	payload, err := json.Marshal(RevocationEvent{
		Subject:     subject,
		Fingerprint: fingerprint,
		Reason:      reason,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revocation event: %w", err)
	}

	if err := p.publisher.Publish(RevocationTopic, message.NewMessage(fingerprint, payload)); err != nil {
		return fmt.Errorf("failed to publish revocation event: %w", err)
	}
	return nil
}
