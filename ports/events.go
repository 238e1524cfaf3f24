package ports

import "context"

// EventPublisher notifies other components about auth lifecycle events.
type EventPublisher interface {
	PublishLogin(ctx context.Context, userID, tokenID string) error
	PublishRevocation(ctx context.Context, subject, fingerprint, reason string) error
}
