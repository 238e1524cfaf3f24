package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/core"
	"github.com/hermnet/hermnet/ports"
)

// MailboxService stores and retrieves opaque encrypted blobs. Payloads are
// never inspected; retention is enforced by the sweeper.
type MailboxService struct {
	store ports.MailboxStore
	clock ports.Clock
	log   logrus.FieldLogger
}

// NewMailboxService creates a new mailbox service.
func NewMailboxService(store ports.MailboxStore, clock ports.Clock, log logrus.FieldLogger) *MailboxService {
	return &MailboxService{store: store, clock: clock, log: log}
}

// Deliver accepts a message for the recipient's mailbox.
func (s *MailboxService) Deliver(ctx context.Context, recipientID, senderIDHash string, ciphertext []byte) (core.Message, error) {
	msg := core.Message{
		ID:           uuid.New().String(),
		RecipientID:  recipientID,
		SenderIDHash: senderIDHash,
		Ciphertext:   ciphertext,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return core.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

// Inbox returns the recipient's messages, newest first.
func (s *MailboxService) Inbox(ctx context.Context, recipientID string) ([]core.Message, error) {
	return s.store.ListMessagesByRecipient(ctx, recipientID)
}
