package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/ports"
)

// RetentionSweeper periodically purges expired ephemeral records: old
// mailbox messages, expired challenges and expired revocation entries.
// It runs independently of request handling; deletions are idempotent and
// keyed, so no coordination with request handlers is needed.
type RetentionSweeper struct {
	mailbox     ports.MailboxStore
	challenges  ports.ChallengeStore
	revocations ports.RevocationStore
	clock       ports.Clock
	log         logrus.FieldLogger

	interval         time.Duration
	mailboxRetention time.Duration
}

// NewRetentionSweeper creates a sweeper with the given cadence and mailbox
// retention window.
func NewRetentionSweeper(
	mailbox ports.MailboxStore,
	challenges ports.ChallengeStore,
	revocations ports.RevocationStore,
	clock ports.Clock,
	log logrus.FieldLogger,
	interval time.Duration,
	mailboxRetention time.Duration,
) *RetentionSweeper {
	return &RetentionSweeper{
		mailbox:          mailbox,
		challenges:       challenges,
		revocations:      revocations,
		clock:            clock,
		log:              log,
		interval:         interval,
		mailboxRetention: mailboxRetention,
	}
}

// Run sweeps on a fixed cadence until the context is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep purges all three categories against one captured now. A failure in
// one category never blocks the others.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	now := s.clock.Now()

	if n, err := s.mailbox.DeleteMessagesOlderThan(ctx, now.Add(-s.mailboxRetention)); err != nil {
		s.log.WithError(err).Error("retention sweep: mailbox purge failed")
	} else if n > 0 {
		s.log.WithField("deleted", n).Info("retention sweep: purged mailbox messages")
	}

	if n, err := s.challenges.DeleteChallengesExpiredBefore(ctx, now); err != nil {
		s.log.WithError(err).Error("retention sweep: challenge purge failed")
	} else if n > 0 {
		s.log.WithField("deleted", n).Info("retention sweep: purged expired challenges")
	}

	if n, err := s.revocations.DeleteRevocationsExpiredBefore(ctx, now); err != nil {
		s.log.WithError(err).Error("retention sweep: revocation purge failed")
	} else if n > 0 {
		s.log.WithField("deleted", n).Info("retention sweep: purged expired revocations")
	}
}
