package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hermnet/hermnet/ports"
)

// RateLimiter enforces a fixed-window request cap per client fingerprint.
//
// The window is fresh, not rolling: when it elapses the count restarts at
// zero, so bursts at window boundaries are possible. That tradeoff buys
// O(1) state per client. Increment happens before the check, so the request
// that crosses the threshold is itself recorded and rejected; everything
// after it in the same window stays rejected until the reset.
type RateLimiter struct {
	store ports.RateLimitStore
	clock ports.Clock
	log   logrus.FieldLogger

	window       time.Duration
	maxPerWindow int
}

// NewRateLimiter creates a rate limiter with the given window and cap.
func NewRateLimiter(store ports.RateLimitStore, clock ports.Clock, log logrus.FieldLogger, window time.Duration, maxPerWindow int) *RateLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		store:        store,
		clock:        clock,
		log:          log,
		window:       window,
		maxPerWindow: maxPerWindow,
	}
}

// Admit records the request against the fingerprint's bucket and reports
// whether it may proceed.
func (l *RateLimiter) Admit(ctx context.Context, fingerprint string) (bool, error) {
	bucket, err := l.store.IncrementBucket(ctx, fingerprint, l.window, l.clock.Now())
	if err != nil {
		return false, fmt.Errorf("failed to update rate bucket: %w", err)
	}

	if bucket.Count > l.maxPerWindow {
		l.log.WithFields(logrus.Fields{
			"client": fingerprint,
			"count":  bucket.Count,
		}).Warn("rate limit exceeded")
		return false, nil
	}

	return true, nil
}
