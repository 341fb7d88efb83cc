package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/metrics"
)

// RateLimiter bounds message throughput per (room, sender). The window is
// per pair; a sender's rate in one room never affects another.
type RateLimiter struct {
	store  domain.WindowStore
	window time.Duration
	max    int
}

func NewRateLimiter(store domain.WindowStore, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{store: store, window: window, max: max}
}

// CheckAndRecord allows the send when the prior count within the trailing
// window does not exceed the limit; otherwise nothing is recorded and the
// caller receives ErrRateLimited.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, roomID, senderID string) error {
	_, allowed, err := l.store.CountAndRecord(ctx, roomID, senderID, l.window, l.max)
	if err != nil {
		return fmt.Errorf("rate limit window: %w", err)
	}
	if !allowed {
		metrics.RateLimitHits.Inc()
		return domain.WithReason(domain.ErrRateLimited, domain.ReasonRateLimited)
	}
	return nil
}
