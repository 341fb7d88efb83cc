// Package store holds storage adapters shared across backends.
package store

import (
	"context"
	"time"

	"github.com/MindLyfe/MindLyfe-Platform-sub005/internal/domain"
)

// MessageWindowStore implements the rate-limit window by counting rows in the
// messages table: the message insert itself is the "record", so a rejected
// send leaves no trace. Adequate for single-database deployments; use the
// Redis store when the service runs with multiple workers against separate
// caches.
type MessageWindowStore struct {
	messages domain.MessageRepository
}

func NewMessageWindowStore(messages domain.MessageRepository) *MessageWindowStore {
	return &MessageWindowStore{messages: messages}
}

var _ domain.WindowStore = (*MessageWindowStore)(nil)

func (s *MessageWindowStore) CountAndRecord(ctx context.Context, roomID, senderID string, window time.Duration, limit int) (int, bool, error) {
	since := time.Now().UTC().Add(-window)
	count, err := s.messages.CountFromSenderSince(ctx, roomID, senderID, since)
	if err != nil {
		return 0, false, err
	}
	return count, count < limit, nil
}
