// Package chat implements the chat service (spec §4.6): posting messages
// on a channel, the empty-message "seen" read-marker convention, and the
// CheckUnread scan, grounded on
// _examples/original_source/skrafldb.py's ChatModel.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

// Service is the chat service.
type Service struct {
	backend store.Backend
}

// NewService returns a chat service over backend.
func NewService(backend store.Backend) *Service {
	return &Service{backend: backend}
}

// Channel returns the canonical channel identifier for a direct
// conversation between two users, independent of argument order, per
// spec §4.6 "channel identifier is order-independent".
func Channel(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("user:%s:%s", userA, userB)
}

// Post appends a message to channel on behalf of userID. An empty msg is
// the "seen" marker (spec §4.6): it marks every older message in the
// channel as read for userID. Markers are stored like any other message
// and are returned by ListConversation.
func (s *Service) Post(ctx context.Context, channel, userID, msg string) (model.ChatMessage, error) {
	cm := model.ChatMessage{
		ID:        s.backend.GenerateID(),
		Channel:   channel,
		UserID:    userID,
		Msg:       msg,
		Timestamp: time.Now().UTC(),
	}
	return s.backend.Chat().Add(ctx, cm)
}

// MarkSeen records that userID has seen every message in channel up to
// now, via the empty-message convention.
func (s *Service) MarkSeen(ctx context.Context, channel, userID string) error {
	_, err := s.Post(ctx, channel, userID, "")
	return err
}

// ListConversation returns a channel's messages newest first, matching
// list_conversation's ordering, up to and including the maxLen-th
// non-empty message. Seen markers in that range are included but do not
// count toward maxLen.
func (s *Service) ListConversation(ctx context.Context, channel string, maxLen int) ([]model.ChatMessage, error) {
	return s.backend.Chat().ListConversation(ctx, channel, maxLen)
}

// CheckUnread reports whether channel has a message from someone other
// than userID that userID has not yet marked seen. The scan walks
// newest-to-oldest: a non-empty message from a different user means
// unread; an empty message (seen marker) from userID means caught up;
// running off the end of the conversation without either means read.
// This must behave identically on both storage backends (spec §9 S5).
func (s *Service) CheckUnread(ctx context.Context, channel, userID string) (bool, error) {
	return s.backend.Chat().CheckUnread(ctx, channel, userID)
}

// History returns the conversation list for a user: one entry per
// correspondent, each carrying the last message and an unread flag,
// newest correspondence first.
// blocked lists correspondent ids to omit.
func (s *Service) History(ctx context.Context, forUser string, maxLen int, blocked map[string]bool) ([]model.ChatHistoryEntry, error) {
	return s.backend.Chat().History(ctx, forUser, maxLen, blocked)
}
