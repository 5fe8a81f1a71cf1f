package chat

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

// fakeBackend embeds store.Backend (nil) so it satisfies the interface
// without stubbing every method; only Chat() and GenerateID() are
// exercised by this package's tests.
type fakeBackend struct {
	store.Backend
	chat *fakeChatRepo
	seq  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{chat: &fakeChatRepo{}}
}

func (f *fakeBackend) Chat() store.ChatRepository { return f.chat }

func (f *fakeBackend) GenerateID() string {
	f.seq++
	return "id-" + strconv.Itoa(f.seq)
}

// fakeChatRepo is a minimal in-memory ChatRepository mirroring
// ChatModel's newest-to-oldest scan and empty-message "seen" convention.
type fakeChatRepo struct {
	msgs []model.ChatMessage
}

func (r *fakeChatRepo) Add(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	r.msgs = append(r.msgs, msg)
	return msg, nil
}

func (r *fakeChatRepo) newestFirst(channel string) []model.ChatMessage {
	var out []model.ChatMessage
	for _, m := range r.msgs {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (r *fakeChatRepo) ListConversation(ctx context.Context, channel string, maxLen int) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	nonEmpty := 0
	for _, m := range r.newestFirst(channel) {
		if nonEmpty >= maxLen {
			break
		}
		out = append(out, m)
		if m.Msg != "" {
			nonEmpty++
		}
	}
	return out, nil
}

func (r *fakeChatRepo) CheckUnread(ctx context.Context, channel, userID string) (bool, error) {
	for _, m := range r.newestFirst(channel) {
		if m.UserID != userID && m.Msg != "" {
			return true, nil
		}
		if m.UserID == userID && m.Msg == "" {
			return false, nil
		}
	}
	return false, nil
}

func (r *fakeChatRepo) History(ctx context.Context, forUser string, maxLen int, blocked map[string]bool) ([]model.ChatHistoryEntry, error) {
	panic("unused in these tests")
}

func (r *fakeChatRepo) DeleteAllFromUser(ctx context.Context, userID string) error {
	panic("unused in these tests")
}

func TestChannel_orderIndependent(t *testing.T) {
	assert.Equal(t, Channel("a", "b"), Channel("b", "a"))
}

func TestChannel_distinctPairs(t *testing.T) {
	assert.NotEqual(t, Channel("a", "b"), Channel("a", "c"))
}

func TestCheckUnread_falseWhenNoMessages(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	unread, err := s.CheckUnread(t.Context(), Channel("alice", "bob"), "alice")
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestCheckUnread_trueAfterMessageFromOther(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	ch := Channel("alice", "bob")

	_, err := s.Post(t.Context(), ch, "bob", "hi there")
	require.NoError(t, err)

	unread, err := s.CheckUnread(t.Context(), ch, "alice")
	require.NoError(t, err)
	assert.True(t, unread)
}

func TestCheckUnread_falseAfterMarkingSeen(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	ch := Channel("alice", "bob")

	_, err := s.Post(t.Context(), ch, "bob", "hi there")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	require.NoError(t, s.MarkSeen(t.Context(), ch, "alice"))

	unread, err := s.CheckUnread(t.Context(), ch, "alice")
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestCheckUnread_ownUnseenMessageIsNotUnread(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	ch := Channel("alice", "bob")

	_, err := s.Post(t.Context(), ch, "alice", "hello?")
	require.NoError(t, err)

	unread, err := s.CheckUnread(t.Context(), ch, "alice")
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestListConversation_includesSeenMarkersNewestFirst(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	ch := Channel("alice", "bob")

	_, err := s.Post(t.Context(), ch, "bob", "hi")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	require.NoError(t, s.MarkSeen(t.Context(), ch, "alice"))

	msgs, err := s.ListConversation(t.Context(), ch, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[0].Msg)
	assert.Equal(t, "hi", msgs[1].Msg)
}
