package challenge

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

type fakeBackend struct {
	store.Backend
	challenges *fakeChallengeRepo
	blocks     *fakeBlockRepo
	seq        int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		challenges: &fakeChallengeRepo{},
		blocks:     &fakeBlockRepo{blocked: map[string]map[string]bool{}},
	}
}

func (f *fakeBackend) Challenges() store.ChallengeRepository { return f.challenges }
func (f *fakeBackend) Blocks() store.BlockRepository         { return f.blocks }
func (f *fakeBackend) GenerateID() string {
	f.seq++
	return "chal-" + strconv.Itoa(f.seq)
}

type fakeChallengeRepo struct {
	issued []model.Challenge
}

func (r *fakeChallengeRepo) Issue(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	r.issued = append(r.issued, c)
	return c, nil
}

func (r *fakeChallengeRepo) Delete(ctx context.Context, src, dst, key string) (*model.Challenge, error) {
	for i, c := range r.issued {
		if c.SrcUserID == src && c.DestUserID == dst {
			r.issued = append(r.issued[:i], r.issued[i+1:]...)
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeChallengeRepo) ListIssued(ctx context.Context, userID string) ([]model.Challenge, error) {
	var out []model.Challenge
	for _, c := range r.issued {
		if c.SrcUserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeChallengeRepo) ListReceived(ctx context.Context, userID string) ([]model.Challenge, error) {
	var out []model.Challenge
	for _, c := range r.issued {
		if c.DestUserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeChallengeRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	return nil
}

type fakeBlockRepo struct {
	store.BlockRepository
	blocked map[string]map[string]bool
}

func (r *fakeBlockRepo) IsBlocking(ctx context.Context, blocker, blocked string) (bool, error) {
	return r.blocked[blocker][blocked], nil
}

func TestIssue_thenListIssuedAndReceived(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil)

	_, err := s.Issue(t.Context(), "alice", "bob", model.GamePrefs{Duration: 10})
	require.NoError(t, err)

	issued, err := s.ListIssued(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "bob", issued[0].DestUserID)

	received, err := s.ListReceived(t.Context(), "bob")
	require.NoError(t, err)
	require.Len(t, received, 1)
}

func TestIssue_refusesDuplicate(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil)
	_, err := s.Issue(t.Context(), "alice", "bob", model.GamePrefs{})
	require.NoError(t, err)
	_, err = s.Issue(t.Context(), "alice", "bob", model.GamePrefs{})
	assert.Error(t, err)
}

func TestIssue_refusesWhenBlocked(t *testing.T) {
	b := newFakeBackend()
	b.blocks.blocked["bob"] = map[string]bool{"alice": true}
	s := NewService(b, nil)
	_, err := s.Issue(t.Context(), "alice", "bob", model.GamePrefs{})
	assert.Error(t, err)
}

func TestAccept_consumesChallengeAndReturnsPrefs(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil)
	_, err := s.Issue(t.Context(), "alice", "bob", model.GamePrefs{Duration: 25})
	require.NoError(t, err)

	prefs, err := s.Accept(t.Context(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 25, prefs.Duration)

	issued, err := s.ListIssued(t.Context(), "alice")
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestDecline_missingChallengeIsNotFound(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil)
	err := s.Decline(t.Context(), "alice", "bob")
	assert.Error(t, err)
}
