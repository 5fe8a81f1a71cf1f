package user

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
	users     *fakeUserRepo
	favorites *fakeFavoriteRepo
	blocks    *fakeBlockRepo
	reports   *fakeReportRepo
	seq       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:     &fakeUserRepo{byID: map[string]model.User{}},
		favorites: &fakeFavoriteRepo{edges: map[string]map[string]bool{}},
		blocks:    &fakeBlockRepo{edges: map[string]map[string]bool{}},
		reports:   &fakeReportRepo{},
	}
}

func (f *fakeBackend) Users() store.UserRepository         { return f.users }
func (f *fakeBackend) Favorites() store.FavoriteRepository { return f.favorites }
func (f *fakeBackend) Blocks() store.BlockRepository       { return f.blocks }
func (f *fakeBackend) Reports() store.ReportRepository     { return f.reports }
func (f *fakeBackend) GenerateID() string {
	f.seq++
	return "id-" + strconv.Itoa(f.seq)
}
func (f *fakeBackend) Transaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// cascadeNoop satisfies the remaining repository accessors used by
// Delete's cascade with trivial no-op repositories, so Delete can be
// exercised without stubbing every entity family in detail.
type cascadeNoop struct {
	store.ChallengeRepository
	store.ZombieRepository
	store.ChatRepository
	store.PromoRepository
	store.TransactionRepository
	store.SubmissionRepository
	store.ImageRepository
	store.EloRepository
	store.StatsRepository
	store.GameRepository
}

func (cascadeNoop) DeleteAllForUser(ctx context.Context, userID string) error   { return nil }
func (cascadeNoop) DeleteAllFromUser(ctx context.Context, userID string) error  { return nil }
func (cascadeNoop) DeleteForUser(ctx context.Context, userID string) error      { return nil }
func (cascadeNoop) NullifyPlayer(ctx context.Context, userID string) error      { return nil }

func (f *fakeBackend) Challenges() store.ChallengeRepository     { return cascadeNoop{} }
func (f *fakeBackend) Zombies() store.ZombieRepository           { return cascadeNoop{} }
func (f *fakeBackend) Chat() store.ChatRepository                { return cascadeNoop{} }
func (f *fakeBackend) Promos() store.PromoRepository             { return cascadeNoop{} }
func (f *fakeBackend) Transactions() store.TransactionRepository { return cascadeNoop{} }
func (f *fakeBackend) Submissions() store.SubmissionRepository   { return cascadeNoop{} }
func (f *fakeBackend) Images() store.ImageRepository             { return cascadeNoop{} }
func (f *fakeBackend) Elo() store.EloRepository                  { return cascadeNoop{} }
func (f *fakeBackend) Stats() store.StatsRepository              { return cascadeNoop{} }
func (f *fakeBackend) Games() store.GameRepository                { return cascadeNoop{} }

type fakeUserRepo struct {
	byID map[string]model.User
}

func (r *fakeUserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	r.byID[u.ID] = u
	return u, nil
}
func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := r.byID[id]; ok {
		return &u, nil
	}
	return nil, nil
}
func (r *fakeUserRepo) GetByAccount(ctx context.Context, account string) (*model.User, error) {
	for _, u := range r.byID {
		if u.Account == account {
			return &u, nil
		}
	}
	return nil, nil
}
func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) GetByNickname(ctx context.Context, nickname string) (*model.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) SearchByPrefix(ctx context.Context, prefix, locale string, limit int) ([]model.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) SimilarElo(ctx context.Context, targetElo int, locale string, maxLen int) ([]model.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	u := r.byID[id]
	if upd.Nickname != nil {
		u.Nickname = *upd.Nickname
	}
	r.byID[id] = u
	return nil
}
func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

type fakeFavoriteRepo struct {
	edges map[string]map[string]bool
}

func (r *fakeFavoriteRepo) Add(ctx context.Context, src, dst string) (bool, error) {
	if r.edges[src] == nil {
		r.edges[src] = map[string]bool{}
	}
	r.edges[src][dst] = true
	return true, nil
}
func (r *fakeFavoriteRepo) Remove(ctx context.Context, src, dst string) (bool, error) {
	delete(r.edges[src], dst)
	return true, nil
}
func (r *fakeFavoriteRepo) ListFavored(ctx context.Context, src string, limit int) ([]string, error) {
	var out []string
	for dst := range r.edges[src] {
		out = append(out, dst)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
func (r *fakeFavoriteRepo) ListFavoredBy(ctx context.Context, dst string, limit int) ([]string, error) {
	return nil, nil
}
func (r *fakeFavoriteRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	delete(r.edges, userID)
	return nil
}

type fakeBlockRepo struct {
	edges map[string]map[string]bool
}

func (r *fakeBlockRepo) Block(ctx context.Context, blocker, blocked string) (bool, error) {
	if r.edges[blocker] == nil {
		r.edges[blocker] = map[string]bool{}
	}
	r.edges[blocker][blocked] = true
	return true, nil
}
func (r *fakeBlockRepo) Unblock(ctx context.Context, blocker, blocked string) (bool, error) {
	delete(r.edges[blocker], blocked)
	return true, nil
}
func (r *fakeBlockRepo) IsBlocking(ctx context.Context, blocker, blocked string) (bool, error) {
	return r.edges[blocker][blocked], nil
}
func (r *fakeBlockRepo) ListBlocked(ctx context.Context, blocker string, limit int) ([]string, error) {
	return nil, nil
}
func (r *fakeBlockRepo) ListBlockedBy(ctx context.Context, blocked string, limit int) ([]string, error) {
	return nil, nil
}
func (r *fakeBlockRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	delete(r.edges, userID)
	return nil
}

type fakeReportRepo struct {
	added []model.Report
}

func (r *fakeReportRepo) Add(ctx context.Context, rep model.Report) (model.Report, error) {
	r.added = append(r.added, rep)
	return rep, nil
}
func (r *fakeReportRepo) DeleteAllForUser(ctx context.Context, userID string) error { return nil }

func TestCreate_defaultsNicknameFromAccount(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	u, err := s.Create(t.Context(), "u1", "acct-1", "a@example.com", "", "", nil, "is_IS")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", u.Nickname)
	assert.True(t, u.Prefs.Ready)
	assert.True(t, u.Ready)
	assert.True(t, u.ReadyTimed)
	assert.Equal(t, "", u.FullNameLow)
}

func TestCreate_mergesProvidedPrefsAndRecomputesFullNameLow(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	provided := model.UserPrefs{FullName: "Jane Doe", Fairplay: true}
	u, err := s.Create(t.Context(), "u1", "acct-1", "a@example.com", "img.png", &provided, "is_IS")
	require.NoError(t, err)
	assert.Equal(t, "jane doe", u.FullNameLow)
	assert.True(t, u.Prefs.Fairplay, "explicit override wins")
	assert.True(t, u.Prefs.Beginner, "default stands when not overridden")
	assert.Equal(t, "img.png", u.Image)
}

func TestAddFavorite_refusesPastLimit(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	for i := 0; i < MaxFavorites; i++ {
		require.NoError(t, s.AddFavorite(t.Context(), "src", "dst-"+strconv.Itoa(i)))
	}
	err := s.AddFavorite(t.Context(), "src", "one-too-many")
	assert.Error(t, err)
}

func TestReport_refusesSelfReport(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	_, err := s.Report(t.Context(), "u1", "u1", 1, "spam")
	assert.Error(t, err)
}

func TestDelete_cascadesAcrossFavoritesAndBlocks(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b)
	_, err := s.Create(t.Context(), "u1", "acct-1", "a@example.com", "nick", "", nil, "is_IS")
	require.NoError(t, err)
	require.NoError(t, s.AddFavorite(t.Context(), "u1", "u2"))
	require.NoError(t, s.Block(t.Context(), "u1", "u3"))

	require.NoError(t, s.Delete(t.Context(), "u1"))

	got, err := s.ByID(t.Context(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, b.favorites.edges["u1"])
	assert.Empty(t, b.blocks.edges["u1"])
}
