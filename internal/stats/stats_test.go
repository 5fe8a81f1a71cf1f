package stats

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

// fakeBackend is a minimal in-memory store.Backend, mirroring
// internal/chat's fakeBackend pattern: embed the interface so unused
// methods panic loudly if ever called, and stub only what this
// package's tests actually exercise.
type fakeBackend struct {
	store.Backend
	games       *fakeGameRepo
	stats       *fakeStatsRepo
	ratings     *fakeRatingRepo
	completions *fakeCompletionRepo
	users       *fakeUserRepo
	seq         int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		games:       &fakeGameRepo{},
		stats:       &fakeStatsRepo{},
		ratings:     &fakeRatingRepo{},
		completions: &fakeCompletionRepo{},
		users:       &fakeUserRepo{updates: map[string]model.UserUpdate{}},
	}
}

func (f *fakeBackend) Games() store.GameRepository             { return f.games }
func (f *fakeBackend) Stats() store.StatsRepository             { return f.stats }
func (f *fakeBackend) Ratings() store.RatingRepository          { return f.ratings }
func (f *fakeBackend) Completions() store.CompletionRepository  { return f.completions }
func (f *fakeBackend) Users() store.UserRepository              { return f.users }
func (f *fakeBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (f *fakeBackend) GenerateID() string {
	f.seq++
	return "id-" + strconv.Itoa(f.seq)
}

type fakeGameRepo struct {
	store.GameRepository
	games []model.Game
}

func (r *fakeGameRepo) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]model.Game, error) {
	return r.games, nil
}

type fakeStatsRepo struct {
	store.StatsRepository
	byUser map[string]model.StatsSnapshot
	put    []model.StatsSnapshot
}

func (r *fakeStatsRepo) MostRecentAtOrBefore(ctx context.Context, userID string, at time.Time) (*model.StatsSnapshot, error) {
	if r.byUser == nil {
		return nil, nil
	}
	if sn, ok := r.byUser[userID]; ok {
		return &sn, nil
	}
	return nil, nil
}

func (r *fakeStatsRepo) DeleteAt(ctx context.Context, at time.Time) error { return nil }

func (r *fakeStatsRepo) Put(ctx context.Context, s model.StatsSnapshot) error {
	r.put = append(r.put, s)
	return nil
}

func (r *fakeStatsRepo) TopByElo(ctx context.Context, kind string, at time.Time, n int) ([]model.StatsSnapshot, error) {
	return nil, nil
}

type fakeRatingRepo struct {
	store.RatingRepository
	rows []model.RatingRow
}

func (r *fakeRatingRepo) ReplaceAll(ctx context.Context, rows []model.RatingRow) error {
	r.rows = rows
	return nil
}

type fakeCompletionRepo struct {
	store.CompletionRepository
	added []model.Completion
}

func (r *fakeCompletionRepo) Add(ctx context.Context, c model.Completion) (model.Completion, error) {
	r.added = append(r.added, c)
	return c, nil
}

type fakeUserRepo struct {
	store.UserRepository
	updates map[string]model.UserUpdate
}

func (r *fakeUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	r.updates[id] = upd
	return nil
}

func strPtr(s string) *string { return &s }

// TestRunStats_RobotLevelPerSeat pins down the per-seat robotLevel
// convention: in a mixed human-vs-robot game the human seat's
// accumulator must be tagged as a human row (RobotLevel -1), not the
// game's own RobotLevel, while the robot seat is tagged with that level.
func TestRunStats_RobotLevelPerSeat(t *testing.T) {
	b := newFakeBackend()
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	b.games.games = []model.Game{
		{
			Player0ID:  strPtr("human-1"),
			Player1ID:  nil,
			Score0:     300,
			Score1:     250,
			RobotLevel: 2,
		},
	}

	svc := NewService(b, 100)
	n, err := svc.RunStats(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, b.stats.put, 2)

	byKey := map[string]model.StatsSnapshot{}
	for _, sn := range b.stats.put {
		if sn.UserID != "" {
			byKey[sn.UserID] = sn
		} else {
			byKey["robot"] = sn
		}
	}

	human := byKey["human-1"]
	require.Equal(t, -1, human.RobotLevel, "human seat must stay tagged as human (-1) regardless of the opponent's robot level")
	require.Equal(t, "human-1", human.UserID)

	robot := byKey["robot"]
	require.Equal(t, 2, robot.RobotLevel, "robot seat must carry the game's robot difficulty level")
	require.Equal(t, "", robot.UserID)

	require.Len(t, b.completions.added, 1)
	require.True(t, b.completions.added[0].Success)
}

// TestRunStats_SkipsZeroScoreGames covers the spec §4.8 rule that games
// with both scores zero (e.g. abandoned before a move) are excluded.
func TestRunStats_SkipsZeroScoreGames(t *testing.T) {
	b := newFakeBackend()
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	b.games.games = []model.Game{
		{Player0ID: strPtr("a"), Player1ID: strPtr("b"), Score0: 0, Score1: 0},
	}

	svc := NewService(b, 100)
	n, err := svc.RunStats(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, 1, n, "the game is still counted toward the processed total")
	require.Empty(t, b.stats.put, "but it contributes no accumulator writes")
}

// TestRebuildRatings_FansOutPerKind exercises the errgroup-based
// concurrent per-kind fetch and checks the assembled rows keep the
// kind/rank ordering RatingRepository.ReplaceAll expects.
func TestRebuildRatings_FansOutPerKind(t *testing.T) {
	b := newFakeBackend()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	svc := NewService(b, 2)
	err := svc.RebuildRatings(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, b.ratings.rows, 6, "2 sentinel ranks per kind across 3 kinds")
	kinds := map[string]int{}
	for _, row := range b.ratings.rows {
		kinds[row.Kind]++
		require.True(t, row.IsSentinel(), "with no backing snapshots every row should be a sentinel")
	}
	require.Equal(t, map[string]int{"all": 2, "human": 2, "manual": 2}, kinds)

	require.Len(t, b.completions.added, 1)
	require.Equal(t, "ratings", b.completions.added[0].ProcType)
	require.True(t, b.completions.added[0].Success)
}
