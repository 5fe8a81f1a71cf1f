package game

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mideind/explo/internal/external"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

type fakeBackend struct {
	store.Backend
	games  *fakeGameRepo
	users  *fakeUserRepo
	elo    *fakeEloRepo
	robots *fakeRobotRepo
	seq    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		games:  &fakeGameRepo{byID: map[string]*model.Game{}},
		users:  &fakeUserRepo{byID: map[string]*model.User{}},
		elo:    &fakeEloRepo{},
		robots: &fakeRobotRepo{},
	}
}

func (f *fakeBackend) Games() store.GameRepository   { return f.games }
func (f *fakeBackend) Users() store.UserRepository   { return f.users }
func (f *fakeBackend) Elo() store.EloRepository      { return f.elo }
func (f *fakeBackend) Robots() store.RobotRepository { return f.robots }
func (f *fakeBackend) GenerateID() string {
	f.seq++
	return "game-" + strconv.Itoa(f.seq)
}
func (f *fakeBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeGameRepo struct {
	byID map[string]*model.Game
}

func (r *fakeGameRepo) Create(ctx context.Context, g model.Game) (model.Game, error) {
	cp := g
	r.byID[g.ID] = &cp
	return cp, nil
}

func (r *fakeGameRepo) GetByID(ctx context.Context, id string) (*model.Game, error) {
	g, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGameRepo) Update(ctx context.Context, id string, upd model.GameUpdate) error {
	g, ok := r.byID[id]
	if !ok {
		return nil
	}
	if upd.Rack0 != nil {
		g.Rack0 = *upd.Rack0
	}
	if upd.Rack1 != nil {
		g.Rack1 = *upd.Rack1
	}
	if upd.Score0 != nil {
		g.Score0 = *upd.Score0
	}
	if upd.Score1 != nil {
		g.Score1 = *upd.Score1
	}
	if upd.ToMove != nil {
		g.ToMove = *upd.ToMove
	}
	if upd.Over != nil {
		g.Over = *upd.Over
	}
	if upd.TsLastMove != nil {
		g.TsLastMove = *upd.TsLastMove
	}
	if upd.Moves != nil {
		g.Moves = upd.Moves
	}
	if upd.Bag != nil {
		g.Bag = *upd.Bag
	}
	if upd.TileCount != nil {
		g.TileCount = *upd.TileCount
	}
	if upd.Elo0 != nil {
		g.Elo0 = upd.Elo0
	}
	if upd.Elo1 != nil {
		g.Elo1 = upd.Elo1
	}
	return nil
}

func (r *fakeGameRepo) ListLive(ctx context.Context, userID string) ([]model.LiveGameInfo, error) {
	return nil, nil
}
func (r *fakeGameRepo) ListFinished(ctx context.Context, userID string, versus *string, limit int) ([]model.FinishedGameInfo, error) {
	return nil, nil
}
func (r *fakeGameRepo) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]model.Game, error) {
	return nil, nil
}
func (r *fakeGameRepo) NullifyPlayer(ctx context.Context, userID string) error { return nil }

type fakeUserRepo struct {
	store.UserRepository
	byID map[string]*model.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.byID[id], nil
}

func (r *fakeUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	u, ok := r.byID[id]
	if !ok {
		return nil
	}
	if upd.Games != nil {
		u.Games = *upd.Games
	}
	return nil
}

type fakeEloRepo struct {
	store.EloRepository
	upserted []model.EloRating
}

func (r *fakeEloRepo) Get(ctx context.Context, userID, locale string) (*model.EloRating, error) {
	return nil, nil
}
func (r *fakeEloRepo) Upsert(ctx context.Context, er model.EloRating) error {
	r.upserted = append(r.upserted, er)
	return nil
}

type fakeRobotRepo struct {
	store.RobotRepository
	upserted []model.RobotElo
}

func (r *fakeRobotRepo) Get(ctx context.Context, locale string, level int) (*model.RobotElo, error) {
	return nil, nil
}
func (r *fakeRobotRepo) Upsert(ctx context.Context, re model.RobotElo) error {
	r.upserted = append(r.upserted, re)
	return nil
}

func newTestGame(b *fakeBackend, id, rack0, rack1, bag string, toMove int) model.Game {
	now := time.Now().UTC().Add(-time.Minute)
	g := model.Game{
		ID:         id,
		Player0ID:  strPtr("alice"),
		Player1ID:  strPtr("bob"),
		Locale:     "en_US",
		Rack0:      rack0,
		Rack1:      rack1,
		IRack0:     rack0,
		IRack1:     rack1,
		ToMove:     toMove,
		Timestamp:  now,
		TsLastMove: now,
		Prefs:      model.GamePrefs{Duration: 0},
		Bag:        bag,
		TileCount:  runeLen(bag),
	}
	created, _ := b.games.Create(context.Background(), g)
	b.users.byID["alice"] = &model.User{ID: "alice", Games: 20}
	b.users.byID["bob"] = &model.User{ID: "bob", Games: 20}
	return created
}

func TestNew_dealsFullRacksFromTheBag(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)

	g, err := s.New(t.Context(), "alice", "bob", 0, model.GamePrefs{}, "en_US")
	require.NoError(t, err)

	assert.Equal(t, 7, runeLen(g.Rack0))
	assert.Equal(t, 7, runeLen(g.Rack1))
	assert.Equal(t, runeLen(g.Bag), g.TileCount)
	assert.Equal(t, g.IRack0, g.Rack0)
	assert.Equal(t, g.IRack1, g.Rack1)
}

func TestApply_placementScoresAndSwitchesTurn(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g1", "catxxxx", "dogyyyy", "eeeeeeee", 0)

	updated, err := s.Apply(t.Context(), g.ID, "alice", model.Move{
		Coord: "8H", Tiles: "cat", Score: 5,
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, 5, updated.Score0)
	assert.Equal(t, 1, updated.ToMove)
	assert.Len(t, updated.Moves, 1)
	assert.Equal(t, 7, runeLen(updated.Rack0))
}

func TestApply_staleMcountIsConflict(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g2", "catxxxx", "dogyyyy", "eeeeeeee", 0)

	_, err := s.Apply(t.Context(), g.ID, "alice", model.Move{Coord: "8H", Tiles: "cat", Score: 5}, 1)
	assert.Error(t, err)
}

func TestApply_wrongTurnIsForbidden(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g3", "catxxxx", "dogyyyy", "eeeeeeee", 0)

	_, err := s.Apply(t.Context(), g.ID, "bob", model.Move{Coord: "8H", Tiles: "dog", Score: 5}, 0)
	assert.Error(t, err)
}

func TestApply_resignationSubtractsPenaltyAndFinalizes(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g4", "catxxxx", "dogyyyy", "eeeeeeee", 0)
	b.games.byID[g.ID].Score0 = 30

	updated, err := s.Apply(t.Context(), g.ID, "alice", model.Move{
		Tiles: model.ResignTiles, Score: 30,
	}, 0)
	require.NoError(t, err)

	assert.True(t, updated.Over)
	assert.Equal(t, 0, updated.Score0)
}

func TestApply_sixConsecutivePassesFinalizes(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g5", "catxxxx", "dogyyyy", "eeeeeeee", 0)
	// Five prior passes already on record; the sixth (from this Apply) ends it.
	var moves []model.Move
	for i := 0; i < 5; i++ {
		moves = append(moves, model.Move{Tiles: model.PassTiles})
	}
	b.games.byID[g.ID].Moves = moves

	updated, err := s.Apply(t.Context(), g.ID, "alice", model.Move{Tiles: model.PassTiles}, 5)
	require.NoError(t, err)

	assert.True(t, updated.Over)
	last := updated.Moves[len(updated.Moves)-1]
	assert.Equal(t, model.OverTiles, last.Tiles)
}

func TestApply_emptyingRackEndsGameAndDoublesOpponentRack(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	// alice's whole rack is played in one move, leaving an empty bag so no
	// replacement tiles are drawn and the rack empties.
	g := newTestGame(b, "g6", "cat", "dogyyyy", "", 0)

	updated, err := s.Apply(t.Context(), g.ID, "alice", model.Move{
		Coord: "8H", Tiles: "cat", Score: 10,
	}, 0)
	require.NoError(t, err)

	assert.True(t, updated.Over)
	assert.Equal(t, "", updated.Rack0)
	// bob's rack (dogyyyy, 21 points under en_US scoring) is doubled onto
	// alice and subtracted from bob.
	assert.Greater(t, updated.Score0, 10)
	assert.Less(t, updated.Score1, 0)
}

func TestStateAfterMove_replaysRacksFromInitialDeal(t *testing.T) {
	b := newFakeBackend()
	s := NewService(b, nil, nil, nil)
	g := newTestGame(b, "g7", "catxxxx", "dogyyyy", "eeeeeeee", 0)
	g.Moves = []model.Move{
		{Tiles: "cat", Rack: "xxxxeee"},
		{Tiles: model.PassTiles, Rack: "dogyyyy"},
	}
	b.games.byID[g.ID].Moves = g.Moves

	r0, r1, err := s.StateAfterMove(t.Context(), g.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "xxxxeee", r0)
	assert.Equal(t, "dogyyyy", r1)
}

func TestRemoveFromRack_blankDesignatorSyntax(t *testing.T) {
	remaining, err := removeFromRack("a?bcd", "a?X")
	require.NoError(t, err)
	assert.Equal(t, "bcd", remaining)
}

func TestRemoveFromRack_missingTileErrors(t *testing.T) {
	_, err := removeFromRack("abc", "z")
	assert.Error(t, err)
}

func TestApplyRobotMove_usesGeneratorAndAppliesPlacement(t *testing.T) {
	b := newFakeBackend()
	gen := stubGenerator{mv: model.Move{Coord: "8H", Tiles: "dog", Score: 6}}
	s := NewService(b, gen, nil, nil)
	g := newTestGame(b, "g8", "catxxxx", "dogyyyy", "eeeeeeee", 1)
	b.games.byID[g.ID].Player1ID = nil

	err := s.applyRobotMove(t.Context(), b.games.byID[g.ID])
	require.NoError(t, err)
	assert.Equal(t, 6, b.games.byID[g.ID].Score1)
}

type stubGenerator struct {
	mv model.Move
}

func (g stubGenerator) GenerateMove(ctx context.Context, state external.BoardState, robotLevel int) (model.Move, error) {
	return g.mv, nil
}
