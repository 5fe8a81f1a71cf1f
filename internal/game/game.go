// Package game implements the game service (spec §4.5): creation, move
// application with the mcount optimistic-concurrency guard, the
// Active/Over state machine, and the fixed-order finalization sequence
// (overtime, rack-leave, synthetic TIME/OVER records). Grounded on
// _examples/original_source/skraflgame.py's Game class.
package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mideind/explo/internal/elo"
	"github.com/mideind/explo/internal/external"
	"github.com/mideind/explo/internal/locale"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

// MaxOvertimeSeconds is the overtime threshold beyond which a player
// loses on time, matching Game.MAX_OVERTIME = 10 * 60.0.
const MaxOvertimeSeconds = 10 * 60

// ConsecutiveNonScoringLimit is the number of consecutive non-scoring
// moves (passes/exchanges) that ends the game, per the standard rule
// referenced in spec §4.5.
const ConsecutiveNonScoringLimit = 6

// Service is the game service.
type Service struct {
	backend   store.Backend
	generator external.MoveGenerator
	validator external.WordValidator
	notifier  external.Notifier
	elo       *elo.Service
	now       func() time.Time
}

// NewService returns a game service over backend, using generator/
// validator for robot moves and word validation and notifier for
// lifecycle events.
func NewService(backend store.Backend, generator external.MoveGenerator, validator external.WordValidator, notifier external.Notifier) *Service {
	if notifier == nil {
		notifier = external.NoopLog{}
	}
	return &Service{
		backend:   backend,
		generator: generator,
		validator: validator,
		notifier:  notifier,
		elo:       elo.NewService(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// New creates a game between p0ID and p1ID (either may be "" for a
// robot seat, in which case robotLevel applies to that seat), dealing
// initial racks from the locale's tile bag and randomly swapping seats
// for fair first-move selection. If the first-to-move seat is a robot,
// the robot's opening move is generated and applied before returning.
func (s *Service) New(ctx context.Context, p0ID, p1ID string, robotLevel int, prefs model.GamePrefs, localeID string) (model.Game, error) {
	loc := locale.MustGet(localeID)

	if rand.Intn(2) == 1 {
		p0ID, p1ID = p1ID, p0ID
	}

	b := newBag(loc.TileSet)
	rack0 := b.draw(locale.RackSize)
	rack1 := b.draw(locale.RackSize)

	now := s.now()
	g := model.Game{
		ID:         s.backend.GenerateID(),
		Locale:     localeID,
		Rack0:      rack0,
		Rack1:      rack1,
		IRack0:     rack0,
		IRack1:     rack1,
		ToMove:     0,
		RobotLevel: robotLevel,
		Over:       false,
		Timestamp:  now,
		TsLastMove: now,
		Prefs:      prefs,
		Bag:        b.remaining(),
		TileCount:  b.count(),
	}
	if p0ID != "" {
		g.Player0ID = &p0ID
	}
	if p1ID != "" {
		g.Player1ID = &p1ID
	}

	created, err := s.backend.Games().Create(ctx, g)
	if err != nil {
		return model.Game{}, fmt.Errorf("game: creating: %w", err)
	}

	if created.IsRobotSeat(created.ToMove) {
		if err := s.applyRobotMove(ctx, &created); err != nil {
			return model.Game{}, err
		}
	}

	return created, nil
}

// Apply submits move on behalf of the player occupying the seat whose
// turn it is, guarded by mcount (spec §4.5 "stale client" rule): if
// mcount != len(existing moves), the submission is rejected with
// errkind.Conflict.
func (s *Service) Apply(ctx context.Context, gameID string, userID string, mv model.Move, mcount int) (model.Game, error) {
	var result model.Game
	err := s.backend.Transaction(ctx, func(ctx context.Context) error {
		g, err := s.backend.Games().GetByID(ctx, gameID)
		if err != nil {
			return fmt.Errorf("game: loading: %w", err)
		}
		if g == nil {
			return fmt.Errorf("game: %w: no such game", errkind.NotFound)
		}
		if g.Over {
			return fmt.Errorf("game: %w: game is over", errkind.IllegalState)
		}
		if len(g.Moves) != mcount {
			return fmt.Errorf("game: %w: stale mcount", errkind.Conflict)
		}
		if g.PlayerSeat(g.ToMove) != userID {
			return fmt.Errorf("game: %w: not this player's turn", errkind.Forbidden)
		}

		if err := s.applyMoveLocked(ctx, g, mv); err != nil {
			return err
		}

		if !g.Over && g.IsRobotSeat(g.ToMove) {
			if err := s.applyRobotMove(ctx, g); err != nil {
				return err
			}
		}

		result = *g
		return nil
	})
	if err != nil {
		return model.Game{}, err
	}
	return result, nil
}

// IsOver checks, and if needed performs, the overtime-based Over
// transition for g, idempotently (spec §4.5 "checked on any state
// query, not only on moves"; DESIGN.md Open Question decision). It is
// the single detection point for that transition, safe to call from
// both the move-apply path and a plain state query.
func (s *Service) IsOver(ctx context.Context, g *model.Game) (bool, error) {
	if g.Over {
		return true, nil
	}
	if g.Prefs.Duration <= 0 {
		return false, nil
	}
	ov0, ov1 := overtime(*g, s.now())
	if ov0 < MaxOvertimeSeconds && ov1 < MaxOvertimeSeconds {
		return false, nil
	}
	if err := s.finalize(ctx, g); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) applyMoveLocked(ctx context.Context, g *model.Game, mv model.Move) error {
	seat := g.ToMove
	mv.Timestamp = s.now()

	switch {
	case mv.IsResignation():
		// mv.Score is the resignation penalty magnitude, subtracted from
		// the resigning player's own score (ResignMove(-score)).
		if seat == 0 {
			g.Score0 -= mv.Score
		} else {
			g.Score1 -= mv.Score
		}
		g.Moves = append(g.Moves, mv)
		return s.finalize(ctx, g)

	case mv.IsPass():
		g.Moves = append(g.Moves, mv)

	case mv.IsExchange():
		rack := g.Rack0
		if seat == 1 {
			rack = g.Rack1
		}
		played := strings.TrimPrefix(mv.Tiles, model.ExchPrefix)
		remaining, err := removeFromRack(rack, played)
		if err != nil {
			return fmt.Errorf("game: %w: %v", errkind.IllegalMove, err)
		}
		b := loadBag(g.Bag)
		b.returnTiles(played)
		newRack := remaining + b.draw(locale.RackSize-runeLen(remaining))
		g.Bag = b.remaining()
		g.TileCount = b.count()
		if seat == 0 {
			g.Rack0 = newRack
		} else {
			g.Rack1 = newRack
		}
		mv.Rack = newRack
		g.Moves = append(g.Moves, mv)

	case mv.IsPlacement():
		if s.validator != nil && !g.Prefs.Manual {
			words := strings.Fields(mv.Tiles)
			for _, w := range words {
				ok, err := s.validator.IsValidWord(ctx, g.Locale, w)
				if err != nil {
					return fmt.Errorf("game: validating word: %w", err)
				}
				if !ok {
					return fmt.Errorf("game: %w: invalid word %q", errkind.IllegalMove, w)
				}
			}
		}
		rack := g.Rack0
		if seat == 1 {
			rack = g.Rack1
		}
		remaining, err := removeFromRack(rack, mv.Tiles)
		if err != nil {
			return fmt.Errorf("game: %w: %v", errkind.IllegalMove, err)
		}
		b := loadBag(g.Bag)
		newRack := remaining + b.draw(locale.RackSize-runeLen(remaining))
		g.Bag = b.remaining()
		g.TileCount = b.count()
		if seat == 0 {
			g.Rack0 = newRack
			g.Score0 += mv.Score
		} else {
			g.Rack1 = newRack
			g.Score1 += mv.Score
		}
		mv.Rack = newRack
		g.Moves = append(g.Moves, mv)

	default:
		return fmt.Errorf("game: %w: unrecognized move", errkind.IllegalMove)
	}

	if emptiedRack(*g, seat) && g.TileCount == 0 {
		g.ToMove = 1 - seat
		return s.finalize(ctx, g)
	}
	if consecutiveNonScoring(g.Moves) >= ConsecutiveNonScoringLimit {
		g.ToMove = 1 - seat
		return s.finalize(ctx, g)
	}

	g.ToMove = 1 - seat
	g.TsLastMove = s.now()
	return s.backend.Games().Update(ctx, g.ID, model.GameUpdate{
		Rack0: strPtr(g.Rack0), Rack1: strPtr(g.Rack1),
		Score0: intPtr(g.Score0), Score1: intPtr(g.Score1),
		ToMove: intPtr(g.ToMove), TsLastMove: &g.TsLastMove,
		Moves: g.Moves, Bag: strPtr(g.Bag), TileCount: intPtr(g.TileCount),
	})
}

// removeFromRack removes the letters in played from rack and returns
// what remains. A blank tile placed as a designated letter is written
// "?X" (spec §4.5); the rack itself holds only the bare "?", so the
// designation rune is consumed from played without being looked up in
// rack.
func removeFromRack(rack, played string) (string, error) {
	remaining := []rune(rack)
	runes := []rune(played)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '?' {
			if i+1 >= len(runes) {
				return "", fmt.Errorf("dangling blank designator in %q", played)
			}
			i++ // consume the designation rune, not looked up in rack
			if !consumeRune(&remaining, '?') {
				return "", fmt.Errorf("rack has no blank tile to play %q", played)
			}
			continue
		}
		if !consumeRune(&remaining, r) {
			return "", fmt.Errorf("rack has no tile %q", string(r))
		}
	}
	return string(remaining), nil
}

func consumeRune(rack *[]rune, r rune) bool {
	for i, x := range *rack {
		if x == r {
			*rack = append((*rack)[:i], (*rack)[i+1:]...)
			return true
		}
	}
	return false
}

func runeLen(s string) int { return len([]rune(s)) }

func (s *Service) applyRobotMove(ctx context.Context, g *model.Game) error {
	if s.generator == nil {
		return nil
	}
	seat := g.ToMove
	rack := g.Rack0
	if seat == 1 {
		rack = g.Rack1
	}
	loc := locale.MustGet(g.Locale)
	mv, err := s.generator.GenerateMove(ctx, external.BoardState{
		GameID: g.ID, Locale: g.Locale, BoardType: loc.BoardType,
		Rack: rack, TileCount: g.TileCount,
	}, g.RobotLevel)
	if err != nil {
		return fmt.Errorf("game: generating robot move: %w", err)
	}
	return s.applyMoveLocked(ctx, g, mv)
}

// finalize computes and applies the fixed-order finalization sequence
// (spec §4.5): (i) overtime penalty, (ii) rack-leave adjustment, (iii)
// synthetic TIME/OVER move records, then runs the real-time Elo update.
func (s *Service) finalize(ctx context.Context, g *model.Game) error {
	loc := locale.MustGet(g.Locale)
	resigned := len(g.Moves) > 0 && g.Moves[len(g.Moves)-1].IsResignation()

	adj0, adj1 := 0, 0
	if !resigned {
		ov0, ov1 := overtime(*g, s.now())
		adj0, adj1 = overtimeAdjustment(ov0, ov1, *g)

		lostOnOvertime := -1
		if ov0 >= MaxOvertimeSeconds {
			lostOnOvertime = 0
		} else if ov1 >= MaxOvertimeSeconds {
			lostOnOvertime = 1
		}

		if lostOnOvertime >= 0 {
			winner := 1 - lostOnOvertime
			sc := [2]int{g.Score0, g.Score1}
			if lostOnOvertime == 0 {
				adj1 = 0
			} else {
				adj0 = 0
			}
			loserAdj := -min(100, sc[lostOnOvertime])
			if lostOnOvertime == 0 {
				adj0 = loserAdj
			} else {
				adj1 = loserAdj
			}
			newLoserScore := sc[lostOnOvertime] + loserAdj
			if newLoserScore >= sc[winner] {
				delta := newLoserScore + 1 - sc[winner]
				if lostOnOvertime == 0 {
					adj1 = delta
				} else {
					adj0 = delta
				}
			}
		} else {
			// Rack-leave adjustment (ii): empty-rack win doubles the
			// opponent's rack onto the winner; pass-ending subtracts
			// each player's own rack.
			rack0Empty := g.Rack0 == ""
			rack1Empty := g.Rack1 == ""
			switch {
			case rack0Empty || rack1Empty:
				winner, loser := 0, 1
				if rack1Empty {
					winner, loser = 1, 0
				}
				loserRack := g.Rack0
				if loser == 1 {
					loserRack = g.Rack1
				}
				loserRackScore := loc.TileSet.RackScore(loserRack)
				if winner == 0 {
					adj0 += 2 * loserRackScore
					adj1 -= loserRackScore
				} else {
					adj1 += 2 * loserRackScore
					adj0 -= loserRackScore
				}
			default:
				adj0 -= loc.TileSet.RackScore(g.Rack0)
				adj1 -= loc.TileSet.RackScore(g.Rack1)
			}
		}
	}

	g.Score0 += adj0
	g.Score1 += adj1

	now := s.now()
	if adj0 != 0 || adj1 != 0 {
		g.Moves = append(g.Moves,
			model.Move{Tiles: model.TimeTiles, Score: adj0, Timestamp: now},
			model.Move{Tiles: model.TimeTiles, Score: adj1, Timestamp: now},
		)
	}
	g.Moves = append(g.Moves, model.Move{Tiles: model.OverTiles, Score: 0, Timestamp: now})

	g.Over = true
	g.TsLastMove = now

	upd := model.GameUpdate{
		Rack0: strPtr(g.Rack0), Rack1: strPtr(g.Rack1),
		Score0: intPtr(g.Score0), Score1: intPtr(g.Score1),
		Over: boolPtr(true), TsLastMove: &g.TsLastMove,
		Moves: g.Moves,
	}

	var u0, u1 *model.User
	if g.Player0ID != nil {
		u, err := s.backend.Users().GetByID(ctx, *g.Player0ID)
		if err != nil {
			return fmt.Errorf("game: loading player0: %w", err)
		}
		u0 = u
	}
	if g.Player1ID != nil {
		u, err := s.backend.Users().GetByID(ctx, *g.Player1ID)
		if err != nil {
			return fmt.Errorf("game: loading player1: %w", err)
		}
		u1 = u
	}

	eloUpd, err := s.elo.ApplyGameResult(ctx, s.backend, *g, u0, u1)
	if err != nil {
		return fmt.Errorf("game: applying elo: %w", err)
	}

	// Career game count: only human-vs-human games count, matching the
	// exclusion num_human_games() applies at its (unretrieved) call sites.
	if !g.IsRobotGame() {
		if err := s.backend.Users().Update(ctx, u0.ID, model.UserUpdate{Games: intPtr(u0.Games + 1)}); err != nil {
			return fmt.Errorf("game: incrementing player0 games: %w", err)
		}
		if err := s.backend.Users().Update(ctx, u1.ID, model.UserUpdate{Games: intPtr(u1.Games + 1)}); err != nil {
			return fmt.Errorf("game: incrementing player1 games: %w", err)
		}
	}
	upd.Elo0, upd.Elo1 = eloUpd.Elo0, eloUpd.Elo1
	upd.Elo0Adj, upd.Elo1Adj = eloUpd.Elo0Adj, eloUpd.Elo1Adj
	upd.HumanElo0, upd.HumanElo1 = eloUpd.HumanElo0, eloUpd.HumanElo1
	upd.HumanElo0Adj, upd.HumanElo1Adj = eloUpd.HumanElo0Adj, eloUpd.HumanElo1Adj
	upd.ManualElo0, upd.ManualElo1 = eloUpd.ManualElo0, eloUpd.ManualElo1
	upd.ManualElo0Adj, upd.ManualElo1Adj = eloUpd.ManualElo0Adj, eloUpd.ManualElo1Adj

	if err := s.backend.Games().Update(ctx, g.ID, upd); err != nil {
		return fmt.Errorf("game: persisting finalization: %w", err)
	}

	for _, seat := range [2]int{0, 1} {
		if !g.IsRobotSeat(seat) {
			s.notify(ctx, g.PlayerSeat(seat), "game_over", g.ID)
		}
	}
	return nil
}

// LiveGames returns ongoing games for userID.
func (s *Service) LiveGames(ctx context.Context, userID string) ([]model.LiveGameInfo, error) {
	return s.backend.Games().ListLive(ctx, userID)
}

// FinishedGames returns completed games for userID ordered by tsLastMove
// descending, optionally filtered to games against versus.
func (s *Service) FinishedGames(ctx context.Context, userID string, versus *string, limit int) ([]model.FinishedGameInfo, error) {
	return s.backend.Games().ListFinished(ctx, userID, versus, limit)
}

// StateAfterMove reconstructs the rack state after replaying the first n
// moves from the initial racks, for game review (spec §4.5).
func (s *Service) StateAfterMove(ctx context.Context, gameID string, n int) (rack0, rack1 string, err error) {
	g, err := s.backend.Games().GetByID(ctx, gameID)
	if err != nil {
		return "", "", fmt.Errorf("game: loading: %w", err)
	}
	if g == nil {
		return "", "", fmt.Errorf("game: %w: no such game", errkind.NotFound)
	}
	if n < 0 || n > len(g.Moves) {
		return "", "", fmt.Errorf("game: %w: move index out of range", errkind.IllegalState)
	}
	rack0, rack1 = g.IRack0, g.IRack1
	for i := 0; i < n; i++ {
		m := g.Moves[i]
		if i%2 == 0 {
			rack0 = m.Rack
		} else {
			rack1 = m.Rack
		}
	}
	return rack0, rack1, nil
}

func (s *Service) notify(ctx context.Context, userID, kind, gameID string) {
	if userID == "" {
		return
	}
	_ = s.notifier.Notify(ctx, userID, external.Event{Kind: kind, GameID: gameID})
}

// overtime returns how far the time elapsed since the game was created
// has run past one player's allotted duration, never negative, charged
// entirely to the player on move; the other player gets 0 (Game.overtime).
func overtime(g model.Game, now time.Time) (ov0, ov1 float64) {
	if g.Prefs.Duration <= 0 {
		return 0, 0
	}
	allotted := float64(g.Prefs.Duration) * 60.0
	elapsed := now.Sub(g.Timestamp).Seconds()
	ov := elapsed - allotted
	if ov < 0 {
		ov = 0
	}
	// Without per-move clocks split by seat, attribute the shared
	// overtime to the player on move; this matches the conservative
	// reading of the spec's deadline-cooperation model for this module's
	// scope (full per-seat clock bookkeeping is a client/UI concern).
	if g.ToMove == 0 {
		return ov, 0
	}
	return 0, ov
}

// overtimeAdjustment returns the per-started-minute score penalty for
// each player, capped at -100 (Game.overtime_adjustment).
func overtimeAdjustment(ov0, ov1 float64, g model.Game) (adj0, adj1 int) {
	_ = g
	if ov0 > 0 {
		adj0 = max(-100, -10*((int(ov0+0.9)+59)/60))
	}
	if ov1 > 0 {
		adj1 = max(-100, -10*((int(ov1+0.9)+59)/60))
	}
	return
}

func emptiedRack(g model.Game, seat int) bool {
	if seat == 0 {
		return g.Rack0 == ""
	}
	return g.Rack1 == ""
}

// consecutiveNonScoring counts the trailing run of pass/exchange moves.
func consecutiveNonScoring(moves []model.Move) int {
	n := 0
	for i := len(moves) - 1; i >= 0; i-- {
		if moves[i].IsPass() || moves[i].IsExchange() {
			n++
			continue
		}
		break
	}
	return n
}

func strPtr(v string) *string { return &v }
func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }

// bag is the remaining, undrawn tile bag for a game, persisted on
// model.Game.Bag between requests.
type bag struct {
	tiles []string
}

// newBag fills and shuffles a fresh bag from a locale's tile set
// composition, for game creation.
func newBag(ts locale.TileSet) *bag {
	b := &bag{}
	for _, t := range ts.Tiles {
		for i := 0; i < t.Count; i++ {
			b.tiles = append(b.tiles, t.Letter)
		}
	}
	rand.Shuffle(len(b.tiles), func(i, j int) { b.tiles[i], b.tiles[j] = b.tiles[j], b.tiles[i] })
	return b
}

// loadBag reconstructs a bag from its persisted remaining-tiles string,
// preserving the order already shuffled at creation time.
func loadBag(s string) *bag {
	b := &bag{}
	for _, r := range s {
		b.tiles = append(b.tiles, string(r))
	}
	return b
}

// draw removes up to n tiles from the front of the bag and returns them
// concatenated as a rack string.
func (b *bag) draw(n int) string {
	if n > len(b.tiles) {
		n = len(b.tiles)
	}
	drawn := b.tiles[:n]
	b.tiles = b.tiles[n:]
	var sb strings.Builder
	for _, t := range drawn {
		sb.WriteString(t)
	}
	return sb.String()
}

// returnTiles puts tiles back into the bag (used for EXCH) and
// re-shuffles the whole bag. The exchange draws after returning, so a
// returned tile can be drawn again in the same exchange.
func (b *bag) returnTiles(tiles string) {
	for _, r := range tiles {
		b.tiles = append(b.tiles, string(r))
	}
	rand.Shuffle(len(b.tiles), func(i, j int) { b.tiles[i], b.tiles[j] = b.tiles[j], b.tiles[i] })
}

// remaining returns the bag's current contents as a persistable string.
func (b *bag) remaining() string {
	return strings.Join(b.tiles, "")
}

func (b *bag) count() int { return len(b.tiles) }
