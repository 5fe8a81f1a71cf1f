// Package elo implements the real-time, per-game Elo update pipeline
// (spec §4.7), grounded line-for-line on
// _examples/original_source/src/skraflelo.py's compute_elo and
// compute_locale_elo_for_game.
package elo

import (
	"context"
	"fmt"
	"math"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/model"
)

// Constants carried verbatim from original_source/skraflelo.py and
// config.py; spec §9 explicitly forbids changing these without external
// confirmation.
const (
	K              = 20.0 // established players
	BeginnerK      = 32.0 // beginning players
	EstablishedMark = 10   // more than this many lifetime human games
	DefaultElo     = 1200
)

// Adjustment computes the Elo point adjustments for both players after a
// game, given their ratings before the game, the final scores, and
// whether each is an established player. Mirrors compute_elo().
func Adjustment(eloA, eloB, scoreA, scoreB int, establishedA, establishedB bool) (adjA, adjB int) {
	if scoreA < 0 || scoreB < 0 {
		panic("elo: negative score")
	}
	if scoreA+scoreB == 0 {
		return 0, 0
	}

	qa := math.Pow(10.0, float64(eloA)/400.0)
	qb := math.Pow(10.0, float64(eloB)/400.0)
	if qa+qb < 1.0 {
		// Strange corner case: give up, as the original does.
		return 0, 0
	}

	expA := qa / (qa + qb)
	expB := qb / (qa + qb)

	var actA, actB float64
	switch {
	case scoreA > scoreB:
		actA, actB = 1.0, 0.0
	case scoreB > scoreA:
		actA, actB = 0.0, 1.0
	default:
		actA, actB = 0.5, 0.5
	}

	kA, kB := BeginnerK, BeginnerK
	if establishedA {
		kA = K
	}
	if establishedB {
		kB = K
	}

	fa := (actA - expA) * kA
	fb := (actB - expB) * kB
	adjA = int(math.Round(fa))
	adjB = int(math.Round(fb))

	if adjA+eloA < 0 {
		adjA = -eloA
	}
	if adjB+eloB < 0 {
		adjB = -eloB
	}

	// When an established player beats/loses to a beginning player, the
	// established player's adjustment is forced to zero.
	if establishedA && !establishedB {
		adjA = 0
	}
	if establishedB && !establishedA {
		adjB = 0
	}

	return adjA, adjB
}

// IsEstablished reports whether a player counts as established (more than
// EstablishedMark lifetime human games). Robots are always established.
func IsEstablished(humanGames int) bool {
	return humanGames > EstablishedMark
}

// NonCounting reports whether the game is excluded from Elo accounting
// entirely (spec §4.7 "Non-counting games"): both scores zero, or the
// game ended by resignation on the first or second move.
func NonCounting(g model.Game) bool {
	if g.Score0 == 0 && g.Score1 == 0 {
		return true
	}
	if len(g.Moves) >= 1 && g.Moves[0].IsResignation() {
		return true
	}
	if len(g.Moves) >= 2 && g.Moves[1].IsResignation() {
		return true
	}
	return false
}

// playerElo holds the three parallel rating tracks for one side, and
// whether the side is a robot.
type playerElo struct {
	userID     string // "" for a robot seat
	isRobot    bool
	humanGames int
	elo        int
	humanElo   int
	manualElo  int
}

// Service applies the real-time Elo update for one finalized game.
type Service struct{}

// NewService returns the real-time Elo service.
func NewService() *Service { return &Service{} }

// ApplyGameResult computes and persists the locale-scoped Elo update for
// a just-finalized game, per spec §4.7. u0/u1 are nil for a robot seat.
// Returns the Game field updates to apply (pre-game ratings and
// adjustments), which the caller writes in the same transaction that
// finalized the game (spec §5 "finalizing a game and writing both users'
// EloRatings" must be atomic).
func (s *Service) ApplyGameResult(ctx context.Context, b store.Backend, g model.Game, u0, u1 *model.User) (model.GameUpdate, error) {
	if !g.Over {
		return model.GameUpdate{}, fmt.Errorf("elo: game %s is not over", g.ID)
	}

	locale := g.Locale
	if locale == "" {
		locale = "is_IS"
	}
	robotGame := u0 == nil || u1 == nil
	robotLevel := 0
	if robotGame {
		robotLevel = g.RobotLevel
	}
	manualGame := !robotGame && g.ManualWordcheck()
	noAdjust := NonCounting(g)

	p0, err := s.loadSide(ctx, b, locale, robotLevel, u0)
	if err != nil {
		return model.GameUpdate{}, err
	}
	p1, err := s.loadSide(ctx, b, locale, robotLevel, u1)
	if err != nil {
		return model.GameUpdate{}, err
	}

	est0 := true
	est1 := true
	if u0 != nil {
		est0 = IsEstablished(p0.humanGames)
	}
	if u1 != nil {
		est1 = IsEstablished(p1.humanGames)
	}

	upd := model.GameUpdate{}

	// Global (elo) track: always computed, including robot games.
	pre0, pre1 := p0.elo, p1.elo
	upd.Elo0, upd.Elo1 = intPtr(pre0), intPtr(pre1)
	adj0, adj1 := 0, 0
	if !noAdjust {
		adj0, adj1 = Adjustment(pre0, pre1, g.Score0, g.Score1, est0, est1)
	}
	upd.Elo0Adj, upd.Elo1Adj = intPtr(adj0), intPtr(adj1)
	p0.elo, p1.elo = pre0+adj0, pre1+adj1

	// Human-only track: skipped entirely for robot games.
	if !robotGame {
		preH0, preH1 := p0.humanElo, p1.humanElo
		upd.HumanElo0, upd.HumanElo1 = intPtr(preH0), intPtr(preH1)
		hadj0, hadj1 := 0, 0
		if !noAdjust {
			hadj0, hadj1 = Adjustment(preH0, preH1, g.Score0, g.Score1, est0, est1)
		}
		upd.HumanElo0Adj, upd.HumanElo1Adj = intPtr(hadj0), intPtr(hadj1)
		p0.humanElo, p1.humanElo = preH0+hadj0, preH1+hadj1

		if manualGame {
			preM0, preM1 := p0.manualElo, p1.manualElo
			upd.ManualElo0, upd.ManualElo1 = intPtr(preM0), intPtr(preM1)
			madj0, madj1 := 0, 0
			if !noAdjust {
				madj0, madj1 = Adjustment(preM0, preM1, g.Score0, g.Score1, est0, est1)
			}
			upd.ManualElo0Adj, upd.ManualElo1Adj = intPtr(madj0), intPtr(madj1)
			p0.manualElo, p1.manualElo = preM0+madj0, preM1+madj1
		}
	}

	if err := s.store(ctx, b, locale, robotLevel, p0); err != nil {
		return model.GameUpdate{}, err
	}
	if err := s.store(ctx, b, locale, robotLevel, p1); err != nil {
		return model.GameUpdate{}, err
	}

	return upd, nil
}

func (s *Service) loadSide(ctx context.Context, b store.Backend, locale string, robotLevel int, u *model.User) (playerElo, error) {
	if u == nil {
		re, err := b.Robots().Get(ctx, locale, robotLevel)
		if err != nil {
			return playerElo{}, fmt.Errorf("elo: loading robot elo: %w", err)
		}
		if re == nil {
			return playerElo{isRobot: true, elo: DefaultElo, humanElo: DefaultElo, manualElo: DefaultElo}, nil
		}
		return playerElo{isRobot: true, elo: re.Elo, humanElo: DefaultElo, manualElo: DefaultElo}, nil
	}

	er, err := b.Elo().Get(ctx, u.ID, locale)
	if err != nil {
		return playerElo{}, fmt.Errorf("elo: loading user elo: %w", err)
	}
	if er != nil {
		return playerElo{userID: u.ID, humanGames: u.Games, elo: er.Elo, humanElo: er.HumanElo, manualElo: er.ManualElo}, nil
	}
	// No EloRating row yet: seed from the legacy per-user fields when the
	// user's primary locale matches, else from DefaultElo (spec §4.7
	// "Fallbacks").
	if u.Locale == locale {
		return playerElo{userID: u.ID, humanGames: u.Games, elo: orDefault(u.Elo), humanElo: orDefault(u.HumanElo), manualElo: orDefault(u.ManualElo)}, nil
	}
	return playerElo{userID: u.ID, humanGames: u.Games, elo: DefaultElo, humanElo: DefaultElo, manualElo: DefaultElo}, nil
}

func (s *Service) store(ctx context.Context, b store.Backend, locale string, robotLevel int, p playerElo) error {
	if p.isRobot {
		return b.Robots().Upsert(ctx, model.RobotElo{Locale: locale, RobotLevel: robotLevel, Elo: p.elo})
	}
	return b.Elo().Upsert(ctx, model.EloRating{UserID: p.userID, Locale: locale, Elo: p.elo, HumanElo: p.humanElo, ManualElo: p.manualElo})
}

func orDefault(v int) int {
	if v == 0 {
		return DefaultElo
	}
	return v
}

func intPtr(v int) *int { return &v }
