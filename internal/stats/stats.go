// Package stats implements the nightly stats/rankings pipeline (spec
// §4.8): runStats(from, to) accumulates per-user career totals over
// completed games in a time window and rewrites denormalized Elo fields,
// rebuildRatings() recomputes the top-100 scoreboards. Grounded on
// _examples/original_source/src/skraflstats.py's _run_stats/_create_ratings,
// translated into a from-seeding + idempotent-to-write pipeline over
// internal/store instead of an in-process NDB query loop.
package stats

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mideind/explo/internal/elo"
	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

// Service is the nightly stats/rankings pipeline.
type Service struct {
	backend store.Backend
	topN    int
}

// NewService returns a stats service over backend, keeping topN rows per
// rating kind in RebuildRatings (spec default 100).
func NewService(backend store.Backend, topN int) *Service {
	if topN <= 0 {
		topN = 100
	}
	return &Service{backend: backend, topN: topN}
}

// accumulator tracks one user's (or one robot level's) running totals
// across the games processed in this run, seeded from the nearest prior
// snapshot and written out once at `to` (spec §4.8).
type accumulator struct {
	userID     string // "" for a robot seat
	robotLevel int
	snap       model.StatsSnapshot
}

func (a *accumulator) key() string {
	if a.userID != "" {
		return a.userID
	}
	return fmt.Sprintf("robot-%d", a.robotLevel)
}

// RunStats iterates completed games with from < tsLastMove <= to, in
// timestamp order, seeding per-user accumulators from the most recent
// snapshot at or before `from`, and writes one Stats snapshot per touched
// user at `to` (spec §4.8). It is safe to re-invoke with the same
// (from, to) after a partial failure: seeding plus the delete-then-write
// at `to` make the result idempotent (spec "Resume semantics"). It
// returns the number of games folded into the run, for callers that
// report it (internal/scheduler's Prometheus counter).
func (s *Service) RunStats(ctx context.Context, from, to time.Time) (int, error) {
	if !from.Before(to) {
		return 0, fmt.Errorf("stats: empty time range %s..%s", from, to)
	}

	games, err := s.backend.Games().ListCompletedBetween(ctx, from, to)
	if err != nil {
		s.recordCompletion(ctx, "stats", from, to, false, err.Error())
		return 0, fmt.Errorf("stats: listing completed games: %w", err)
	}

	users := map[string]*accumulator{}

	for _, g := range games {
		if g.Score0 == 0 && g.Score1 == 0 {
			continue // skip games with both scores zero (spec §4.8)
		}

		robotGame := g.IsRobotGame()
		robotLevel := -1
		if robotGame {
			robotLevel = g.RobotLevel
		}
		manualGame := !robotGame && g.ManualWordcheck()

		u0, err := s.loadAccum(ctx, users, from, g.Player0ID, robotLevel)
		if err != nil {
			s.recordCompletion(ctx, "stats", from, to, false, err.Error())
			return 0, err
		}
		u1, err := s.loadAccum(ctx, users, from, g.Player1ID, robotLevel)
		if err != nil {
			s.recordCompletion(ctx, "stats", from, to, false, err.Error())
			return 0, err
		}

		applyGameToAccum(u0, u1, g.Score0, g.Score1, robotGame, manualGame)
	}

	if err := s.writeSnapshots(ctx, to, users); err != nil {
		s.recordCompletion(ctx, "stats", from, to, false, err.Error())
		return 0, err
	}

	s.recordCompletion(ctx, "stats", from, to, true, "")
	return len(games), nil
}

// loadAccum returns the accumulator for the given seat, seeding it from
// the nearest Stats snapshot at or before `from` on first touch.
func (s *Service) loadAccum(ctx context.Context, users map[string]*accumulator, from time.Time, playerID *string, robotLevel int) (*accumulator, error) {
	userID := ""
	seatRobotLevel := -1
	if playerID != nil {
		userID = *playerID
	} else {
		seatRobotLevel = robotLevel
	}
	a := &accumulator{userID: userID, robotLevel: seatRobotLevel}
	key := a.key()
	if existing, ok := users[key]; ok {
		return existing, nil
	}

	var seedUserID string
	if userID != "" {
		seedUserID = userID
	} else {
		seedUserID = key
	}
	prior, err := s.backend.Stats().MostRecentAtOrBefore(ctx, seedUserID, from)
	if err != nil {
		return nil, fmt.Errorf("stats: seeding accumulator for %s: %w", key, err)
	}
	if prior != nil {
		a.snap = *prior
	}
	a.snap.UserID = seedUserID
	a.snap.RobotLevel = seatRobotLevel
	users[key] = a
	return a, nil
}

// applyGameToAccum folds one completed game's result into both sides'
// accumulators: games/wins/losses/score triads and the three parallel
// Elo tracks, mirroring skraflstats.py's _run_stats loop body.
func applyGameToAccum(u0, u1 *accumulator, s0, s1 int, robotGame, manualGame bool) {
	u0.snap.Games.All++
	u1.snap.Games.All++
	if !robotGame {
		u0.snap.Games.Human++
		u1.snap.Games.Human++
		if manualGame {
			u0.snap.Games.Manual++
			u1.snap.Games.Manual++
		}
	}

	u0.snap.ScoreFor.All += s0
	u1.snap.ScoreFor.All += s1
	u0.snap.ScoreAgainst.All += s1
	u1.snap.ScoreAgainst.All += s0
	if !robotGame {
		u0.snap.ScoreFor.Human += s0
		u1.snap.ScoreFor.Human += s1
		u0.snap.ScoreAgainst.Human += s1
		u1.snap.ScoreAgainst.Human += s0
		if manualGame {
			u0.snap.ScoreFor.Manual += s0
			u1.snap.ScoreFor.Manual += s1
			u0.snap.ScoreAgainst.Manual += s1
			u1.snap.ScoreAgainst.Manual += s0
		}
	}

	switch {
	case s0 > s1:
		u0.snap.Wins.All++
		u1.snap.Losses.All++
		if !robotGame {
			u0.snap.Wins.Human++
			u1.snap.Losses.Human++
			if manualGame {
				u0.snap.Wins.Manual++
				u1.snap.Losses.Manual++
			}
		}
	case s1 > s0:
		u1.snap.Wins.All++
		u0.snap.Losses.All++
		if !robotGame {
			u1.snap.Wins.Human++
			u0.snap.Losses.Human++
			if manualGame {
				u1.snap.Wins.Manual++
				u0.snap.Losses.Manual++
			}
		}
	}

	est0 := elo.IsEstablished(u0.snap.Games.Human)
	est1 := elo.IsEstablished(u1.snap.Games.Human)
	if robotGame {
		est0, est1 = true, true
	}

	adj0, adj1 := elo.Adjustment(u0.snap.Elo, u1.snap.Elo, s0, s1, est0, est1)
	u0.snap.Elo += adj0
	u1.snap.Elo += adj1

	if !robotGame {
		h0, h1 := orDefault(u0.snap.HumanElo), orDefault(u1.snap.HumanElo)
		hadj0, hadj1 := elo.Adjustment(h0, h1, s0, s1, est0, est1)
		u0.snap.HumanElo = h0 + hadj0
		u1.snap.HumanElo = h1 + hadj1

		if manualGame {
			m0, m1 := orDefault(u0.snap.ManualElo), orDefault(u1.snap.ManualElo)
			madj0, madj1 := elo.Adjustment(m0, m1, s0, s1, est0, est1)
			u0.snap.ManualElo = m0 + madj0
			u1.snap.ManualElo = m1 + madj1
		}
	}
}

func orDefault(v int) int {
	if v == 0 {
		return elo.DefaultElo
	}
	return v
}

// writeSnapshots deletes any existing snapshot at `to` (idempotence under
// retry, spec §4.8) and writes the touched users' new snapshots, then
// rewrites the denormalized elo/humanElo/manualElo fields on each
// affected User.
func (s *Service) writeSnapshots(ctx context.Context, to time.Time, users map[string]*accumulator) error {
	return s.backend.Transaction(ctx, func(ctx context.Context) error {
		if err := s.backend.Stats().DeleteAt(ctx, to); err != nil {
			return fmt.Errorf("stats: clearing snapshots at %s: %w", to, err)
		}

		for _, a := range users {
			a.snap.Timestamp = to
			if err := s.backend.Stats().Put(ctx, a.snap); err != nil {
				return fmt.Errorf("stats: writing snapshot for %s: %w", a.key(), err)
			}

			if a.userID == "" {
				continue // robot accumulators have no User row to update
			}
			upd := model.UserUpdate{
				Elo:       intPtr(a.snap.Elo),
				HumanElo:  intPtr(a.snap.HumanElo),
				ManualElo: intPtr(a.snap.ManualElo),
				Games:     intPtr(a.snap.Games.Human),
			}
			if err := s.backend.Users().Update(ctx, a.userID, upd); err != nil {
				return fmt.Errorf("stats: updating user %s elo: %w", a.userID, err)
			}
		}
		return nil
	})
}

func intPtr(v int) *int { return &v }

// RebuildRatings recomputes the top-N scoreboard for each rating kind
// (all/human/manual) at now, now-1d, now-7d, and now-30d using the
// nearest snapshot at or before each moment, filling unused ranks with
// sentinel rows, and replaces the entire RatingRow table (spec §4.8).
func (s *Service) RebuildRatings(ctx context.Context, now time.Time) error {
	kinds := []string{"all", "human", "manual"}
	perKind := make([][]model.RatingRow, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			rows, err := s.rebuildKind(gctx, kind, now)
			if err != nil {
				return err
			}
			perKind[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.recordCompletion(ctx, "ratings", now, now, false, err.Error())
		return err
	}

	var rows []model.RatingRow
	for _, r := range perKind {
		rows = append(rows, r...)
	}

	if err := s.backend.Ratings().ReplaceAll(ctx, rows); err != nil {
		s.recordCompletion(ctx, "ratings", now, now, false, err.Error())
		return fmt.Errorf("stats: replacing rating rows: %w", err)
	}
	s.recordCompletion(ctx, "ratings", now, now, true, "")
	return nil
}

// rebuildKind loads one rating kind's current/yesterday/week-ago/month-ago
// top-N snapshots and assembles its RatingRow slice. Split out of
// RebuildRatings so the three kinds can be fetched concurrently.
func (s *Service) rebuildKind(ctx context.Context, kind string, now time.Time) ([]model.RatingRow, error) {
	current, err := s.backend.Stats().TopByElo(ctx, kind, now, s.topN)
	if err != nil {
		return nil, fmt.Errorf("stats: loading current top %s: %w", kind, err)
	}
	yesterday, err := s.backend.Stats().TopByElo(ctx, kind, now.AddDate(0, 0, -1), s.topN)
	if err != nil {
		return nil, fmt.Errorf("stats: loading yesterday top %s: %w", kind, err)
	}
	weekAgo, err := s.backend.Stats().TopByElo(ctx, kind, now.AddDate(0, 0, -7), s.topN)
	if err != nil {
		return nil, fmt.Errorf("stats: loading week-ago top %s: %w", kind, err)
	}
	monthAgo, err := s.backend.Stats().TopByElo(ctx, kind, now.AddDate(0, 0, -30), s.topN)
	if err != nil {
		return nil, fmt.Errorf("stats: loading month-ago top %s: %w", kind, err)
	}

	byUser := func(snaps []model.StatsSnapshot) map[string]model.RatingSnapshot {
		m := make(map[string]model.RatingSnapshot, len(snaps))
		for i, sn := range snaps {
			m[snapKey(sn)] = ratingSnapshotOf(kind, i+1, sn)
		}
		return m
	}
	yMap, wMap, mMap := byUser(yesterday), byUser(weekAgo), byUser(monthAgo)

	var rows []model.RatingRow
	for i, sn := range current {
		rank := i + 1
		row := model.RatingRow{Kind: kind, Rank: rank, RobotLevel: sn.RobotLevel}
		if sn.UserID != "" {
			uid := sn.UserID
			row.UserID = &uid
		}
		row.Current = ratingSnapshotOf(kind, rank, sn)
		row.Yesterday = yMap[snapKey(sn)]
		row.WeekAgo = wMap[snapKey(sn)]
		row.MonthAgo = mMap[snapKey(sn)]
		rows = append(rows, row)
	}
	for rank := len(current) + 1; rank <= s.topN; rank++ {
		rows = append(rows, model.SentinelRatingRow(kind, rank))
	}
	return rows, nil
}

func snapKey(sn model.StatsSnapshot) string {
	if sn.UserID != "" {
		return sn.UserID
	}
	return fmt.Sprintf("robot-%d", sn.RobotLevel)
}

func ratingSnapshotOf(kind string, rank int, sn model.StatsSnapshot) model.RatingSnapshot {
	eloVal, games, wins, losses, scoreFor, scoreAgainst := sn.Elo, sn.Games.All, sn.Wins.All, sn.Losses.All, sn.ScoreFor.All, sn.ScoreAgainst.All
	switch kind {
	case "human":
		eloVal, games, wins, losses, scoreFor, scoreAgainst = sn.HumanElo, sn.Games.Human, sn.Wins.Human, sn.Losses.Human, sn.ScoreFor.Human, sn.ScoreAgainst.Human
	case "manual":
		eloVal, games, wins, losses, scoreFor, scoreAgainst = sn.ManualElo, sn.Games.Manual, sn.Wins.Manual, sn.Losses.Manual, sn.ScoreFor.Manual, sn.ScoreAgainst.Manual
	}
	return model.RatingSnapshot{Rank: rank, Games: games, Elo: eloVal, Score: scoreFor, ScoreAgainst: scoreAgainst, Wins: wins, Losses: losses}
}

// recordCompletion writes a Completion log entry (spec §4.8); logging
// failures here are swallowed since the pipeline's own return value is
// the authoritative signal to the caller.
func (s *Service) recordCompletion(ctx context.Context, procType string, from, to time.Time, success bool, reason string) {
	c := model.Completion{
		ID:        s.backend.GenerateID(),
		ProcType:  procType,
		TsFrom:    from,
		TsTo:      to,
		Success:   success,
		Reason:    reason,
		Timestamp: to,
	}
	if _, err := s.backend.Completions().Add(ctx, c); err != nil {
		_ = err // best-effort log write; the pipeline's own error already propagates
	}
}

// LatestCompletion reports the most recent completion entry for the
// given proc type, used by operators and the resume logic in
// internal/scheduler to detect skipped days (spec §4.8).
func (s *Service) LatestCompletion(ctx context.Context, procType string) (*model.Completion, error) {
	c, err := s.backend.Completions().Latest(ctx, procType)
	if err != nil {
		return nil, fmt.Errorf("stats: %w: %s", errkind.BackendFailure, err)
	}
	return c, nil
}
