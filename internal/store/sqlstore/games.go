package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mideind/explo/internal/store/model"
)

type gameRepo struct{ b *Backend }

const gameColumns = `id, player0_id, player1_id, locale, rack0, rack1, irack0, irack1,
	score0, score1, to_move, robot_level, over, timestamp, ts_last_move, moves, prefs,
	bag, tile_count, elo0, elo1, elo0_adj, elo1_adj, human_elo0, human_elo1,
	human_elo0_adj, human_elo1_adj, manual_elo0, manual_elo1, manual_elo0_adj, manual_elo1_adj`

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	var movesJSON, prefsJSON []byte
	if err := row.Scan(
		&g.ID, &g.Player0ID, &g.Player1ID, &g.Locale, &g.Rack0, &g.Rack1, &g.IRack0, &g.IRack1,
		&g.Score0, &g.Score1, &g.ToMove, &g.RobotLevel, &g.Over, &g.Timestamp, &g.TsLastMove,
		&movesJSON, &prefsJSON, &g.Bag, &g.TileCount,
		&g.Elo0, &g.Elo1, &g.Elo0Adj, &g.Elo1Adj,
		&g.HumanElo0, &g.HumanElo1, &g.HumanElo0Adj, &g.HumanElo1Adj,
		&g.ManualElo0, &g.ManualElo1, &g.ManualElo0Adj, &g.ManualElo1Adj,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(movesJSON, &g.Moves); err != nil {
		return nil, fmt.Errorf("decoding game moves: %w", err)
	}
	if err := json.Unmarshal(prefsJSON, &g.Prefs); err != nil {
		return nil, fmt.Errorf("decoding game prefs: %w", err)
	}
	return &g, nil
}

func (r gameRepo) Create(ctx context.Context, g model.Game) (model.Game, error) {
	movesJSON, err := json.Marshal(g.Moves)
	if err != nil {
		return model.Game{}, fmt.Errorf("sqlstore: encoding game moves: %w", err)
	}
	prefsJSON, err := json.Marshal(g.Prefs)
	if err != nil {
		return model.Game{}, fmt.Errorf("sqlstore: encoding game prefs: %w", err)
	}
	_, err = r.b.exec(ctx).Exec(ctx, `INSERT INTO games (`+gameColumns+`) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
		$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31)`,
		g.ID, g.Player0ID, g.Player1ID, g.Locale, g.Rack0, g.Rack1, g.IRack0, g.IRack1,
		g.Score0, g.Score1, g.ToMove, g.RobotLevel, g.Over, g.Timestamp, g.TsLastMove,
		movesJSON, prefsJSON, g.Bag, g.TileCount,
		g.Elo0, g.Elo1, g.Elo0Adj, g.Elo1Adj,
		g.HumanElo0, g.HumanElo1, g.HumanElo0Adj, g.HumanElo1Adj,
		g.ManualElo0, g.ManualElo1, g.ManualElo0Adj, g.ManualElo1Adj,
	)
	if err != nil {
		return model.Game{}, fmt.Errorf("sqlstore: creating game: %w", err)
	}
	return g, nil
}

func (r gameRepo) GetByID(ctx context.Context, id string) (*model.Game, error) {
	row := r.b.exec(ctx).QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading game %s: %w", id, err)
	}
	return g, nil
}

func (r gameRepo) Update(ctx context.Context, id string, upd model.GameUpdate) error {
	sets := map[string]any{}
	if upd.Rack0 != nil {
		sets["rack0"] = *upd.Rack0
	}
	if upd.Rack1 != nil {
		sets["rack1"] = *upd.Rack1
	}
	if upd.Score0 != nil {
		sets["score0"] = *upd.Score0
	}
	if upd.Score1 != nil {
		sets["score1"] = *upd.Score1
	}
	if upd.ToMove != nil {
		sets["to_move"] = *upd.ToMove
	}
	if upd.Over != nil {
		sets["over"] = *upd.Over
	}
	if upd.TsLastMove != nil {
		sets["ts_last_move"] = *upd.TsLastMove
	}
	if upd.Moves != nil {
		b, err := json.Marshal(upd.Moves)
		if err != nil {
			return fmt.Errorf("sqlstore: encoding game moves: %w", err)
		}
		sets["moves"] = b
	}
	if upd.Bag != nil {
		sets["bag"] = *upd.Bag
	}
	if upd.TileCount != nil {
		sets["tile_count"] = *upd.TileCount
	}
	for col, v := range map[string]*int{
		"elo0": upd.Elo0, "elo1": upd.Elo1, "elo0_adj": upd.Elo0Adj, "elo1_adj": upd.Elo1Adj,
		"human_elo0": upd.HumanElo0, "human_elo1": upd.HumanElo1,
		"human_elo0_adj": upd.HumanElo0Adj, "human_elo1_adj": upd.HumanElo1Adj,
		"manual_elo0": upd.ManualElo0, "manual_elo1": upd.ManualElo1,
		"manual_elo0_adj": upd.ManualElo0Adj, "manual_elo1_adj": upd.ManualElo1Adj,
	} {
		if v != nil {
			sets[col] = *v
		}
	}
	if len(sets) == 0 {
		return nil
	}
	query, args := buildUpdate("games", "id", id, sets)
	if _, err := r.b.exec(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlstore: updating game %s: %w", id, err)
	}
	return nil
}

func (r gameRepo) ListLive(ctx context.Context, userID string) ([]model.LiveGameInfo, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT id, player0_id, player1_id, robot_level, to_move, score0, score1,
		        tile_count, locale, timestamp
		 FROM games WHERE NOT over AND (player0_id = $1 OR player1_id = $1)
		 ORDER BY ts_last_move DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing live games: %w", err)
	}
	defer rows.Close()

	var out []model.LiveGameInfo
	for rows.Next() {
		var id string
		var p0, p1 *string
		var robotLevel, toMove, score0, score1, tileCount int
		var locale string
		var ts time.Time
		if err := rows.Scan(&id, &p0, &p1, &robotLevel, &toMove, &score0, &score1, &tileCount, &locale, &ts); err != nil {
			return nil, err
		}
		info := model.LiveGameInfo{
			GameID: id, RobotLevel: robotLevel, Score0: score0, Score1: score1,
			TileCount: tileCount, Locale: locale, Timestamp: ts,
		}
		if p0 != nil && *p0 == userID {
			info.ToMove = toMove == 0
			if p1 != nil {
				info.OpponentID = *p1
			}
		} else {
			info.ToMove = toMove == 1
			if p0 != nil {
				info.OpponentID = *p0
			}
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (r gameRepo) ListFinished(ctx context.Context, userID string, versus *string, limit int) ([]model.FinishedGameInfo, error) {
	query := `SELECT id, player0_id, player1_id, robot_level, score0, score1,
	                 elo0_adj, elo1_adj, locale, ts_last_move
	          FROM games WHERE over AND (player0_id = $1 OR player1_id = $1)`
	args := []any{userID}
	if versus != nil {
		query += fmt.Sprintf(" AND (player0_id = $%d OR player1_id = $%d)", len(args)+1, len(args)+1)
		args = append(args, *versus)
	}
	query += fmt.Sprintf(" ORDER BY ts_last_move DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.b.exec(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing finished games: %w", err)
	}
	defer rows.Close()

	var out []model.FinishedGameInfo
	for rows.Next() {
		var id string
		var p0, p1 *string
		var robotLevel, score0, score1 int
		var eloAdj0, eloAdj1 *int
		var locale string
		var ts time.Time
		if err := rows.Scan(&id, &p0, &p1, &robotLevel, &score0, &score1, &eloAdj0, &eloAdj1, &locale, &ts); err != nil {
			return nil, err
		}
		info := model.FinishedGameInfo{GameID: id, RobotLevel: robotLevel, Locale: locale, TsLastMove: ts}
		if p0 != nil && *p0 == userID {
			info.Score, info.OpponentSc = score0, score1
			if eloAdj0 != nil {
				info.EloAdj = *eloAdj0
			}
			if p1 != nil {
				info.OpponentID = *p1
			}
		} else {
			info.Score, info.OpponentSc = score1, score0
			if eloAdj1 != nil {
				info.EloAdj = *eloAdj1
			}
			if p0 != nil {
				info.OpponentID = *p0
			}
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (r gameRepo) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]model.Game, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT `+gameColumns+` FROM games
		 WHERE over AND ts_last_move > $1 AND ts_last_move <= $2
		 ORDER BY ts_last_move ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing completed games: %w", err)
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r gameRepo) NullifyPlayer(ctx context.Context, userID string) error {
	if _, err := r.b.exec(ctx).Exec(ctx, `UPDATE games SET player0_id = NULL WHERE player0_id = $1`, userID); err != nil {
		return fmt.Errorf("sqlstore: nullifying player0 %s: %w", userID, err)
	}
	if _, err := r.b.exec(ctx).Exec(ctx, `UPDATE games SET player1_id = NULL WHERE player1_id = $1`, userID); err != nil {
		return fmt.Errorf("sqlstore: nullifying player1 %s: %w", userID, err)
	}
	return nil
}
