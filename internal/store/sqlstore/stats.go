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

type statsRepo struct{ b *Backend }

func (r statsRepo) MostRecentAtOrBefore(ctx context.Context, userID string, at time.Time) (*model.StatsSnapshot, error) {
	row := r.b.exec(ctx).QueryRow(ctx,
		`SELECT user_id, robot_level, timestamp, games, wins, losses, score_for, score_against, elo, human_elo, manual_elo
		 FROM stats_snapshots WHERE user_id = $1 AND timestamp <= $2
		 ORDER BY timestamp DESC LIMIT 1`, userID, at)
	s, err := scanStatsSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading stats snapshot: %w", err)
	}
	return s, nil
}

func scanStatsSnapshot(row pgx.Row) (*model.StatsSnapshot, error) {
	var s model.StatsSnapshot
	var gamesJSON, winsJSON, lossesJSON, scoreForJSON, scoreAgainstJSON []byte
	err := row.Scan(&s.UserID, &s.RobotLevel, &s.Timestamp, &gamesJSON, &winsJSON, &lossesJSON,
		&scoreForJSON, &scoreAgainstJSON, &s.Elo, &s.HumanElo, &s.ManualElo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst *model.Triad
	}{{gamesJSON, &s.Games}, {winsJSON, &s.Wins}, {lossesJSON, &s.Losses}, {scoreForJSON, &s.ScoreFor}, {scoreAgainstJSON, &s.ScoreAgainst}} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("decoding stats snapshot triad: %w", err)
		}
	}
	return &s, nil
}

func (r statsRepo) DeleteAt(ctx context.Context, at time.Time) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM stats_snapshots WHERE timestamp = $1`, at)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting stats snapshots at %s: %w", at, err)
	}
	return nil
}

func (r statsRepo) Put(ctx context.Context, s model.StatsSnapshot) error {
	games, err := json.Marshal(s.Games)
	if err != nil {
		return err
	}
	wins, err := json.Marshal(s.Wins)
	if err != nil {
		return err
	}
	losses, err := json.Marshal(s.Losses)
	if err != nil {
		return err
	}
	scoreFor, err := json.Marshal(s.ScoreFor)
	if err != nil {
		return err
	}
	scoreAgainst, err := json.Marshal(s.ScoreAgainst)
	if err != nil {
		return err
	}
	_, err = r.b.exec(ctx).Exec(ctx,
		`INSERT INTO stats_snapshots (user_id, robot_level, timestamp, games, wins, losses, score_for, score_against, elo, human_elo, manual_elo)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (user_id, timestamp) DO UPDATE SET
		   games = EXCLUDED.games, wins = EXCLUDED.wins, losses = EXCLUDED.losses,
		   score_for = EXCLUDED.score_for, score_against = EXCLUDED.score_against,
		   elo = EXCLUDED.elo, human_elo = EXCLUDED.human_elo, manual_elo = EXCLUDED.manual_elo`,
		s.UserID, s.RobotLevel, s.Timestamp, games, wins, losses, scoreFor, scoreAgainst, s.Elo, s.HumanElo, s.ManualElo)
	if err != nil {
		return fmt.Errorf("sqlstore: writing stats snapshot: %w", err)
	}
	return nil
}

func (r statsRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM stats_snapshots WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting stats snapshots for user %s: %w", userID, err)
	}
	return nil
}

func (r statsRepo) TopByElo(ctx context.Context, kind string, at time.Time, n int) ([]model.StatsSnapshot, error) {
	col := map[string]string{"all": "elo", "human": "human_elo", "manual": "manual_elo"}[kind]
	if col == "" {
		col = "elo"
	}
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT DISTINCT ON (user_id) user_id, robot_level, timestamp, games, wins, losses,
		        score_for, score_against, elo, human_elo, manual_elo
		 FROM stats_snapshots WHERE timestamp <= $1
		 ORDER BY user_id, timestamp DESC`, at)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading snapshots for ranking: %w", err)
	}
	defer rows.Close()

	var all []model.StatsSnapshot
	for rows.Next() {
		s, err := scanStatsSnapshot(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByEloDesc(all, col)
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func sortByEloDesc(snaps []model.StatsSnapshot, col string) {
	eloOf := func(s model.StatsSnapshot) int {
		switch col {
		case "human_elo":
			return s.HumanElo
		case "manual_elo":
			return s.ManualElo
		default:
			return s.Elo
		}
	}
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && eloOf(snaps[j]) > eloOf(snaps[j-1]); j-- {
			snaps[j], snaps[j-1] = snaps[j-1], snaps[j]
		}
	}
}

type ratingRepo struct{ b *Backend }

func (r ratingRepo) ReplaceAll(ctx context.Context, rows []model.RatingRow) error {
	return r.b.Transaction(ctx, func(ctx context.Context) error {
		kinds := map[string]bool{}
		for _, row := range rows {
			kinds[row.Kind] = true
		}
		for kind := range kinds {
			if _, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM rating_rows WHERE kind = $1`, kind); err != nil {
				return fmt.Errorf("sqlstore: clearing rating rows for %s: %w", kind, err)
			}
		}
		for _, row := range rows {
			cur, err := json.Marshal(row.Current)
			if err != nil {
				return err
			}
			yst, err := json.Marshal(row.Yesterday)
			if err != nil {
				return err
			}
			wk, err := json.Marshal(row.WeekAgo)
			if err != nil {
				return err
			}
			mo, err := json.Marshal(row.MonthAgo)
			if err != nil {
				return err
			}
			_, err = r.b.exec(ctx).Exec(ctx,
				`INSERT INTO rating_rows (kind, rank, user_id, robot_level, current, yesterday, week_ago, month_ago)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				row.Kind, row.Rank, row.UserID, row.RobotLevel, cur, yst, wk, mo)
			if err != nil {
				return fmt.Errorf("sqlstore: writing rating row: %w", err)
			}
		}
		return nil
	})
}

func (r ratingRepo) List(ctx context.Context, kind string) ([]model.RatingRow, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT kind, rank, user_id, robot_level, current, yesterday, week_ago, month_ago
		 FROM rating_rows WHERE kind = $1 ORDER BY rank`, kind)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing rating rows: %w", err)
	}
	defer rows.Close()

	var out []model.RatingRow
	for rows.Next() {
		var row model.RatingRow
		var cur, yst, wk, mo []byte
		if err := rows.Scan(&row.Kind, &row.Rank, &row.UserID, &row.RobotLevel, &cur, &yst, &wk, &mo); err != nil {
			return nil, err
		}
		for _, pair := range []struct {
			raw []byte
			dst *model.RatingSnapshot
		}{{cur, &row.Current}, {yst, &row.Yesterday}, {wk, &row.WeekAgo}, {mo, &row.MonthAgo}} {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return nil, fmt.Errorf("decoding rating snapshot: %w", err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type completionRepo struct{ b *Backend }

func (r completionRepo) Add(ctx context.Context, c model.Completion) (model.Completion, error) {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO completions (id, proc_type, ts_from, ts_to, success, reason, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.ProcType, c.TsFrom, c.TsTo, c.Success, c.Reason, c.Timestamp)
	if err != nil {
		return model.Completion{}, fmt.Errorf("sqlstore: recording completion: %w", err)
	}
	return c, nil
}

func (r completionRepo) Latest(ctx context.Context, procType string) (*model.Completion, error) {
	var c model.Completion
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT id, proc_type, ts_from, ts_to, success, reason, timestamp FROM completions
		 WHERE proc_type = $1 ORDER BY timestamp DESC LIMIT 1`, procType,
	).Scan(&c.ID, &c.ProcType, &c.TsFrom, &c.TsTo, &c.Success, &c.Reason, &c.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: loading latest completion: %w", err)
	}
	return &c, nil
}
