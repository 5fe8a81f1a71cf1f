package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mideind/explo/internal/store/model"
)

type eloRepo struct{ b *Backend }

func (r eloRepo) Get(ctx context.Context, userID, locale string) (*model.EloRating, error) {
	var er model.EloRating
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT user_id, locale, elo, human_elo, manual_elo, timestamp
		 FROM elo_ratings WHERE user_id = $1 AND locale = $2`, userID, locale,
	).Scan(&er.UserID, &er.Locale, &er.Elo, &er.HumanElo, &er.ManualElo, &er.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: loading elo rating: %w", err)
	}
	return &er, nil
}

func (r eloRepo) Upsert(ctx context.Context, er model.EloRating) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO elo_ratings (user_id, locale, elo, human_elo, manual_elo, timestamp)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (user_id, locale) DO UPDATE SET
		   elo = EXCLUDED.elo, human_elo = EXCLUDED.human_elo,
		   manual_elo = EXCLUDED.manual_elo, timestamp = EXCLUDED.timestamp`,
		er.UserID, er.Locale, er.Elo, er.HumanElo, er.ManualElo)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting elo rating: %w", err)
	}
	return nil
}

func (r eloRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM elo_ratings WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting elo ratings for user %s: %w", userID, err)
	}
	return nil
}

type robotRepo struct{ b *Backend }

func (r robotRepo) Get(ctx context.Context, locale string, level int) (*model.RobotElo, error) {
	var re model.RobotElo
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT locale, robot_level, elo FROM robot_elo WHERE locale = $1 AND robot_level = $2`,
		locale, level,
	).Scan(&re.Locale, &re.RobotLevel, &re.Elo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: loading robot elo: %w", err)
	}
	return &re, nil
}

func (r robotRepo) Upsert(ctx context.Context, re model.RobotElo) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO robot_elo (locale, robot_level, elo) VALUES ($1, $2, $3)
		 ON CONFLICT (locale, robot_level) DO UPDATE SET elo = EXCLUDED.elo`,
		re.Locale, re.RobotLevel, re.Elo)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting robot elo: %w", err)
	}
	return nil
}
