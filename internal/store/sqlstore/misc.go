package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mideind/explo/internal/store/model"
)

type promoRepo struct{ b *Backend }

func (r promoRepo) HasBeenShown(ctx context.Context, userID, promo string) (bool, error) {
	var exists bool
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM promos WHERE user_id = $1 AND promo = $2)`, userID, promo,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking promo shown: %w", err)
	}
	return exists, nil
}

func (r promoRepo) RecordShown(ctx context.Context, userID, promo string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO promos (user_id, promo, timestamp) VALUES ($1, $2, now())
		 ON CONFLICT (user_id, promo) DO NOTHING`, userID, promo)
	if err != nil {
		return fmt.Errorf("sqlstore: recording promo shown: %w", err)
	}
	return nil
}

func (r promoRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM promos WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting promos for user %s: %w", userID, err)
	}
	return nil
}

type transactionRepo struct{ b *Backend }

func (r transactionRepo) Add(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, currency, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.UserID, t.Kind, t.Amount, t.Currency, t.Timestamp)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("sqlstore: recording transaction: %w", err)
	}
	return t, nil
}

func (r transactionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM transactions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting transactions for user %s: %w", userID, err)
	}
	return nil
}

type submissionRepo struct{ b *Backend }

func (r submissionRepo) Add(ctx context.Context, s model.Submission) (model.Submission, error) {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO submissions (id, riddle_id, user_id, solved, timestamp)
		 VALUES ($1,$2,$3,$4,$5)`,
		s.ID, s.RiddleID, s.UserID, s.Solved, s.Timestamp)
	if err != nil {
		return model.Submission{}, fmt.Errorf("sqlstore: recording submission: %w", err)
	}
	return s, nil
}

func (r submissionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM submissions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting submissions for user %s: %w", userID, err)
	}
	return nil
}

type riddleRepo struct{ b *Backend }

func (r riddleRepo) GetByLocaleDate(ctx context.Context, locale, date string) (*model.Riddle, error) {
	var rd model.Riddle
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT id, locale, date, riddle_json, created, version
		 FROM riddles WHERE locale = $1 AND date = $2`, locale, date,
	).Scan(&rd.ID, &rd.Locale, &rd.Date, &rd.RiddleJSON, &rd.Created, &rd.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: loading riddle %s/%s: %w", locale, date, err)
	}
	return &rd, nil
}

func (r riddleRepo) Put(ctx context.Context, rd model.Riddle) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO riddles (id, locale, date, riddle_json, created, version)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (locale, date) DO UPDATE SET
		   riddle_json = EXCLUDED.riddle_json, version = EXCLUDED.version`,
		rd.ID, rd.Locale, rd.Date, rd.RiddleJSON, rd.Created, rd.Version)
	if err != nil {
		return fmt.Errorf("sqlstore: writing riddle: %w", err)
	}
	return nil
}

type imageRepo struct{ b *Backend }

func (r imageRepo) Get(ctx context.Context, userID string) (*model.Image, error) {
	var img model.Image
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT user_id, data, mime_type, timestamp FROM images WHERE user_id = $1`, userID,
	).Scan(&img.UserID, &img.Data, &img.MimeType, &img.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: loading image for user %s: %w", userID, err)
	}
	return &img, nil
}

func (r imageRepo) Put(ctx context.Context, img model.Image) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO images (user_id, data, mime_type, timestamp) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   data = EXCLUDED.data, mime_type = EXCLUDED.mime_type, timestamp = EXCLUDED.timestamp`,
		img.UserID, img.Data, img.MimeType, img.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlstore: writing image for user %s: %w", img.UserID, err)
	}
	return nil
}

func (r imageRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM images WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting image for user %s: %w", userID, err)
	}
	return nil
}
