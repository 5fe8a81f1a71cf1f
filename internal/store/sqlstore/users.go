package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

type userRepo struct{ b *Backend }

const userColumns = `id, account, email, nickname, nick_lower, full_name_low, image,
	image_blob, locale, location, prefs, inactive, ready, ready_timed, chat_disabled,
	plan, elo, human_elo, manual_elo, highest_score, highest_score_game_id, best_word,
	best_word_score, best_word_game_id, games, timestamp, last_login`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var prefsJSON []byte
	if err := row.Scan(
		&u.ID, &u.Account, &u.Email, &u.Nickname, &u.NickLower, &u.FullNameLow, &u.Image,
		&u.ImageBlob, &u.Locale, &u.Location, &prefsJSON, &u.Inactive, &u.Ready, &u.ReadyTimed,
		&u.ChatDisabled, &u.Plan, &u.Elo, &u.HumanElo, &u.ManualElo, &u.HighestScore,
		&u.HighestScoreGameID, &u.BestWord, &u.BestWordScore, &u.BestWordGameID, &u.Games,
		&u.Timestamp, &u.LastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(prefsJSON, &u.Prefs); err != nil {
		return nil, fmt.Errorf("decoding user prefs: %w", err)
	}
	return &u, nil
}

func (r userRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	prefsJSON, err := json.Marshal(u.Prefs)
	if err != nil {
		return model.User{}, fmt.Errorf("sqlstore: encoding user prefs: %w", err)
	}
	_, err = r.b.exec(ctx).Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		u.ID, u.Account, u.Email, u.Nickname, u.NickLower, u.FullNameLow, u.Image,
		u.ImageBlob, u.Locale, u.Location, prefsJSON, u.Inactive, u.Ready, u.ReadyTimed,
		u.ChatDisabled, u.Plan, u.Elo, u.HumanElo, u.ManualElo, u.HighestScore,
		u.HighestScoreGameID, u.BestWord, u.BestWordScore, u.BestWordGameID, u.Games,
		u.Timestamp, u.LastLogin,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("sqlstore: creating user: %w", errkind.Conflict)
		}
		return model.User{}, fmt.Errorf("sqlstore: creating user: %w", err)
	}
	return u, nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.b.exec(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r userRepo) GetByAccount(ctx context.Context, account string) (*model.User, error) {
	row := r.b.exec(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE account = $1`, account)
	return scanUser(row)
}

// GetByEmail implements the legacy lookup-by-email ordering (spec §4.3
// lookup mode 3): the newest active user with elo > 0 for this email, or
// failing that the newest user overall. Ordering by the active-and-rated
// predicate descending (true sorts before false in Postgres) puts that
// preferred group first in a single query, with timestamp descending as
// the tiebreak inside each group.
func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.b.exec(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)
		 ORDER BY (NOT inactive AND elo > 0) DESC, timestamp DESC LIMIT 1`, email)
	return scanUser(row)
}

func (r userRepo) GetByNickname(ctx context.Context, nickname string) (*model.User, error) {
	row := r.b.exec(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE nick_lower = lower($1)`, nickname)
	return scanUser(row)
}

// SearchByPrefix matches the prefix against both nickLower and
// fullNameLower (spec §4.3 lookup mode 5), not nickname alone.
func (r userRepo) SearchByPrefix(ctx context.Context, prefix, locale string, limit int) ([]model.User, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE locale = $1 AND NOT inactive
		 AND (nick_lower LIKE lower($2) || '%' OR full_name_low LIKE lower($2) || '%')
		 ORDER BY nick_lower LIMIT $3`, locale, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: searching users by prefix: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// SimilarElo returns up to maxLen/2 users with human_elo strictly below
// targetElo (nearest first, then reversed to ascending) followed by up
// to the remaining slots at-or-above targetElo (ascending), so the
// concatenated result is monotonically non-decreasing in human_elo.
func (r userRepo) SimilarElo(ctx context.Context, targetElo int, locale string, maxLen int) ([]model.User, error) {
	below := maxLen / 2
	above := maxLen - below

	belowRows, err := r.b.exec(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE locale = $1 AND NOT inactive AND human_elo < $2
		 ORDER BY human_elo DESC LIMIT $3`, locale, targetElo, below)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing below-elo users: %w", err)
	}
	belowUsers, err := collectUsers(belowRows)
	belowRows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing below-elo users: %w", err)
	}
	for i, j := 0, len(belowUsers)-1; i < j; i, j = i+1, j-1 {
		belowUsers[i], belowUsers[j] = belowUsers[j], belowUsers[i]
	}

	aboveRows, err := r.b.exec(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE locale = $1 AND NOT inactive AND human_elo >= $2
		 ORDER BY human_elo ASC LIMIT $3`, locale, targetElo, above)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing at-or-above-elo users: %w", err)
	}
	defer aboveRows.Close()
	aboveUsers, err := collectUsers(aboveRows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing at-or-above-elo users: %w", err)
	}

	return append(belowUsers, aboveUsers...), nil
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r userRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	sets := map[string]any{}
	if upd.Nickname != nil {
		sets["nickname"] = *upd.Nickname
		sets["nick_lower"] = strings.ToLower(*upd.Nickname)
	}
	if upd.Image != nil {
		sets["image"] = *upd.Image
	}
	if upd.ImageBlob != nil {
		sets["image_blob"] = upd.ImageBlob
	}
	if upd.Locale != nil {
		sets["locale"] = *upd.Locale
	}
	if upd.Location != nil {
		sets["location"] = *upd.Location
	}
	if upd.Prefs != nil {
		b, err := json.Marshal(*upd.Prefs)
		if err != nil {
			return fmt.Errorf("sqlstore: encoding user prefs: %w", err)
		}
		sets["prefs"] = b
		sets["full_name_low"] = strings.ToLower(upd.Prefs.FullName)
	}
	if upd.Inactive != nil {
		sets["inactive"] = *upd.Inactive
	}
	if upd.Ready != nil {
		sets["ready"] = *upd.Ready
	}
	if upd.ReadyTimed != nil {
		sets["ready_timed"] = *upd.ReadyTimed
	}
	if upd.ChatDisabled != nil {
		sets["chat_disabled"] = *upd.ChatDisabled
	}
	if upd.Plan != nil {
		sets["plan"] = *upd.Plan
	}
	if upd.Elo != nil {
		sets["elo"] = *upd.Elo
	}
	if upd.HumanElo != nil {
		sets["human_elo"] = *upd.HumanElo
	}
	if upd.ManualElo != nil {
		sets["manual_elo"] = *upd.ManualElo
	}
	if upd.HighestScore != nil {
		sets["highest_score"] = *upd.HighestScore
	}
	if upd.HighestScoreGameID != nil {
		sets["highest_score_game_id"] = *upd.HighestScoreGameID
	}
	if upd.BestWord != nil {
		sets["best_word"] = *upd.BestWord
	}
	if upd.BestWordScore != nil {
		sets["best_word_score"] = *upd.BestWordScore
	}
	if upd.BestWordGameID != nil {
		sets["best_word_game_id"] = *upd.BestWordGameID
	}
	if upd.Games != nil {
		sets["games"] = *upd.Games
	}
	if upd.LastLogin != nil {
		sets["last_login"] = *upd.LastLogin
	}
	if len(sets) == 0 {
		return nil
	}
	query, args := buildUpdate("users", "id", id, sets)
	_, err := r.b.exec(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: updating user %s: %w", id, err)
	}
	return nil
}

func (r userRepo) Delete(ctx context.Context, id string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting user %s: %w", id, err)
	}
	return nil
}
