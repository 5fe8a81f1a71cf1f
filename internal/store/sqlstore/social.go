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

type challengeRepo struct{ b *Backend }

func (r challengeRepo) Issue(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	prefsJSON, err := json.Marshal(c.Prefs)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("sqlstore: encoding challenge prefs: %w", err)
	}
	_, err = r.b.exec(ctx).Exec(ctx,
		`INSERT INTO challenges (key, src_user_id, dest_user_id, prefs, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.Key, c.SrcUserID, c.DestUserID, prefsJSON, c.Timestamp)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("sqlstore: issuing challenge: %w", err)
	}
	return c, nil
}

func (r challengeRepo) Delete(ctx context.Context, src, dst, key string) (*model.Challenge, error) {
	query := `DELETE FROM challenges WHERE src_user_id = $1 AND dest_user_id = $2`
	args := []any{src, dst}
	if key != "" {
		query += ` AND key = $3`
		args = append(args, key)
	}
	query += ` RETURNING key, src_user_id, dest_user_id, prefs, timestamp`

	var c model.Challenge
	var prefsJSON []byte
	err := r.b.exec(ctx).QueryRow(ctx, query, args...).Scan(&c.Key, &c.SrcUserID, &c.DestUserID, &prefsJSON, &c.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: deleting challenge: %w", err)
	}
	if err := json.Unmarshal(prefsJSON, &c.Prefs); err != nil {
		return nil, fmt.Errorf("decoding challenge prefs: %w", err)
	}
	return &c, nil
}

func (r challengeRepo) ListIssued(ctx context.Context, userID string) ([]model.Challenge, error) {
	return r.list(ctx, `src_user_id = $1 ORDER BY timestamp`, userID)
}

func (r challengeRepo) ListReceived(ctx context.Context, userID string) ([]model.Challenge, error) {
	return r.list(ctx, `dest_user_id = $1 ORDER BY timestamp`, userID)
}

func (r challengeRepo) list(ctx context.Context, where string, arg string) ([]model.Challenge, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT key, src_user_id, dest_user_id, prefs, timestamp FROM challenges WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing challenges: %w", err)
	}
	defer rows.Close()

	var out []model.Challenge
	for rows.Next() {
		var c model.Challenge
		var prefsJSON []byte
		if err := rows.Scan(&c.Key, &c.SrcUserID, &c.DestUserID, &prefsJSON, &c.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(prefsJSON, &c.Prefs); err != nil {
			return nil, fmt.Errorf("decoding challenge prefs: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r challengeRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM challenges WHERE src_user_id = $1 OR dest_user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting challenges for user %s: %w", userID, err)
	}
	return nil
}

type favoriteRepo struct{ b *Backend }

func (r favoriteRepo) Add(ctx context.Context, src, dst string) (bool, error) {
	tag, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO favorites (src_user_id, dst_user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, src, dst)
	if err != nil {
		return false, fmt.Errorf("sqlstore: adding favorite: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r favoriteRepo) Remove(ctx context.Context, src, dst string) (bool, error) {
	tag, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM favorites WHERE src_user_id = $1 AND dst_user_id = $2`, src, dst)
	if err != nil {
		return false, fmt.Errorf("sqlstore: removing favorite: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r favoriteRepo) ListFavored(ctx context.Context, src string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, `SELECT dst_user_id FROM favorites WHERE src_user_id = $1 LIMIT $2`, src, limit)
}

func (r favoriteRepo) ListFavoredBy(ctx context.Context, dst string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, `SELECT src_user_id FROM favorites WHERE dst_user_id = $1 LIMIT $2`, dst, limit)
}

func (r favoriteRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM favorites WHERE src_user_id = $1 OR dst_user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting favorites for user %s: %w", userID, err)
	}
	return nil
}

type blockRepo struct{ b *Backend }

func (r blockRepo) Block(ctx context.Context, blocker, blocked string) (bool, error) {
	tag, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO blocks (blocker_id, blocked_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, blocker, blocked)
	if err != nil {
		return false, fmt.Errorf("sqlstore: adding block: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r blockRepo) Unblock(ctx context.Context, blocker, blocked string) (bool, error) {
	tag, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, blocker, blocked)
	if err != nil {
		return false, fmt.Errorf("sqlstore: removing block: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r blockRepo) IsBlocking(ctx context.Context, blocker, blocked string) (bool, error) {
	var exists bool
	err := r.b.exec(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blocks WHERE blocker_id = $1 AND blocked_id = $2)`, blocker, blocked,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking block: %w", err)
	}
	return exists, nil
}

func (r blockRepo) ListBlocked(ctx context.Context, blocker string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, `SELECT blocked_id FROM blocks WHERE blocker_id = $1 LIMIT $2`, blocker, limit)
}

func (r blockRepo) ListBlockedBy(ctx context.Context, blocked string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, `SELECT blocker_id FROM blocks WHERE blocked_id = $1 LIMIT $2`, blocked, limit)
}

func (r blockRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 OR blocked_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting blocks for user %s: %w", userID, err)
	}
	return nil
}

func queryIDs(ctx context.Context, b *Backend, query string, arg string, limit int) ([]string, error) {
	rows, err := b.exec(ctx).Query(ctx, query, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: querying ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type reportRepo struct{ b *Backend }

func (r reportRepo) Add(ctx context.Context, rep model.Report) (model.Report, error) {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO reports (id, reporter_id, reported_id, code, text, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rep.ID, rep.ReporterID, rep.ReportedID, rep.Code, rep.Text, rep.Timestamp)
	if err != nil {
		return model.Report{}, fmt.Errorf("sqlstore: adding report: %w", err)
	}
	return rep, nil
}

func (r reportRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM reports WHERE reporter_id = $1 OR reported_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting reports for user %s: %w", userID, err)
	}
	return nil
}

type chatRepo struct{ b *Backend }

func (r chatRepo) Add(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO chat_messages (id, channel, user_id, recipient_id, msg, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Channel, msg.UserID, msg.RecipientID, msg.Msg, msg.Timestamp)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("sqlstore: posting chat message: %w", err)
	}
	return msg, nil
}

func (r chatRepo) ListConversation(ctx context.Context, channel string, maxLen int) ([]model.ChatMessage, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT id, channel, user_id, recipient_id, msg, timestamp
		 FROM chat_messages WHERE channel = $1 ORDER BY timestamp DESC`, channel)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing conversation: %w", err)
	}
	defer rows.Close()

	// Newest first; read markers are returned but only non-empty
	// messages count toward maxLen.
	var out []model.ChatMessage
	nonEmpty := 0
	for nonEmpty < maxLen && rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.Channel, &m.UserID, &m.RecipientID, &m.Msg, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
		if m.Msg != "" {
			nonEmpty++
		}
	}
	return out, rows.Err()
}

func reverse(msgs []model.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (r chatRepo) CheckUnread(ctx context.Context, channel, userID string) (bool, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT user_id, msg FROM chat_messages WHERE channel = $1 ORDER BY timestamp DESC`, channel)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking unread: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid, msg string
		if err := rows.Scan(&uid, &msg); err != nil {
			return false, err
		}
		if uid == userID && msg == "" {
			// userID's own read marker: everything newer has been scanned
			// already, so the channel is caught up as of here.
			return false, nil
		}
		if uid != userID && msg != "" {
			return true, nil
		}
		// An empty marker from the other user carries no information
		// about userID's own read position; keep scanning past it.
	}
	return false, rows.Err()
}

func (r chatRepo) History(ctx context.Context, forUser string, maxLen int, blocked map[string]bool) ([]model.ChatHistoryEntry, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT channel, user_id, recipient_id, msg, timestamp FROM chat_messages
		 WHERE user_id = $1 OR recipient_id = $1 ORDER BY timestamp DESC`, forUser)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: loading chat history: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []model.ChatHistoryEntry
	for rows.Next() {
		var channel, userID string
		var recipient *string
		var msg string
		var ts time.Time
		if err := rows.Scan(&channel, &userID, &recipient, &msg, &ts); err != nil {
			return nil, err
		}
		other := userID
		if other == forUser && recipient != nil {
			other = *recipient
		}
		if other == forUser || blocked[other] || seen[other] {
			continue
		}
		seen[other] = true
		unread, err := r.CheckUnread(ctx, channel, forUser)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ChatHistoryEntry{CorrespondentID: other, Timestamp: ts, LastMsg: msg, Unread: unread})
		if len(out) >= maxLen {
			break
		}
	}
	return out, rows.Err()
}

func (r chatRepo) DeleteAllFromUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM chat_messages WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting chat messages from user %s: %w", userID, err)
	}
	return nil
}

type zombieRepo struct{ b *Backend }

func (r zombieRepo) Add(ctx context.Context, gameID, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`INSERT INTO zombies (game_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, gameID, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: adding zombie: %w", err)
	}
	return nil
}

func (r zombieRepo) Delete(ctx context.Context, gameID, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx,
		`DELETE FROM zombies WHERE game_id = $1 AND user_id = $2`, gameID, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting zombie: %w", err)
	}
	return nil
}

func (r zombieRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.exec(ctx).Exec(ctx, `DELETE FROM zombies WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting zombies for user %s: %w", userID, err)
	}
	return nil
}

func (r zombieRepo) ListGames(ctx context.Context, userID string) ([]model.ZombieGameInfo, error) {
	rows, err := r.b.exec(ctx).Query(ctx,
		`SELECT g.id, g.ts_last_move, g.player0_id, g.player1_id, g.robot_level, g.score0, g.score1, g.locale
		 FROM zombies z JOIN games g ON g.id = z.game_id WHERE z.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing zombie games: %w", err)
	}
	defer rows.Close()

	var out []model.ZombieGameInfo
	for rows.Next() {
		var id string
		var ts time.Time
		var p0, p1 *string
		var robotLevel, score0, score1 int
		var locale string
		if err := rows.Scan(&id, &ts, &p0, &p1, &robotLevel, &score0, &score1, &locale); err != nil {
			return nil, err
		}
		info := model.ZombieGameInfo{GameID: id, Timestamp: ts, RobotLevel: robotLevel, Score0: score0, Score1: score1, Locale: locale}
		if p0 != nil && *p0 != userID {
			info.OpponentID = *p0
		} else if p1 != nil {
			info.OpponentID = *p1
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
