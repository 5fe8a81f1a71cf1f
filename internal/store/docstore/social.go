package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mideind/explo/internal/store/model"
)

type challengeDoc struct {
	Key        string          `bson:"_id"`
	SrcUserID  string          `bson:"src_user_id"`
	DestUserID string          `bson:"dest_user_id"`
	Prefs      model.GamePrefs `bson:"prefs"`
	Timestamp  time.Time       `bson:"timestamp"`
}

func (d challengeDoc) toModel() model.Challenge {
	return model.Challenge{Key: d.Key, SrcUserID: d.SrcUserID, DestUserID: d.DestUserID, Prefs: d.Prefs, Timestamp: d.Timestamp}
}

type challengeRepo struct{ b *Backend }

func (r challengeRepo) Issue(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	doc := challengeDoc{Key: c.Key, SrcUserID: c.SrcUserID, DestUserID: c.DestUserID, Prefs: c.Prefs, Timestamp: c.Timestamp}
	_, err := r.b.col("challenges").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("docstore: issuing challenge: %w", err)
	}
	return c, nil
}

func (r challengeRepo) Delete(ctx context.Context, src, dst, key string) (*model.Challenge, error) {
	filter := bson.M{"src_user_id": src, "dest_user_id": dst}
	if key != "" {
		filter["_id"] = key
	}
	var d challengeDoc
	err := r.b.col("challenges").FindOneAndDelete(r.b.ctx(ctx), filter).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: deleting challenge: %w", err)
	}
	c := d.toModel()
	return &c, nil
}

func (r challengeRepo) ListIssued(ctx context.Context, userID string) ([]model.Challenge, error) {
	return r.list(ctx, bson.M{"src_user_id": userID})
}

func (r challengeRepo) ListReceived(ctx context.Context, userID string) ([]model.Challenge, error) {
	return r.list(ctx, bson.M{"dest_user_id": userID})
}

func (r challengeRepo) list(ctx context.Context, filter bson.M) ([]model.Challenge, error) {
	cur, err := r.b.col("challenges").Find(r.b.ctx(ctx), filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing challenges: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Challenge
	for cur.Next(ctx) {
		var d challengeDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toModel())
	}
	return out, cur.Err()
}

func (r challengeRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("challenges").DeleteMany(r.b.ctx(ctx),
		bson.M{"$or": []bson.M{{"src_user_id": userID}, {"dest_user_id": userID}}})
	if err != nil {
		return fmt.Errorf("docstore: deleting challenges for user %s: %w", userID, err)
	}
	return nil
}

type favoriteDoc struct {
	SrcUserID string `bson:"src_user_id"`
	DstUserID string `bson:"dst_user_id"`
}

type favoriteRepo struct{ b *Backend }

func (r favoriteRepo) Add(ctx context.Context, src, dst string) (bool, error) {
	res, err := r.b.col("favorites").UpdateOne(r.b.ctx(ctx),
		bson.M{"src_user_id": src, "dst_user_id": dst},
		bson.M{"$setOnInsert": favoriteDoc{SrcUserID: src, DstUserID: dst}},
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("docstore: adding favorite: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r favoriteRepo) Remove(ctx context.Context, src, dst string) (bool, error) {
	res, err := r.b.col("favorites").DeleteOne(r.b.ctx(ctx), bson.M{"src_user_id": src, "dst_user_id": dst})
	if err != nil {
		return false, fmt.Errorf("docstore: removing favorite: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r favoriteRepo) ListFavored(ctx context.Context, src string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, "favorites", bson.M{"src_user_id": src}, "dst_user_id", limit)
}

func (r favoriteRepo) ListFavoredBy(ctx context.Context, dst string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, "favorites", bson.M{"dst_user_id": dst}, "src_user_id", limit)
}

func (r favoriteRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("favorites").DeleteMany(r.b.ctx(ctx),
		bson.M{"$or": []bson.M{{"src_user_id": userID}, {"dst_user_id": userID}}})
	if err != nil {
		return fmt.Errorf("docstore: deleting favorites for user %s: %w", userID, err)
	}
	return nil
}

type blockDoc struct {
	BlockerID string `bson:"blocker_id"`
	BlockedID string `bson:"blocked_id"`
}

type blockRepo struct{ b *Backend }

func (r blockRepo) Block(ctx context.Context, blocker, blocked string) (bool, error) {
	if already, err := r.IsBlocking(ctx, blocker, blocked); err != nil {
		return false, err
	} else if already {
		return false, nil
	}
	_, err := r.b.col("blocks").UpdateOne(r.b.ctx(ctx),
		bson.M{"blocker_id": blocker, "blocked_id": blocked},
		bson.M{"$setOnInsert": blockDoc{BlockerID: blocker, BlockedID: blocked}},
		options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("docstore: adding block: %w", err)
	}
	return true, nil
}

func (r blockRepo) Unblock(ctx context.Context, blocker, blocked string) (bool, error) {
	res, err := r.b.col("blocks").DeleteOne(r.b.ctx(ctx), bson.M{"blocker_id": blocker, "blocked_id": blocked})
	if err != nil {
		return false, fmt.Errorf("docstore: removing block: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r blockRepo) IsBlocking(ctx context.Context, blocker, blocked string) (bool, error) {
	count, err := r.b.col("blocks").CountDocuments(r.b.ctx(ctx), bson.M{"blocker_id": blocker, "blocked_id": blocked})
	if err != nil {
		return false, fmt.Errorf("docstore: checking block: %w", err)
	}
	return count > 0, nil
}

func (r blockRepo) ListBlocked(ctx context.Context, blocker string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, "blocks", bson.M{"blocker_id": blocker}, "blocked_id", limit)
}

func (r blockRepo) ListBlockedBy(ctx context.Context, blocked string, limit int) ([]string, error) {
	return queryIDs(ctx, r.b, "blocks", bson.M{"blocked_id": blocked}, "blocker_id", limit)
}

func (r blockRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("blocks").DeleteMany(r.b.ctx(ctx),
		bson.M{"$or": []bson.M{{"blocker_id": userID}, {"blocked_id": userID}}})
	if err != nil {
		return fmt.Errorf("docstore: deleting blocks for user %s: %w", userID, err)
	}
	return nil
}

func queryIDs(ctx context.Context, b *Backend, collection string, filter bson.M, field string, limit int) ([]string, error) {
	cur, err := b.col(collection).Find(b.ctx(ctx), filter, options.Find().SetLimit(int64(limit)).SetProjection(bson.M{field: 1}))
	if err != nil {
		return nil, fmt.Errorf("docstore: querying %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if v, ok := doc[field].(string); ok {
			out = append(out, v)
		}
	}
	return out, cur.Err()
}

type reportDoc struct {
	ID         string    `bson:"_id"`
	ReporterID string    `bson:"reporter_id"`
	ReportedID string    `bson:"reported_id"`
	Code       int       `bson:"code"`
	Text       string    `bson:"text"`
	Timestamp  time.Time `bson:"timestamp"`
}

type reportRepo struct{ b *Backend }

func (r reportRepo) Add(ctx context.Context, rep model.Report) (model.Report, error) {
	doc := reportDoc{ID: rep.ID, ReporterID: rep.ReporterID, ReportedID: rep.ReportedID, Code: rep.Code, Text: rep.Text, Timestamp: rep.Timestamp}
	_, err := r.b.col("reports").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.Report{}, fmt.Errorf("docstore: adding report: %w", err)
	}
	return rep, nil
}

func (r reportRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("reports").DeleteMany(r.b.ctx(ctx),
		bson.M{"$or": []bson.M{{"reporter_id": userID}, {"reported_id": userID}}})
	if err != nil {
		return fmt.Errorf("docstore: deleting reports for user %s: %w", userID, err)
	}
	return nil
}

type chatDoc struct {
	ID          string    `bson:"_id"`
	Channel     string    `bson:"channel"`
	UserID      string    `bson:"user_id"`
	RecipientID *string   `bson:"recipient_id"`
	Msg         string    `bson:"msg"`
	Timestamp   time.Time `bson:"timestamp"`
}

type chatRepo struct{ b *Backend }

func (r chatRepo) Add(ctx context.Context, msg model.ChatMessage) (model.ChatMessage, error) {
	doc := chatDoc{ID: msg.ID, Channel: msg.Channel, UserID: msg.UserID, RecipientID: msg.RecipientID, Msg: msg.Msg, Timestamp: msg.Timestamp}
	_, err := r.b.col("chat_messages").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("docstore: posting chat message: %w", err)
	}
	return msg, nil
}

func (r chatRepo) ListConversation(ctx context.Context, channel string, maxLen int) ([]model.ChatMessage, error) {
	cur, err := r.b.col("chat_messages").Find(r.b.ctx(ctx), bson.M{"channel": channel},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing conversation: %w", err)
	}
	defer cur.Close(ctx)

	// Newest first; read markers are returned but only non-empty
	// messages count toward maxLen.
	var out []model.ChatMessage
	nonEmpty := 0
	for nonEmpty < maxLen && cur.Next(ctx) {
		var d chatDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, model.ChatMessage{ID: d.ID, Channel: d.Channel, UserID: d.UserID, RecipientID: d.RecipientID, Msg: d.Msg, Timestamp: d.Timestamp})
		if d.Msg != "" {
			nonEmpty++
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func reverseChat(msgs []model.ChatMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (r chatRepo) CheckUnread(ctx context.Context, channel, userID string) (bool, error) {
	cur, err := r.b.col("chat_messages").Find(r.b.ctx(ctx), bson.M{"channel": channel},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetProjection(bson.M{"user_id": 1, "msg": 1}))
	if err != nil {
		return false, fmt.Errorf("docstore: checking unread: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var d struct {
			UserID string `bson:"user_id"`
			Msg    string `bson:"msg"`
		}
		if err := cur.Decode(&d); err != nil {
			return false, err
		}
		if d.UserID == userID && d.Msg == "" {
			return false, nil
		}
		if d.UserID != userID && d.Msg != "" {
			return true, nil
		}
	}
	return false, cur.Err()
}

func (r chatRepo) History(ctx context.Context, forUser string, maxLen int, blocked map[string]bool) ([]model.ChatHistoryEntry, error) {
	cur, err := r.b.col("chat_messages").Find(r.b.ctx(ctx),
		bson.M{"$or": []bson.M{{"user_id": forUser}, {"recipient_id": forUser}}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: loading chat history: %w", err)
	}
	defer cur.Close(ctx)

	seen := map[string]bool{}
	var out []model.ChatHistoryEntry
	for cur.Next(ctx) {
		var d chatDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		other := d.UserID
		if other == forUser && d.RecipientID != nil {
			other = *d.RecipientID
		}
		if other == forUser || blocked[other] || seen[other] {
			continue
		}
		seen[other] = true
		unread, err := r.CheckUnread(ctx, d.Channel, forUser)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ChatHistoryEntry{CorrespondentID: other, Timestamp: d.Timestamp, LastMsg: d.Msg, Unread: unread})
		if len(out) >= maxLen {
			break
		}
	}
	return out, cur.Err()
}

func (r chatRepo) DeleteAllFromUser(ctx context.Context, userID string) error {
	_, err := r.b.col("chat_messages").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting chat messages from user %s: %w", userID, err)
	}
	return nil
}

type zombieDoc struct {
	GameID string `bson:"game_id"`
	UserID string `bson:"user_id"`
}

type zombieRepo struct{ b *Backend }

func (r zombieRepo) Add(ctx context.Context, gameID, userID string) error {
	_, err := r.b.col("zombies").UpdateOne(r.b.ctx(ctx),
		bson.M{"game_id": gameID, "user_id": userID},
		bson.M{"$setOnInsert": zombieDoc{GameID: gameID, UserID: userID}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: adding zombie: %w", err)
	}
	return nil
}

func (r zombieRepo) Delete(ctx context.Context, gameID, userID string) error {
	_, err := r.b.col("zombies").DeleteOne(r.b.ctx(ctx), bson.M{"game_id": gameID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting zombie: %w", err)
	}
	return nil
}

func (r zombieRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("zombies").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting zombies for user %s: %w", userID, err)
	}
	return nil
}

func (r zombieRepo) ListGames(ctx context.Context, userID string) ([]model.ZombieGameInfo, error) {
	cur, err := r.b.col("zombies").Find(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("docstore: listing zombie games: %w", err)
	}
	defer cur.Close(ctx)

	var gameIDs []string
	for cur.Next(ctx) {
		var d zombieDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		gameIDs = append(gameIDs, d.GameID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(gameIDs) == 0 {
		return nil, nil
	}

	gcur, err := r.b.col("games").Find(r.b.ctx(ctx), bson.M{"_id": bson.M{"$in": gameIDs}})
	if err != nil {
		return nil, fmt.Errorf("docstore: loading zombie games: %w", err)
	}
	defer gcur.Close(ctx)

	var out []model.ZombieGameInfo
	for gcur.Next(ctx) {
		var d gameDoc
		if err := gcur.Decode(&d); err != nil {
			return nil, err
		}
		info := model.ZombieGameInfo{GameID: d.ID, Timestamp: d.TsLastMove, RobotLevel: d.RobotLevel, Score0: d.Score0, Score1: d.Score1, Locale: d.Locale}
		if d.Player0ID != nil && *d.Player0ID != userID {
			info.OpponentID = *d.Player0ID
		} else if d.Player1ID != nil {
			info.OpponentID = *d.Player1ID
		}
		out = append(out, info)
	}
	return out, gcur.Err()
}
