package docstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mideind/explo/internal/store/errkind"
	"github.com/mideind/explo/internal/store/model"
)

type userDoc struct {
	ID          string          `bson:"_id"`
	Account     string          `bson:"account,omitempty"`
	Email       string          `bson:"email,omitempty"`
	Nickname    string          `bson:"nickname"`
	NickLower   string          `bson:"nick_lower"`
	FullNameLow string          `bson:"full_name_low"`
	Image       string          `bson:"image"`
	ImageBlob   []byte          `bson:"image_blob,omitempty"`
	Locale      string          `bson:"locale"`
	Location    string          `bson:"location"`
	Prefs       model.UserPrefs `bson:"prefs"`
	Inactive    bool            `bson:"inactive"`
	Ready       bool            `bson:"ready"`
	ReadyTimed  bool            `bson:"ready_timed"`
	ChatDisabled bool           `bson:"chat_disabled"`
	Plan        *string         `bson:"plan,omitempty"`

	Elo       int `bson:"elo"`
	HumanElo  int `bson:"human_elo"`
	ManualElo int `bson:"manual_elo"`

	HighestScore       int    `bson:"highest_score"`
	HighestScoreGameID string `bson:"highest_score_game_id"`
	BestWord           string `bson:"best_word"`
	BestWordScore      int    `bson:"best_word_score"`
	BestWordGameID     string `bson:"best_word_game_id"`

	Games int `bson:"games"`

	Timestamp time.Time `bson:"timestamp"`
	LastLogin time.Time `bson:"last_login"`
}

func userToDoc(u model.User) userDoc {
	return userDoc{
		ID: u.ID, Account: u.Account, Email: u.Email, Nickname: u.Nickname,
		NickLower: u.NickLower, FullNameLow: u.FullNameLow, Image: u.Image,
		ImageBlob: u.ImageBlob, Locale: u.Locale, Location: u.Location,
		Prefs: u.Prefs, Inactive: u.Inactive, Ready: u.Ready, ReadyTimed: u.ReadyTimed,
		ChatDisabled: u.ChatDisabled, Plan: u.Plan,
		Elo: u.Elo, HumanElo: u.HumanElo, ManualElo: u.ManualElo,
		HighestScore: u.HighestScore, HighestScoreGameID: u.HighestScoreGameID,
		BestWord: u.BestWord, BestWordScore: u.BestWordScore, BestWordGameID: u.BestWordGameID,
		Games: u.Games, Timestamp: u.Timestamp, LastLogin: u.LastLogin,
	}
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID: d.ID, Account: d.Account, Email: d.Email, Nickname: d.Nickname,
		NickLower: d.NickLower, FullNameLow: d.FullNameLow, Image: d.Image,
		ImageBlob: d.ImageBlob, Locale: d.Locale, Location: d.Location,
		Prefs: d.Prefs, Inactive: d.Inactive, Ready: d.Ready, ReadyTimed: d.ReadyTimed,
		ChatDisabled: d.ChatDisabled, Plan: d.Plan,
		Elo: d.Elo, HumanElo: d.HumanElo, ManualElo: d.ManualElo,
		HighestScore: d.HighestScore, HighestScoreGameID: d.HighestScoreGameID,
		BestWord: d.BestWord, BestWordScore: d.BestWordScore, BestWordGameID: d.BestWordGameID,
		Games: d.Games, Timestamp: d.Timestamp, LastLogin: d.LastLogin,
	}
}

type userRepo struct{ b *Backend }

func (r userRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	_, err := r.b.col("users").InsertOne(r.b.ctx(ctx), userToDoc(u))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, fmt.Errorf("docstore: creating user: %w", errkind.Conflict)
		}
		return model.User{}, fmt.Errorf("docstore: creating user: %w", err)
	}
	return u, nil
}

func (r userRepo) getOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var d userDoc
	err := r.b.col("users").FindOne(r.b.ctx(ctx), filter).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	u := d.toModel()
	return &u, nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := r.getOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("docstore: loading user %s: %w", id, err)
	}
	return u, nil
}

func (r userRepo) GetByAccount(ctx context.Context, account string) (*model.User, error) {
	u, err := r.getOne(ctx, bson.M{"account": account})
	if err != nil {
		return nil, fmt.Errorf("docstore: loading user by account: %w", err)
	}
	return u, nil
}

// GetByEmail implements the legacy lookup-by-email ordering (spec §4.3
// lookup mode 3): the newest active user with elo > 0 for this email, or
// failing that the newest user overall.
func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	lowered := strings.ToLower(email)
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var d userDoc
	err := r.b.col("users").FindOne(r.b.ctx(ctx),
		bson.M{"email": lowered, "inactive": false, "elo": bson.M{"$gt": 0}}, opts).Decode(&d)
	switch err {
	case nil:
		u := d.toModel()
		return &u, nil
	case mongo.ErrNoDocuments:
		// fall through to the newest-overall query below
	default:
		return nil, fmt.Errorf("docstore: loading user by email: %w", err)
	}

	err = r.b.col("users").FindOne(r.b.ctx(ctx), bson.M{"email": lowered}, opts).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading user by email: %w", err)
	}
	u := d.toModel()
	return &u, nil
}

func (r userRepo) GetByNickname(ctx context.Context, nickname string) (*model.User, error) {
	u, err := r.getOne(ctx, bson.M{"nick_lower": strings.ToLower(nickname)})
	if err != nil {
		return nil, fmt.Errorf("docstore: loading user by nickname: %w", err)
	}
	return u, nil
}

func (r userRepo) collect(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.User, error) {
	cur, err := r.b.col("users").Find(r.b.ctx(ctx), filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.User
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toModel())
	}
	return out, cur.Err()
}

// SearchByPrefix matches the prefix against both nick_lower and
// full_name_low (spec §4.3 lookup mode 5), not nickname alone.
func (r userRepo) SearchByPrefix(ctx context.Context, prefix string, locale string, limit int) ([]model.User, error) {
	anchored := bson.M{"$regex": "^" + regexpEscape(strings.ToLower(prefix))}
	filter := bson.M{
		"inactive": false,
		"$or": bson.A{
			bson.M{"nick_lower": anchored},
			bson.M{"full_name_low": anchored},
		},
	}
	if locale != "" {
		filter["locale"] = locale
	}
	out, err := r.collect(ctx, filter, options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "nick_lower", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: searching users by prefix: %w", err)
	}
	return out, nil
}

// SimilarElo returns up to maxLen/2 users with human_elo strictly below
// targetElo (nearest first, then reversed to ascending) followed by up
// to the remaining slots at-or-above targetElo (ascending), so the
// concatenated result is monotonically non-decreasing in human_elo.
func (r userRepo) SimilarElo(ctx context.Context, targetElo int, locale string, maxLen int) ([]model.User, error) {
	below := maxLen / 2
	above := maxLen - below

	belowUsers, err := r.collect(ctx,
		bson.M{"locale": locale, "inactive": false, "human_elo": bson.M{"$lt": targetElo}},
		options.Find().SetLimit(int64(below)).SetSort(bson.D{{Key: "human_elo", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing below-elo users: %w", err)
	}
	for i, j := 0, len(belowUsers)-1; i < j; i, j = i+1, j-1 {
		belowUsers[i], belowUsers[j] = belowUsers[j], belowUsers[i]
	}

	aboveUsers, err := r.collect(ctx,
		bson.M{"locale": locale, "inactive": false, "human_elo": bson.M{"$gte": targetElo}},
		options.Find().SetLimit(int64(above)).SetSort(bson.D{{Key: "human_elo", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing at-or-above-elo users: %w", err)
	}

	return append(belowUsers, aboveUsers...), nil
}

func (r userRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	sets := bson.M{}
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
		sets["prefs"] = *upd.Prefs
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
	_, err := r.b.col("users").UpdateOne(r.b.ctx(ctx), bson.M{"_id": id}, bson.M{"$set": sets})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("docstore: updating user %s: %w", id, errkind.Conflict)
		}
		return fmt.Errorf("docstore: updating user %s: %w", id, err)
	}
	return nil
}

func (r userRepo) Delete(ctx context.Context, id string) error {
	_, err := r.b.col("users").DeleteOne(r.b.ctx(ctx), bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("docstore: deleting user %s: %w", id, err)
	}
	return nil
}

// regexpEscape escapes Mongo $regex metacharacters in a user-supplied
// prefix so SearchByPrefix can't be abused as an ReDoS/wildcard vector.
func regexpEscape(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
