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

type eloDoc struct {
	UserID    string    `bson:"user_id"`
	Locale    string    `bson:"locale"`
	Elo       int       `bson:"elo"`
	HumanElo  int       `bson:"human_elo"`
	ManualElo int       `bson:"manual_elo"`
	Timestamp time.Time `bson:"timestamp"`
}

type eloRepo struct{ b *Backend }

func (r eloRepo) Get(ctx context.Context, userID, locale string) (*model.EloRating, error) {
	var d eloDoc
	err := r.b.col("elo_ratings").FindOne(r.b.ctx(ctx), bson.M{"user_id": userID, "locale": locale}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading elo rating: %w", err)
	}
	return &model.EloRating{UserID: d.UserID, Locale: d.Locale, Elo: d.Elo, HumanElo: d.HumanElo, ManualElo: d.ManualElo, Timestamp: d.Timestamp}, nil
}

func (r eloRepo) Upsert(ctx context.Context, er model.EloRating) error {
	doc := eloDoc{UserID: er.UserID, Locale: er.Locale, Elo: er.Elo, HumanElo: er.HumanElo, ManualElo: er.ManualElo, Timestamp: er.Timestamp}
	_, err := r.b.col("elo_ratings").ReplaceOne(r.b.ctx(ctx),
		bson.M{"user_id": er.UserID, "locale": er.Locale}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: upserting elo rating: %w", err)
	}
	return nil
}

func (r eloRepo) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("elo_ratings").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting elo ratings for user %s: %w", userID, err)
	}
	return nil
}

type robotDoc struct {
	Locale     string `bson:"locale"`
	RobotLevel int    `bson:"robot_level"`
	Elo        int    `bson:"elo"`
}

type robotRepo struct{ b *Backend }

func (r robotRepo) Get(ctx context.Context, locale string, level int) (*model.RobotElo, error) {
	var d robotDoc
	err := r.b.col("robot_elo").FindOne(r.b.ctx(ctx), bson.M{"locale": locale, "robot_level": level}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading robot elo: %w", err)
	}
	return &model.RobotElo{Locale: d.Locale, RobotLevel: d.RobotLevel, Elo: d.Elo}, nil
}

func (r robotRepo) Upsert(ctx context.Context, re model.RobotElo) error {
	doc := robotDoc{Locale: re.Locale, RobotLevel: re.RobotLevel, Elo: re.Elo}
	_, err := r.b.col("robot_elo").ReplaceOne(r.b.ctx(ctx),
		bson.M{"locale": re.Locale, "robot_level": re.RobotLevel}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: upserting robot elo: %w", err)
	}
	return nil
}
