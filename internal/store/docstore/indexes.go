package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type indexSpec struct {
	collection string
	models     []mongo.IndexModel
}

// ensureIndexes creates every index the repositories in this package rely
// on, grounded on replay-api-replay-api's CreateIndexes-at-construction
// pattern (e.g. challenge_repository.go, player_rating_mongodb.go).
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := []indexSpec{
		{"users", []mongo.IndexModel{
			{Keys: bson.D{{Key: "account", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "nick_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "locale", Value: 1}, {Key: "elo", Value: 1}}},
		}},
		{"elo_ratings", []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "locale", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"robot_elo", []mongo.IndexModel{
			{Keys: bson.D{{Key: "locale", Value: 1}, {Key: "robot_level", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"games", []mongo.IndexModel{
			{Keys: bson.D{{Key: "player0_id", Value: 1}, {Key: "over", Value: 1}}},
			{Keys: bson.D{{Key: "player1_id", Value: 1}, {Key: "over", Value: 1}}},
			{Keys: bson.D{{Key: "ts_last_move", Value: -1}}},
		}},
		{"challenges", []mongo.IndexModel{
			{Keys: bson.D{{Key: "src_user_id", Value: 1}, {Key: "dest_user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"favorites", []mongo.IndexModel{
			{Keys: bson.D{{Key: "src_user_id", Value: 1}, {Key: "dst_user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "dst_user_id", Value: 1}}},
		}},
		{"blocks", []mongo.IndexModel{
			{Keys: bson.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "blocked_id", Value: 1}}},
		}},
		{"reports", []mongo.IndexModel{
			{Keys: bson.D{{Key: "reported_id", Value: 1}}},
		}},
		{"chat_messages", []mongo.IndexModel{
			{Keys: bson.D{{Key: "channel", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		}},
		{"zombies", []mongo.IndexModel{
			{Keys: bson.D{{Key: "game_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		}},
		{"stats_snapshots", []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}, Options: options.Index().SetUnique(true)},
		}},
		{"rating_rows", []mongo.IndexModel{
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "rank", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"completions", []mongo.IndexModel{
			{Keys: bson.D{{Key: "proc_type", Value: 1}, {Key: "timestamp", Value: -1}}},
		}},
		{"promos", []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "promo", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"transactions", []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		}},
		{"riddles", []mongo.IndexModel{
			{Keys: bson.D{{Key: "locale", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"submissions", []mongo.IndexModel{
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		}},
	}

	for _, s := range specs {
		if len(s.models) == 0 {
			continue
		}
		if _, err := db.Collection(s.collection).Indexes().CreateMany(ctx, s.models); err != nil {
			return fmt.Errorf("docstore: creating indexes for %s: %w", s.collection, err)
		}
	}
	return nil
}
