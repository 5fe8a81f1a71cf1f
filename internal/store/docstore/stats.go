package docstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mideind/explo/internal/store/model"
)

type statsDoc struct {
	UserID       string      `bson:"user_id"`
	RobotLevel   int         `bson:"robot_level"`
	Timestamp    time.Time   `bson:"timestamp"`
	Games        model.Triad `bson:"games"`
	Wins         model.Triad `bson:"wins"`
	Losses       model.Triad `bson:"losses"`
	ScoreFor     model.Triad `bson:"score_for"`
	ScoreAgainst model.Triad `bson:"score_against"`
	Elo          int         `bson:"elo"`
	HumanElo     int         `bson:"human_elo"`
	ManualElo    int         `bson:"manual_elo"`
}

func statsToDoc(s model.StatsSnapshot) statsDoc {
	return statsDoc{
		UserID: s.UserID, RobotLevel: s.RobotLevel, Timestamp: s.Timestamp,
		Games: s.Games, Wins: s.Wins, Losses: s.Losses,
		ScoreFor: s.ScoreFor, ScoreAgainst: s.ScoreAgainst,
		Elo: s.Elo, HumanElo: s.HumanElo, ManualElo: s.ManualElo,
	}
}

func (d statsDoc) toModel() model.StatsSnapshot {
	return model.StatsSnapshot{
		UserID: d.UserID, RobotLevel: d.RobotLevel, Timestamp: d.Timestamp,
		Games: d.Games, Wins: d.Wins, Losses: d.Losses,
		ScoreFor: d.ScoreFor, ScoreAgainst: d.ScoreAgainst,
		Elo: d.Elo, HumanElo: d.HumanElo, ManualElo: d.ManualElo,
	}
}

type statsRepo struct{ b *Backend }

func (r statsRepo) MostRecentAtOrBefore(ctx context.Context, userID string, at time.Time) (*model.StatsSnapshot, error) {
	var d statsDoc
	err := r.b.col("stats_snapshots").FindOne(r.b.ctx(ctx),
		bson.M{"user_id": userID, "timestamp": bson.M{"$lte": at}},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading stats snapshot: %w", err)
	}
	s := d.toModel()
	return &s, nil
}

func (r statsRepo) DeleteAt(ctx context.Context, at time.Time) error {
	_, err := r.b.col("stats_snapshots").DeleteMany(r.b.ctx(ctx), bson.M{"timestamp": at})
	if err != nil {
		return fmt.Errorf("docstore: deleting stats snapshots at %s: %w", at, err)
	}
	return nil
}

func (r statsRepo) Put(ctx context.Context, s model.StatsSnapshot) error {
	_, err := r.b.col("stats_snapshots").ReplaceOne(r.b.ctx(ctx),
		bson.M{"user_id": s.UserID, "timestamp": s.Timestamp}, statsToDoc(s), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: writing stats snapshot: %w", err)
	}
	return nil
}

func (r statsRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("stats_snapshots").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting stats snapshots for user %s: %w", userID, err)
	}
	return nil
}

func (r statsRepo) TopByElo(ctx context.Context, kind string, at time.Time, n int) ([]model.StatsSnapshot, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "timestamp", Value: bson.D{{Key: "$lte", Value: at}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$user_id"}, {Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}}}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
	}
	cur, err := r.b.col("stats_snapshots").Aggregate(r.b.ctx(ctx), pipeline)
	if err != nil {
		return nil, fmt.Errorf("docstore: loading snapshots for ranking: %w", err)
	}
	defer cur.Close(ctx)

	var all []model.StatsSnapshot
	for cur.Next(ctx) {
		var d statsDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		all = append(all, d.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	eloOf := func(s model.StatsSnapshot) int {
		switch kind {
		case "human":
			return s.HumanElo
		case "manual":
			return s.ManualElo
		default:
			return s.Elo
		}
	}
	sort.Slice(all, func(i, j int) bool { return eloOf(all[i]) > eloOf(all[j]) })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

type ratingDoc struct {
	Kind       string                `bson:"kind"`
	Rank       int                   `bson:"rank"`
	UserID     *string               `bson:"user_id"`
	RobotLevel int                   `bson:"robot_level"`
	Current    model.RatingSnapshot  `bson:"current"`
	Yesterday  model.RatingSnapshot  `bson:"yesterday"`
	WeekAgo    model.RatingSnapshot  `bson:"week_ago"`
	MonthAgo   model.RatingSnapshot  `bson:"month_ago"`
}

func (d ratingDoc) toModel() model.RatingRow {
	return model.RatingRow{
		Kind: d.Kind, Rank: d.Rank, UserID: d.UserID, RobotLevel: d.RobotLevel,
		Current: d.Current, Yesterday: d.Yesterday, WeekAgo: d.WeekAgo, MonthAgo: d.MonthAgo,
	}
}

type ratingRepo struct{ b *Backend }

func (r ratingRepo) ReplaceAll(ctx context.Context, rows []model.RatingRow) error {
	kinds := map[string]bool{}
	for _, row := range rows {
		kinds[row.Kind] = true
	}
	for kind := range kinds {
		if _, err := r.b.col("rating_rows").DeleteMany(r.b.ctx(ctx), bson.M{"kind": kind}); err != nil {
			return fmt.Errorf("docstore: clearing rating rows for %s: %w", kind, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		docs[i] = ratingDoc{
			Kind: row.Kind, Rank: row.Rank, UserID: row.UserID, RobotLevel: row.RobotLevel,
			Current: row.Current, Yesterday: row.Yesterday, WeekAgo: row.WeekAgo, MonthAgo: row.MonthAgo,
		}
	}
	if _, err := r.b.col("rating_rows").InsertMany(r.b.ctx(ctx), docs); err != nil {
		return fmt.Errorf("docstore: writing rating rows: %w", err)
	}
	return nil
}

func (r ratingRepo) List(ctx context.Context, kind string) ([]model.RatingRow, error) {
	cur, err := r.b.col("rating_rows").Find(r.b.ctx(ctx), bson.M{"kind": kind}, options.Find().SetSort(bson.D{{Key: "rank", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing rating rows: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.RatingRow
	for cur.Next(ctx) {
		var d ratingDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toModel())
	}
	return out, cur.Err()
}

type completionDoc struct {
	ID        string    `bson:"_id"`
	ProcType  string    `bson:"proc_type"`
	TsFrom    time.Time `bson:"ts_from"`
	TsTo      time.Time `bson:"ts_to"`
	Success   bool      `bson:"success"`
	Reason    string    `bson:"reason"`
	Timestamp time.Time `bson:"timestamp"`
}

type completionRepo struct{ b *Backend }

func (r completionRepo) Add(ctx context.Context, c model.Completion) (model.Completion, error) {
	doc := completionDoc{ID: c.ID, ProcType: c.ProcType, TsFrom: c.TsFrom, TsTo: c.TsTo, Success: c.Success, Reason: c.Reason, Timestamp: c.Timestamp}
	_, err := r.b.col("completions").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.Completion{}, fmt.Errorf("docstore: recording completion: %w", err)
	}
	return c, nil
}

func (r completionRepo) Latest(ctx context.Context, procType string) (*model.Completion, error) {
	var d completionDoc
	err := r.b.col("completions").FindOne(r.b.ctx(ctx), bson.M{"proc_type": procType},
		options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading latest completion: %w", err)
	}
	c := model.Completion{ID: d.ID, ProcType: d.ProcType, TsFrom: d.TsFrom, TsTo: d.TsTo, Success: d.Success, Reason: d.Reason, Timestamp: d.Timestamp}
	return &c, nil
}
