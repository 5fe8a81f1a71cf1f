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

type gameDoc struct {
	ID         string          `bson:"_id"`
	Player0ID  *string         `bson:"player0_id"`
	Player1ID  *string         `bson:"player1_id"`
	Locale     string          `bson:"locale"`
	Rack0      string          `bson:"rack0"`
	Rack1      string          `bson:"rack1"`
	IRack0     string          `bson:"irack0"`
	IRack1     string          `bson:"irack1"`
	Score0     int             `bson:"score0"`
	Score1     int             `bson:"score1"`
	ToMove     int             `bson:"to_move"`
	RobotLevel int             `bson:"robot_level"`
	Over       bool            `bson:"over"`
	Timestamp  time.Time       `bson:"timestamp"`
	TsLastMove time.Time       `bson:"ts_last_move"`
	Moves      []model.Move    `bson:"moves"`
	Prefs      model.GamePrefs `bson:"prefs"`
	Bag        string          `bson:"bag"`
	TileCount  int             `bson:"tile_count"`

	Elo0, Elo1             *int `bson:"elo0,omitempty"`
	Elo0Adj, Elo1Adj       *int `bson:"elo0_adj,omitempty"`
	HumanElo0, HumanElo1       *int `bson:"human_elo0,omitempty"`
	HumanElo0Adj, HumanElo1Adj *int `bson:"human_elo0_adj,omitempty"`
	ManualElo0, ManualElo1     *int `bson:"manual_elo0,omitempty"`
	ManualElo0Adj, ManualElo1Adj *int `bson:"manual_elo0_adj,omitempty"`
}

func gameToDoc(g model.Game) gameDoc {
	return gameDoc{
		ID: g.ID, Player0ID: g.Player0ID, Player1ID: g.Player1ID, Locale: g.Locale,
		Rack0: g.Rack0, Rack1: g.Rack1, IRack0: g.IRack0, IRack1: g.IRack1,
		Score0: g.Score0, Score1: g.Score1, ToMove: g.ToMove, RobotLevel: g.RobotLevel,
		Over: g.Over, Timestamp: g.Timestamp, TsLastMove: g.TsLastMove,
		Moves: g.Moves, Prefs: g.Prefs, Bag: g.Bag, TileCount: g.TileCount,
		Elo0: g.Elo0, Elo1: g.Elo1, Elo0Adj: g.Elo0Adj, Elo1Adj: g.Elo1Adj,
		HumanElo0: g.HumanElo0, HumanElo1: g.HumanElo1,
		HumanElo0Adj: g.HumanElo0Adj, HumanElo1Adj: g.HumanElo1Adj,
		ManualElo0: g.ManualElo0, ManualElo1: g.ManualElo1,
		ManualElo0Adj: g.ManualElo0Adj, ManualElo1Adj: g.ManualElo1Adj,
	}
}

func (d gameDoc) toModel() model.Game {
	return model.Game{
		ID: d.ID, Player0ID: d.Player0ID, Player1ID: d.Player1ID, Locale: d.Locale,
		Rack0: d.Rack0, Rack1: d.Rack1, IRack0: d.IRack0, IRack1: d.IRack1,
		Score0: d.Score0, Score1: d.Score1, ToMove: d.ToMove, RobotLevel: d.RobotLevel,
		Over: d.Over, Timestamp: d.Timestamp, TsLastMove: d.TsLastMove,
		Moves: d.Moves, Prefs: d.Prefs, Bag: d.Bag, TileCount: d.TileCount,
		Elo0: d.Elo0, Elo1: d.Elo1, Elo0Adj: d.Elo0Adj, Elo1Adj: d.Elo1Adj,
		HumanElo0: d.HumanElo0, HumanElo1: d.HumanElo1,
		HumanElo0Adj: d.HumanElo0Adj, HumanElo1Adj: d.HumanElo1Adj,
		ManualElo0: d.ManualElo0, ManualElo1: d.ManualElo1,
		ManualElo0Adj: d.ManualElo0Adj, ManualElo1Adj: d.ManualElo1Adj,
	}
}

type gameRepo struct{ b *Backend }

func (r gameRepo) Create(ctx context.Context, g model.Game) (model.Game, error) {
	_, err := r.b.col("games").InsertOne(r.b.ctx(ctx), gameToDoc(g))
	if err != nil {
		return model.Game{}, fmt.Errorf("docstore: creating game: %w", err)
	}
	return g, nil
}

func (r gameRepo) GetByID(ctx context.Context, id string) (*model.Game, error) {
	var d gameDoc
	err := r.b.col("games").FindOne(r.b.ctx(ctx), bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading game %s: %w", id, err)
	}
	g := d.toModel()
	return &g, nil
}

func (r gameRepo) Update(ctx context.Context, id string, upd model.GameUpdate) error {
	sets := bson.M{}
	if upd.Rack0 != nil {
		sets["rack0"] = *upd.Rack0
	}
	if upd.Rack1 != nil {
		sets["rack1"] = *upd.Rack1
	}
	if upd.Score0 != nil {
		sets["score0"] = *upd.Score0
	}
	if upd.Score1 != nil {
		sets["score1"] = *upd.Score1
	}
	if upd.ToMove != nil {
		sets["to_move"] = *upd.ToMove
	}
	if upd.Over != nil {
		sets["over"] = *upd.Over
	}
	if upd.TsLastMove != nil {
		sets["ts_last_move"] = *upd.TsLastMove
	}
	if upd.Moves != nil {
		sets["moves"] = upd.Moves
	}
	if upd.Bag != nil {
		sets["bag"] = *upd.Bag
	}
	if upd.TileCount != nil {
		sets["tile_count"] = *upd.TileCount
	}
	for col, v := range map[string]*int{
		"elo0": upd.Elo0, "elo1": upd.Elo1, "elo0_adj": upd.Elo0Adj, "elo1_adj": upd.Elo1Adj,
		"human_elo0": upd.HumanElo0, "human_elo1": upd.HumanElo1,
		"human_elo0_adj": upd.HumanElo0Adj, "human_elo1_adj": upd.HumanElo1Adj,
		"manual_elo0": upd.ManualElo0, "manual_elo1": upd.ManualElo1,
		"manual_elo0_adj": upd.ManualElo0Adj, "manual_elo1_adj": upd.ManualElo1Adj,
	} {
		if v != nil {
			sets[col] = *v
		}
	}
	if len(sets) == 0 {
		return nil
	}
	_, err := r.b.col("games").UpdateOne(r.b.ctx(ctx), bson.M{"_id": id}, bson.M{"$set": sets})
	if err != nil {
		return fmt.Errorf("docstore: updating game %s: %w", id, err)
	}
	return nil
}

func (r gameRepo) ListLive(ctx context.Context, userID string) ([]model.LiveGameInfo, error) {
	filter := bson.M{"over": false, "$or": []bson.M{{"player0_id": userID}, {"player1_id": userID}}}
	cur, err := r.b.col("games").Find(r.b.ctx(ctx), filter, options.Find().SetSort(bson.D{{Key: "ts_last_move", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing live games: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.LiveGameInfo
	for cur.Next(ctx) {
		var d gameDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		info := model.LiveGameInfo{
			GameID: d.ID, RobotLevel: d.RobotLevel, Score0: d.Score0, Score1: d.Score1,
			TileCount: d.TileCount, Locale: d.Locale, Timestamp: d.Timestamp,
		}
		if d.Player0ID != nil && *d.Player0ID == userID {
			info.ToMove = d.ToMove == 0
			if d.Player1ID != nil {
				info.OpponentID = *d.Player1ID
			}
		} else {
			info.ToMove = d.ToMove == 1
			if d.Player0ID != nil {
				info.OpponentID = *d.Player0ID
			}
		}
		out = append(out, info)
	}
	return out, cur.Err()
}

func (r gameRepo) ListFinished(ctx context.Context, userID string, versus *string, limit int) ([]model.FinishedGameInfo, error) {
	filter := bson.M{"over": true, "$or": []bson.M{{"player0_id": userID}, {"player1_id": userID}}}
	if versus != nil {
		filter["$and"] = []bson.M{
			{"$or": []bson.M{{"player0_id": userID}, {"player1_id": userID}}},
			{"$or": []bson.M{{"player0_id": *versus}, {"player1_id": *versus}}},
		}
		delete(filter, "$or")
	}
	cur, err := r.b.col("games").Find(r.b.ctx(ctx), filter,
		options.Find().SetSort(bson.D{{Key: "ts_last_move", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing finished games: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.FinishedGameInfo
	for cur.Next(ctx) {
		var d gameDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		info := model.FinishedGameInfo{GameID: d.ID, RobotLevel: d.RobotLevel, Locale: d.Locale, TsLastMove: d.TsLastMove}
		if d.Player0ID != nil && *d.Player0ID == userID {
			info.Score, info.OpponentSc = d.Score0, d.Score1
			if d.Elo0Adj != nil {
				info.EloAdj = *d.Elo0Adj
			}
			if d.Player1ID != nil {
				info.OpponentID = *d.Player1ID
			}
		} else {
			info.Score, info.OpponentSc = d.Score1, d.Score0
			if d.Elo1Adj != nil {
				info.EloAdj = *d.Elo1Adj
			}
			if d.Player0ID != nil {
				info.OpponentID = *d.Player0ID
			}
		}
		out = append(out, info)
	}
	return out, cur.Err()
}

func (r gameRepo) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]model.Game, error) {
	filter := bson.M{"over": true, "ts_last_move": bson.M{"$gt": from, "$lte": to}}
	cur, err := r.b.col("games").Find(r.b.ctx(ctx), filter, options.Find().SetSort(bson.D{{Key: "ts_last_move", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("docstore: listing completed games: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Game
	for cur.Next(ctx) {
		var d gameDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toModel())
	}
	return out, cur.Err()
}

func (r gameRepo) NullifyPlayer(ctx context.Context, userID string) error {
	c := r.b.col("games")
	if _, err := c.UpdateMany(r.b.ctx(ctx), bson.M{"player0_id": userID}, bson.M{"$set": bson.M{"player0_id": nil}}); err != nil {
		return fmt.Errorf("docstore: nullifying player0 %s: %w", userID, err)
	}
	if _, err := c.UpdateMany(r.b.ctx(ctx), bson.M{"player1_id": userID}, bson.M{"$set": bson.M{"player1_id": nil}}); err != nil {
		return fmt.Errorf("docstore: nullifying player1 %s: %w", userID, err)
	}
	return nil
}
