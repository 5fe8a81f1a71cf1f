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

type promoDoc struct {
	UserID    string    `bson:"user_id"`
	Promo     string    `bson:"promo"`
	Timestamp time.Time `bson:"timestamp"`
}

type promoRepo struct{ b *Backend }

func (r promoRepo) HasBeenShown(ctx context.Context, userID, promo string) (bool, error) {
	n, err := r.b.col("promos").CountDocuments(r.b.ctx(ctx), bson.M{"user_id": userID, "promo": promo})
	if err != nil {
		return false, fmt.Errorf("docstore: checking promo shown: %w", err)
	}
	return n > 0, nil
}

func (r promoRepo) RecordShown(ctx context.Context, userID, promo string) error {
	_, err := r.b.col("promos").UpdateOne(r.b.ctx(ctx),
		bson.M{"user_id": userID, "promo": promo},
		bson.M{"$setOnInsert": promoDoc{UserID: userID, Promo: promo, Timestamp: time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("docstore: recording promo shown: %w", err)
	}
	return nil
}

func (r promoRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("promos").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting promos for user %s: %w", userID, err)
	}
	return nil
}

type transactionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Kind      string    `bson:"kind"`
	Amount    int64     `bson:"amount"`
	Currency  string    `bson:"currency"`
	Timestamp time.Time `bson:"timestamp"`
}

type transactionRepo struct{ b *Backend }

func (r transactionRepo) Add(ctx context.Context, t model.Transaction) (model.Transaction, error) {
	doc := transactionDoc{ID: t.ID, UserID: t.UserID, Kind: t.Kind, Amount: t.Amount, Currency: t.Currency, Timestamp: t.Timestamp}
	_, err := r.b.col("transactions").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("docstore: recording transaction: %w", err)
	}
	return t, nil
}

func (r transactionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("transactions").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting transactions for user %s: %w", userID, err)
	}
	return nil
}

type submissionDoc struct {
	ID        string    `bson:"_id"`
	RiddleID  string    `bson:"riddle_id"`
	UserID    string    `bson:"user_id"`
	Solved    bool      `bson:"solved"`
	Timestamp time.Time `bson:"timestamp"`
}

type submissionRepo struct{ b *Backend }

func (r submissionRepo) Add(ctx context.Context, s model.Submission) (model.Submission, error) {
	doc := submissionDoc{ID: s.ID, RiddleID: s.RiddleID, UserID: s.UserID, Solved: s.Solved, Timestamp: s.Timestamp}
	_, err := r.b.col("submissions").InsertOne(r.b.ctx(ctx), doc)
	if err != nil {
		return model.Submission{}, fmt.Errorf("docstore: recording submission: %w", err)
	}
	return s, nil
}

func (r submissionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("submissions").DeleteMany(r.b.ctx(ctx), bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting submissions for user %s: %w", userID, err)
	}
	return nil
}

type riddleDoc struct {
	ID         string `bson:"_id"`
	Locale     string `bson:"locale"`
	Date       string `bson:"date"`
	RiddleJSON string    `bson:"riddle_json"`
	Created    time.Time `bson:"created"`
	Version    int       `bson:"version"`
}

type riddleRepo struct{ b *Backend }

func (r riddleRepo) GetByLocaleDate(ctx context.Context, locale, date string) (*model.Riddle, error) {
	var d riddleDoc
	err := r.b.col("riddles").FindOne(r.b.ctx(ctx), bson.M{"locale": locale, "date": date}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading riddle: %w", err)
	}
	ri := model.Riddle{ID: d.ID, Locale: d.Locale, Date: d.Date, RiddleJSON: d.RiddleJSON, Created: d.Created, Version: d.Version}
	return &ri, nil
}

func (r riddleRepo) Put(ctx context.Context, ri model.Riddle) error {
	doc := riddleDoc{ID: ri.ID, Locale: ri.Locale, Date: ri.Date, RiddleJSON: ri.RiddleJSON, Created: ri.Created, Version: ri.Version}
	_, err := r.b.col("riddles").ReplaceOne(r.b.ctx(ctx),
		bson.M{"locale": ri.Locale, "date": ri.Date}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: writing riddle: %w", err)
	}
	return nil
}

type imageDoc struct {
	UserID    string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	MimeType  string    `bson:"mime_type"`
	Timestamp time.Time `bson:"timestamp"`
}

type imageRepo struct{ b *Backend }

func (r imageRepo) Get(ctx context.Context, userID string) (*model.Image, error) {
	var d imageDoc
	err := r.b.col("images").FindOne(r.b.ctx(ctx), bson.M{"_id": userID}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: loading image for user %s: %w", userID, err)
	}
	img := model.Image{UserID: d.UserID, Data: d.Data, MimeType: d.MimeType, Timestamp: d.Timestamp}
	return &img, nil
}

func (r imageRepo) Put(ctx context.Context, img model.Image) error {
	doc := imageDoc{UserID: img.UserID, Data: img.Data, MimeType: img.MimeType, Timestamp: img.Timestamp}
	_, err := r.b.col("images").ReplaceOne(r.b.ctx(ctx), bson.M{"_id": img.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("docstore: writing image for user %s: %w", img.UserID, err)
	}
	return nil
}

func (r imageRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.b.col("images").DeleteOne(r.b.ctx(ctx), bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("docstore: deleting image for user %s: %w", userID, err)
	}
	return nil
}
