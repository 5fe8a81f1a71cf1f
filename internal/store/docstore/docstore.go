// Package docstore implements store.Backend over MongoDB via
// go.mongodb.org/mongo-driver, the document-store alternative to
// internal/store/sqlstore (spec §4.1). Grounded on
// replay-api-replay-api/pkg/infra/db/mongodb's per-entity repository
// shape (one struct wrapping *mongo.Collection per repository,
// bson.M filters, CreateIndexes at construction time) and on
// original_source/src/db/ndb's entity-key modeling, translated from
// NDB ancestor keys to plain string-keyed Mongo documents plus
// compound unique indexes on edge collections (favorites, blocks,
// challenges).
package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mideind/explo/internal/store"
)

// Backend is a store.Backend over a MongoDB database. Unlike sqlstore's
// savepoint-based nesting, Backend.Transaction here is the "optimistic-
// concurrency scope callers opt into" the store.Backend doc comment
// describes (spec §4.1): it runs fn directly, relying on each write's own
// filter (e.g. FavoriteRepository.Add's upsert-by-compound-key) to stay
// correct under concurrent requests, rather than a server-side multi-
// document transaction.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
	sess   mongo.Session // non-nil for a request-scoped backend; nil otherwise
}

// Open connects to uri, ensures indexes exist, and returns a bare Backend
// (no request-scoped session).
func Open(ctx context.Context, uri, dbName string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("docstore: pinging: %w", err)
	}
	db := client.Database(dbName)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &Backend{client: client, db: db}, nil
}

// NewSession returns a Backend bound to a freshly started Mongo client
// session, for use by internal/store/session.Manager. Requires the
// target deployment to support multi-document transactions (replica
// set or sharded cluster); a standalone mongod cannot begin one.
func NewSession(ctx context.Context, client *mongo.Client, dbName string) (*Backend, error) {
	sess, err := client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("docstore: starting session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("docstore: starting transaction: %w", err)
	}
	return &Backend{client: client, db: client.Database(dbName), sess: sess}, nil
}

// Client exposes the underlying client, for the session manager and tests.
func (b *Backend) Client() *mongo.Client { return b.client }

// ctx binds b's request-scoped session onto ctx so driver calls made
// through it participate in the same transaction, mirroring sqlstore's
// exec(ctx) executor lookup.
func (b *Backend) ctx(ctx context.Context) context.Context {
	if b.sess == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, b.sess)
}

// Transaction runs fn directly (see type doc); docstore has no nested
// savepoint equivalent, so a failure inside fn does not roll back writes
// already made by fn before it returned the error.
func (b *Backend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(b.ctx(ctx))
}

// GenerateID returns a fresh random UUID string, suitable as the _id of
// any document this backend stores.
func (b *Backend) GenerateID() string { return uuid.NewString() }

// Commit finalizes the request-scoped transaction. A no-op on a bare
// Backend returned by Open.
func (b *Backend) Commit(ctx context.Context) error {
	if b.sess == nil {
		return nil
	}
	return mongo.WithSession(ctx, b.sess, func(sc context.Context) error {
		return b.sess.CommitTransaction(sc)
	})
}

// Rollback aborts the request-scoped transaction.
func (b *Backend) Rollback(ctx context.Context) error {
	if b.sess == nil {
		return nil
	}
	return mongo.WithSession(ctx, b.sess, func(sc context.Context) error {
		err := b.sess.AbortTransaction(sc)
		if err == mongo.ErrNoTransactionStarted {
			return nil
		}
		return err
	})
}

// Close ends the request-scoped session. A no-op on a bare Backend.
func (b *Backend) Close() error {
	if b.sess == nil {
		return nil
	}
	b.sess.EndSession(context.Background())
	return nil
}

func (b *Backend) col(name string) *mongo.Collection { return b.db.Collection(name) }

func (b *Backend) Users() store.UserRepository             { return userRepo{b} }
func (b *Backend) Elo() store.EloRepository                { return eloRepo{b} }
func (b *Backend) Robots() store.RobotRepository           { return robotRepo{b} }
func (b *Backend) Games() store.GameRepository              { return gameRepo{b} }
func (b *Backend) Challenges() store.ChallengeRepository    { return challengeRepo{b} }
func (b *Backend) Favorites() store.FavoriteRepository      { return favoriteRepo{b} }
func (b *Backend) Blocks() store.BlockRepository            { return blockRepo{b} }
func (b *Backend) Reports() store.ReportRepository          { return reportRepo{b} }
func (b *Backend) Chat() store.ChatRepository                { return chatRepo{b} }
func (b *Backend) Zombies() store.ZombieRepository           { return zombieRepo{b} }
func (b *Backend) Stats() store.StatsRepository              { return statsRepo{b} }
func (b *Backend) Ratings() store.RatingRepository           { return ratingRepo{b} }
func (b *Backend) Completions() store.CompletionRepository   { return completionRepo{b} }
func (b *Backend) Promos() store.PromoRepository              { return promoRepo{b} }
func (b *Backend) Transactions() store.TransactionRepository { return transactionRepo{b} }
func (b *Backend) Submissions() store.SubmissionRepository   { return submissionRepo{b} }
func (b *Backend) Riddles() store.RiddleRepository            { return riddleRepo{b} }
func (b *Backend) Images() store.ImageRepository               { return imageRepo{b} }

var _ store.Backend = (*Backend)(nil)
