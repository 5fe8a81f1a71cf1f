// Package sqlstore implements store.Backend over PostgreSQL via pgx,
// one of the two interchangeable persistence backends (spec §4.1).
// Grounded on _examples/udisondev-la2go/internal/db's repository-per-
// entity layout (db.go, persistence.go's pool/tx pattern), generalized
// so a nested store.Backend.Transaction call opens a pgx savepoint
// (pgx.Tx.Begin on an existing Tx) transparently, without every call
// site threading an explicit tx argument.
package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mideind/explo/internal/store"
	"github.com/mideind/explo/internal/store/sqlstore/migrations"
)

// dbtx is the subset of *pgxpool.Pool and pgx.Tx that repositories need;
// satisfied by both, so Backend.exec can hand out either interchangeably.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// Backend is a store.Backend over a pgx connection pool. A Backend
// returned by Open has no request-scoped transaction; NewSession begins
// one per request via pool.Begin and constructs the per-request Backend
// that is actually handed to application code (internal/store/session
// calls it through its Opener).
type Backend struct {
	pool *pgxpool.Pool
	tx   pgx.Tx // non-nil for a request-scoped backend; nil otherwise
}

// Open connects to dsn, runs pending goose migrations, and returns a
// bare Backend (no request-scoped transaction).
func Open(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlstore: pinging: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{pool: pool}, nil
}

// NewSession returns a Backend with a freshly begun request-scoped
// transaction, for use by internal/store/session.Manager.
func NewSession(ctx context.Context, pool *pgxpool.Pool) (*Backend, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: beginning session transaction: %w", err)
	}
	return &Backend{pool: pool, tx: tx}, nil
}

// Pool exposes the underlying pool, for use by the session manager and
// by tests wiring a bare Backend.
func (b *Backend) Pool() *pgxpool.Pool { return b.pool }

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return RunMigrations(ctx, pool, migrations.FS)
}

// exec returns the executor a call in ctx should use: a nested
// Transaction's savepoint tx if one is active, else the request-scoped
// session tx, else the bare pool.
func (b *Backend) exec(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	if b.tx != nil {
		return b.tx
	}
	return b.pool
}

// Transaction opens a pgx savepoint scoped to fn (spec §4.1): when the
// current executor is itself a pgx.Tx, calling Begin on it issues a
// SAVEPOINT rather than a new top-level transaction, giving the nested-
// scope semantics the interface promises for free.
func (b *Backend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := b.exec(ctx).Begin(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning nested transaction: %w", err)
	}
	nctx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(nctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("sqlstore: committing nested transaction: %w", err)
	}
	return nil
}

// GenerateID returns a fresh random UUID string, suitable as the key of
// any entity this backend stores.
func (b *Backend) GenerateID() string { return uuid.NewString() }

// Commit finalizes the request-scoped transaction. A no-op on a bare
// Backend returned by Open.
func (b *Backend) Commit(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}
	return b.tx.Commit(ctx)
}

// Rollback discards the request-scoped transaction.
func (b *Backend) Rollback(ctx context.Context) error {
	if b.tx == nil {
		return nil
	}
	err := b.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

// Close releases resources held by this Backend. The underlying pool is
// owned by whoever called Open, not by a per-request Backend, so this is
// a no-op; it exists to satisfy store.Backend's per-request lifecycle.
func (b *Backend) Close() error { return nil }

func (b *Backend) Users() store.UserRepository               { return userRepo{b} }
func (b *Backend) Elo() store.EloRepository                  { return eloRepo{b} }
func (b *Backend) Robots() store.RobotRepository             { return robotRepo{b} }
func (b *Backend) Games() store.GameRepository                { return gameRepo{b} }
func (b *Backend) Challenges() store.ChallengeRepository      { return challengeRepo{b} }
func (b *Backend) Favorites() store.FavoriteRepository        { return favoriteRepo{b} }
func (b *Backend) Blocks() store.BlockRepository               { return blockRepo{b} }
func (b *Backend) Reports() store.ReportRepository             { return reportRepo{b} }
func (b *Backend) Chat() store.ChatRepository                  { return chatRepo{b} }
func (b *Backend) Zombies() store.ZombieRepository             { return zombieRepo{b} }
func (b *Backend) Stats() store.StatsRepository                { return statsRepo{b} }
func (b *Backend) Ratings() store.RatingRepository             { return ratingRepo{b} }
func (b *Backend) Completions() store.CompletionRepository     { return completionRepo{b} }
func (b *Backend) Promos() store.PromoRepository                { return promoRepo{b} }
func (b *Backend) Transactions() store.TransactionRepository   { return transactionRepo{b} }
func (b *Backend) Submissions() store.SubmissionRepository     { return submissionRepo{b} }
func (b *Backend) Riddles() store.RiddleRepository              { return riddleRepo{b} }
func (b *Backend) Images() store.ImageRepository                { return imageRepo{b} }

var _ store.Backend = (*Backend)(nil)
