// Package testutil spins up disposable backend instances (PostgreSQL,
// MongoDB) via testcontainers-go for repository integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mideind/explo/internal/store/sqlstore/migrations"
)

// SetupTestDB starts a PostgreSQL testcontainer, applies migrations, and
// returns a connected pool. Cleanup is registered automatically.
func SetupTestDB(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	ctx := context.Background()

	dsn := SetupTestDSN(tb)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		tb.Fatalf("connecting to test db: %v", err)
	}
	tb.Cleanup(func() { pool.Close() })

	if err := runMigrations(pool); err != nil {
		tb.Fatalf("running migrations: %v", err)
	}

	return pool
}

// SetupTestDSN starts a PostgreSQL testcontainer and returns its
// connection string, for callers (storetest's sqlstore conformance
// suite) that want sqlstore.Open to do its own connect-and-migrate
// rather than handing over an already-open pool.
func SetupTestDSN(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		tb.Fatalf("starting postgres container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			tb.Logf("terminating postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("getting connection string: %v", err)
	}
	return dsn
}

// runMigrations applies the embedded relational migrations via goose.
func runMigrations(pool *pgxpool.Pool) error {
	connConfig := pool.Config().ConnConfig
	connStr := stdlib.RegisterConnConfig(connConfig)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql.DB: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	return nil
}

// SetupTestMongo starts a replica-set-enabled MongoDB testcontainer
// (required for docstore's per-request transactions, see
// internal/store/docstore.NewSession) and returns a connected client plus
// the database name to use.
func SetupTestMongo(tb testing.TB) (*mongo.Client, string) {
	tb.Helper()
	ctx := context.Background()

	uri, dbName := SetupTestMongoURI(tb)

	client, err := mongo.Connect(mongooptions.Client().ApplyURI(uri))
	if err != nil {
		tb.Fatalf("connecting to test mongo: %v", err)
	}
	tb.Cleanup(func() {
		if err := client.Disconnect(context.Background()); err != nil {
			tb.Logf("disconnecting test mongo client: %v", err)
		}
	})

	if err := client.Ping(ctx, nil); err != nil {
		tb.Fatalf("pinging test mongo: %v", err)
	}

	return client, dbName
}

// SetupTestMongoURI starts a replica-set-enabled MongoDB testcontainer
// and returns its connection URI and a database name, for callers
// (storetest's docstore conformance suite) that want docstore.Open to
// do its own connect rather than handing over an already-open client.
func SetupTestMongoURI(tb testing.TB) (string, string) {
	tb.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7",
		mongodb.WithReplicaSet("rs0"),
	)
	if err != nil {
		tb.Fatalf("starting mongodb container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			tb.Logf("terminating mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("getting mongo connection string: %v", err)
	}
	return uri, "testdb"
}
