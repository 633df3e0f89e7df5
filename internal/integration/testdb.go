//go:build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	goredis "github.com/redis/go-redis/v9"

	"github.com/longregen/counsel/internal/adapters/postgres"
	"github.com/longregen/counsel/internal/adapters/redis"
)

// TestDB manages a throwaway database with the schema applied
type TestDB struct {
	Pool *pgxpool.Pool
	DSN  string
}

// SetupTestDB recreates the test database and runs the embedded migrations
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	host := getEnv("COUNSEL_TEST_POSTGRES_HOST", "localhost")
	port := getEnv("COUNSEL_TEST_POSTGRES_PORT", "5432")
	user := getEnv("COUNSEL_TEST_POSTGRES_USER", "counsel")
	password := getEnv("COUNSEL_TEST_POSTGRES_PASSWORD", "counsel")
	dbName := getEnv("COUNSEL_TEST_POSTGRES_DB", "counsel_test")

	adminDSN := fmt.Sprintf("postgres://%s:%s@%s:%s/postgres?sslmode=disable",
		user, password, host, port)

	db, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName)); err != nil {
		t.Fatalf("failed to drop test database: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbName)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	testDB := &TestDB{Pool: pool, DSN: dsn}
	if err := testDB.WaitForReady(context.Background(), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := postgres.Migrate(pool); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return testDB
}

// Clear removes all rows while preserving the schema
func (db *TestDB) Clear(ctx context.Context) error {
	tables := []string{
		"counsel_messages",
		"counsel_conversations",
		"counsel_users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

// WaitForReady polls until the database answers
func (db *TestDB) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := db.Pool.Ping(ctx); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("database not ready after %v", timeout)
}

// SetupTestRedis connects to the test Redis database and flushes it
func SetupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	client, err := redis.NewClient(context.Background(), getEnv("COUNSEL_TEST_REDIS_URL", "redis://localhost:6379/15"))
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
	return client
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
