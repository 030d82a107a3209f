package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	connStr := os.Getenv("TEST_POSTGRES_CONNECTION_STRING")
	if connStr == "" {
		t.Skip("TEST_POSTGRES_CONNECTION_STRING not set")
	}
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		t.Fatalf("connect to db: %v", err)
	}
	return pool
}

func TestActivityLedgerStore(t *testing.T) {
	pool := getTestPool(t)
	defer pool.Close()

	store := NewActivityLedgerStore(pool)
	ctx := context.Background()

	// Ensure clean state
	pool.Exec(ctx, "DELETE FROM activity_ledger WHERE workspace_id LIKE 'test-%'")

	t.Run("Get_NonExistent_ReturnsNil", func(t *testing.T) {
		entries, err := store.Get(ctx, "test-missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entries != nil {
			t.Errorf("expected nil, got %v", entries)
		}
	})

	t.Run("Put_Then_Get", func(t *testing.T) {
		want := map[string]int64{"thread-1": 1714000000123, "thread-2": 1714000000999}
		if err := store.Put(ctx, "test-ws1", want); err != nil {
			t.Fatalf("put: %v", err)
		}

		got, err := store.Get(ctx, "test-ws1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) != 2 || got["thread-1"] != want["thread-1"] || got["thread-2"] != want["thread-2"] {
			t.Errorf("round-trip mismatch: %v", got)
		}
	})

	t.Run("Put_Overwrites", func(t *testing.T) {
		if err := store.Put(ctx, "test-ws1", map[string]int64{"thread-3": 42}); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := store.Get(ctx, "test-ws1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(got) != 1 || got["thread-3"] != 42 {
			t.Errorf("expected overwrite, got %v", got)
		}
	})

	t.Run("All_IncludesBoth", func(t *testing.T) {
		if err := store.Put(ctx, "test-ws2", map[string]int64{"thread-9": 7}); err != nil {
			t.Fatalf("put: %v", err)
		}
		all, err := store.All(ctx)
		if err != nil {
			t.Fatalf("all: %v", err)
		}
		if _, ok := all["test-ws1"]; !ok {
			t.Error("missing test-ws1")
		}
		if _, ok := all["test-ws2"]; !ok {
			t.Error("missing test-ws2")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, "test-ws1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		got, err := store.Get(ctx, "test-ws1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil after delete, got %v", got)
		}
	})
}
