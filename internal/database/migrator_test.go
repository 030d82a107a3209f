package database

import (
	"context"
	"sort"
	"testing"
)

func TestLoadAppliedVersions_NilPool(t *testing.T) {
	_, err := loadAppliedVersions(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestApplyOneMigration_NilPool(t *testing.T) {
	err := applyOneMigration(context.Background(), nil, "001_activity_ledger.sql")
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestListMigrationsSortedAndNonEmpty(t *testing.T) {
	files, err := listMigrations()
	if err != nil {
		t.Fatalf("listMigrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if !sort.StringsAreSorted(files) {
		t.Fatalf("migrations not sorted: %v", files)
	}
}

func TestCountPendingMigrations(t *testing.T) {
	files := []string{"001_a.sql", "002_b.sql", "003_c.sql"}
	applied := map[string]bool{"001_a.sql": true}
	if got := countPendingMigrations(files, applied); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
}
