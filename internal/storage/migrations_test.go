package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSchemaVersion(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "version-test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0 before migrations, got %d", version)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	version, err = store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Expected version %d after migrations, got %d", ExpectedSchemaVersion, version)
	}
}

func TestMigrate_ReachesExpectedVersion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	var version int
	if err := store.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", ExpectedSchemaVersion, version)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	// Running migrations again must be a no-op.
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}

func TestMigrate_VersionsAreOrdered(t *testing.T) {
	last := 0
	for _, m := range migrations {
		if m.Version <= last {
			t.Errorf("Migration versions must be strictly increasing, got %d after %d", m.Version, last)
		}
		last = m.Version
	}
	if last != ExpectedSchemaVersion {
		t.Errorf("Last migration version %d does not match expected schema version %d", last, ExpectedSchemaVersion)
	}
}
