package kvstore

import (
	"context"
	"testing"

	"focustrack/internal/database"
	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/testutils"
)

func setupTestStore(t *testing.T) (*SQLiteStore, *testutils.RecordingLogger) {
	t.Helper()
	service, err := database.Open(context.Background(), database.TestConfig(), logging.NopLogger{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	rec := &testutils.RecordingLogger{}
	store := NewSQLiteStore(service.DB(), rec)
	store.retryConfig = apperrors.NoRetryConfig()
	return store, rec
}

func TestGetMissingKey(t *testing.T) {
	store, _ := setupTestStore(t)

	value, ok, err := store.Get(context.Background(), KeyActiveTimer)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok || value != "" {
		t.Errorf("Expected missing key, got %q (present=%v)", value, ok)
	}
}

func TestSetGetOverwriteDelete(t *testing.T) {
	store, rec := setupTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyDirtyTasks, `{"1":{"byDate":{}}}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, KeyDirtyTasks, `{}`); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	value, ok, err := store.Get(ctx, KeyDirtyTasks)
	if err != nil || !ok {
		t.Fatalf("Get failed: %v (present=%v)", err, ok)
	}
	if value != `{}` {
		t.Errorf("Expected last write to win, got %q", value)
	}

	// keys are independent
	if _, ok, _ := store.Get(ctx, KeyActiveTimer); ok {
		t.Error("Unrelated key should be absent")
	}

	if err := store.Delete(ctx, KeyDirtyTasks); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeyDirtyTasks); ok {
		t.Error("Key should be gone after Delete")
	}
	if err := store.Delete(ctx, KeyDirtyTasks); err != nil {
		t.Errorf("Deleting a missing key should succeed: %v", err)
	}

	ops := rec.Find("DEBUG", "kv.Set")
	if len(ops) != 2 {
		t.Fatalf("Expected 2 logged writes, got %d", len(ops))
	}
	if fields := testutils.FieldsToMap(t, ops[1].Fields); fields["key"] != KeyDirtyTasks || fields["bytes"] != 2 {
		t.Errorf("Unexpected write fields %v", fields)
	}
}

func TestClosedDatabaseIsClassified(t *testing.T) {
	service, err := database.Open(context.Background(), database.TestConfig(), logging.NopLogger{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := NewSQLiteStore(service.DB(), logging.NopLogger{})
	store.retryConfig = apperrors.NoRetryConfig()
	service.Close()

	err = store.Set(context.Background(), KeyActiveTimer, "{}")
	if err == nil {
		t.Fatal("Expected an error on a closed database")
	}
	if !apperrors.IsConnection(err) {
		t.Errorf("Expected a connection error, got %v", err)
	}
}
