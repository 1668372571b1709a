package eventstore

import (
	"context"
	"testing"
	"time"

	"focustrack/internal/database"
	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	ctx := context.Background()
	dbService := database.NewSQLiteService(logging.NopLogger{})
	if err := dbService.Connect(ctx, database.TestConfig()); err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := dbService.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { dbService.Close() })

	return NewSQLiteStoreWithConfig(dbService.DB(), apperrors.NoRetryConfig(), nil, logging.NopLogger{})
}

func createTask(t *testing.T, store *SQLiteStore, event types.NewEvent) int64 {
	t.Helper()
	id, err := store.CreateEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return id
}

func TestCreateAndGetEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id := createTask(t, store, types.NewEvent{
		Title:       "Write report",
		RRule:       "FREQ=DAILY",
		TimeGoal:    3600,
		TimeSpent:   types.Int64Ptr(120),
		Category:    "work",
		Description: "quarterly",
		AnchorDate:  "2024-03-01",
	})
	if id <= 0 {
		t.Fatalf("Expected positive id, got %d", id)
	}

	task, err := store.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if task.Title != "Write report" || task.Category != "work" || task.Description != "quarterly" {
		t.Errorf("Unexpected task fields: %+v", task)
	}
	if task.TimeGoal != 3600 || task.TimeSpent != 120 {
		t.Errorf("Expected goal 3600 spent 120, got %d/%d", task.TimeGoal, task.TimeSpent)
	}
	if task.AnchorDate != "2024-03-01" {
		t.Errorf("Expected anchor 2024-03-01, got %s", task.AnchorDate)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestCreateEventDefaultsAnchorToToday(t *testing.T) {
	store := setupTestStore(t)
	fixed := time.Date(2024, 5, 10, 9, 0, 0, 0, time.Local)
	store.now = func() time.Time { return fixed }

	id := createTask(t, store, types.NewEvent{Title: "Quick"})
	task, err := store.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if task.AnchorDate != "2024-05-10" {
		t.Errorf("Expected anchor 2024-05-10, got %s", task.AnchorDate)
	}
	if task.TimeSpent != 0 {
		t.Errorf("Expected zero time spent, got %d", task.TimeSpent)
	}
}

func TestCreateEventValidation(t *testing.T) {
	store := setupTestStore(t)

	tests := []struct {
		name  string
		event types.NewEvent
	}{
		{"empty title", types.NewEvent{Title: "  "}},
		{"negative goal", types.NewEvent{Title: "x", TimeGoal: -1}},
		{"negative spent", types.NewEvent{Title: "x", TimeSpent: types.Int64Ptr(-5)}},
		{"bad anchor", types.NewEvent{Title: "x", AnchorDate: "03/01/2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateEvent(context.Background(), tt.event)
			if !apperrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateEventPartial(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := createTask(t, store, types.NewEvent{Title: "Read", TimeGoal: 600, Category: "study"})

	err := store.UpdateEvent(ctx, types.EventUpdate{ID: id, TimeSpent: types.Int64Ptr(300)})
	if err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	task, err := store.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if task.TimeSpent != 300 {
		t.Errorf("Expected time spent 300, got %d", task.TimeSpent)
	}
	if task.Title != "Read" || task.Category != "study" || task.TimeGoal != 600 {
		t.Errorf("Unset fields should be unchanged: %+v", task)
	}

	if err := store.UpdateEvent(ctx, types.EventUpdate{ID: id}); err != nil {
		t.Errorf("Empty update should be a no-op, got %v", err)
	}
}

func TestUpdateEventNotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.UpdateEvent(context.Background(), types.EventUpdate{ID: 999, TimeSpent: types.Int64Ptr(1)})
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestDeleteEventCascadesDayTotals(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := createTask(t, store, types.NewEvent{Title: "Gym"})

	if err := store.AddDayTotals(ctx, id, map[string]int64{"2024-01-01": 60}); err != nil {
		t.Fatalf("AddDayTotals failed: %v", err)
	}
	if err := store.DeleteEvent(ctx, id); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}

	if _, err := store.GetEvent(ctx, id); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	totals, err := store.DayTotals(ctx, id, "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("DayTotals failed: %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("Expected day totals removed, got %v", totals)
	}

	if err := store.DeleteEvent(ctx, id); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found deleting twice, got %v", err)
	}
}

func TestAddDayTotalsAccumulates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := createTask(t, store, types.NewEvent{Title: "Piano"})

	steps := []map[string]int64{
		{"2024-01-01": 100},
		{"2024-01-01": 50, "2024-01-02": 30},
		{"2024-01-02": 0, "2024-01-03": -10},
	}
	for _, deltas := range steps {
		if err := store.AddDayTotals(ctx, id, deltas); err != nil {
			t.Fatalf("AddDayTotals failed: %v", err)
		}
	}

	totals, err := store.DayTotals(ctx, id, "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("DayTotals failed: %v", err)
	}
	expected := map[string]int64{"2024-01-01": 150, "2024-01-02": 30}
	if len(totals) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, totals)
	}
	for day, seconds := range expected {
		if totals[day] != seconds {
			t.Errorf("Day %s: expected %d, got %d", day, seconds, totals[day])
		}
	}

	if err := store.AddDayTotals(ctx, id, map[string]int64{"Jan 1": 5}); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for bad day key, got %v", err)
	}
}

func TestCommitSegmentIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := createTask(t, store, types.NewEvent{Title: "Code", TimeSpent: types.Int64Ptr(100)})

	if err := store.CommitSegment(ctx, id, 160, map[string]int64{"2024-02-01": 60}); err != nil {
		t.Fatalf("CommitSegment failed: %v", err)
	}
	task, _ := store.GetEvent(ctx, id)
	if task.TimeSpent != 160 {
		t.Errorf("Expected time spent 160, got %d", task.TimeSpent)
	}

	// a missing task rolls back the day totals
	err := store.CommitSegment(ctx, 12345, 10, map[string]int64{"2024-02-01": 10})
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM event_day_totals WHERE event_id = 12345`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no day totals for missing task, got %d", count)
	}
}

func TestApplyBufferedTimeOnlyRaisesTotal(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	id := createTask(t, store, types.NewEvent{Title: "Read", TimeSpent: types.Int64Ptr(300)})

	// an older buffered total leaves the newer durable one alone but still adds its days
	if err := store.ApplyBufferedTime(ctx, id, 200, map[string]int64{"2024-03-04": 40}); err != nil {
		t.Fatalf("ApplyBufferedTime failed: %v", err)
	}
	task, _ := store.GetEvent(ctx, id)
	if task.TimeSpent != 300 {
		t.Errorf("Expected time spent to stay 300, got %d", task.TimeSpent)
	}

	if err := store.ApplyBufferedTime(ctx, id, 360, nil); err != nil {
		t.Fatalf("ApplyBufferedTime failed: %v", err)
	}
	task, _ = store.GetEvent(ctx, id)
	if task.TimeSpent != 360 {
		t.Errorf("Expected time spent 360, got %d", task.TimeSpent)
	}

	days, err := store.DayTotals(ctx, id, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("DayTotals failed: %v", err)
	}
	if days["2024-03-04"] != 40 || len(days) != 1 {
		t.Errorf("Expected day totals {2024-03-04: 40}, got %v", days)
	}

	if err := store.ApplyBufferedTime(ctx, 999, 10, map[string]int64{"2024-03-04": 10}); !apperrors.IsNotFound(err) {
		t.Errorf("Expected not found for missing task, got %v", err)
	}
	if err := store.ApplyBufferedTime(ctx, id, -1, nil); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for negative total, got %v", err)
	}
}

func TestGetEventsForDate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	daily := createTask(t, store, types.NewEvent{Title: "Daily", RRule: "FREQ=DAILY", TimeGoal: 100, TimeSpent: types.Int64Ptr(50), AnchorDate: "2024-01-01"})
	oneOff := createTask(t, store, types.NewEvent{Title: "Once", AnchorDate: "2024-01-02"})
	createTask(t, store, types.NewEvent{Title: "Later", RRule: "FREQ=DAILY", AnchorDate: "2024-02-01"})

	day := time.Date(2024, 1, 2, 15, 0, 0, 0, time.Local)
	occurrences, err := store.GetEventsForDate(ctx, day)
	if err != nil {
		t.Fatalf("GetEventsForDate failed: %v", err)
	}
	if len(occurrences) != 2 {
		t.Fatalf("Expected 2 occurrences, got %d: %+v", len(occurrences), occurrences)
	}
	if occurrences[0].ID != daily || occurrences[1].ID != oneOff {
		t.Errorf("Unexpected occurrence order: %+v", occurrences)
	}
	if occurrences[0].Date != "2024-01-02" {
		t.Errorf("Expected date 2024-01-02, got %s", occurrences[0].Date)
	}
	if occurrences[0].PercentComplete != 50 {
		t.Errorf("Expected 50%% complete, got %d", occurrences[0].PercentComplete)
	}
	if occurrences[1].PercentComplete != 0 {
		t.Errorf("Expected 0%% for untouched quick task, got %d", occurrences[1].PercentComplete)
	}
}

func TestSummary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := createTask(t, store, types.NewEvent{Title: "A", TimeGoal: 200})
	b := createTask(t, store, types.NewEvent{Title: "B"})
	if err := store.CommitSegment(ctx, a, 150, map[string]int64{"2024-01-01": 100, "2024-01-05": 50}); err != nil {
		t.Fatalf("CommitSegment failed: %v", err)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(2024, 1, 3, 0, 0, 0, 0, time.Local)
	summaries, err := store.Summary(ctx, from, to)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != a || summaries[0].RangeSeconds != 100 || summaries[0].TimeSpent != 150 {
		t.Errorf("Unexpected summary for A: %+v", summaries[0])
	}
	if summaries[0].PercentComplete != 75 {
		t.Errorf("Expected 75%%, got %d", summaries[0].PercentComplete)
	}
	if summaries[1].ID != b || summaries[1].RangeSeconds != 0 || len(summaries[1].ByDate) != 0 {
		t.Errorf("Unexpected summary for B: %+v", summaries[1])
	}

	if _, err := store.Summary(ctx, to, from); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error for inverted range, got %v", err)
	}
}
