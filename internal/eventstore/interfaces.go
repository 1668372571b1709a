// Package eventstore is the durable home of tasks (events) and their
// per-day time totals.
package eventstore

import (
	"context"
	"time"

	"focustrack/internal/types"
)

// Store is the event store contract used by the timer, the task cache and the API
type Store interface {
	// CreateEvent inserts a task and returns its assigned id
	CreateEvent(ctx context.Context, event types.NewEvent) (int64, error)
	// UpdateEvent applies the non-nil fields of update to an existing task
	UpdateEvent(ctx context.Context, update types.EventUpdate) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*types.Task, error)
	GetAllEvents(ctx context.Context) ([]types.Task, error)
	// GetEventsForDate returns the tasks occurring on the calendar day of date
	GetEventsForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error)

	// AddDayTotals adds seconds to the per-day totals of a task
	AddDayTotals(ctx context.Context, id int64, deltas map[string]int64) error
	// DayTotals returns the per-day totals of a task between two inclusive day keys
	DayTotals(ctx context.Context, id int64, from, to string) (map[string]int64, error)
	// CommitSegment writes a task's new cumulative total and the day deltas of
	// one timed segment atomically
	CommitSegment(ctx context.Context, id int64, total int64, deltas map[string]int64) error
	// ApplyBufferedTime writes time recovered from the unflushed buffer: the
	// total only ever rises and the day deltas are added
	ApplyBufferedTime(ctx context.Context, id int64, total int64, deltas map[string]int64) error
	// Summary aggregates every task's progress over the days from..to
	Summary(ctx context.Context, from, to time.Time) ([]types.TaskSummary, error)

	WithTransaction(ctx context.Context, fn func(store Store) error) error
}
