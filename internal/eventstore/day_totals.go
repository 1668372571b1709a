package eventstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

// AddDayTotals adds seconds to each day bucket of a task. Non-positive deltas are skipped.
func (s *SQLiteStore) AddDayTotals(ctx context.Context, id int64, deltas map[string]int64) error {
	days := make([]string, 0, len(deltas))
	for day, seconds := range deltas {
		if seconds <= 0 {
			continue
		}
		if _, err := time.Parse(types.DateLayout, day); err != nil {
			return apperrors.HandleValidationError("AddDayTotals", "day", day, "expected YYYY-MM-DD")
		}
		days = append(days, day)
	}
	if len(days) == 0 {
		return nil
	}
	sort.Strings(days)

	return s.WithTransaction(ctx, func(store Store) error {
		tx := store.(*SQLiteStore)
		now := s.now().UTC()
		for _, day := range days {
			_, err := tx.q.ExecContext(ctx, `
				INSERT INTO event_day_totals (event_id, day, seconds, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(event_id, day) DO UPDATE SET
					seconds = event_day_totals.seconds + excluded.seconds,
					updated_at = excluded.updated_at`,
				id, day, deltas[day], now)
			if err != nil {
				storeErr := apperrors.NewStoreErrorWithContext("AddDayTotals", err, apperrors.ClassifyError(err), map[string]string{
					"id":  strconv.FormatInt(id, 10),
					"day": day,
				})
				s.logFailure(storeErr, "AddDayTotals", map[string]interface{}{"id": id, "day": day})
				return storeErr
			}
		}
		return nil
	})
}

// DayTotals returns a task's per-day seconds for days in [from, to]
func (s *SQLiteStore) DayTotals(ctx context.Context, id int64, from, to string) (map[string]int64, error) {
	totals := make(map[string]int64)
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		rows, err := s.q.QueryContext(ctx, `
			SELECT day, seconds FROM event_day_totals
			WHERE event_id = ? AND day >= ? AND day <= ?`, id, from, to)
		if err != nil {
			return apperrors.WrapStoreError("DayTotals", err)
		}
		defer rows.Close()

		clear(totals)
		for rows.Next() {
			var day string
			var seconds int64
			if err := rows.Scan(&day, &seconds); err != nil {
				return apperrors.WrapStoreError("DayTotals.Scan", err)
			}
			totals[day] = seconds
		}
		return apperrors.WrapStoreError("DayTotals.Rows", rows.Err())
	}, "DayTotals")
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// CommitSegment sets the task's cumulative total and records the day deltas in one transaction
func (s *SQLiteStore) CommitSegment(ctx context.Context, id int64, total int64, deltas map[string]int64) error {
	start := time.Now()
	err := s.WithTransaction(ctx, func(store Store) error {
		if err := store.UpdateEvent(ctx, types.EventUpdate{ID: id, TimeSpent: types.Int64Ptr(total)}); err != nil {
			return err
		}
		return store.AddDayTotals(ctx, id, deltas)
	})
	if err == nil {
		logging.LogOperation(s.logger, "CommitSegment", time.Since(start), map[string]interface{}{
			"id":    id,
			"total": total,
			"days":  len(deltas),
		})
	}
	return err
}

// ApplyBufferedTime raises a task's total to at least total and adds the day
// deltas in one transaction. A lower total never overwrites a newer durable one.
func (s *SQLiteStore) ApplyBufferedTime(ctx context.Context, id int64, total int64, deltas map[string]int64) error {
	if total < 0 {
		return apperrors.HandleValidationError("ApplyBufferedTime", "total", strconv.FormatInt(total, 10), "cannot be negative")
	}
	start := time.Now()
	err := s.WithTransaction(ctx, func(store Store) error {
		tx := store.(*SQLiteStore)
		if err := tx.raiseTimeSpent(ctx, id, total); err != nil {
			return err
		}
		return tx.AddDayTotals(ctx, id, deltas)
	})
	if err == nil {
		logging.LogOperation(s.logger, "ApplyBufferedTime", time.Since(start), map[string]interface{}{
			"id":    id,
			"total": total,
			"days":  len(deltas),
		})
	}
	return err
}

func (s *SQLiteStore) raiseTimeSpent(ctx context.Context, id int64, total int64) error {
	idStr := strconv.FormatInt(id, 10)
	res, err := s.q.ExecContext(ctx, `
		UPDATE events SET
			time_spent = MAX(time_spent, ?),
			updated_at = CASE WHEN time_spent < ? THEN ? ELSE updated_at END
		WHERE id = ?`, total, total, s.now().UTC(), id)
	if err != nil {
		storeErr := apperrors.NewStoreErrorWithContext("ApplyBufferedTime", err, apperrors.ClassifyError(err), map[string]string{"id": idStr})
		s.logFailure(storeErr, "ApplyBufferedTime", map[string]interface{}{"id": id})
		return storeErr
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.HandleNotFound("ApplyBufferedTime", "event", idStr)
	}
	return nil
}

// Summary aggregates per-task progress over the local calendar days from..to inclusive
func (s *SQLiteStore) Summary(ctx context.Context, from, to time.Time) ([]types.TaskSummary, error) {
	fromKey, toKey := types.DateKey(from), types.DateKey(to)
	if fromKey > toKey {
		return nil, apperrors.HandleValidationError("Summary", "range", fromKey+".."+toKey, "from is after to")
	}

	tasks, err := s.GetAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("Summary: %w", err)
	}

	byTask := make(map[int64]map[string]int64)
	err = apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		rows, err := s.q.QueryContext(ctx, `
			SELECT event_id, day, seconds FROM event_day_totals
			WHERE day >= ? AND day <= ?`, fromKey, toKey)
		if err != nil {
			return apperrors.WrapStoreError("Summary", err)
		}
		defer rows.Close()

		clear(byTask)
		for rows.Next() {
			var id, seconds int64
			var day string
			if err := rows.Scan(&id, &day, &seconds); err != nil {
				return apperrors.WrapStoreError("Summary.Scan", err)
			}
			if byTask[id] == nil {
				byTask[id] = make(map[string]int64)
			}
			byTask[id][day] = seconds
		}
		return apperrors.WrapStoreError("Summary.Rows", rows.Err())
	}, "Summary")
	if err != nil {
		return nil, err
	}

	summaries := make([]types.TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		days := byTask[task.ID]
		if days == nil {
			days = map[string]int64{}
		}
		var rangeSeconds int64
		for _, seconds := range days {
			rangeSeconds += seconds
		}
		summaries = append(summaries, types.TaskSummary{
			ID:              task.ID,
			Title:           task.Title,
			Category:        task.Category,
			TimeGoal:        task.TimeGoal,
			TimeSpent:       task.TimeSpent,
			RangeSeconds:    rangeSeconds,
			PercentComplete: types.PercentComplete(task.TimeSpent, task.TimeGoal),
			ByDate:          days,
		})
	}
	return summaries, nil
}
