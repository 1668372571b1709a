package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "focustrack/internal/infrastructure/errors"
	"focustrack/internal/infrastructure/logging"
	"focustrack/internal/types"
)

const eventColumns = `id, title, description, rrule, category, time_goal, time_spent, anchor_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (types.Task, error) {
	var task types.Task
	var description sql.NullString
	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&task.RRule,
		&task.Category,
		&task.TimeGoal,
		&task.TimeSpent,
		&task.AnchorDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	task.Description = description.String
	return task, err
}

func validateNewEvent(event types.NewEvent) error {
	if strings.TrimSpace(event.Title) == "" {
		return apperrors.HandleValidationError("CreateEvent", "title", event.Title, "title is required")
	}
	if event.TimeGoal < 0 {
		return apperrors.HandleValidationError("CreateEvent", "timeGoal", strconv.FormatInt(event.TimeGoal, 10), "cannot be negative")
	}
	if event.TimeSpent != nil && *event.TimeSpent < 0 {
		return apperrors.HandleValidationError("CreateEvent", "timeSpent", strconv.FormatInt(*event.TimeSpent, 10), "cannot be negative")
	}
	if event.AnchorDate != "" {
		if _, err := time.Parse(types.DateLayout, event.AnchorDate); err != nil {
			return apperrors.HandleValidationError("CreateEvent", "anchorDate", event.AnchorDate, "expected YYYY-MM-DD")
		}
	}
	return nil
}

// CreateEvent inserts a task and returns its id
func (s *SQLiteStore) CreateEvent(ctx context.Context, event types.NewEvent) (int64, error) {
	start := time.Now()
	if err := validateNewEvent(event); err != nil {
		return 0, err
	}

	now := s.now()
	anchor := event.AnchorDate
	if anchor == "" {
		anchor = types.DateKey(now)
	}
	var spent int64
	if event.TimeSpent != nil {
		spent = *event.TimeSpent
	}

	var id int64
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO events (title, description, rrule, category, time_goal, time_spent, anchor_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.Title, event.Description, event.RRule, event.Category, event.TimeGoal, spent, anchor, now.UTC(), now.UTC())
		if err == nil {
			id, err = res.LastInsertId()
		}
		if err != nil {
			storeErr := apperrors.NewStoreErrorWithContext("CreateEvent", err, apperrors.ClassifyError(err), map[string]string{
				"title": event.Title,
			})
			s.logFailure(storeErr, "CreateEvent", map[string]interface{}{"title": event.Title})
			return storeErr
		}
		return nil
	}, "CreateEvent")

	if err == nil {
		logging.LogOperation(s.logger, "CreateEvent", time.Since(start), map[string]interface{}{
			"id":     id,
			"anchor": anchor,
		})
	}
	return id, err
}

// UpdateEvent applies the non-nil fields of update. An empty update is a no-op.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, update types.EventUpdate) error {
	if update.IsEmpty() {
		return nil
	}
	if update.TimeSpent != nil && *update.TimeSpent < 0 {
		return apperrors.HandleValidationError("UpdateEvent", "timeSpent", strconv.FormatInt(*update.TimeSpent, 10), "cannot be negative")
	}
	if update.TimeGoal != nil && *update.TimeGoal < 0 {
		return apperrors.HandleValidationError("UpdateEvent", "timeGoal", strconv.FormatInt(*update.TimeGoal, 10), "cannot be negative")
	}

	var sets []string
	var args []any
	if update.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *update.Title)
	}
	if update.Category != nil {
		sets, args = append(sets, "category = ?"), append(args, *update.Category)
	}
	if update.TimeGoal != nil {
		sets, args = append(sets, "time_goal = ?"), append(args, *update.TimeGoal)
	}
	if update.TimeSpent != nil {
		sets, args = append(sets, "time_spent = ?"), append(args, *update.TimeSpent)
	}
	if update.Description != nil {
		sets, args = append(sets, "description = ?"), append(args, *update.Description)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, s.now().UTC())
	args = append(args, update.ID)

	query := "UPDATE events SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	idStr := strconv.FormatInt(update.ID, 10)

	return apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		res, err := s.q.ExecContext(ctx, query, args...)
		if err != nil {
			storeErr := apperrors.NewStoreErrorWithContext("UpdateEvent", err, apperrors.ClassifyError(err), map[string]string{"id": idStr})
			s.logFailure(storeErr, "UpdateEvent", map[string]interface{}{"id": update.ID})
			return storeErr
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperrors.HandleNotFound("UpdateEvent", "event", idStr)
		}
		return nil
	}, "UpdateEvent")
}

// DeleteEvent removes a task and, through the foreign key, its day totals
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id int64) error {
	idStr := strconv.FormatInt(id, 10)
	return apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		res, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			storeErr := apperrors.NewStoreErrorWithContext("DeleteEvent", err, apperrors.ClassifyError(err), map[string]string{"id": idStr})
			s.logFailure(storeErr, "DeleteEvent", map[string]interface{}{"id": id})
			return storeErr
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperrors.HandleNotFound("DeleteEvent", "event", idStr)
		}
		return nil
	}, "DeleteEvent")
}

// GetEvent returns a single task
func (s *SQLiteStore) GetEvent(ctx context.Context, id int64) (*types.Task, error) {
	var task types.Task
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		var err error
		task, err = scanTask(s.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.HandleNotFound("GetEvent", "event", strconv.FormatInt(id, 10))
		}
		return apperrors.WrapStoreErrorWithContext("GetEvent", err, map[string]string{"id": strconv.FormatInt(id, 10)})
	}, "GetEvent")
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetAllEvents returns every task ordered by id
func (s *SQLiteStore) GetAllEvents(ctx context.Context) ([]types.Task, error) {
	var tasks []types.Task
	err := apperrors.WithRetryContext(ctx, s.retryConfig, func() error {
		rows, err := s.q.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
		if err != nil {
			return apperrors.WrapStoreError("GetAllEvents", err)
		}
		defer rows.Close()

		tasks = tasks[:0]
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return apperrors.WrapStoreError("GetAllEvents.Scan", err)
			}
			tasks = append(tasks, task)
		}
		return apperrors.WrapStoreError("GetAllEvents.Rows", rows.Err())
	}, "GetAllEvents")
	return tasks, err
}

// GetEventsForDate returns the occurrences of every task on date's calendar day
func (s *SQLiteStore) GetEventsForDate(ctx context.Context, date time.Time) ([]types.Occurrence, error) {
	tasks, err := s.GetAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetEventsForDate: %w", err)
	}

	dayKey := types.DateKey(date)
	occurrences := make([]types.Occurrence, 0, len(tasks))
	for _, task := range tasks {
		if !s.predicate.OccursOn(task, date) {
			continue
		}
		occurrences = append(occurrences, types.Occurrence{
			ID:              task.ID,
			Title:           task.Title,
			Description:     task.Description,
			Date:            dayKey,
			Category:        task.Category,
			TimeGoal:        task.TimeGoal,
			TimeSpent:       task.TimeSpent,
			PercentComplete: types.PercentComplete(task.TimeSpent, task.TimeGoal),
		})
	}
	return occurrences, nil
}
