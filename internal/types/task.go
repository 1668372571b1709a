package types

import "time"

// DateLayout is the calendar-day key format (YYYY-MM-DD, local time)
const DateLayout = "2006-01-02"

// DateKey returns the local calendar-day key for t
func DateKey(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// Task is a stored task/event record. TimeGoal <= 0 means a quick task with no goal.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	RRule       string    `json:"rrule"`
	Category    string    `json:"category"`
	TimeGoal    int64     `json:"timeGoal"`  // seconds
	TimeSpent   int64     `json:"timeSpent"` // seconds, cumulative
	AnchorDate  string    `json:"anchorDate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasGoal reports whether the task has a positive time goal
func (t Task) HasGoal() bool {
	return t.TimeGoal > 0
}

// PercentComplete returns progress toward the goal, capped at 100.
// Tasks without a goal are complete once any time is recorded.
func PercentComplete(timeSpent, timeGoal int64) int {
	if timeGoal <= 0 {
		if timeSpent > 0 {
			return 100
		}
		return 0
	}
	pct := timeSpent * 100 / timeGoal
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}

// NewEvent is the input to CreateEvent
type NewEvent struct {
	Title       string `json:"title"`
	RRule       string `json:"rrule"`
	TimeGoal    int64  `json:"timeGoal"`
	TimeSpent   *int64 `json:"timeSpent,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	// AnchorDate anchors the recurrence; empty means the creation day
	AnchorDate string `json:"anchorDate,omitempty"`
}

// EventUpdate is a partial update; nil fields are left unchanged
type EventUpdate struct {
	ID          int64   `json:"id"`
	Title       *string `json:"title,omitempty"`
	Category    *string `json:"category,omitempty"`
	TimeGoal    *int64  `json:"timeGoal,omitempty"`
	TimeSpent   *int64  `json:"timeSpent,omitempty"`
	Description *string `json:"description,omitempty"`
}

// IsEmpty reports whether the update carries no fields
func (u EventUpdate) IsEmpty() bool {
	return u.Title == nil && u.Category == nil && u.TimeGoal == nil && u.TimeSpent == nil && u.Description == nil
}

// Occurrence is a task as it appears on a given calendar day
type Occurrence struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Date            string `json:"date"`
	Category        string `json:"category"`
	TimeGoal        int64  `json:"timeGoal"`
	TimeSpent       int64  `json:"timeSpent"`
	PercentComplete int    `json:"percentComplete"`
}

// TaskSummary aggregates a task's progress over a date range
type TaskSummary struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	Category        string           `json:"category"`
	TimeGoal        int64            `json:"timeGoal"`
	TimeSpent       int64            `json:"timeSpent"`
	RangeSeconds    int64            `json:"rangeSeconds"`
	PercentComplete int              `json:"percentComplete"`
	ByDate          map[string]int64 `json:"byDate"`
}

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }
