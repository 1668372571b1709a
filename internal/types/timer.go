package types

import "time"

// NoTask is the current-task pointer value meaning nothing is running
const NoTask int64 = -1

// RunningTimer is the single in-process record of which task is being timed.
// It is replaced, never mutated in place.
type RunningTimer struct {
	TaskID      int64  `json:"taskId"`
	StartedAt   int64  `json:"startedAt"`   // ms since epoch
	BaseSeconds int64  `json:"baseSeconds"` // recorded total when this segment began
	SegmentID   string `json:"segmentId,omitempty"`
}

// StartTime returns StartedAt as a time.Time
func (r RunningTimer) StartTime() time.Time {
	return time.UnixMilli(r.StartedAt)
}

// TotalAt returns base seconds plus whole seconds elapsed since the segment began
func (r RunningTimer) TotalAt(now time.Time) int64 {
	return r.BaseSeconds + r.ElapsedAt(now)
}

// ElapsedAt returns whole seconds since StartedAt, never negative
func (r RunningTimer) ElapsedAt(now time.Time) int64 {
	elapsed := (now.UnixMilli() - r.StartedAt) / 1000
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// DirtyTaskRecord is time recorded for a task that has not been flushed to the event store
type DirtyTaskRecord struct {
	TimeSpent   *int64           `json:"timeSpent,omitempty"`
	ByDate      map[string]int64 `json:"byDate,omitempty"`
	// PendingDays holds per-day seconds of finished segments whose commit
	// failed; the next flush adds them to the day totals
	PendingDays map[string]int64 `json:"pendingDays,omitempty"`
	UpdatedAt   int64            `json:"updatedAt"` // ms since epoch, diagnostic only
}

// Effective returns max(timeSpent, sum(byDate)), the total to write durably
func (r DirtyTaskRecord) Effective() int64 {
	var fallback int64
	if r.TimeSpent != nil {
		fallback = *r.TimeSpent
	}
	var sum int64
	for _, seconds := range r.ByDate {
		sum += seconds
	}
	return max(fallback, sum)
}

// Clone returns a deep copy
func (r DirtyTaskRecord) Clone() DirtyTaskRecord {
	clone := DirtyTaskRecord{UpdatedAt: r.UpdatedAt}
	if r.TimeSpent != nil {
		v := *r.TimeSpent
		clone.TimeSpent = &v
	}
	if r.ByDate != nil {
		clone.ByDate = make(map[string]int64, len(r.ByDate))
		for k, v := range r.ByDate {
			clone.ByDate[k] = v
		}
	}
	if r.PendingDays != nil {
		clone.PendingDays = make(map[string]int64, len(r.PendingDays))
		for k, v := range r.PendingDays {
			clone.PendingDays[k] = v
		}
	}
	return clone
}

// TimerStatus is a point-in-time view of the engine for display
type TimerStatus struct {
	Running      bool   `json:"running"`
	TaskID       int64  `json:"taskId"`
	CurrentTask  int64  `json:"currentTask"`
	StartedAt    int64  `json:"startedAt,omitempty"`
	BaseSeconds  int64  `json:"baseSeconds"`
	TotalSeconds int64  `json:"totalSeconds"`
	SegmentID    string `json:"segmentId,omitempty"`
	Ticks        uint64 `json:"ticks"`
	PendingTasks int    `json:"pendingTasks"`
}
