package timer

import (
	"time"

	"focustrack/internal/types"
)

// DaySplit attributes a running segment's cumulative total to calendar days.
// When the segment has crossed midnight, StartDaySeconds is the base plus the
// seconds up to the start day's midnight and TodaySeconds is the remainder.
// Every day after the start day is counted as today.
type DaySplit struct {
	StartKey        string
	TodayKey        string
	StartDaySeconds int64
	TodaySeconds    int64
}

// Crossed reports whether part of the segment belongs to a later day
func (d DaySplit) Crossed() bool {
	return d.TodaySeconds > 0
}

// Buckets returns the cumulative seconds per day key
func (d DaySplit) Buckets() map[string]int64 {
	if !d.Crossed() {
		return map[string]int64{d.StartKey: d.StartDaySeconds}
	}
	return map[string]int64{
		d.StartKey: d.StartDaySeconds,
		d.TodayKey: d.TodaySeconds,
	}
}

// ComputeDaySplit splits rt's total at now across the start day and today
func ComputeDaySplit(rt types.RunningTimer, now time.Time) DaySplit {
	started := rt.StartTime().Local()
	total := rt.TotalAt(now)
	split := DaySplit{
		StartKey:        types.DateKey(started),
		TodayKey:        types.DateKey(now),
		StartDaySeconds: total,
	}
	if split.StartKey == split.TodayKey {
		return split
	}

	toMidnight := secondsToMidnight(started)
	if rt.ElapsedAt(now) <= toMidnight {
		return split
	}
	split.StartDaySeconds = rt.BaseSeconds + toMidnight
	split.TodaySeconds = max(0, total-split.StartDaySeconds)
	return split
}

// secondsToMidnight counts whole seconds from t to the next local midnight,
// rounding a partial second up
func secondsToMidnight(t time.Time) int64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
	d := midnight.Sub(t)
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
