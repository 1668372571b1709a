package eventstore

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"focustrack/internal/types"
)

// OccurrencePredicate decides whether a task occurs on a calendar day
type OccurrencePredicate interface {
	OccursOn(task types.Task, day time.Time) bool
}

// RRulePredicate understands the subset of RFC 5545 rules the app writes:
// FREQ=DAILY|WEEKLY|MONTHLY with optional INTERVAL, BYDAY and UNTIL.
// An empty rule is a one-off on the anchor date. Unknown frequencies
// fall back to daily.
type RRulePredicate struct{}

var _ OccurrencePredicate = RRulePredicate{}

type rrule struct {
	freq     string
	interval int
	byDay    []time.Weekday
	until    string // YYYY-MM-DD, inclusive
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

func parseRRule(raw string) rrule {
	rule := rrule{freq: "DAILY", interval: 1}
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "RRULE:")
	for _, part := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		value = strings.ToUpper(strings.TrimSpace(value))
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			rule.freq = value
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				rule.interval = n
			}
		case "BYDAY":
			for _, code := range strings.Split(value, ",") {
				// drop ordinal prefixes like 1MO
				code = strings.TrimLeft(code, "+-0123456789")
				if wd, ok := weekdayCodes[code]; ok {
					rule.byDay = append(rule.byDay, wd)
				}
			}
		case "UNTIL":
			if len(value) >= 8 {
				if t, err := time.Parse("20060102", value[:8]); err == nil {
					rule.until = t.Format(types.DateLayout)
				}
			}
		}
	}
	return rule
}

// civilDay counts days since the epoch for the local calendar date of t
func civilDay(t time.Time) int64 {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func (RRulePredicate) OccursOn(task types.Task, day time.Time) bool {
	anchor, err := time.ParseInLocation(types.DateLayout, task.AnchorDate, time.Local)
	if err != nil {
		return false
	}
	dayKey := types.DateKey(day)
	if dayKey < task.AnchorDate {
		return false
	}
	if strings.TrimSpace(task.RRule) == "" {
		return dayKey == task.AnchorDate
	}

	rule := parseRRule(task.RRule)
	if rule.until != "" && dayKey > rule.until {
		return false
	}

	diff := civilDay(day) - civilDay(anchor)
	local := day.Local()
	switch rule.freq {
	case "WEEKLY":
		weeks := diff / 7
		if len(rule.byDay) > 0 {
			// weeks are counted from the week containing the anchor
			weeks = (diff + int64(anchor.Weekday())) / 7
			return weeks%int64(rule.interval) == 0 && slices.Contains(rule.byDay, local.Weekday())
		}
		return diff%7 == 0 && weeks%int64(rule.interval) == 0
	case "MONTHLY":
		months := (local.Year()-anchor.Year())*12 + int(local.Month()-anchor.Month())
		return local.Day() == anchor.Day() && months%rule.interval == 0
	default:
		if len(rule.byDay) > 0 && !slices.Contains(rule.byDay, local.Weekday()) {
			return false
		}
		return diff%int64(rule.interval) == 0
	}
}
