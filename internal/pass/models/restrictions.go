package models

import (
	"strconv"
	"strings"
	"time"

	dErrors "github.com/musicamatics/queueskip/pkg/domain-errors"
)

// RestrictionKind is the closed set of restriction predicates a pass type can
// attach to its passes.
type RestrictionKind string

const (
	RestrictionTimeWindow RestrictionKind = "time_window"
	RestrictionDayOfWeek  RestrictionKind = "day_of_week"
	RestrictionUsageCount RestrictionKind = "usage_count"
)

// Restriction is a typed predicate evaluated at redemption time. Value
// encoding by kind:
//   - time_window: "HH:MM-HH:MM" local wall clock
//   - day_of_week: comma-separated lowercase day names, e.g. "mon,tue,fri"
//   - usage_count: decimal maximum redemptions (this core mints single-use
//     passes, so anything >= 1 passes)
type Restriction struct {
	Kind  RestrictionKind `json:"type"`
	Value string          `json:"value"`
}

// ParseRestrictionKind validates external input against the closed set.
func ParseRestrictionKind(s string) (RestrictionKind, error) {
	switch RestrictionKind(s) {
	case RestrictionTimeWindow, RestrictionDayOfWeek, RestrictionUsageCount:
		return RestrictionKind(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown restriction type")
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Allows evaluates the predicate at the given instant. Malformed values deny:
// a rule we cannot interpret must not widen access.
func (r Restriction) Allows(now time.Time) bool {
	switch r.Kind {
	case RestrictionTimeWindow:
		parts := strings.SplitN(r.Value, "-", 2)
		if len(parts) != 2 {
			return false
		}
		from, err1 := parseClock(parts[0])
		to, err2 := parseClock(parts[1])
		if err1 != nil || err2 != nil {
			return false
		}
		minute := now.Hour()*60 + now.Minute()
		if from <= to {
			return minute >= from && minute < to
		}
		// Window wraps midnight.
		return minute >= from || minute < to
	case RestrictionDayOfWeek:
		for _, name := range strings.Split(r.Value, ",") {
			day, ok := dayNames[strings.TrimSpace(strings.ToLower(name))]
			if ok && day == now.Weekday() {
				return true
			}
		}
		return false
	case RestrictionUsageCount:
		n, err := strconv.Atoi(strings.TrimSpace(r.Value))
		return err == nil && n >= 1
	}
	return false
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
