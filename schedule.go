package policykit

import "time"

// ScheduleKind is a recurring constraint on when an assignment is active.
// The set is closed on purpose: schedules are security-relevant, so they are
// named windows rather than arbitrary expressions. All windows are evaluated
// in UTC against the clock at check time.
type ScheduleKind string

const (
	// ScheduleAlways places no recurring constraint on the assignment.
	ScheduleAlways ScheduleKind = ""

	// ScheduleBusinessHours is Monday-Friday, 09:00-17:00 UTC.
	ScheduleBusinessHours ScheduleKind = "business_hours"

	// ScheduleAfterHours is 18:00-08:00 UTC, every day of the week.
	ScheduleAfterHours ScheduleKind = "after_hours"

	// ScheduleWeekends is Saturday and Sunday, all day UTC.
	ScheduleWeekends ScheduleKind = "weekends"
)

// Valid reports whether the kind is one of the supported schedules.
func (k ScheduleKind) Valid() bool {
	switch k {
	case ScheduleAlways, ScheduleBusinessHours, ScheduleAfterHours, ScheduleWeekends:
		return true
	}
	return false
}

// ActiveAt reports whether t falls inside the schedule window. An unknown
// kind is treated as inactive: a constraint that cannot be evaluated must
// never widen access.
func (k ScheduleKind) ActiveAt(t time.Time) bool {
	u := t.UTC()
	switch k {
	case ScheduleAlways:
		return true
	case ScheduleBusinessHours:
		if u.Weekday() == time.Saturday || u.Weekday() == time.Sunday {
			return false
		}
		return u.Hour() >= 9 && u.Hour() < 17
	case ScheduleAfterHours:
		return u.Hour() >= 18 || u.Hour() < 8
	case ScheduleWeekends:
		return u.Weekday() == time.Saturday || u.Weekday() == time.Sunday
	default:
		return false
	}
}

// ValidateSchedule checks a schedule kind, returning ErrInvalidInput for
// anything outside the closed set.
func ValidateSchedule(k ScheduleKind) error {
	if !k.Valid() {
		return NewError(ErrInvalidInput, "unknown schedule kind "+string(k))
	}
	return nil
}
