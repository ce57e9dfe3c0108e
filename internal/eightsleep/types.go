// Package eightsleep exposes bed and alarm operations on top of the
// tiered API client. It owns response-shape parsing; callers only see
// the normalized Bed and Alarm values.
package eightsleep

import "time"

// Weekday identifies a day of the week, Monday first, matching the
// provider's repeat schedule objects.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// String returns the provider's lowercase day name.
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "invalid"
	}
	return weekdayNames[d]
}

// Weekdays is a set of days on which an alarm repeats.
type Weekdays struct {
	days [7]bool
}

// Set adds or removes a day from the set.
func (w *Weekdays) Set(d Weekday, on bool) {
	if d >= Monday && d <= Sunday {
		w.days[d] = on
	}
}

// Contains reports whether the set includes the given day.
func (w Weekdays) Contains(d Weekday) bool {
	if d < Monday || d > Sunday {
		return false
	}
	return w.days[d]
}

// None reports whether the set is empty (a non-repeating alarm).
func (w Weekdays) None() bool {
	return w == Weekdays{}
}

// Count returns the number of days in the set.
func (w Weekdays) Count() int {
	n := 0
	for _, on := range w.days {
		if on {
			n++
		}
	}
	return n
}

// Alarm is one scheduled alarm, as fetched from the provider.
// Read-only; used to compute the next alarm-fire instant.
type Alarm struct {
	ID         string
	Enabled    bool
	Time       string // provider time-of-day string, e.g. "07:30:00"
	RepeatDays Weekdays
	Vibration  int // power level, 0 when vibration is disabled
	Thermal    int // level, 0 when the thermal stage is disabled
	NextTime   string // absolute next fire, ISO 8601 UTC
	Snoozing   bool
}

// NextFireTime parses the alarm's absolute next-fire timestamp.
func (a Alarm) NextFireTime() (time.Time, error) {
	return time.Parse(time.RFC3339, a.NextTime)
}

// Bed is the normalized result of a bed-status read or write,
// decoupled from the provider's raw JSON shape.
type Bed struct {
	CurrentTemp int
	TargetTemp  int
	Active      bool
}
