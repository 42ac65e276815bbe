package domain

import (
	"errors"
	"strings"
	"time"
)

// DayOfWeek is the persisted day key of a weekly schedule entry.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var ErrInvalidDayOfWeek = errors.New("invalid day of week")

var weekdayByDay = map[DayOfWeek]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// ParseDayOfWeek accepts full day names in any case.
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := weekdayByDay[d]; !ok {
		return "", ErrInvalidDayOfWeek
	}
	return d, nil
}

func DayOfWeekFrom(wd time.Weekday) DayOfWeek {
	for d, w := range weekdayByDay {
		if w == wd {
			return d
		}
	}
	return ""
}

func (d DayOfWeek) Weekday() (time.Weekday, bool) {
	wd, ok := weekdayByDay[d]
	return wd, ok
}

func (d DayOfWeek) Valid() bool {
	_, ok := weekdayByDay[d]
	return ok
}
