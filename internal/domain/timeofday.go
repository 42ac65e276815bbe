package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision, stored as minutes since midnight.
// 24:00 is allowed so a window can end at midnight.
type TimeOfDay int

const (
	minutesPerDay = 24 * 60

	EndOfDay TimeOfDay = minutesPerDay
)

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || minute < 0 || minute > 59 {
		return 0, ErrInvalidTimeOfDay
	}
	t := TimeOfDay(hour*60 + minute)
	if !t.Valid() {
		return 0, ErrInvalidTimeOfDay
	}
	return t, nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses "HH:MM" (24-hour). A trailing ":SS" of zero seconds is tolerated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ErrInvalidTimeOfDay
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, ErrInvalidTimeOfDay
	}
	if len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, ErrInvalidTimeOfDay
	}
	h, ok := digits(parts[0])
	if !ok {
		return 0, ErrInvalidTimeOfDay
	}
	m, ok := digits(parts[1])
	if !ok {
		return 0, ErrInvalidTimeOfDay
	}
	return NewTimeOfDay(h, m)
}

// digits parses an unsigned decimal; strconv.Atoi would let "+9" and "-0" through.
func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= EndOfDay
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On anchors t to the calendar date of day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	case time.Time:
		*t = TimeOfDay(v.Hour()*60 + v.Minute())
		return nil
	case nil:
		*t = 0
		return nil
	default:
		return fmt.Errorf("time of day: unsupported scan type %T", src)
	}
}
