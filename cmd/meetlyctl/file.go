package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"meetly/backend/internal/domain"
)

// scheduleFile is the on-disk host schedule read by the CLI.
type scheduleFile struct {
	Timezone string         `toml:"timezone"`
	TimeGap  int            `toml:"time_gap"`
	Duration int            `toml:"duration"`
	Title    string         `toml:"title"`
	Windows  []windowEntry  `toml:"window"`
	Bookings []bookingEntry `toml:"booking"`
}

type windowEntry struct {
	Day   string `toml:"day"`
	Start string `toml:"start"`
	End   string `toml:"end"`
}

type bookingEntry struct {
	Start string `toml:"start"`
	End   string `toml:"end"`
}

// hostSchedule is a scheduleFile resolved into engine inputs.
type hostSchedule struct {
	loc      *time.Location
	timeGap  int
	duration int
	title    string
	windows  []domain.WeeklyWindow
	bookings []domain.BookedInterval
}

func loadScheduleFile(path string) (hostSchedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return hostSchedule{}, fmt.Errorf("reading schedule file: %w", err)
	}
	return parseSchedule(raw)
}

func parseSchedule(raw []byte) (hostSchedule, error) {
	var f scheduleFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return hostSchedule{}, fmt.Errorf("parsing schedule file: %w", err)
	}

	tz := strings.TrimSpace(f.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return hostSchedule{}, fmt.Errorf("timezone %q: %w", tz, err)
	}
	if f.TimeGap < 0 {
		return hostSchedule{}, errors.New("time_gap must not be negative")
	}

	s := hostSchedule{loc: loc, timeGap: f.TimeGap, duration: f.Duration, title: strings.TrimSpace(f.Title)}
	if s.title == "" {
		s.title = "Meeting"
	}

	seen := make(map[time.Weekday]bool, len(f.Windows))
	for i, w := range f.Windows {
		day, err := domain.ParseDayOfWeek(w.Day)
		if err != nil {
			return hostSchedule{}, fmt.Errorf("window %d: day %q: %w", i+1, w.Day, err)
		}
		wd, _ := day.Weekday()
		if seen[wd] {
			return hostSchedule{}, fmt.Errorf("window %d: %s is listed twice", i+1, day)
		}
		seen[wd] = true

		start, err := domain.ParseTimeOfDay(w.Start)
		if err != nil {
			return hostSchedule{}, fmt.Errorf("window %d: start %q: %w", i+1, w.Start, err)
		}
		end, err := domain.ParseTimeOfDay(w.End)
		if err != nil {
			return hostSchedule{}, fmt.Errorf("window %d: end %q: %w", i+1, w.End, err)
		}
		if start >= end {
			return hostSchedule{}, fmt.Errorf("window %d: start must be before end", i+1)
		}
		s.windows = append(s.windows, domain.WeeklyWindow{Day: wd, Start: start, End: end})
	}

	for i, b := range f.Bookings {
		start, err := parseInstant(b.Start, loc)
		if err != nil {
			return hostSchedule{}, fmt.Errorf("booking %d: start: %w", i+1, err)
		}
		end, err := parseInstant(b.End, loc)
		if err != nil {
			return hostSchedule{}, fmt.Errorf("booking %d: end: %w", i+1, err)
		}
		if !start.Before(end) {
			return hostSchedule{}, fmt.Errorf("booking %d: start must be before end", i+1)
		}
		s.bookings = append(s.bookings, domain.BookedInterval{Start: start, End: end})
	}
	return s, nil
}

// parseInstant accepts RFC 3339, or a local "YYYY-MM-DDTHH:MM" read in loc.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 3339 or YYYY-MM-DDTHH:MM time", s)
}
