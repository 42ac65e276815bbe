package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxSlotsPerDay = 50
	// MaxScanDays bounds SlotRequest.Days.
	MaxScanDays = 366

	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

// WeeklyWindow is a host's recurring working window for one day of the week.
type WeeklyWindow struct {
	Day   time.Weekday
	Start TimeOfDay
	End   TimeOfDay
}

// BookedInterval is an existing booking as the half-open interval [Start, End).
type BookedInterval struct {
	Start time.Time
	End   time.Time
}

type SlotRequest struct {
	DurationMinutes  int
	MinNoticeMinutes int
	// StartDate is read as a calendar date; its clock and location are ignored.
	StartDate time.Time
	Days      int
}

type DayAvailability struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

var ErrInvalidRequest = errors.New("invalid availability request")

type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid availability request: %s %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalid(field, reason string) error {
	return &InvalidRequestError{Field: field, Reason: reason}
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

// NoticePolicy decides where the first slot of the current day lands when the
// minimum-notice gap pushes past the window start.
type NoticePolicy int

const (
	// NoticeAlign keeps slots on the window's grid: the first candidate is the
	// earliest start + k*duration that is not before now+notice.
	NoticeAlign NoticePolicy = iota
	// NoticeSnap starts the first candidate at now+notice, rounded up to the minute.
	NoticeSnap
)

func ParseNoticePolicy(s string) (NoticePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "align", "aligned":
		return NoticeAlign, nil
	case "snap":
		return NoticeSnap, nil
	default:
		return 0, fmt.Errorf("unknown notice policy %q", s)
	}
}

func (p NoticePolicy) String() string {
	if p == NoticeSnap {
		return "snap"
	}
	return "align"
}

// SlotEngine computes bookable slots. It holds configuration only and is safe
// for concurrent use.
type SlotEngine struct {
	clock          Clock
	loc            *time.Location
	maxSlotsPerDay int
	notice         NoticePolicy
}

type EngineOption func(*SlotEngine)

func WithClock(c Clock) EngineOption {
	return func(e *SlotEngine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLocation(loc *time.Location) EngineOption {
	return func(e *SlotEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithMaxSlotsPerDay(n int) EngineOption {
	return func(e *SlotEngine) {
		if n > 0 {
			e.maxSlotsPerDay = n
		}
	}
}

func WithNoticePolicy(p NoticePolicy) EngineOption {
	return func(e *SlotEngine) {
		e.notice = p
	}
}

func NewSlotEngine(opts ...EngineOption) *SlotEngine {
	e := &SlotEngine{
		clock:          SystemClock,
		loc:            time.UTC,
		maxSlotsPerDay: DefaultMaxSlotsPerDay,
		notice:         NoticeAlign,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *SlotEngine) Location() *time.Location { return e.loc }

func (e *SlotEngine) Now() time.Time { return e.clock.Now().In(e.loc) }

// Today is midnight of the current date in the engine's location.
func (e *SlotEngine) Today() time.Time { return DateOf(e.Now(), e.loc) }

// ComputeAvailability reads the clock once and returns one entry per scanned
// date that has a window, in date order.
func (e *SlotEngine) ComputeAvailability(windows []WeeklyWindow, bookings []BookedInterval, req SlotRequest) ([]DayAvailability, error) {
	return e.compute(e.Now(), windows, bookings, req)
}

// ComputeAvailabilityAt is ComputeAvailability for a caller that already read
// the engine clock and must use the same instant elsewhere.
func (e *SlotEngine) ComputeAvailabilityAt(now time.Time, windows []WeeklyWindow, bookings []BookedInterval, req SlotRequest) ([]DayAvailability, error) {
	return e.compute(now, windows, bookings, req)
}

// ComputeAvailability runs the default engine at a fixed instant, in now's location.
func ComputeAvailability(now time.Time, windows []WeeklyWindow, bookings []BookedInterval, req SlotRequest) ([]DayAvailability, error) {
	e := NewSlotEngine(WithLocation(now.Location()))
	return e.compute(now, windows, bookings, req)
}

func (e *SlotEngine) compute(now time.Time, windows []WeeklyWindow, bookings []BookedInterval, req SlotRequest) ([]DayAvailability, error) {
	if err := validateSlotInput(windows, bookings, req); err != nil {
		return nil, err
	}

	byDay := make(map[time.Weekday]WeeklyWindow, len(windows))
	for _, w := range windows {
		if _, ok := byDay[w.Day]; ok {
			continue
		}
		byDay[w.Day] = w
	}

	now = now.In(e.loc)
	today := DateOf(now, e.loc)
	earliest := now.Add(time.Duration(req.MinNoticeMinutes) * time.Minute)
	duration := time.Duration(req.DurationMinutes) * time.Minute

	y, m, d := req.StartDate.Date()
	out := make([]DayAvailability, 0, min(req.Days, 31))
	for i := 0; i < req.Days; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, e.loc)
		w, ok := byDay[day.Weekday()]
		if !ok {
			continue
		}

		var notBefore time.Time
		if day.Equal(today) {
			notBefore = earliest
		}

		out = append(out, DayAvailability{
			Date:  day.Format(DateLayout),
			Slots: e.daySlots(day, w, duration, notBefore, bookings),
		})
	}
	return out, nil
}

func (e *SlotEngine) daySlots(day time.Time, w WeeklyWindow, duration time.Duration, notBefore time.Time, bookings []BookedInterval) []string {
	cursor := w.Start.On(day, e.loc)
	limit := w.End.On(day, e.loc)
	if !notBefore.IsZero() && cursor.Before(notBefore) {
		cursor = e.firstAfterNotice(cursor, notBefore, duration)
	}

	slots := make([]string, 0)
	for n := 0; n < e.maxSlotsPerDay; n++ {
		end := cursor.Add(duration)
		if end.After(limit) {
			break
		}
		if !overlapsAny(cursor, end, bookings) {
			slots = append(slots, cursor.Format(SlotLayout))
		}
		cursor = end
	}
	return slots
}

func (e *SlotEngine) firstAfterNotice(cursor, notBefore time.Time, duration time.Duration) time.Time {
	if e.notice == NoticeSnap {
		t := notBefore.Truncate(time.Minute)
		if t.Before(notBefore) {
			t = t.Add(time.Minute)
		}
		return t
	}
	steps := (notBefore.Sub(cursor) + duration - 1) / duration
	return cursor.Add(steps * duration)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share a non-zero
// stretch of time. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func overlapsAny(start, end time.Time, bookings []BookedInterval) bool {
	for _, b := range bookings {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// DateOf returns midnight of t's calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func validateSlotInput(windows []WeeklyWindow, bookings []BookedInterval, req SlotRequest) error {
	if req.DurationMinutes <= 0 {
		return invalid("duration_minutes", "must be positive")
	}
	if req.MinNoticeMinutes < 0 {
		return invalid("min_notice_minutes", "must not be negative")
	}
	if req.Days <= 0 {
		return invalid("days", "must be positive")
	}
	if req.Days > MaxScanDays {
		return invalid("days", fmt.Sprintf("must be at most %d", MaxScanDays))
	}
	if req.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}

	for i, w := range windows {
		field := fmt.Sprintf("windows[%d]", i)
		if w.Day < time.Sunday || w.Day > time.Saturday {
			return invalid(field+".day", "is out of range")
		}
		if !w.Start.Valid() || !w.End.Valid() {
			return invalid(field, "has a time outside 00:00-24:00")
		}
		if w.Start >= w.End {
			return invalid(field, "must start before it ends")
		}
	}

	for i, b := range bookings {
		if !b.Start.Before(b.End) {
			return invalid(fmt.Sprintf("bookings[%d]", i), "must start before it ends")
		}
	}
	return nil
}
