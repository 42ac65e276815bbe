package domain

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func fixedEngine(now time.Time, opts ...EngineOption) *SlotEngine {
	opts = append([]EngineOption{WithClock(ClockFunc(func() time.Time { return now }))}, opts...)
	return NewSlotEngine(opts...)
}

func at(day time.Time, hhmm string) time.Time {
	return MustTimeOfDay(hhmm).On(day, time.UTC)
}

func mondayWindow(start, end string) []WeeklyWindow {
	return []WeeklyWindow{{Day: time.Monday, Start: MustTimeOfDay(start), End: MustTimeOfDay(end)}}
}

func TestComputeAvailability_SingleDay(t *testing.T) {
	// The day before, so the notice rule never applies.
	now := monday.Add(-12 * time.Hour)

	tests := []struct {
		name     string
		windows  []WeeklyWindow
		bookings []BookedInterval
		duration int
		want     []string
	}{
		{
			name:     "empty calendar",
			windows:  mondayWindow("09:00", "10:00"),
			duration: 30,
			want:     []string{"09:00", "09:30"},
		},
		{
			name:     "first slot booked",
			windows:  mondayWindow("09:00", "10:00"),
			bookings: []BookedInterval{{Start: at(monday, "09:00"), End: at(monday, "09:30")}},
			duration: 30,
			want:     []string{"09:30"},
		},
		{
			name:     "booking straddles both slots",
			windows:  mondayWindow("09:00", "10:00"),
			bookings: []BookedInterval{{Start: at(monday, "09:15"), End: at(monday, "09:45")}},
			duration: 30,
			want:     []string{},
		},
		{
			name:     "trailing remainder is unused",
			windows:  mondayWindow("09:00", "10:00"),
			duration: 45,
			want:     []string{"09:00"},
		},
		{
			name:     "adjacent bookings do not conflict",
			windows:  mondayWindow("09:00", "11:00"),
			bookings: []BookedInterval{{Start: at(monday, "08:00"), End: at(monday, "09:00")}, {Start: at(monday, "10:00"), End: at(monday, "10:30")}},
			duration: 60,
			want:     []string{"09:00"},
		},
		{
			name:     "candidate containing a booking is rejected",
			windows:  mondayWindow("09:00", "11:00"),
			bookings: []BookedInterval{{Start: at(monday, "09:20"), End: at(monday, "09:40")}},
			duration: 60,
			want:     []string{"10:00"},
		},
		{
			name:     "window ending at midnight",
			windows:  mondayWindow("22:00", "24:00"),
			duration: 60,
			want:     []string{"22:00", "23:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fixedEngine(now).ComputeAvailability(tt.windows, tt.bookings, SlotRequest{
				DurationMinutes: tt.duration,
				StartDate:       monday,
				Days:            1,
			})
			if err != nil {
				t.Fatalf("ComputeAvailability error: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("len(days) = %d, want 1", len(got))
			}
			if got[0].Date != "2026-01-05" {
				t.Fatalf("date = %q, want %q", got[0].Date, "2026-01-05")
			}
			if got[0].Slots == nil {
				t.Fatalf("slots must be empty, not nil")
			}
			if !reflect.DeepEqual(got[0].Slots, tt.want) {
				t.Fatalf("slots = %v, want %v", got[0].Slots, tt.want)
			}
		})
	}
}

func TestComputeAvailability_SameDayNotice(t *testing.T) {
	now := at(monday, "09:10")
	windows := mondayWindow("08:00", "18:00")
	req := SlotRequest{DurationMinutes: 60, MinNoticeMinutes: 120, StartDate: monday, Days: 1}

	t.Run("align keeps the window grid", func(t *testing.T) {
		got, err := fixedEngine(now).ComputeAvailability(windows, nil, req)
		if err != nil {
			t.Fatalf("ComputeAvailability error: %v", err)
		}
		want := []string{"12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}
		if !reflect.DeepEqual(got[0].Slots, want) {
			t.Fatalf("slots = %v, want %v", got[0].Slots, want)
		}
	})

	t.Run("snap starts at now plus notice", func(t *testing.T) {
		got, err := fixedEngine(now, WithNoticePolicy(NoticeSnap)).ComputeAvailability(windows, nil, req)
		if err != nil {
			t.Fatalf("ComputeAvailability error: %v", err)
		}
		want := []string{"11:10", "12:10", "13:10", "14:10", "15:10", "16:10"}
		if !reflect.DeepEqual(got[0].Slots, want) {
			t.Fatalf("slots = %v, want %v", got[0].Slots, want)
		}
	})

	t.Run("snap rounds seconds up", func(t *testing.T) {
		got, err := fixedEngine(now.Add(30*time.Second), WithNoticePolicy(NoticeSnap)).ComputeAvailability(windows, nil, req)
		if err != nil {
			t.Fatalf("ComputeAvailability error: %v", err)
		}
		if got[0].Slots[0] != "11:11" {
			t.Fatalf("first slot = %q, want %q", got[0].Slots[0], "11:11")
		}
	})

	t.Run("later days ignore the clock", func(t *testing.T) {
		windows := []WeeklyWindow{
			{Day: time.Monday, Start: MustTimeOfDay("08:00"), End: MustTimeOfDay("10:00")},
			{Day: time.Tuesday, Start: MustTimeOfDay("08:00"), End: MustTimeOfDay("10:00")},
		}
		got, err := fixedEngine(now).ComputeAvailability(windows, nil, SlotRequest{
			DurationMinutes: 60, MinNoticeMinutes: 120, StartDate: monday, Days: 2,
		})
		if err != nil {
			t.Fatalf("ComputeAvailability error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len(days) = %d, want 2", len(got))
		}
		if len(got[0].Slots) != 0 {
			t.Fatalf("today slots = %v, want none", got[0].Slots)
		}
		if !reflect.DeepEqual(got[1].Slots, []string{"08:00", "09:00"}) {
			t.Fatalf("tomorrow slots = %v, want [08:00 09:00]", got[1].Slots)
		}
	})

	t.Run("notice inside the window start has no effect", func(t *testing.T) {
		got, err := fixedEngine(at(monday, "05:00")).ComputeAvailability(windows, nil, req)
		if err != nil {
			t.Fatalf("ComputeAvailability error: %v", err)
		}
		if got[0].Slots[0] != "08:00" {
			t.Fatalf("first slot = %q, want %q", got[0].Slots[0], "08:00")
		}
	})
}

func TestComputeAvailability_SkipsDaysWithoutWindow(t *testing.T) {
	windows := []WeeklyWindow{
		{Day: time.Monday, Start: MustTimeOfDay("09:00"), End: MustTimeOfDay("10:00")},
		{Day: time.Wednesday, Start: MustTimeOfDay("09:00"), End: MustTimeOfDay("10:00")},
	}

	got, err := fixedEngine(monday.Add(-time.Hour)).ComputeAvailability(windows, nil, SlotRequest{
		DurationMinutes: 60,
		StartDate:       monday,
		Days:            14,
	})
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}

	wantDates := []string{"2026-01-05", "2026-01-07", "2026-01-12", "2026-01-14"}
	if len(got) != len(wantDates) {
		t.Fatalf("len(days) = %d, want %d", len(got), len(wantDates))
	}
	for i, d := range got {
		if d.Date != wantDates[i] {
			t.Fatalf("days[%d].date = %q, want %q", i, d.Date, wantDates[i])
		}
	}
}

func TestComputeAvailability_DuplicateWindowFirstWins(t *testing.T) {
	windows := []WeeklyWindow{
		{Day: time.Monday, Start: MustTimeOfDay("09:00"), End: MustTimeOfDay("10:00")},
		{Day: time.Monday, Start: MustTimeOfDay("14:00"), End: MustTimeOfDay("15:00")},
	}
	got, err := fixedEngine(monday.Add(-time.Hour)).ComputeAvailability(windows, nil, SlotRequest{
		DurationMinutes: 60, StartDate: monday, Days: 1,
	})
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}
	if !reflect.DeepEqual(got[0].Slots, []string{"09:00"}) {
		t.Fatalf("slots = %v, want [09:00]", got[0].Slots)
	}
}

func TestComputeAvailability_PerDayCeiling(t *testing.T) {
	windows := mondayWindow("00:00", "24:00")
	req := SlotRequest{DurationMinutes: 1, StartDate: monday, Days: 1}

	got, err := fixedEngine(monday.Add(-time.Hour)).ComputeAvailability(windows, nil, req)
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}
	if len(got[0].Slots) != DefaultMaxSlotsPerDay {
		t.Fatalf("len(slots) = %d, want %d", len(got[0].Slots), DefaultMaxSlotsPerDay)
	}

	got, err = fixedEngine(monday.Add(-time.Hour), WithMaxSlotsPerDay(3)).ComputeAvailability(windows, nil, req)
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}
	if !reflect.DeepEqual(got[0].Slots, []string{"00:00", "00:01", "00:02"}) {
		t.Fatalf("slots = %v, want first three minutes", got[0].Slots)
	}
}

func TestComputeAvailability_Validation(t *testing.T) {
	base := SlotRequest{DurationMinutes: 30, StartDate: monday, Days: 1}
	good := mondayWindow("09:00", "10:00")

	tests := []struct {
		name      string
		windows   []WeeklyWindow
		bookings  []BookedInterval
		req       SlotRequest
		wantField string
	}{
		{name: "zero duration", windows: good, req: SlotRequest{DurationMinutes: 0, StartDate: monday, Days: 1}, wantField: "duration_minutes"},
		{name: "negative duration", windows: good, req: SlotRequest{DurationMinutes: -15, StartDate: monday, Days: 1}, wantField: "duration_minutes"},
		{name: "negative notice", windows: good, req: SlotRequest{DurationMinutes: 30, MinNoticeMinutes: -1, StartDate: monday, Days: 1}, wantField: "min_notice_minutes"},
		{name: "no days", windows: good, req: SlotRequest{DurationMinutes: 30, StartDate: monday}, wantField: "days"},
		{name: "too many days", windows: good, req: SlotRequest{DurationMinutes: 30, StartDate: monday, Days: MaxScanDays + 1}, wantField: "days"},
		{name: "huge days", windows: good, req: SlotRequest{DurationMinutes: 30, StartDate: monday, Days: math.MaxInt64 / 8}, wantField: "days"},
		{name: "missing start date", windows: good, req: SlotRequest{DurationMinutes: 30, Days: 1}, wantField: "start_date"},
		{name: "inverted window", windows: mondayWindow("10:00", "09:00"), req: base, wantField: "windows[0]"},
		{name: "empty window", windows: mondayWindow("09:00", "09:00"), req: base, wantField: "windows[0]"},
		{name: "bad weekday", windows: []WeeklyWindow{{Day: time.Weekday(9), Start: 0, End: 60}}, req: base, wantField: "windows[0].day"},
		{name: "time past midnight", windows: []WeeklyWindow{{Day: time.Monday, Start: 60, End: EndOfDay + 1}}, req: base, wantField: "windows[0]"},
		{
			name:      "inverted booking",
			windows:   good,
			bookings:  []BookedInterval{{Start: at(monday, "10:00"), End: at(monday, "09:00")}},
			req:       base,
			wantField: "bookings[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fixedEngine(monday).ComputeAvailability(tt.windows, tt.bookings, tt.req)
			if err == nil {
				t.Fatalf("expected error, got %v", got)
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error = %v, want ErrInvalidRequest", err)
			}
			var irErr *InvalidRequestError
			if !errors.As(err, &irErr) {
				t.Fatalf("error type = %T, want *InvalidRequestError", err)
			}
			if irErr.Field != tt.wantField {
				t.Fatalf("field = %q, want %q", irErr.Field, tt.wantField)
			}
		})
	}
}

func TestComputeAvailability_FullYearScan(t *testing.T) {
	windows := []WeeklyWindow{{Day: time.Monday, Start: MustTimeOfDay("09:00"), End: MustTimeOfDay("10:00")}}
	req := SlotRequest{DurationMinutes: 60, StartDate: monday, Days: MaxScanDays}

	got, err := fixedEngine(monday).ComputeAvailability(windows, nil, req)
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}
	// 366 dates from a Monday hold 53 Mondays.
	if len(got) != 53 {
		t.Fatalf("len(days) = %d, want 53", len(got))
	}
}

func TestComputeAvailability_SlotInvariants(t *testing.T) {
	now := at(monday, "10:07")
	windows := []WeeklyWindow{
		{Day: time.Monday, Start: MustTimeOfDay("08:30"), End: MustTimeOfDay("17:15")},
		{Day: time.Tuesday, Start: MustTimeOfDay("07:00"), End: MustTimeOfDay("12:00")},
		{Day: time.Friday, Start: MustTimeOfDay("13:00"), End: MustTimeOfDay("19:00")},
	}
	tuesday := monday.AddDate(0, 0, 1)
	bookings := []BookedInterval{
		{Start: at(monday, "13:00"), End: at(monday, "14:10")},
		{Start: at(tuesday, "08:05"), End: at(tuesday, "08:20")},
		{Start: at(tuesday, "11:40"), End: at(tuesday, "13:00")},
	}

	for _, policy := range []NoticePolicy{NoticeAlign, NoticeSnap} {
		for _, duration := range []int{15, 25, 40, 90} {
			req := SlotRequest{DurationMinutes: duration, MinNoticeMinutes: 45, StartDate: monday, Days: 7}
			days, err := fixedEngine(now, WithNoticePolicy(policy)).ComputeAvailability(windows, bookings, req)
			if err != nil {
				t.Fatalf("ComputeAvailability error: %v", err)
			}
			if len(days) != 3 {
				t.Fatalf("len(days) = %d, want 3", len(days))
			}

			d := time.Duration(duration) * time.Minute
			for _, day := range days {
				date, err := time.ParseInLocation(DateLayout, day.Date, time.UTC)
				if err != nil {
					t.Fatalf("bad date %q: %v", day.Date, err)
				}
				var w WeeklyWindow
				for _, cand := range windows {
					if cand.Day == date.Weekday() {
						w = cand
						break
					}
				}

				var prevEnd time.Time
				for _, s := range day.Slots {
					start := MustTimeOfDay(s).On(date, time.UTC)
					end := start.Add(d)
					if start.Before(w.Start.On(date, time.UTC)) || end.After(w.End.On(date, time.UTC)) {
						t.Fatalf("%s %s (%s, %dm) outside window", day.Date, s, policy, duration)
					}
					if date.Equal(monday) && start.Before(now.Add(45*time.Minute)) {
						t.Fatalf("%s %s (%s, %dm) inside notice gap", day.Date, s, policy, duration)
					}
					if !prevEnd.IsZero() && start.Before(prevEnd) {
						t.Fatalf("%s %s (%s, %dm) overlaps previous slot", day.Date, s, policy, duration)
					}
					prevEnd = end
					for _, b := range bookings {
						if Overlaps(start, end, b.Start, b.End) {
							t.Fatalf("%s %s (%s, %dm) overlaps booking %v-%v", day.Date, s, policy, duration, b.Start, b.End)
						}
					}
				}
			}
		}
	}
}

func TestComputeAvailability_FixedInstantUsesItsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2026, 1, 5, 9, 10, 0, 0, loc)

	got, err := ComputeAvailability(now, mondayWindow("09:00", "11:00"), nil, SlotRequest{
		DurationMinutes: 30, StartDate: now, Days: 1,
	})
	if err != nil {
		t.Fatalf("ComputeAvailability error: %v", err)
	}
	want := []string{"09:30", "10:00", "10:30"}
	if !reflect.DeepEqual(got[0].Slots, want) {
		t.Fatalf("slots = %v, want %v", got[0].Slots, want)
	}
}

func TestOverlaps(t *testing.T) {
	a := at(monday, "09:00")
	b := at(monday, "10:00")
	c := at(monday, "11:00")

	if Overlaps(a, b, b, c) {
		t.Fatalf("touching intervals must not overlap")
	}
	if !Overlaps(a, c, a.Add(10*time.Minute), b) {
		t.Fatalf("contained interval must overlap")
	}
	if !Overlaps(a, b, a, b) {
		t.Fatalf("identical intervals must overlap")
	}
}

func TestParseNoticePolicy(t *testing.T) {
	for in, want := range map[string]NoticePolicy{"": NoticeAlign, "align": NoticeAlign, "SNAP": NoticeSnap} {
		got, err := ParseNoticePolicy(in)
		if err != nil {
			t.Fatalf("ParseNoticePolicy(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseNoticePolicy(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseNoticePolicy("round"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
