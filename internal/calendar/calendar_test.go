package calendar

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"meetly/backend/internal/domain"
)

var stamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMeetings_EmptyIsError(t *testing.T) {
	if _, err := Meetings(nil, stamp); !errors.Is(err, ErrEmptyCalendar) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyCalendar)
	}
}

func TestMeetings_EncodesAndReadsBack(t *testing.T) {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	bookings := []domain.Booking{{
		ID:        uuid.MustParse("00000000-0000-0000-0000-000000000501"),
		Name:      "Ada",
		Email:     "ada@example.com",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Event:     &domain.Event{Title: "Intro"},
	}}

	cal, err := Meetings(bookings, stamp)
	if err != nil {
		t.Fatalf("Meetings error: %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, cal); err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Intro with Ada", "UID:00000000-0000-0000-0000-000000000501@meetly"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	busy, err := ReadBusy(strings.NewReader(out), start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadBusy error: %v", err)
	}
	if len(busy) != 1 || !busy[0].Start.Equal(start) || !busy[0].End.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("busy = %+v", busy)
	}
}

func TestSlots_OneEventPerSlot(t *testing.T) {
	ev := domain.Event{ID: uuid.MustParse("00000000-0000-0000-0000-000000000502"), Title: "Intro", DurationMinutes: 30}
	days := []domain.DayAvailability{
		{Date: "2026-01-05", Slots: []string{"09:00", "09:30"}},
		{Date: "2026-01-06", Slots: []string{}},
	}

	cal, err := Slots(ev, days, time.UTC, stamp)
	if err != nil {
		t.Fatalf("Slots error: %v", err)
	}
	if len(cal.Children) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(cal.Children))
	}

	if _, err := Slots(ev, []domain.DayAvailability{{Date: "2026-01-06", Slots: []string{}}}, time.UTC, stamp); !errors.Is(err, ErrEmptyCalendar) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyCalendar)
	}
}

func TestReadBusy_SkipsOutsideWindow(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:a",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260105T090000Z",
		"DTEND:20260105T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260301T090000Z",
		"DTEND:20260301T100000Z",
		"SUMMARY:Later",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	busy, err := ReadBusy(strings.NewReader(ics), time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBusy error: %v", err)
	}
	if len(busy) != 1 {
		t.Fatalf("len(busy) = %d, want 1", len(busy))
	}
}
