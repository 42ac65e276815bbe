// Package calendar converts meetings and free slots to iCalendar and reads
// busy time back from it.
package calendar

import (
	"errors"
	"fmt"
	"io"
	"time"

	ical "github.com/emersion/go-ical"

	"meetly/backend/internal/domain"
)

const productID = "-//meetly//availability//EN"

// ErrEmptyCalendar is returned instead of encoding a calendar without events.
var ErrEmptyCalendar = errors.New("calendar has no events")

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

func addEvent(cal *ical.Calendar, uid, summary, description string, start, end, stamp time.Time) {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	ev.Props.SetText(ical.PropSummary, summary)
	if description != "" {
		ev.Props.SetText(ical.PropDescription, description)
	}
	cal.Children = append(cal.Children, ev.Component)
}

// Meetings renders a host's bookings, one VEVENT each.
func Meetings(bookings []domain.Booking, stamp time.Time) (*ical.Calendar, error) {
	if len(bookings) == 0 {
		return nil, ErrEmptyCalendar
	}
	cal := newCalendar()
	for _, b := range bookings {
		summary := "Meeting with " + b.Name
		if b.Event != nil && b.Event.Title != "" {
			summary = b.Event.Title + " with " + b.Name
		}
		description := b.Email
		if b.AdditionalInfo != "" {
			description += "\n\n" + b.AdditionalInfo
		}
		addEvent(cal, b.ID.String()+"@meetly", summary, description, b.StartTime, b.EndTime, stamp)
	}
	return cal, nil
}

// Slots renders every free slot of ev as a VEVENT. Slot labels are read in loc.
func Slots(ev domain.Event, days []domain.DayAvailability, loc *time.Location, stamp time.Time) (*ical.Calendar, error) {
	cal := newCalendar()
	for _, d := range days {
		date, err := time.ParseInLocation(domain.DateLayout, d.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("slot date %q: %w", d.Date, err)
		}
		for _, s := range d.Slots {
			tod, err := domain.ParseTimeOfDay(s)
			if err != nil {
				return nil, fmt.Errorf("slot %q on %s: %w", s, d.Date, err)
			}
			start := tod.On(date, loc)
			uid := fmt.Sprintf("%s-%s@meetly", ev.ID, start.UTC().Format("20060102T1504Z"))
			addEvent(cal, uid, "Available: "+ev.Title, "", start, start.Add(ev.Duration()), stamp)
		}
	}
	if len(cal.Children) == 0 {
		return nil, ErrEmptyCalendar
	}
	return cal, nil
}

func Encode(w io.Writer, cal *ical.Calendar) error {
	return ical.NewEncoder(w).Encode(cal)
}

// ReadBusy decodes every VEVENT in r as busy time. Events outside
// [windowStart, windowEnd) and malformed events are skipped.
func ReadBusy(r io.Reader, windowStart, windowEnd time.Time) ([]domain.BookedInterval, error) {
	dec := ical.NewDecoder(r)
	var busy []domain.BookedInterval

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			event := ical.Event{Component: component}

			start, err := event.DateTimeStart(nil)
			if err != nil {
				continue
			}
			end, err := event.DateTimeEnd(nil)
			if err != nil || !start.Before(end) {
				continue
			}
			if domain.Overlaps(start, end, windowStart, windowEnd) {
				busy = append(busy, domain.BookedInterval{Start: start, End: end})
			}
		}
	}
	return busy, nil
}
