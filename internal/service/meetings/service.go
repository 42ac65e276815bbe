package meetings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/events"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

const (
	LatestLimit = 3

	maxGuestNameLen = 100
	maxInfoLen      = 500
)

type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindPast     Kind = "past"
)

type eventReader interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
}

// slotSource is the availability service as seen from booking.
type slotSource interface {
	Now() time.Time
	Location() *time.Location
	Window(now time.Time) (time.Time, time.Time)
	Offered(ctx context.Context, ev domain.Event, bookings []domain.Booking, now time.Time) ([]domain.DayAvailability, error)
	InvalidateHost(ctx context.Context, hostID string)
}

type Service struct {
	events    eventReader
	bookings  store.BookingRepository
	slots     slotSource
	publisher events.Publisher
	log       *slog.Logger
}

func NewService(evs eventReader, bookings store.BookingRepository, slots slotSource, publisher events.Publisher, log *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		events:    evs,
		bookings:  bookings,
		slots:     slots,
		publisher: publisher,
		log:       log.With(slog.String("component", "service.meetings")),
	}
}

type BookInput struct {
	EventID        uuid.UUID
	Name           string
	Email          string
	AdditionalInfo string
	StartTime      time.Time
	IdempotencyKey string
}

// Book reserves a slot of an event for a guest. The start must be one of the
// slots currently offered for the event.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Booking, error) {
	if in.EventID == uuid.Nil {
		return domain.Booking{}, service.Validation("event_id is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Booking{}, service.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxGuestNameLen {
		return domain.Booking{}, service.Validationf("name must be at most %d characters", maxGuestNameLen)
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return domain.Booking{}, service.Validation("email is invalid")
	}
	info := strings.TrimSpace(in.AdditionalInfo)
	if utf8.RuneCountInString(info) > maxInfoLen {
		return domain.Booking{}, service.Validationf("additional_info must be at most %d characters", maxInfoLen)
	}
	if in.StartTime.IsZero() {
		return domain.Booking{}, service.Validation("start_time is required")
	}

	ev, err := s.events.GetEvent(ctx, in.EventID)
	if err != nil {
		return domain.Booking{}, err
	}

	start := in.StartTime.In(s.slots.Location())
	if !start.Truncate(time.Minute).Equal(start) {
		return domain.Booking{}, service.Validation("start_time must be on a whole minute")
	}
	b := domain.Booking{
		EventID:        ev.ID,
		UserID:         ev.UserID,
		Name:           name,
		Email:          addr.Address,
		AdditionalInfo: info,
		StartTime:      start.UTC(),
		EndTime:        start.Add(ev.Duration()).UTC(),
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if len(key) > 256 {
			return domain.Booking{}, service.Validation("idempotency_key too long")
		}
		b.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("meetly:book:"+ev.ID.String()+":"+key))
	}

	var out domain.Booking
	replayed := false
	err = s.bookings.InHostTransaction(ctx, ev.UserID, func(ctx context.Context, tx store.BookingTx) error {
		if b.ID != uuid.Nil {
			_, err := tx.GetBooking(ctx, b.ID)
			switch {
			case err == nil:
				// Same key again: the insert resolves replay vs conflict,
				// wherever the stored booking sits relative to the window.
				out, err = tx.CreateBooking(ctx, b)
				replayed = err == nil
				return err
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("get booking: %w", err)
			}
		}

		now := s.slots.Now()
		from, to := s.slots.Window(now)
		existing, err := tx.ListBookings(ctx, ev.UserID, from, to.AddDate(0, 0, 1))
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}

		days, err := s.slots.Offered(ctx, ev, existing, now)
		if err != nil {
			return err
		}
		if !offered(days, start) {
			for _, e := range existing {
				if domain.Overlaps(b.StartTime, b.EndTime, e.StartTime, e.EndTime) {
					return store.ErrConflict
				}
			}
			return service.Validation("requested time is not an available slot")
		}

		out, err = tx.CreateBooking(ctx, b)
		return err
	})
	if err != nil {
		return domain.Booking{}, err
	}
	out.Event = &ev
	if replayed {
		return out, nil
	}

	s.slots.InvalidateHost(ctx, ev.UserID)
	s.publish(ctx, events.TypeMeetingBooked, out)
	s.log.Info("meeting booked",
		slog.String("booking_id", out.ID.String()),
		slog.String("event_id", ev.ID.String()),
		slog.String("host_id", ev.UserID),
		slog.Time("start_time", out.StartTime),
	)
	return out, nil
}

func offered(days []domain.DayAvailability, start time.Time) bool {
	date := start.Format(domain.DateLayout)
	slot := start.Format(domain.SlotLayout)
	for _, d := range days {
		if d.Date != date {
			continue
		}
		for _, s := range d.Slots {
			if s == slot {
				return true
			}
		}
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindUpcoming:
		return KindUpcoming, nil
	case KindPast:
		return KindPast, nil
	default:
		return "", service.Validationf("type must be %q or %q", KindUpcoming, KindPast)
	}
}

// List returns the host's meetings: upcoming soonest first, past newest first.
func (s *Service) List(ctx context.Context, userID string, kind Kind) ([]domain.Booking, error) {
	if userID == "" {
		return nil, service.Validation("user_id is required")
	}
	return s.list(ctx, store.MeetingFilter{UserID: userID, Past: kind == KindPast})
}

// Latest is the next few upcoming meetings.
func (s *Service) Latest(ctx context.Context, userID string) ([]domain.Booking, error) {
	if userID == "" {
		return nil, service.Validation("user_id is required")
	}
	return s.list(ctx, store.MeetingFilter{UserID: userID, Limit: LatestLimit})
}

func (s *Service) list(ctx context.Context, filter store.MeetingFilter) ([]domain.Booking, error) {
	filter.Now = s.slots.Now().UTC()
	rows, err := s.bookings.ListMeetings(ctx, filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Booking{}
	}
	return rows, nil
}

// Cancel deletes a meeting. Only the host may cancel.
func (s *Service) Cancel(ctx context.Context, userID string, bookingID uuid.UUID) error {
	if userID == "" {
		return service.Validation("user_id is required")
	}
	if bookingID == uuid.Nil {
		return service.Validation("meeting_id is required")
	}

	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return store.ErrForbidden
	}

	err = s.bookings.InHostTransaction(ctx, b.UserID, func(ctx context.Context, tx store.BookingTx) error {
		return tx.DeleteBooking(ctx, userID, bookingID)
	})
	if err != nil {
		return err
	}

	s.slots.InvalidateHost(ctx, b.UserID)
	s.publish(ctx, events.TypeMeetingCancelled, b)
	s.log.Info("meeting cancelled", slog.String("booking_id", bookingID.String()), slog.String("host_id", userID))
	return nil
}

// publish runs after commit, so a failure is logged rather than returned.
func (s *Service) publish(ctx context.Context, typ string, b domain.Booking) {
	err := s.publisher.Publish(ctx, events.MeetingEvent{
		Type:       typ,
		BookingID:  b.ID,
		EventID:    b.EventID,
		HostID:     b.UserID,
		GuestName:  b.Name,
		GuestEmail: b.Email,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("meeting event publish failed", slog.Any("err", err), slog.String("event_type", typ), slog.String("booking_id", b.ID.String()))
	}
}
