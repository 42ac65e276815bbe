package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"meetly/backend/internal/cache"
	"meetly/backend/internal/domain"
	"meetly/backend/internal/service"
	"meetly/backend/internal/store"
)

const (
	DefaultWindowDays = 31
	MaxTimeGapMinutes = 7 * 24 * 60
)

var tracer = otel.Tracer("meetly/backend/internal/service/availability")

type eventReader interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
}

type bookingReader interface {
	ListBookings(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error)
}

// Cache is optional. Failures are logged and the computation proceeds uncached.
type Cache interface {
	HostVersion(ctx context.Context, hostID string) (int64, error)
	Availability(ctx context.Context, key cache.AvailabilityKey) ([]domain.DayAvailability, bool, error)
	StoreAvailability(ctx context.Context, key cache.AvailabilityKey, days []domain.DayAvailability) error
	InvalidateHost(ctx context.Context, hostID string) error
}

type Deps struct {
	Events    eventReader
	Schedules store.ScheduleRepository
	Bookings  bookingReader
	Engine    *domain.SlotEngine
	Cache     Cache
	Log       *slog.Logger
}

type Service struct {
	events     eventReader
	schedules  store.ScheduleRepository
	bookings   bookingReader
	engine     *domain.SlotEngine
	cache      Cache
	log        *slog.Logger
	windowDays int
}

func NewService(deps Deps, windowDays int) *Service {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	engine := deps.Engine
	if engine == nil {
		engine = domain.NewSlotEngine()
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		events:     deps.Events,
		schedules:  deps.Schedules,
		bookings:   deps.Bookings,
		engine:     engine,
		cache:      deps.Cache,
		log:        log.With(slog.String("component", "service.availability")),
		windowDays: windowDays,
	}
}

func (s *Service) Now() time.Time { return s.engine.Now() }

func (s *Service) Location() *time.Location { return s.engine.Location() }

// Window is the booking horizon for an instant: today through the last scanned
// date, as a half-open range.
func (s *Service) Window(now time.Time) (time.Time, time.Time) {
	today := domain.DateOf(now, s.engine.Location())
	return today, today.AddDate(0, 0, s.windowDays)
}

// EventAvailability lists the bookable slots of an event for the booking horizon.
func (s *Service) EventAvailability(ctx context.Context, eventID uuid.UUID) ([]domain.DayAvailability, error) {
	_, days, err := s.EventSlots(ctx, eventID)
	return days, err
}

// EventSlots is EventAvailability that also returns the loaded event.
func (s *Service) EventSlots(ctx context.Context, eventID uuid.UUID) (domain.Event, []domain.DayAvailability, error) {
	ctx, span := tracer.Start(ctx, "availability.EventAvailability", trace.WithAttributes(
		attribute.String("meetly.event_id", eventID.String()),
	))
	defer span.End()

	if eventID == uuid.Nil {
		return domain.Event{}, nil, service.Validation("event_id is required")
	}

	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		recordError(span, err)
		return domain.Event{}, nil, err
	}
	span.SetAttributes(attribute.String("meetly.host_id", ev.UserID))

	now := s.engine.Now()
	key := cache.AvailabilityKey{HostID: ev.UserID, EventID: ev.ID, At: now}
	useCache := s.cache != nil
	if useCache {
		ver, err := s.cache.HostVersion(ctx, ev.UserID)
		if err != nil {
			s.log.Warn("availability cache version read failed", slog.Any("err", err), slog.String("host_id", ev.UserID))
			useCache = false
		}
		key.Version = ver
	}
	if useCache {
		days, ok, err := s.cache.Availability(ctx, key)
		if err != nil {
			s.log.Warn("availability cache read failed", slog.Any("err", err), slog.String("event_id", ev.ID.String()))
		} else if ok {
			span.SetAttributes(attribute.Bool("meetly.cache_hit", true), attribute.Int("meetly.days", len(days)))
			return ev, days, nil
		}
	}

	today, end := s.Window(now)
	bookings, err := s.bookings.ListBookings(ctx, ev.UserID, today, end.AddDate(0, 0, 1))
	if err != nil {
		recordError(span, err)
		return domain.Event{}, nil, fmt.Errorf("list bookings: %w", err)
	}

	days, err := s.Offered(ctx, ev, bookings, now)
	if err != nil {
		recordError(span, err)
		return domain.Event{}, nil, err
	}

	span.SetAttributes(
		attribute.Bool("meetly.cache_hit", false),
		attribute.Int("meetly.days", len(days)),
		attribute.Int("meetly.slots", countSlots(days)),
	)

	if useCache {
		if err := s.cache.StoreAvailability(ctx, key, days); err != nil {
			s.log.Warn("availability cache write failed", slog.Any("err", err), slog.String("event_id", ev.ID.String()))
		}
	}
	return ev, days, nil
}

// Offered runs the engine for ev against the given bookings at instant now.
// A host without a schedule offers nothing.
func (s *Service) Offered(ctx context.Context, ev domain.Event, bookings []domain.Booking, now time.Time) ([]domain.DayAvailability, error) {
	sched, err := s.schedules.GetSchedule(ctx, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return []domain.DayAvailability{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}

	today, _ := s.Window(now)
	return s.engine.ComputeAvailabilityAt(now, sched.Windows(), domain.Intervals(bookings), domain.SlotRequest{
		DurationMinutes:  ev.DurationMinutes,
		MinNoticeMinutes: sched.TimeGapMinutes,
		StartDate:        today,
		Days:             s.windowDays,
	})
}

// Schedule returns the host's schedule, or an empty one if none was saved.
func (s *Service) Schedule(ctx context.Context, userID string) (domain.Schedule, error) {
	if userID == "" {
		return domain.Schedule{}, service.Validation("user_id is required")
	}
	sched, err := s.schedules.GetSchedule(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Schedule{UserID: userID, Days: []domain.ScheduleDay{}}, nil
	}
	return sched, err
}

type DayInput struct {
	Day   string
	Start string
	End   string
}

type ScheduleInput struct {
	TimeGapMinutes int
	Days           []DayInput
}

func (s *Service) UpdateSchedule(ctx context.Context, userID string, in ScheduleInput) (domain.Schedule, error) {
	if userID == "" {
		return domain.Schedule{}, service.Validation("user_id is required")
	}
	if in.TimeGapMinutes < 0 {
		return domain.Schedule{}, service.Validation("time_gap must not be negative")
	}
	if in.TimeGapMinutes > MaxTimeGapMinutes {
		return domain.Schedule{}, service.Validation("time_gap must be at most one week")
	}

	sched := domain.Schedule{
		UserID:         userID,
		TimeGapMinutes: in.TimeGapMinutes,
		Days:           make([]domain.ScheduleDay, 0, len(in.Days)),
	}
	seen := make(map[domain.DayOfWeek]struct{}, len(in.Days))
	for _, d := range in.Days {
		day, err := domain.ParseDayOfWeek(d.Day)
		if err != nil {
			return domain.Schedule{}, service.Validationf("invalid day %q", d.Day)
		}
		if _, ok := seen[day]; ok {
			return domain.Schedule{}, service.Validationf("%s listed more than once", day)
		}
		seen[day] = struct{}{}

		start, err := domain.ParseTimeOfDay(d.Start)
		if err != nil {
			return domain.Schedule{}, service.Validationf("%s: invalid start time %q", day, d.Start)
		}
		end, err := domain.ParseTimeOfDay(d.End)
		if err != nil {
			return domain.Schedule{}, service.Validationf("%s: invalid end time %q", day, d.End)
		}
		if start >= end {
			return domain.Schedule{}, service.Validationf("%s: start time must be before end time", day)
		}
		sched.Days = append(sched.Days, domain.ScheduleDay{UserID: userID, Day: day, StartTime: start, EndTime: end})
	}

	out, err := s.schedules.ReplaceSchedule(ctx, sched)
	if err != nil {
		return domain.Schedule{}, err
	}
	s.invalidate(ctx, userID)

	s.log.Info("schedule updated", slog.String("user_id", userID), slog.Int("days", len(out.Days)), slog.Int("time_gap_minutes", out.TimeGapMinutes))
	return out, nil
}

// InvalidateHost drops cached availability after the host's bookings change.
func (s *Service) InvalidateHost(ctx context.Context, hostID string) {
	s.invalidate(ctx, hostID)
}

func (s *Service) invalidate(ctx context.Context, hostID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateHost(ctx, hostID); err != nil {
		s.log.Warn("availability cache invalidation failed", slog.Any("err", err), slog.String("host_id", hostID))
	}
}

func countSlots(days []domain.DayAvailability) int {
	n := 0
	for _, d := range days {
		n += len(d.Slots)
	}
	return n
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
