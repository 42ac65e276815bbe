package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"meetly/backend/internal/domain"
)

type UserRepository interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	UpsertUser(ctx context.Context, user domain.User) (domain.User, error)
}

type ScheduleRepository interface {
	// GetSchedule returns ErrNotFound when the host never saved one.
	GetSchedule(ctx context.Context, userID string) (domain.Schedule, error)
	// ReplaceSchedule overwrites the gap and every day row in one transaction.
	ReplaceSchedule(ctx context.Context, schedule domain.Schedule) (domain.Schedule, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	// GetEvent loads the event with its host.
	GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
	// ListEvents returns the host's events newest first with BookingCount set.
	ListEvents(ctx context.Context, userID string) ([]domain.Event, error)
	DeleteEvent(ctx context.Context, userID string, eventID uuid.UUID) error
}

type MeetingFilter struct {
	UserID string
	Now    time.Time
	// Past selects meetings that started before Now, newest first.
	// Otherwise meetings starting at or after Now, soonest first.
	Past  bool
	Limit int
}

type BookingRepository interface {
	ListBookings(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error)
	ListMeetings(ctx context.Context, filter MeetingFilter) ([]domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)

	// InHostTransaction runs fn with the host's bookings locked against
	// concurrent writers.
	InHostTransaction(ctx context.Context, userID string, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
	ListBookings(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error)
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)
	DeleteBooking(ctx context.Context, userID string, bookingID uuid.UUID) error
}
