package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/store"
)

const bookingsNoOverlap = "bookings_no_overlap"

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *BookingRepo) ListBookings(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	return listBookings(ctx, r.db, userID, windowStart, windowEnd)
}

func (r *BookingRepo) ListMeetings(ctx context.Context, filter store.MeetingFilter) ([]domain.Booking, error) {
	var rows []domain.Booking
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Event").
		Relation("Event.User").
		Where("b.user_id = ?", filter.UserID)
	if filter.Past {
		q = q.Where("b.start_time < ?", filter.Now).OrderExpr("b.start_time DESC")
	} else {
		q = q.Where("b.start_time >= ?", filter.Now).OrderExpr("b.start_time ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.db, bookingID)
}

func (r *BookingRepo) InHostTransaction(ctx context.Context, userID string, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockHostCalendar(ctx, tx, userID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockHostCalendar(ctx context.Context, tx bun.Tx, userID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Exec(ctx)
	return err
}

func listBookings(ctx context.Context, db bun.IDB, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	var rows []domain.Booking
	err := db.NewSelect().
		Model(&rows).
		Where("b.user_id = ?", userID).
		Where("b.start_time < ?", windowEnd).
		Where("b.end_time > ?", windowStart).
		OrderExpr("b.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func getBooking(ctx context.Context, db bun.IDB, bookingID uuid.UUID) (domain.Booking, error) {
	var b domain.Booking
	err := db.NewSelect().
		Model(&b).
		Relation("Event").
		Relation("Event.User").
		Where("b.id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Booking{}, notFound(err)
	}
	return b, nil
}

func (r bookingTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.tx, bookingID)
}

func (r bookingTx) ListBookings(ctx context.Context, userID string, windowStart, windowEnd time.Time) ([]domain.Booking, error) {
	return listBookings(ctx, r.tx, userID, windowStart, windowEnd)
}

func (r bookingTx) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	m := domain.Booking{
		ID:             b.ID,
		EventID:        b.EventID,
		UserID:         b.UserID,
		Name:           b.Name,
		Email:          b.Email,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
	}

	// Savepoint so a rejected insert leaves the surrounding transaction usable.
	err := r.tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
		_, err := sp.NewInsert().Model(&m).Exec(ctx)
		return err
	})
	if err == nil {
		return m, nil
	}

	code, constraint := pgErrorCode(err)
	switch {
	case code == codeExclusionViolation && constraint == bookingsNoOverlap:
		return domain.Booking{}, store.ErrConflict
	case code == codeForeignKeyViolation:
		return domain.Booking{}, store.ErrNotFound
	case code == codeUniqueViolation:
		var existing domain.Booking
		selectErr := r.tx.NewSelect().
			Model(&existing).
			Where("b.id = ?", m.ID).
			Limit(1).
			Scan(ctx)
		if selectErr != nil {
			return domain.Booking{}, err
		}
		if !sameBooking(existing, b) {
			return domain.Booking{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	return domain.Booking{}, err
}

func sameBooking(a, b domain.Booking) bool {
	return a.EventID == b.EventID &&
		a.UserID == b.UserID &&
		a.Name == b.Name &&
		a.Email == b.Email &&
		a.AdditionalInfo == b.AdditionalInfo &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func (r bookingTx) DeleteBooking(ctx context.Context, userID string, bookingID uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Booking)(nil)).
		Where("user_id = ?", userID).
		Where("id = ?", bookingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
