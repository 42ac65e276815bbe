package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"meetly/backend/internal/domain"
)

type EventRepo struct {
	db *bun.DB
}

func NewEventRepo(db *bun.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	m := domain.Event{
		ID:              ev.ID,
		UserID:          ev.UserID,
		Title:           ev.Title,
		Description:     ev.Description,
		DurationMinutes: ev.DurationMinutes,
		IsPrivate:       ev.IsPrivate,
	}
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Event{}, err
	}
	return m, nil
}

func (r *EventRepo) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	var ev domain.Event
	err := r.db.NewSelect().
		Model(&ev).
		Relation("User").
		Where("e.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Event{}, notFound(err)
	}
	return ev, nil
}

func (r *EventRepo) ListEvents(ctx context.Context, userID string) ([]domain.Event, error) {
	var rows []domain.Event
	err := r.db.NewSelect().
		Model(&rows).
		ColumnExpr("e.*").
		ColumnExpr("(SELECT count(*) FROM bookings AS bk WHERE bk.event_id = e.id) AS booking_count").
		Where("e.user_id = ?", userID).
		OrderExpr("e.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepo) DeleteEvent(ctx context.Context, userID string, eventID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Event)(nil)).
		Where("user_id = ?", userID).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}
