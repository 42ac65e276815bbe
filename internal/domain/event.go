package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	MaxEventTitleLen       = 100
	MaxEventDescriptionLen = 500
	MaxEventDuration       = 24 * 60
)

// Event is a bookable meeting type published by a host.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID              uuid.UUID `bun:"id,pk,type:uuid"`
	UserID          string    `bun:"user_id,notnull"`
	Title           string    `bun:"title,notnull"`
	Description     string    `bun:"description"`
	DurationMinutes int       `bun:"duration_minutes,notnull"`
	IsPrivate       bool      `bun:"is_private,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,notnull"`

	User         *User `bun:"rel:belongs-to,join:user_id=id"`
	BookingCount int   `bun:"booking_count,scanonly"`
}

func (e *Event) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
