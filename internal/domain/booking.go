package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Booking is a guest's reservation of one slot of a host's event.
// UserID is the host.
type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	EventID        uuid.UUID `bun:"event_id,notnull,type:uuid"`
	UserID         string    `bun:"user_id,notnull"`
	Name           string    `bun:"name,notnull"`
	Email          string    `bun:"email,notnull"`
	AdditionalInfo string    `bun:"additional_info"`
	StartTime      time.Time `bun:"start_time,notnull"`
	EndTime        time.Time `bun:"end_time,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &b.ID, &b.CreatedAt, &b.UpdatedAt)
}

func (b Booking) Interval() BookedInterval {
	return BookedInterval{Start: b.StartTime, End: b.EndTime}
}

func Intervals(bookings []Booking) []BookedInterval {
	out := make([]BookedInterval, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.Interval())
	}
	return out
}
