// Package events publishes meeting lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeMeetingBooked    = "meetly.meeting.booked.v1"
	TypeMeetingCancelled = "meetly.meeting.cancelled.v1"
)

type MeetingEvent struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`

	BookingID  uuid.UUID `json:"booking_id"`
	EventID    uuid.UUID `json:"meeting_type_id"`
	HostID     string    `json:"host_id"`
	GuestName  string    `json:"guest_name"`
	GuestEmail string    `json:"guest_email"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type Publisher interface {
	Publish(ctx context.Context, ev MeetingEvent) error
	Close() error
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, MeetingEvent) error { return nil }
func (Nop) Close() error                                { return nil }
