package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Schedule is a host's weekly availability plus the minimum notice a guest
// must give before a same-day slot.
type Schedule struct {
	bun.BaseModel `bun:"table:schedules,alias:s"`

	UserID         string    `bun:"user_id,pk"`
	TimeGapMinutes int       `bun:"time_gap_minutes,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`

	Days []ScheduleDay `bun:"rel:has-many,join:user_id=user_id"`
}

func (s *Schedule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, nil, &s.CreatedAt, &s.UpdatedAt)
}

type ScheduleDay struct {
	bun.BaseModel `bun:"table:schedule_days,alias:sd"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	UserID    string    `bun:"user_id,notnull"`
	Day       DayOfWeek `bun:"day,notnull"`
	StartTime TimeOfDay `bun:"start_time,notnull,type:text"`
	EndTime   TimeOfDay `bun:"end_time,notnull,type:text"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (d *ScheduleDay) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// Windows converts the stored days to engine windows. Rows with an unknown
// day key are skipped.
func (s Schedule) Windows() []WeeklyWindow {
	out := make([]WeeklyWindow, 0, len(s.Days))
	for _, d := range s.Days {
		wd, ok := d.Day.Weekday()
		if !ok {
			continue
		}
		out = append(out, WeeklyWindow{Day: wd, Start: d.StartTime, End: d.EndTime})
	}
	return out
}
