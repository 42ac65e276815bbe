package postgres

import (
	"context"
	"sort"

	"github.com/uptrace/bun"

	"meetly/backend/internal/domain"
	"meetly/backend/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, userID string) (domain.Schedule, error) {
	var s domain.Schedule
	err := r.db.NewSelect().
		Model(&s).
		Relation("Days").
		Where("s.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Schedule{}, notFound(err)
	}
	sortScheduleDays(s.Days)
	return s, nil
}

func (r *ScheduleRepo) ReplaceSchedule(ctx context.Context, schedule domain.Schedule) (domain.Schedule, error) {
	out := domain.Schedule{
		UserID:         schedule.UserID,
		TimeGapMinutes: schedule.TimeGapMinutes,
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&out).
			On("CONFLICT (user_id) DO UPDATE").
			Set("time_gap_minutes = EXCLUDED.time_gap_minutes").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return err
		}

		_, err = tx.NewDelete().
			Model((*domain.ScheduleDay)(nil)).
			Where("user_id = ?", schedule.UserID).
			Exec(ctx)
		if err != nil {
			return err
		}

		if len(schedule.Days) == 0 {
			return nil
		}
		days := make([]domain.ScheduleDay, 0, len(schedule.Days))
		for _, d := range schedule.Days {
			days = append(days, domain.ScheduleDay{
				UserID:    schedule.UserID,
				Day:       d.Day,
				StartTime: d.StartTime,
				EndTime:   d.EndTime,
			})
		}
		if _, err := tx.NewInsert().Model(&days).Exec(ctx); err != nil {
			if code, _ := pgErrorCode(err); code == codeUniqueViolation {
				return store.ErrConflict
			}
			return err
		}
		out.Days = days
		return nil
	})
	if err != nil {
		return domain.Schedule{}, err
	}

	sortScheduleDays(out.Days)
	return out, nil
}

// sortScheduleDays orders days Monday first.
func sortScheduleDays(days []domain.ScheduleDay) {
	rank := func(d domain.DayOfWeek) int {
		wd, ok := d.Weekday()
		if !ok {
			return 7
		}
		return (int(wd) + 6) % 7
	}
	sort.SliceStable(days, func(i, j int) bool {
		return rank(days[i].Day) < rank(days[j].Day)
	})
}
