package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"availability-service/internal/apperr"
	"availability-service/internal/schedule"
	"availability-service/internal/timerange"
)

type ScheduleRepository struct {
	db DB
}

func NewScheduleRepository(db DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// GetSchedule loads a user's schedule with rules in the order they were
// saved. It returns nil, nil when the user has no schedule.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, userID string) (*schedule.Schedule, error) {
	const op = "storage.GetSchedule"
	// single statement so the header and rules come from one snapshot
	q := `SELECT s.user_id, s.timezone, s.updated_at, a.day_of_week, a.start_time, a.end_time
	      FROM schedules s
	      LEFT JOIN schedule_availabilities a ON a.user_id = s.user_id
	      WHERE s.user_id=$1
	      ORDER BY a.position`
	rows, err := r.db.Query(ctx, q, userID)
	if err != nil {
		return nil, retrieval(op, err)
	}
	defer rows.Close()

	var s *schedule.Schedule
	for rows.Next() {
		var (
			uid, tz         string
			updatedAt       time.Time
			day, start, end *string
		)
		if err := rows.Scan(&uid, &tz, &updatedAt, &day, &start, &end); err != nil {
			return nil, retrieval(op, err)
		}
		if s == nil {
			s = &schedule.Schedule{UserID: uid, Timezone: tz, UpdatedAt: updatedAt, Rules: []schedule.Rule{}}
		}
		if day == nil {
			continue
		}
		rule, err := scanRule(*day, *start, *end)
		if err != nil {
			return nil, err
		}
		s.Rules = append(s.Rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, retrieval(op, err)
	}
	return s, nil
}

func scanRule(day, start, end string) (schedule.Rule, error) {
	st, err := timerange.ParseTimeOfDay(start)
	if err != nil {
		return schedule.Rule{}, &apperr.Error{Kind: apperr.KindInvariant, Op: "storage.scanRule", Message: "stored start_time is malformed", Err: err}
	}
	et, err := timerange.ParseTimeOfDay(end)
	if err != nil {
		return schedule.Rule{}, &apperr.Error{Kind: apperr.KindInvariant, Op: "storage.scanRule", Message: "stored end_time is malformed", Err: err}
	}
	return schedule.Rule{DayOfWeek: schedule.Weekday(day), StartTime: st, EndTime: et}, nil
}

// ReplaceAll validates and stores a schedule, replacing every existing rule
// of the user in one transaction. Readers see either the old rule set or the
// new one.
func (r *ScheduleRepository) ReplaceAll(ctx context.Context, userID, timezone string, rules []schedule.Rule) (*schedule.Schedule, error) {
	const op = "storage.ReplaceAll"
	s, err := schedule.New(userID, timezone, rules)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, retrieval(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	upsert := `INSERT INTO schedules (user_id, timezone) VALUES ($1, $2)
	           ON CONFLICT (user_id) DO UPDATE SET timezone=EXCLUDED.timezone, updated_at=now()
	           RETURNING updated_at`
	if err := tx.QueryRow(ctx, upsert, userID, s.Timezone).Scan(&s.UpdatedAt); err != nil {
		return nil, retrieval(op, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedule_availabilities WHERE user_id=$1`, userID); err != nil {
		return nil, retrieval(op, err)
	}

	if len(s.Rules) > 0 {
		rows := make([][]any, len(s.Rules))
		for i, rule := range s.Rules {
			rows[i] = []any{userID, i, string(rule.DayOfWeek), rule.StartTime.String(), rule.EndTime.String()}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"schedule_availabilities"},
			[]string{"user_id", "position", "day_of_week", "start_time", "end_time"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return nil, retrieval(op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, retrieval(op, err)
	}
	return s, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
