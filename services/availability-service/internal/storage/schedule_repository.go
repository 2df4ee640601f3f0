package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/meetsync/libs/db"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/team"
)

// ScheduleRepository reads team membership and per-member availability rules.
// It satisfies team.ScheduleSource.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) ActiveMembers(ctx context.Context, teamID, eventTypeID string) ([]team.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id::text, m.user_id::text, u.name, COALESCE(u.avatar_url, ''), u.timezone, m.priority
		FROM team_members m
		JOIN users u ON u.id = m.user_id
		JOIN event_type_hosts h ON h.member_id = m.id
		WHERE m.team_id = $1
			AND h.event_type_id = $2
			AND m.is_active
			AND h.is_active
		ORDER BY m.priority ASC, m.id ASC
	`, teamID, eventTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []team.Member
	for rows.Next() {
		m := team.Member{IsActive: true}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Image, &m.Timezone, &m.Priority); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return members, nil
}

func (r *ScheduleRepository) MemberSchedule(ctx context.Context, userID string) (team.MemberSchedule, bool, error) {
	var scheduleID string
	var timezone string
	err := r.pool.QueryRow(ctx, `
		SELECT s.id::text, s.timezone
		FROM schedules s
		WHERE s.user_id = $1 AND s.is_default
	`, userID).Scan(&scheduleID, &timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		// No default schedule is a soft miss: the member simply contributes
		// no slots.
		return team.MemberSchedule{}, false, nil
	}
	if err != nil {
		return team.MemberSchedule{}, false, err
	}

	sched := team.MemberSchedule{Timezone: timezone}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM schedule_windows
		WHERE schedule_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, scheduleID)
	if err != nil {
		return team.MemberSchedule{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, startMin, endMin int
		if err := rows.Scan(&weekday, &startMin, &endMin); err != nil {
			return team.MemberSchedule{}, false, err
		}
		sched.Windows = append(sched.Windows, slots.Window{
			Weekday: time.Weekday(weekday),
			Start:   minuteClock(startMin),
			End:     minuteClock(endMin),
		})
	}
	if rows.Err() != nil {
		return team.MemberSchedule{}, false, rows.Err()
	}

	overrides, err := r.listOverrides(ctx, scheduleID)
	if err != nil {
		return team.MemberSchedule{}, false, err
	}
	sched.Overrides = overrides
	return sched, true, nil
}

func (r *ScheduleRepository) listOverrides(ctx context.Context, scheduleID string) ([]slots.DateOverride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), is_working,
			COALESCE(start_minute, 0), COALESCE(end_minute, 0)
		FROM schedule_date_overrides
		WHERE schedule_id = $1
		ORDER BY date ASC
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []slots.DateOverride
	for rows.Next() {
		var ov slots.DateOverride
		var startMin, endMin int
		if err := rows.Scan(&ov.Date, &ov.IsWorking, &startMin, &endMin); err != nil {
			return nil, err
		}
		if ov.IsWorking {
			ov.Start = minuteClock(startMin)
			ov.End = minuteClock(endMin)
		}
		out = append(out, ov)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// minuteClock renders minutes-from-midnight as the HH:MM strings the
// calculator consumes. Rows may carry 1440 for a window ending at midnight;
// the clock grammar tops out at 23:59, so clamp rather than hand the
// calculator a value it rejects.
func minuteClock(min int) string {
	if min >= 24*60 {
		return "23:59"
	}
	if min < 0 {
		min = 0
	}
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}
