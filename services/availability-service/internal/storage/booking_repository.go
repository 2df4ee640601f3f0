package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/meetsync/libs/db"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/team"
)

// BookingRepository reads confirmed and pending bookings as busy data. It
// satisfies team.BusySource.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// EventType is the scheduling configuration of one bookable event.
type EventType struct {
	ID                string
	TeamID            string
	SchedulingType    string
	DurationMins      int
	SlotIntervalMins  int
	BufferBeforeMins  int
	BufferAfterMins   int
	MinimumNoticeMins int
	MaxDaysAhead      int
	MaxBookingsPerDay int
	Timezone          string
}

func (r *BookingRepository) Name() string { return "bookings" }

// BusyIntervals returns booking windows where the user is either the host or
// an assigned team member, clipped to [from, to).
func (r *BookingRepository) BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]interval.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.start_time, b.end_time
		FROM bookings b
		WHERE (b.host_user_id = $1 OR b.assigned_user_id = $1)
			AND b.status IN ('confirmed', 'pending')
			AND b.start_time < $3
			AND b.end_time > $2
		ORDER BY b.start_time ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interval.Interval
	for rows.Next() {
		var iv interval.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// CountBookingsPerDay buckets the user's bookings by calendar day in the
// given timezone, for enforcement of per-day booking caps.
func (r *BookingRepository) CountBookingsPerDay(ctx context.Context, userID string, from, to time.Time, timezone string) (map[string]int, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}

	ivs, err := r.BusyIntervals(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, iv := range ivs {
		counts[iv.Start.In(loc).Format("2006-01-02")]++
	}
	return counts, nil
}

// GetEventType loads an event type's scheduling knobs. A missing id maps to
// found=false.
func (r *BookingRepository) GetEventType(ctx context.Context, eventTypeID string) (EventType, bool, error) {
	var et EventType
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(team_id::text, ''), COALESCE(scheduling_type, ''),
			duration_minutes, COALESCE(slot_interval_minutes, 0),
			COALESCE(buffer_before_minutes, 0), COALESCE(buffer_after_minutes, 0),
			COALESCE(minimum_notice_minutes, 0), max_days_ahead,
			COALESCE(max_bookings_per_day, 0), COALESCE(timezone, 'UTC')
		FROM event_types
		WHERE id = $1
	`, eventTypeID).Scan(
		&et.ID,
		&et.TeamID,
		&et.SchedulingType,
		&et.DurationMins,
		&et.SlotIntervalMins,
		&et.BufferBeforeMins,
		&et.BufferAfterMins,
		&et.MinimumNoticeMins,
		&et.MaxDaysAhead,
		&et.MaxBookingsPerDay,
		&et.Timezone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return EventType{}, false, nil
	}
	if err != nil {
		return EventType{}, false, err
	}
	return et, true, nil
}

// Settings converts the stored minute columns into the aggregator's settings.
func (et EventType) Settings(displayTimezone string) team.EventSettings {
	if displayTimezone == "" {
		displayTimezone = et.Timezone
	}
	return team.EventSettings{
		Duration:          time.Duration(et.DurationMins) * time.Minute,
		SlotInterval:      time.Duration(et.SlotIntervalMins) * time.Minute,
		BufferBefore:      time.Duration(et.BufferBeforeMins) * time.Minute,
		BufferAfter:       time.Duration(et.BufferAfterMins) * time.Minute,
		MinimumNotice:     time.Duration(et.MinimumNoticeMins) * time.Minute,
		MaxDaysAhead:      et.MaxDaysAhead,
		MaxBookingsPerDay: et.MaxBookingsPerDay,
		DisplayTimezone:   displayTimezone,
	}
}
