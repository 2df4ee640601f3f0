package team

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
)

// ScheduleSource resolves team membership and per-member availability rules.
type ScheduleSource interface {
	ActiveMembers(ctx context.Context, teamID, eventTypeID string) ([]Member, error)
	// MemberSchedule returns the member's default schedule. A missing schedule
	// is reported as found=false, not an error.
	MemberSchedule(ctx context.Context, userID string) (MemberSchedule, bool, error)
}

// BusySource yields committed intervals for one user. Implementations are
// best-effort: bookings storage and each connected calendar provider.
type BusySource interface {
	Name() string
	BusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]interval.Interval, error)
}

// Aggregator computes team slots under one scheduling policy. The member
// fan-out (schedule + busy lookups) runs concurrently; the combine step is
// synchronous and pure.
type Aggregator struct {
	eventTypeID          string
	teamID               string
	schedulingType       SchedulingType
	lastAssignedMemberID string

	schedules ScheduleSource
	busy      []BusySource
	logger    *slog.Logger
}

func NewAggregator(eventTypeID, teamID string, schedulingType SchedulingType, lastAssignedMemberID string, schedules ScheduleSource, busy []BusySource, logger *slog.Logger) (*Aggregator, error) {
	switch schedulingType {
	case RoundRobin, Collective, Managed:
	default:
		return nil, fmt.Errorf("unknown scheduling type %q", schedulingType)
	}
	if schedules == nil {
		return nil, fmt.Errorf("schedule source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		eventTypeID:          eventTypeID,
		teamID:               teamID,
		schedulingType:       schedulingType,
		lastAssignedMemberID: lastAssignedMemberID,
		schedules:            schedules,
		busy:                 busy,
		logger:               logger,
	}, nil
}

func (a *Aggregator) Calculate(ctx context.Context, settings EventSettings, now time.Time) (Result, error) {
	ctx, span := otel.Tracer("team").Start(ctx, "team.calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type_id", a.eventTypeID),
		attribute.String("scheduling_type", string(a.schedulingType)),
	)

	members, err := a.schedules.ActiveMembers(ctx, a.teamID, a.eventTypeID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve team members: %w", err)
	}
	active := members[:0:0]
	for _, m := range members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		// Valid terminal state, not an error.
		return Result{Slots: map[string][]Slot{}, SchedulingType: a.schedulingType}, nil
	}
	sortRotation(active)

	from := now
	to := now.AddDate(0, 0, settings.MaxDaysAhead+1)
	perMember := a.fanOut(ctx, active, settings, now, from, to)

	return a.combine(settings, perMember), nil
}

// fanOut fetches each member's schedule and busy data concurrently and runs
// that member's calculator. One member's failure never blocks the others.
func (a *Aggregator) fanOut(ctx context.Context, members []Member, settings EventSettings, now, from, to time.Time) []memberSlots {
	results := make([]memberSlots, len(members))

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, m Member) {
			defer wg.Done()
			results[i] = a.calculateMember(ctx, m, settings, now, from, to)
		}(i, m)
	}
	wg.Wait()

	return results
}

func (a *Aggregator) calculateMember(ctx context.Context, m Member, settings EventSettings, now, from, to time.Time) memberSlots {
	out := memberSlots{member: m, byTime: map[time.Time]slots.Slot{}}

	sched, found, err := a.schedules.MemberSchedule(ctx, m.UserID)
	if err != nil {
		a.logger.Warn("member schedule lookup failed; member contributes no slots",
			"user_id", m.UserID, "err", err)
		return out
	}
	if !found {
		a.logger.Warn("member has no default schedule; member contributes no slots",
			"user_id", m.UserID)
		return out
	}

	busy := a.collectBusy(ctx, m.UserID, from, to)

	tz := sched.Timezone
	if tz == "" {
		tz = m.Timezone
	}
	calc, err := slots.NewCalculator(slots.Options{
		Duration:          settings.Duration,
		SlotInterval:      settings.SlotInterval,
		BufferBefore:      settings.BufferBefore,
		BufferAfter:       settings.BufferAfter,
		MinimumNotice:     settings.MinimumNotice,
		MaxDaysAhead:      settings.MaxDaysAhead,
		MaxBookingsPerDay: settings.MaxBookingsPerDay,
		HostTimezone:      tz,
		DisplayTimezone:   settings.DisplayTimezone,
		Windows:           sched.Windows,
		Overrides:         sched.Overrides,
		Busy:              busy,
	})
	if err != nil {
		a.logger.Warn("member calculator misconfigured; member contributes no slots",
			"user_id", m.UserID, "err", err)
		return out
	}

	for _, daySlots := range calc.Calculate(now) {
		for _, s := range daySlots {
			out.byTime[s.Start.UTC()] = s
		}
	}
	return out
}

// collectBusy aggregates intervals from every busy source. Each source is
// isolated: a failure logs a warning and contributes nothing.
func (a *Aggregator) collectBusy(ctx context.Context, userID string, from, to time.Time) []interval.Interval {
	lists := make([][]interval.Interval, len(a.busy))

	var wg sync.WaitGroup
	for i, src := range a.busy {
		wg.Add(1)
		go func(i int, src BusySource) {
			defer wg.Done()
			ivs, err := src.BusyIntervals(ctx, userID, from, to)
			if err != nil {
				a.logger.Warn("busy source failed; treating as no busy data",
					"source", src.Name(), "user_id", userID, "err", err)
				return
			}
			lists[i] = ivs
		}(i, src)
	}
	wg.Wait()

	return mergeBusy(lists...)
}
