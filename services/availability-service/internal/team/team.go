package team

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
)

type SchedulingType string

const (
	RoundRobin SchedulingType = "ROUND_ROBIN"
	Collective SchedulingType = "COLLECTIVE"
	Managed    SchedulingType = "MANAGED"
)

// Member is one active host assigned to a team event type.
type Member struct {
	ID       string
	UserID   string
	Name     string
	Image    string
	Timezone string
	Priority int
	IsActive bool
}

// MemberSchedule is a member's default weekly availability plus overrides,
// in that member's own timezone.
type MemberSchedule struct {
	Timezone  string
	Windows   []slots.Window
	Overrides []slots.DateOverride
}

// Slot is a team-level bookable candidate. Round-robin and collective slots
// carry AssignedMember; managed slots carry the free member list instead.
type Slot struct {
	Start            time.Time
	End              time.Time
	AssignedMember   *Member
	AvailableMembers []Member
}

// Result is the full team calculation output. LastAssignedMemberID is the
// proposed next round-robin cursor; committing it is the booking path's job.
type Result struct {
	Slots                map[string][]Slot
	SchedulingType       SchedulingType
	Members              []Member
	LastAssignedMemberID string
}

// EventSettings are the event-type knobs shared by every member's calculator.
type EventSettings struct {
	Duration          time.Duration
	SlotInterval      time.Duration
	BufferBefore      time.Duration
	BufferAfter       time.Duration
	MinimumNotice     time.Duration
	MaxDaysAhead      int
	MaxBookingsPerDay int

	// DisplayTimezone groups the result map's date keys; members compute in
	// their own timezones, so the team result needs one presentation zone.
	DisplayTimezone string
}

const dateKeyLayout = "2006-01-02"

// memberSlots is one member's individual calculation, indexed by start time.
type memberSlots struct {
	member Member
	byTime map[time.Time]slots.Slot
}

func (a *Aggregator) combine(settings EventSettings, perMember []memberSlots) Result {
	res := Result{
		Slots:          make(map[string][]Slot),
		SchedulingType: a.schedulingType,
	}
	for _, ms := range perMember {
		res.Members = append(res.Members, ms.member)
	}

	loc := time.UTC
	if settings.DisplayTimezone != "" {
		if l, err := time.LoadLocation(settings.DisplayTimezone); err == nil {
			loc = l
		}
	}

	times := distinctStartTimes(perMember)

	switch a.schedulingType {
	case Collective:
		res.Slots = a.combineCollective(times, perMember, loc)
	case Managed:
		res.Slots = a.combineManaged(times, perMember, loc)
	default:
		res.Slots, res.LastAssignedMemberID = a.combineRoundRobin(times, perMember, loc)
	}
	return res
}

func (a *Aggregator) combineCollective(times []time.Time, perMember []memberSlots, loc *time.Location) map[string][]Slot {
	out := make(map[string][]Slot)
	for _, t := range times {
		all := true
		var end time.Time
		for _, ms := range perMember {
			s, ok := ms.byTime[t]
			if !ok {
				all = false
				break
			}
			end = s.End
		}
		if !all {
			continue
		}
		members := make([]Member, 0, len(perMember))
		for _, ms := range perMember {
			members = append(members, ms.member)
		}
		key := t.In(loc).Format(dateKeyLayout)
		out[key] = append(out[key], Slot{Start: t, End: end, AvailableMembers: members})
	}
	return out
}

func (a *Aggregator) combineManaged(times []time.Time, perMember []memberSlots, loc *time.Location) map[string][]Slot {
	out := make(map[string][]Slot)
	for _, t := range times {
		var end time.Time
		var free []Member
		for _, ms := range perMember {
			if s, ok := ms.byTime[t]; ok {
				free = append(free, ms.member)
				end = s.End
			}
		}
		if len(free) == 0 {
			continue
		}
		key := t.In(loc).Format(dateKeyLayout)
		out[key] = append(out[key], Slot{Start: t, End: end, AvailableMembers: free})
	}
	return out
}

// combineRoundRobin assigns each distinct slot time to the next member in
// rotation order who is free at that time. Every member checked consumes a
// rotation step, so members skipped as busy still use up their turn and
// long-run fairness holds. The returned cursor is the last member actually
// assigned.
func (a *Aggregator) combineRoundRobin(times []time.Time, perMember []memberSlots, loc *time.Location) (map[string][]Slot, string) {
	out := make(map[string][]Slot)
	if len(perMember) == 0 {
		return out, ""
	}

	ptr := 0
	if a.lastAssignedMemberID != "" {
		for i, ms := range perMember {
			if ms.member.ID == a.lastAssignedMemberID {
				ptr = (i + 1) % len(perMember)
				break
			}
		}
	}

	lastAssigned := ""
	for _, t := range times {
		for i := 0; i < len(perMember); i++ {
			idx := (ptr + i) % len(perMember)
			ms := perMember[idx]
			s, ok := ms.byTime[t]
			if !ok {
				continue
			}
			assigned := ms.member
			ptr = (idx + 1) % len(perMember)
			lastAssigned = assigned.ID
			key := t.In(loc).Format(dateKeyLayout)
			out[key] = append(out[key], Slot{Start: t, End: s.End, AssignedMember: &assigned})
			break
		}
	}
	return out, lastAssigned
}

func distinctStartTimes(perMember []memberSlots) []time.Time {
	seen := make(map[time.Time]struct{})
	var times []time.Time
	for _, ms := range perMember {
		for t := range ms.byTime {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			times = append(times, t)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// sortRotation orders members for rotation: priority first, then ID for a
// stable tie-break.
func sortRotation(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Priority != members[j].Priority {
			return members[i].Priority < members[j].Priority
		}
		return members[i].ID < members[j].ID
	})
}

// mergeBusy folds per-source busy lists into one normalized list.
func mergeBusy(lists ...[]interval.Interval) []interval.Interval {
	var all []interval.Interval
	for _, l := range lists {
		all = append(all, l...)
	}
	return interval.Merge(all)
}
