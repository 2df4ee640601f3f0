package team

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
)

// Tuesday 2026-03-10.
var tuesday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type fakeScheduleSource struct {
	members    []Member
	schedules  map[string]MemberSchedule
	membersErr error
}

func (f *fakeScheduleSource) ActiveMembers(_ context.Context, _, _ string) ([]Member, error) {
	return f.members, f.membersErr
}

func (f *fakeScheduleSource) MemberSchedule(_ context.Context, userID string) (MemberSchedule, bool, error) {
	s, ok := f.schedules[userID]
	return s, ok, nil
}

type fakeBusySource struct {
	name string
	busy map[string][]interval.Interval
	err  error
}

func (f *fakeBusySource) Name() string { return f.name }

func (f *fakeBusySource) BusyIntervals(_ context.Context, userID string, _, _ time.Time) ([]interval.Interval, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.busy[userID], nil
}

func tuesdayMorning(start, end string) MemberSchedule {
	return MemberSchedule{
		Timezone: "UTC",
		Windows:  []slots.Window{{Weekday: time.Tuesday, Start: start, End: end}},
	}
}

func settings() EventSettings {
	return EventSettings{
		Duration:     time.Hour,
		MaxDaysAhead: 1,
	}
}

func member(id string, priority int) Member {
	return Member{ID: id, UserID: "user-" + id, Name: "Member " + id, Timezone: "UTC", Priority: priority, IsActive: true}
}

func newAggregator(t *testing.T, st SchedulingType, last string, src ScheduleSource, busy []BusySource) *Aggregator {
	t.Helper()
	a, err := NewAggregator("evt-1", "team-1", st, last, src, busy, slog.Default())
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a
}

func TestCalculate_Collective_ExactIntersection(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "11:00"), // free 09:00 and 10:00
			"user-b": tuesdayMorning("09:00", "10:00"), // free 09:00 only
		},
	}
	a := newAggregator(t, Collective, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 1 {
		t.Fatalf("expected exactly the 09:00 slot, got %d slots", len(day))
	}
	if !day[0].Start.Equal(tuesday.Add(9 * time.Hour)) {
		t.Fatalf("expected 09:00 start, got %s", day[0].Start)
	}
	if len(day[0].AvailableMembers) != 2 {
		t.Fatalf("collective slot must carry the full team, got %d members", len(day[0].AvailableMembers))
	}
}

func TestCalculate_Managed_UnionWithFreeMembers(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "11:00"),
			"user-b": tuesdayMorning("10:00", "12:00"),
		},
	}
	a := newAggregator(t, Managed, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 3 {
		t.Fatalf("expected union of 09:00, 10:00, 11:00, got %d slots", len(day))
	}

	byStart := map[int]int{}
	for _, s := range day {
		byStart[s.Start.Hour()] = len(s.AvailableMembers)
	}
	if byStart[9] != 1 || byStart[10] != 2 || byStart[11] != 1 {
		t.Fatalf("unexpected free-member counts: %v", byStart)
	}
}

func TestCalculate_RoundRobin_FairnessAndCursor(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("c", 3), member("a", 1), member("b", 2)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "15:00"),
			"user-b": tuesdayMorning("09:00", "15:00"),
			"user-c": tuesdayMorning("09:00", "15:00"),
		},
	}
	a := newAggregator(t, RoundRobin, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 6 {
		t.Fatalf("expected 6 hourly slots, got %d", len(day))
	}

	counts := map[string]int{}
	for _, s := range day {
		if s.AssignedMember == nil {
			t.Fatalf("round-robin slot %s has no assignee", s.Start)
		}
		counts[s.AssignedMember.ID]++
	}
	for id, n := range counts {
		for other, m := range counts {
			if n-m > 1 || m-n > 1 {
				t.Fatalf("unfair distribution: %s=%d vs %s=%d", id, n, other, m)
			}
		}
	}

	// Rotation is priority-ordered, cursor unset: first slot goes to "a".
	if day[0].AssignedMember.ID != "a" {
		t.Fatalf("first assignment should go to highest-priority member, got %s", day[0].AssignedMember.ID)
	}
	// 6 slots over a,b,c end on c; cursor equals the last actual assignee.
	if res.LastAssignedMemberID != day[len(day)-1].AssignedMember.ID {
		t.Fatalf("cursor %q does not match last assignee %q",
			res.LastAssignedMemberID, day[len(day)-1].AssignedMember.ID)
	}
	if res.LastAssignedMemberID != "c" {
		t.Fatalf("expected cursor c after 6 assignments, got %q", res.LastAssignedMemberID)
	}
}

func TestCalculate_RoundRobin_ResumesAfterCursor(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2), member("c", 3)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "10:00"),
			"user-b": tuesdayMorning("09:00", "10:00"),
			"user-c": tuesdayMorning("09:00", "10:00"),
		},
	}
	a := newAggregator(t, RoundRobin, "a", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 1 {
		t.Fatalf("expected a single slot, got %d", len(day))
	}
	if day[0].AssignedMember.ID != "b" {
		t.Fatalf("rotation should resume after cursor a, got %s", day[0].AssignedMember.ID)
	}
}

func TestCalculate_RoundRobin_SkipConsumesRotationStep(t *testing.T) {
	busyA := &fakeBusySource{
		name: "bookings",
		busy: map[string][]interval.Interval{
			// a is busy for the 09:00 hour.
			"user-a": {{Start: tuesday.Add(9 * time.Hour), End: tuesday.Add(10 * time.Hour)}},
		},
	}
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2), member("c", 3)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "12:00"),
			"user-b": tuesdayMorning("09:00", "12:00"),
			"user-c": tuesdayMorning("09:00", "12:00"),
		},
	}
	a := newAggregator(t, RoundRobin, "", src, []BusySource{busyA})

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 3 {
		t.Fatalf("expected 3 hourly slots, got %d", len(day))
	}
	// 09:00: a is busy, so a consumes a step and b is assigned. 10:00 then
	// goes to c, 11:00 wraps to a.
	want := []string{"b", "c", "a"}
	for i, s := range day {
		if s.AssignedMember.ID != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], s.AssignedMember.ID)
		}
	}
}

func TestCalculate_ZeroMembersIsEmptyResult(t *testing.T) {
	a := newAggregator(t, RoundRobin, "", &fakeScheduleSource{}, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("zero members must not be an error: %v", err)
	}
	if len(res.Slots) != 0 || len(res.Members) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestCalculate_InactiveMembersExcluded(t *testing.T) {
	inactive := member("b", 2)
	inactive.IsActive = false
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), inactive},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "10:00"),
			"user-b": tuesdayMorning("09:00", "10:00"),
		},
	}
	a := newAggregator(t, Managed, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(res.Members) != 1 {
		t.Fatalf("inactive member should be excluded, got %d members", len(res.Members))
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 1 || len(day[0].AvailableMembers) != 1 {
		t.Fatalf("inactive member leaked into slots: %+v", day)
	}
}

func TestCalculate_FailingBusySourceIsSwallowed(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "10:00"),
		},
	}
	busy := []BusySource{
		&fakeBusySource{name: "google", err: errors.New("provider unreachable")},
	}
	a := newAggregator(t, Managed, "", src, busy)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("provider failure must not fail the calculation: %v", err)
	}
	if len(res.Slots["2026-03-10"]) != 1 {
		t.Fatalf("expected the slot despite provider failure, got %+v", res.Slots)
	}
}

func TestCalculate_MemberWithoutScheduleContributesNothing(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2)},
		schedules: map[string]MemberSchedule{
			"user-a": tuesdayMorning("09:00", "10:00"),
			// user-b has no schedule at all.
		},
	}
	a := newAggregator(t, Managed, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("missing schedule must not fail the team: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 1 {
		t.Fatalf("expected member a's slot, got %d", len(day))
	}
	if len(day[0].AvailableMembers) != 1 || day[0].AvailableMembers[0].ID != "a" {
		t.Fatalf("only member a should be free: %+v", day[0].AvailableMembers)
	}
}

func TestCalculate_MembersUseOwnTimezones(t *testing.T) {
	src := &fakeScheduleSource{
		members: []Member{member("a", 1), member("b", 2)},
		schedules: map[string]MemberSchedule{
			// On 2026-03-10 New York is EDT (UTC-4) and Berlin is still CET
			// (UTC+1): 09:00 EDT == 14:00 CET == 13:00 UTC.
			"user-a": {
				Timezone: "America/New_York",
				Windows:  []slots.Window{{Weekday: time.Tuesday, Start: "09:00", End: "10:00"}},
			},
			"user-b": {
				Timezone: "Europe/Berlin",
				Windows:  []slots.Window{{Weekday: time.Tuesday, Start: "14:00", End: "15:00"}},
			},
		},
	}
	a := newAggregator(t, Collective, "", src, nil)

	res, err := a.Calculate(context.Background(), settings(), tuesday)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	day := res.Slots["2026-03-10"]
	if len(day) != 1 {
		t.Fatalf("expected one overlapping hour, got %+v", res.Slots)
	}
	if !day[0].Start.Equal(tuesday.Add(13 * time.Hour)) {
		t.Fatalf("expected 13:00 UTC intersection, got %s", day[0].Start.UTC())
	}
}

func TestCalculate_MemberResolutionErrorRaises(t *testing.T) {
	src := &fakeScheduleSource{membersErr: errors.New("db down")}
	a := newAggregator(t, Collective, "", src, nil)

	if _, err := a.Calculate(context.Background(), settings(), tuesday); err == nil {
		t.Fatalf("member resolution failure should surface to the caller")
	}
}

func TestNewAggregator_Validation(t *testing.T) {
	if _, err := NewAggregator("e", "t", "WEIGHTED", "", &fakeScheduleSource{}, nil, slog.Default()); err == nil {
		t.Fatalf("expected error for unknown scheduling type")
	}
	if _, err := NewAggregator("e", "t", RoundRobin, "", nil, nil, slog.Default()); err == nil {
		t.Fatalf("expected error for nil schedule source")
	}
}
