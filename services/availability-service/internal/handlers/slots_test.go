package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/team"
)

var tuesday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

type fakeEventTypes struct {
	et    storage.EventType
	found bool
}

func (f *fakeEventTypes) GetEventType(context.Context, string) (storage.EventType, bool, error) {
	return f.et, f.found, nil
}

type fakeSchedules struct {
	members   []team.Member
	schedules map[string]team.MemberSchedule
}

func (f *fakeSchedules) ActiveMembers(context.Context, string, string) ([]team.Member, error) {
	return f.members, nil
}

func (f *fakeSchedules) MemberSchedule(_ context.Context, userID string) (team.MemberSchedule, bool, error) {
	s, ok := f.schedules[userID]
	return s, ok, nil
}

type fakeBookings struct {
	busy   map[string][]interval.Interval
	counts map[string]int
}

func (f *fakeBookings) Name() string { return "bookings" }

func (f *fakeBookings) BusyIntervals(_ context.Context, userID string, _, _ time.Time) ([]interval.Interval, error) {
	return f.busy[userID], nil
}

func (f *fakeBookings) CountBookingsPerDay(context.Context, string, time.Time, time.Time, string) (map[string]int, error) {
	return f.counts, nil
}

type fakeCursor struct{ last string }

func (f *fakeCursor) Last(context.Context, string) (string, error) { return f.last, nil }

func testEventType(teamID, schedulingType string) storage.EventType {
	return storage.EventType{
		ID:             "evt-1",
		TeamID:         teamID,
		SchedulingType: schedulingType,
		DurationMins:   60,
		MaxDaysAhead:   1,
		Timezone:       "UTC",
	}
}

func utcSchedule(start, end string) team.MemberSchedule {
	return team.MemberSchedule{
		Timezone: "UTC",
		Windows:  []slots.Window{{Weekday: time.Tuesday, Start: start, End: end}},
	}
}

func newTestHandler(et *fakeEventTypes, sch *fakeSchedules, bk *fakeBookings, cur CursorSource) *SlotsHandler {
	h := NewSlotsHandler(et, sch, bk, nil, cur, slog.Default())
	h.now = func() time.Time { return tuesday }
	return h
}

func TestHostSlots(t *testing.T) {
	h := newTestHandler(
		&fakeEventTypes{et: testEventType("", ""), found: true},
		&fakeSchedules{schedules: map[string]team.MemberSchedule{
			"user-1": utcSchedule("09:00", "12:00"),
		}},
		&fakeBookings{busy: map[string][]interval.Interval{
			"user-1": {{Start: tuesday.Add(10 * time.Hour), End: tuesday.Add(11 * time.Hour)}},
		}},
		nil,
	)

	rec := httptest.NewRecorder()
	h.HostSlots(rec, httptest.NewRequest("GET", "/api/v1/public/slots?event_type_id=evt-1&user_id=user-1", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp hostSlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	day := resp.Days["2026-03-10"]
	// 09:00 and 11:00 survive; 10:00 is booked.
	if len(day) != 2 {
		t.Fatalf("expected 2 slots, got %d: %+v", len(day), resp.Days)
	}
	if day[0].Start != "2026-03-10T09:00:00Z" {
		t.Fatalf("unexpected first slot %q", day[0].Start)
	}
	if resp.NextAvailable == "" {
		t.Fatalf("expected next_available to be populated")
	}
}

func TestHostSlots_NoScheduleIsEmptyNotError(t *testing.T) {
	h := newTestHandler(
		&fakeEventTypes{et: testEventType("", ""), found: true},
		&fakeSchedules{},
		&fakeBookings{},
		nil,
	)

	rec := httptest.NewRecorder()
	h.HostSlots(rec, httptest.NewRequest("GET", "/api/v1/public/slots?event_type_id=evt-1&user_id=user-1", nil))

	if rec.Code != 200 {
		t.Fatalf("missing schedule should not error, got %d", rec.Code)
	}
	var resp hostSlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Days) != 0 {
		t.Fatalf("expected empty days, got %+v", resp.Days)
	}
}

func TestHostSlots_UnknownEventType(t *testing.T) {
	h := newTestHandler(&fakeEventTypes{}, &fakeSchedules{}, &fakeBookings{}, nil)

	rec := httptest.NewRecorder()
	h.HostSlots(rec, httptest.NewRequest("GET", "/api/v1/public/slots?event_type_id=nope&user_id=user-1", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHostSlots_MissingParams(t *testing.T) {
	h := newTestHandler(&fakeEventTypes{}, &fakeSchedules{}, &fakeBookings{}, nil)

	rec := httptest.NewRecorder()
	h.HostSlots(rec, httptest.NewRequest("GET", "/api/v1/public/slots", nil))
	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTeamSlots_RoundRobinCursorFlow(t *testing.T) {
	sch := &fakeSchedules{
		members: []team.Member{
			{ID: "a", UserID: "user-a", Name: "A", Timezone: "UTC", Priority: 1, IsActive: true},
			{ID: "b", UserID: "user-b", Name: "B", Timezone: "UTC", Priority: 2, IsActive: true},
		},
		schedules: map[string]team.MemberSchedule{
			"user-a": utcSchedule("09:00", "11:00"),
			"user-b": utcSchedule("09:00", "11:00"),
		},
	}
	h := newTestHandler(
		&fakeEventTypes{et: testEventType("team-1", "ROUND_ROBIN"), found: true},
		sch,
		&fakeBookings{},
		&fakeCursor{last: "a"},
	)

	rec := httptest.NewRecorder()
	h.TeamSlots(rec, httptest.NewRequest("GET", "/api/v1/public/team-slots?event_type_id=evt-1", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp teamSlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	day := resp.Days["2026-03-10"]
	if len(day) != 2 {
		t.Fatalf("expected 2 team slots, got %d", len(day))
	}
	// Cursor "a" means rotation resumes at b.
	if day[0].AssignedMember == nil || day[0].AssignedMember.ID != "b" {
		t.Fatalf("expected first slot assigned to b, got %+v", day[0].AssignedMember)
	}
	if resp.ProposedLastMember != "a" {
		t.Fatalf("expected proposed cursor a after b,a assignments, got %q", resp.ProposedLastMember)
	}
	if len(resp.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(resp.Members))
	}
}

func TestTeamSlots_NonTeamEventTypeIs404(t *testing.T) {
	h := newTestHandler(
		&fakeEventTypes{et: testEventType("", ""), found: true},
		&fakeSchedules{},
		&fakeBookings{},
		nil,
	)

	rec := httptest.NewRecorder()
	h.TeamSlots(rec, httptest.NewRequest("GET", "/api/v1/public/team-slots?event_type_id=evt-1", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 for non-team event type, got %d", rec.Code)
	}
}
