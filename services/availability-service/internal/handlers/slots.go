package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/calendars"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/slots"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/storage"
	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/team"
)

// EventTypeSource loads scheduling configuration for one event type.
type EventTypeSource interface {
	GetEventType(ctx context.Context, eventTypeID string) (storage.EventType, bool, error)
}

// BookingSource reads busy data and per-day counts from bookings storage.
type BookingSource interface {
	team.BusySource
	CountBookingsPerDay(ctx context.Context, userID string, from, to time.Time, timezone string) (map[string]int, error)
}

// CursorSource reads the committed round-robin cursor.
type CursorSource interface {
	Last(ctx context.Context, eventTypeID string) (string, error)
}

type SlotsHandler struct {
	eventTypes EventTypeSource
	schedules  team.ScheduleSource
	bookings   BookingSource
	providers  []calendars.Provider
	cursor     CursorSource
	logger     *slog.Logger
	now        func() time.Time
}

func NewSlotsHandler(eventTypes EventTypeSource, schedules team.ScheduleSource, bookings BookingSource, providers []calendars.Provider, cursorSource CursorSource, logger *slog.Logger) *SlotsHandler {
	return &SlotsHandler{
		eventTypes: eventTypes,
		schedules:  schedules,
		bookings:   bookings,
		providers:  providers,
		cursor:     cursorSource,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type slotItem struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type hostSlotsResponse struct {
	EventTypeID   string                `json:"event_type_id"`
	UserID        string                `json:"user_id"`
	Timezone      string                `json:"timezone"`
	Days          map[string][]slotItem `json:"days"`
	NextAvailable string                `json:"next_available,omitempty"`
}

type teamMemberItem struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Image    string `json:"image,omitempty"`
	Timezone string `json:"timezone"`
}

type teamSlotItem struct {
	Start            string           `json:"start"`
	End              string           `json:"end"`
	AssignedMember   *teamMemberItem  `json:"assigned_member,omitempty"`
	AvailableMembers []teamMemberItem `json:"available_members,omitempty"`
}

type teamSlotsResponse struct {
	EventTypeID        string                    `json:"event_type_id"`
	SchedulingType     string                    `json:"scheduling_type"`
	Timezone           string                    `json:"timezone"`
	Days               map[string][]teamSlotItem `json:"days"`
	Members            []teamMemberItem          `json:"members"`
	ProposedLastMember string                    `json:"proposed_last_assigned_member_id,omitempty"`
}

// HostSlots serves GET /api/v1/public/slots: bookable windows for a single
// host, in the invitee's requested timezone context.
func (h *SlotsHandler) HostSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventTypeID := strings.TrimSpace(r.URL.Query().Get("event_type_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if eventTypeID == "" || userID == "" {
		http.Error(w, "event_type_id and user_id are required", http.StatusBadRequest)
		return
	}
	displayTZ := strings.TrimSpace(r.URL.Query().Get("timezone"))

	ctx := r.Context()
	et, found, err := h.eventTypes.GetEventType(ctx, eventTypeID)
	if err != nil {
		http.Error(w, "event type lookup failed", http.StatusServiceUnavailable)
		return
	}
	if !found {
		http.Error(w, "event type not found", http.StatusNotFound)
		return
	}
	if displayTZ == "" {
		displayTZ = et.Timezone
	}

	sched, found, err := h.schedules.MemberSchedule(ctx, userID)
	if err != nil {
		http.Error(w, "schedule lookup failed", http.StatusServiceUnavailable)
		return
	}

	resp := hostSlotsResponse{
		EventTypeID: eventTypeID,
		UserID:      userID,
		Timezone:    displayTZ,
		Days:        map[string][]slotItem{},
	}
	if !found {
		// A host without a default schedule has no bookable time; that is an
		// empty answer, not an error.
		writeJSON(w, http.StatusOK, resp)
		return
	}

	now := h.now()
	from := now
	to := now.AddDate(0, 0, et.MaxDaysAhead+1)

	busy, err := h.bookings.BusyIntervals(ctx, userID, from, to)
	if err != nil {
		// Bookings are the double-booking guard; stale calendar data degrades,
		// missing booking data does not.
		http.Error(w, "bookings lookup failed", http.StatusServiceUnavailable)
		return
	}
	busy = append(busy, calendars.FetchAll(ctx, h.providers, userID, from, to, h.logger)...)

	var counts map[string]int
	if et.MaxBookingsPerDay > 0 {
		counts, err = h.bookings.CountBookingsPerDay(ctx, userID, from, to, sched.Timezone)
		if err != nil {
			http.Error(w, "bookings lookup failed", http.StatusServiceUnavailable)
			return
		}
	}

	settings := et.Settings(displayTZ)
	calc, err := slots.NewCalculator(slots.Options{
		Duration:          settings.Duration,
		SlotInterval:      settings.SlotInterval,
		BufferBefore:      settings.BufferBefore,
		BufferAfter:       settings.BufferAfter,
		MinimumNotice:     settings.MinimumNotice,
		MaxDaysAhead:      settings.MaxDaysAhead,
		MaxBookingsPerDay: settings.MaxBookingsPerDay,
		HostTimezone:      sched.Timezone,
		DisplayTimezone:   displayTZ,
		Windows:           sched.Windows,
		Overrides:         sched.Overrides,
		Busy:              busy,
		BookingsPerDay:    counts,
	})
	if err != nil {
		h.logger.Error("calculator construction failed", "event_type_id", eventTypeID, "err", err)
		http.Error(w, "invalid availability configuration", http.StatusUnprocessableEntity)
		return
	}

	calculated := calc.Calculate(now)
	for day, daySlots := range calculated {
		items := make([]slotItem, 0, len(daySlots))
		for _, s := range daySlots {
			items = append(items, slotItem{
				Start: s.Start.UTC().Format(time.RFC3339),
				End:   s.End.UTC().Format(time.RFC3339),
			})
		}
		resp.Days[day] = items
	}
	if next, ok := slots.NextAvailable(calculated); ok {
		resp.NextAvailable = slots.FormatSlot(next, displayTZ, true)
	}

	writeJSON(w, http.StatusOK, resp)
}

// TeamSlots serves GET /api/v1/public/team-slots: aggregated availability for
// a team event type under its scheduling policy.
func (h *SlotsHandler) TeamSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventTypeID := strings.TrimSpace(r.URL.Query().Get("event_type_id"))
	if eventTypeID == "" {
		http.Error(w, "event_type_id is required", http.StatusBadRequest)
		return
	}
	displayTZ := strings.TrimSpace(r.URL.Query().Get("timezone"))

	ctx := r.Context()
	et, found, err := h.eventTypes.GetEventType(ctx, eventTypeID)
	if err != nil {
		http.Error(w, "event type lookup failed", http.StatusServiceUnavailable)
		return
	}
	if !found || et.TeamID == "" {
		http.Error(w, "team event type not found", http.StatusNotFound)
		return
	}

	lastAssigned := ""
	if h.cursor != nil {
		lastAssigned, err = h.cursor.Last(ctx, eventTypeID)
		if err != nil {
			// The cursor only tunes rotation start; losing it skews one
			// assignment, so degrade instead of failing the request.
			h.logger.Warn("cursor read failed; starting rotation from the top", "err", err)
			lastAssigned = ""
		}
	}

	busySources := make([]team.BusySource, 0, len(h.providers)+1)
	busySources = append(busySources, h.bookings)
	for _, p := range h.providers {
		busySources = append(busySources, p)
	}

	agg, err := team.NewAggregator(eventTypeID, et.TeamID, team.SchedulingType(et.SchedulingType), lastAssigned, h.schedules, busySources, h.logger)
	if err != nil {
		h.logger.Error("aggregator construction failed", "event_type_id", eventTypeID, "err", err)
		http.Error(w, "invalid team configuration", http.StatusUnprocessableEntity)
		return
	}

	res, err := agg.Calculate(ctx, et.Settings(displayTZ), h.now())
	if err != nil {
		h.logger.Error("team calculation failed", "event_type_id", eventTypeID, "err", err)
		http.Error(w, "team calculation failed", http.StatusServiceUnavailable)
		return
	}

	resp := teamSlotsResponse{
		EventTypeID:        eventTypeID,
		SchedulingType:     string(res.SchedulingType),
		Timezone:           et.Settings(displayTZ).DisplayTimezone,
		Days:               map[string][]teamSlotItem{},
		Members:            make([]teamMemberItem, 0, len(res.Members)),
		ProposedLastMember: res.LastAssignedMemberID,
	}
	for _, m := range res.Members {
		resp.Members = append(resp.Members, memberItem(m))
	}
	for day, daySlots := range res.Slots {
		items := make([]teamSlotItem, 0, len(daySlots))
		for _, s := range daySlots {
			item := teamSlotItem{
				Start: s.Start.UTC().Format(time.RFC3339),
				End:   s.End.UTC().Format(time.RFC3339),
			}
			if s.AssignedMember != nil {
				mi := memberItem(*s.AssignedMember)
				item.AssignedMember = &mi
			}
			for _, m := range s.AvailableMembers {
				item.AvailableMembers = append(item.AvailableMembers, memberItem(m))
			}
			items = append(items, item)
		}
		resp.Days[day] = items
	}

	writeJSON(w, http.StatusOK, resp)
}

func memberItem(m team.Member) teamMemberItem {
	return teamMemberItem{
		ID:       m.ID,
		UserID:   m.UserID,
		Name:     m.Name,
		Image:    m.Image,
		Timezone: m.Timezone,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
