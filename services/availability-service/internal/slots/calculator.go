package slots

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/meetsync/services/availability-service/internal/interval"
)

const (
	// Floor for duration and step; sub-minute values come from misconfigured
	// event types and would otherwise spin the walk loop.
	minStep = time.Minute

	// Upper bound on raw candidates generated per day. A tiny step over a long
	// window truncates (earliest candidates win) instead of failing the request.
	maxCandidatesPerDay = 1000
)

const dateKeyLayout = "2006-01-02"

// Window is a recurring weekly availability range, as HH:MM clock strings in
// the host's timezone. A weekday may carry several disjoint windows.
type Window struct {
	Weekday time.Weekday
	Start   string
	End     string
}

// DateOverride replaces the recurring windows for one calendar date
// (YYYY-MM-DD in the host's timezone). A non-working override blocks the
// whole day; a working override's Start/End become the day's only window.
type DateOverride struct {
	Date      string
	IsWorking bool
	Start     string
	End       string
}

// Slot is one bookable candidate. End - Start always equals the configured
// duration.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Options configures a Calculator. Busy intervals may arrive unsorted and
// overlapping; the constructor merges them once.
type Options struct {
	Duration      time.Duration
	SlotInterval  time.Duration // 0 means Duration
	BufferBefore  time.Duration
	BufferAfter   time.Duration
	MinimumNotice time.Duration
	MaxDaysAhead  int

	HostTimezone    string
	DisplayTimezone string // carried for presentation only

	Windows   []Window
	Overrides []DateOverride
	Busy      []interval.Interval

	MaxBookingsPerDay int            // 0 means no cap
	BookingsPerDay    map[string]int // date key -> already-booked count
}

// Calculator produces bookable slots for a single host. It is pure after
// construction and safe for concurrent use.
type Calculator struct {
	opts      Options
	loc       *time.Location
	step      time.Duration
	busy      []interval.Interval
	overrides map[string]DateOverride
	byWeekday map[time.Weekday][]Window
}

func NewCalculator(opts Options) (*Calculator, error) {
	if opts.HostTimezone == "" {
		return nil, fmt.Errorf("host timezone is required")
	}
	loc, err := time.LoadLocation(opts.HostTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid host timezone %q: %w", opts.HostTimezone, err)
	}
	if opts.MaxDaysAhead < 0 {
		return nil, fmt.Errorf("max days ahead must not be negative")
	}

	// Clamp rather than reject: upstream validation owns strictness, the
	// calculator owns returning some correct answer.
	if opts.Duration < minStep {
		opts.Duration = minStep
	}
	step := opts.SlotInterval
	if step <= 0 {
		step = opts.Duration
	}
	if step < minStep {
		step = minStep
	}
	if opts.MinimumNotice < 0 {
		opts.MinimumNotice = 0
	}

	c := &Calculator{
		opts:      opts,
		loc:       loc,
		step:      step,
		busy:      interval.Merge(opts.Busy),
		overrides: make(map[string]DateOverride, len(opts.Overrides)),
		byWeekday: make(map[time.Weekday][]Window),
	}
	for _, ov := range opts.Overrides {
		if _, err := time.Parse(dateKeyLayout, ov.Date); err != nil {
			return nil, fmt.Errorf("invalid override date %q: %w", ov.Date, err)
		}
		if ov.IsWorking {
			if _, err := clockMinutes(ov.Start); err != nil {
				return nil, fmt.Errorf("override %s: %w", ov.Date, err)
			}
			if _, err := clockMinutes(ov.End); err != nil {
				return nil, fmt.Errorf("override %s: %w", ov.Date, err)
			}
		}
		c.overrides[ov.Date] = ov
	}
	for _, w := range opts.Windows {
		if _, err := clockMinutes(w.Start); err != nil {
			return nil, fmt.Errorf("window %s: %w", w.Weekday, err)
		}
		if _, err := clockMinutes(w.End); err != nil {
			return nil, fmt.Errorf("window %s: %w", w.Weekday, err)
		}
		c.byWeekday[w.Weekday] = append(c.byWeekday[w.Weekday], w)
	}
	// Windows within a weekday are walked in start order regardless of how the
	// caller listed them.
	for wd := range c.byWeekday {
		ws := c.byWeekday[wd]
		sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	}
	return c, nil
}

// SlotsForDay returns the bookable slots for the calendar day containing
// `day` in the host's timezone, given the current time `now`. Note the day
// is resolved locally: a UTC midnight lands on the previous local day for
// hosts west of Greenwich.
func (c *Calculator) SlotsForDay(day, now time.Time) []Slot {
	local := day.In(c.loc)
	key := local.Format(dateKeyLayout)

	// A day at or over its booking cap yields nothing, regardless of windows.
	if c.opts.MaxBookingsPerDay > 0 && c.opts.BookingsPerDay[key] >= c.opts.MaxBookingsPerDay {
		return nil
	}

	windows := c.effectiveWindows(local, key)
	if len(windows) == 0 {
		return nil
	}

	notBefore := now.Add(c.opts.MinimumNotice)

	var out []Slot
	generated := 0
	for _, w := range windows {
		start, end, ok := c.windowBounds(local, w)
		if !ok {
			continue
		}
		for t := start; !t.Add(c.opts.Duration).After(end); t = t.Add(c.step) {
			if generated >= maxCandidatesPerDay {
				break
			}
			generated++

			if t.Before(notBefore) {
				continue
			}
			slotEnd := t.Add(c.opts.Duration)
			if !interval.IsFree(t, slotEnd, c.busy, c.opts.BufferBefore, c.opts.BufferAfter) {
				continue
			}
			out = append(out, Slot{Start: t, End: slotEnd})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Calculate walks from now through now + MaxDaysAhead days and returns a
// date-keyed slot map. Days with no slots are omitted.
func (c *Calculator) Calculate(now time.Time) map[string][]Slot {
	return c.CalculateFrom(now, now)
}

// CalculateFrom is Calculate with an explicit range start, for callers that
// page through future months.
func (c *Calculator) CalculateFrom(now, rangeStart time.Time) map[string][]Slot {
	out := make(map[string][]Slot)
	startLocal := rangeStart.In(c.loc)
	for i := 0; i <= c.opts.MaxDaysAhead; i++ {
		day := startLocal.AddDate(0, 0, i)
		slots := c.SlotsForDay(day, now)
		if len(slots) == 0 {
			continue
		}
		out[day.Format(dateKeyLayout)] = slots
	}
	return out
}

// effectiveWindows resolves the working ranges for one local day: a matching
// override wins outright, otherwise the weekday's recurring windows apply.
func (c *Calculator) effectiveWindows(local time.Time, key string) []Window {
	if ov, ok := c.overrides[key]; ok {
		if !ov.IsWorking {
			return nil
		}
		return []Window{{Weekday: local.Weekday(), Start: ov.Start, End: ov.End}}
	}
	return c.byWeekday[local.Weekday()]
}

func (c *Calculator) windowBounds(local time.Time, w Window) (time.Time, time.Time, bool) {
	startMin, err := clockMinutes(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endMin, err := clockMinutes(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	if endMin <= startMin {
		return time.Time{}, time.Time{}, false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return midnight.Add(time.Duration(startMin) * time.Minute),
		midnight.Add(time.Duration(endMin) * time.Minute),
		true
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
