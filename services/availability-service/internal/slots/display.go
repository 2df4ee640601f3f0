package slots

import (
	"sort"
	"time"
)

// FormatSlot renders a slot as a local time range in the given timezone,
// optionally prefixed with the date. Unknown timezones fall back to UTC.
func FormatSlot(s Slot, timezone string, includeDate bool) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	start := s.Start.In(loc)
	end := s.End.In(loc)
	if includeDate {
		return start.Format("Mon, Jan 2 2006 15:04") + " – " + end.Format("15:04")
	}
	return start.Format("15:04") + " – " + end.Format("15:04")
}

// NextAvailable returns the first slot of the chronologically earliest
// non-empty day. The second return is false when the map is empty.
func NextAvailable(calculated map[string][]Slot) (Slot, bool) {
	if len(calculated) == 0 {
		return Slot{}, false
	}
	keys := make([]string, 0, len(calculated))
	for k := range calculated {
		if len(calculated[k]) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return Slot{}, false
	}
	sort.Strings(keys)
	return calculated[keys[0]][0], true
}
