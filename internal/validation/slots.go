package validation

import (
	"sort"
	"time"

	"github.com/agendia-app/agendia-platform/internal/store"
)

// maxSuggestions bounds the alternative-slot list returned when the requested
// slot is taken.
const maxSuggestions = 3

// Slot is a free bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlots computes the open slots for a professional on the given day:
// the company's opening window stepped by the service duration, minus
// intervals already booked, minus anything before now on the current day.
// All arithmetic happens in the day's location.
func FreeSlots(day time.Time, window store.DayWindow, durationMin int, booked []store.Appointment, now time.Time) []Slot {
	if !window.Open || durationMin <= 0 {
		return nil
	}
	startMin, err := ParseClock(window.Start)
	if err != nil {
		return nil
	}
	endMin, err := ParseClock(window.End)
	if err != nil {
		return nil
	}

	loc := day.Location()
	var slots []Slot
	for m := startMin; m+durationMin <= endMin; m += durationMin {
		start := CombineDateClock(day, m)
		end := start.Add(time.Duration(durationMin) * time.Minute)

		if SameDay(start, now, loc) && start.Before(now) {
			continue
		}
		if overlapsAny(start, end, booked) {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots
}

// NearestSlots orders free slots by distance from the requested start and
// returns at most maxSuggestions of them.
func NearestSlots(slots []Slot, requested time.Time) []Slot {
	if len(slots) == 0 {
		return nil
	}
	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return absDuration(sorted[i].Start.Sub(requested)) < absDuration(sorted[j].Start.Sub(requested))
	})
	if len(sorted) > maxSuggestions {
		sorted = sorted[:maxSuggestions]
	}
	return sorted
}

func overlapsAny(start, end time.Time, booked []store.Appointment) bool {
	for _, b := range booked {
		if start.Before(b.End()) && b.StartsAt.Before(end) {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
