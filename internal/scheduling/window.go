// Package scheduling holds the calendar arithmetic behind bookings: date
// bounds, interval overlap, working-hours resolution and slot generation.
// Nothing in here touches storage.
package scheduling

import "time"

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start time.Time, length time.Duration) Window {
	return Window{Start: start, End: start.Add(length)}
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether w and o share any instant. Touching windows
// (one ends exactly where the other starts) do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// HasConflict reports whether w overlaps any of the candidate windows.
func HasConflict(w Window, candidates []Window) bool {
	for _, c := range candidates {
		if w.Overlaps(c) {
			return true
		}
	}
	return false
}
