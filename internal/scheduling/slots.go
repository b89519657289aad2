package scheduling

import (
	"iter"
	"time"
)

// GenerateSlots yields the free slots of length granularity inside window,
// stepping from window.Start on a fixed grid. A slot is dropped when it
// overlaps any of booked. A trailing period shorter than granularity is not
// offered. The sequence can be ranged over any number of times.
func GenerateSlots(window Window, booked []Window, granularity time.Duration) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if granularity <= 0 {
			return
		}
		for start := window.Start; ; start = start.Add(granularity) {
			slot := NewWindow(start, granularity)
			if slot.End.After(window.End) {
				return
			}
			if HasConflict(slot, booked) {
				continue
			}
			if !yield(slot) {
				return
			}
		}
	}
}
