package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

// Workshift is a doctor's bookable window at a clinic. It is either dated
// (StartsAt/EndsAt set) or recurring on Weekday between StartMinute and
// EndMinute, counted from local midnight.
type Workshift struct {
	ID       uuid.UUID `json:"id"`
	DoctorID uuid.UUID `json:"doctor_id"`
	ClinicID uuid.UUID `json:"clinic_id"`

	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	Weekday     *time.Weekday `json:"weekday,omitempty"`
	StartMinute int           `json:"start_minute,omitempty"`
	EndMinute   int           `json:"end_minute,omitempty"`
}

func (s Workshift) IsDated() bool {
	return s.StartsAt != nil && s.EndsAt != nil
}

func (s Workshift) Validate() error {
	if s.IsDated() {
		if !s.StartsAt.Before(*s.EndsAt) {
			return ErrInvalidWindow
		}
		return nil
	}
	if s.Weekday == nil {
		return fmt.Errorf("workshift %s has neither dates nor a weekday", s.ID)
	}
	if s.StartMinute < 0 || s.EndMinute > minutesPerDay || s.StartMinute >= s.EndMinute {
		return ErrInvalidWindow
	}
	return nil
}

// Date is a calendar day with no time of day attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// DateOf returns the calendar day t falls on in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// At returns the instant minutes after midnight of d in loc.
func (d Date) At(minutes int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minutes, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.At(0, time.UTC).Weekday()
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ResolveShift picks the working-hours window for date out of shifts. Dated
// shifts starting on date win over recurring ones; among several matches the
// earliest start is used. Invalid shifts are ignored. ok is false when no
// shift applies, which callers treat as a day with no availability.
func ResolveShift(shifts []Workshift, date Date, loc *time.Location) (w Window, ok bool) {
	var dated, recurring []Window

	for _, s := range shifts {
		if s.Validate() != nil {
			continue
		}
		if s.IsDated() {
			if DateOf(*s.StartsAt, loc) == date {
				dated = append(dated, Window{Start: *s.StartsAt, End: *s.EndsAt})
			}
			continue
		}
		if *s.Weekday == date.Weekday() {
			recurring = append(recurring, Window{
				Start: date.At(s.StartMinute, loc),
				End:   date.At(s.EndMinute, loc),
			})
		}
	}

	for _, candidates := range [][]Window{dated, recurring} {
		if len(candidates) == 0 {
			continue
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Start.Before(candidates[j].Start)
		})
		return candidates[0], true
	}
	return Window{}, false
}
