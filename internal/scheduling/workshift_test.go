package scheduling

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekday(d time.Weekday) *time.Weekday { return &d }

func ptr(t time.Time) *time.Time { return &t }

func TestResolveShift_Recurring(t *testing.T) {
	doctor, clinic := uuid.New(), uuid.New()
	date, err := ParseDate("2026-03-11") // Wednesday
	require.NoError(t, err)

	shifts := []Workshift{
		{DoctorID: doctor, ClinicID: clinic, Weekday: weekday(time.Monday), StartMinute: 8 * 60, EndMinute: 12 * 60},
		{DoctorID: doctor, ClinicID: clinic, Weekday: weekday(time.Wednesday), StartMinute: 10 * 60, EndMinute: 12 * 60},
	}

	w, ok := ResolveShift(shifts, date, time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 2*time.Hour, w.Duration())
}

func TestResolveShift_DatedWinsOverRecurring(t *testing.T) {
	date, _ := ParseDate("2026-03-11")
	start := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)

	shifts := []Workshift{
		{Weekday: weekday(time.Wednesday), StartMinute: 9 * 60, EndMinute: 17 * 60},
		{StartsAt: ptr(start), EndsAt: ptr(start.Add(3 * time.Hour))},
	}

	w, ok := ResolveShift(shifts, date, time.UTC)
	require.True(t, ok)
	assert.Equal(t, start, w.Start)
}

func TestResolveShift_LocalTimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	date, _ := ParseDate("2026-03-11")

	w, ok := ResolveShift([]Workshift{
		{Weekday: weekday(time.Wednesday), StartMinute: 9 * 60, EndMinute: 13 * 60},
	}, date, loc)

	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC), w.Start.UTC())
}

func TestResolveShift_NoneIsNotAnError(t *testing.T) {
	date, _ := ParseDate("2026-03-12") // Thursday

	_, ok := ResolveShift([]Workshift{
		{Weekday: weekday(time.Wednesday), StartMinute: 9 * 60, EndMinute: 17 * 60},
	}, date, time.UTC)
	assert.False(t, ok)

	_, ok = ResolveShift(nil, date, time.UTC)
	assert.False(t, ok)
}

func TestResolveShift_SkipsInvalid(t *testing.T) {
	date, _ := ParseDate("2026-03-11")

	_, ok := ResolveShift([]Workshift{
		{Weekday: weekday(time.Wednesday), StartMinute: 12 * 60, EndMinute: 9 * 60},
	}, date, time.UTC)
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", d.String())
	assert.Equal(t, time.Wednesday, d.Weekday())

	_, err = ParseDate("11/03/2026")
	assert.Error(t, err)
}
