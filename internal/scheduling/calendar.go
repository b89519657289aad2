package scheduling

import (
	"errors"
	"time"
)

// DefaultHorizon is how far ahead a booking may be placed.
const DefaultHorizon = 30 * 24 * time.Hour

var (
	ErrPastDate      = errors.New("appointment date cannot be in the past")
	ErrTooFarFuture  = errors.New("appointment date is beyond the booking horizon")
	ErrInvalidWindow = errors.New("window end must be after its start")
)

// ValidateWindow checks a proposed start against now. Both bounds are
// inclusive: a start exactly at now or exactly at now+horizon is accepted.
func ValidateWindow(appointmentDate, now time.Time, horizon time.Duration) error {
	if appointmentDate.Before(now) {
		return ErrPastDate
	}
	if appointmentDate.After(now.Add(horizon)) {
		return ErrTooFarFuture
	}
	return nil
}
