package appointment

// Every appointment starts pending and moves at most once, to one of the
// terminal states:
//
//	pending → completed
//	pending → cancelled
//	pending → no_show
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

type Action string

const (
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
)

var actionTargets = map[Action]AppointmentStatus{
	ActionCancel:   StatusCancelled,
	ActionComplete: StatusCompleted,
	ActionNoShow:   StatusNoShow,
}

// Transition returns the status action leads to from the current status.
func Transition(from AppointmentStatus, action Action) (AppointmentStatus, error) {
	to, ok := actionTargets[action]
	if !ok || from != StatusPending {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// ActionFor finds the action that moves from to to.
func ActionFor(from, to AppointmentStatus) (Action, error) {
	for action, target := range actionTargets {
		if target == to {
			if _, err := Transition(from, action); err != nil {
				return "", err
			}
			return action, nil
		}
	}
	return "", ErrInvalidTransition
}
