package calls

import "time"

// Call is one User-to-Destination attempt. Rows are written on every state
// change and are immutable once State is terminal.
//
// Raw phone numbers are not stored; PhoneHash identifies the User and
// CallingCode/UserRegion feed cost reporting.
type Call struct {
	ID    string `json:"call_id" db:"id"`
	Kind  Kind   `json:"kind" db:"kind"`
	State State  `json:"state" db:"state"`

	SessionID  string `json:"session_id,omitempty" db:"session_id"`
	ScheduleID string `json:"schedule_id,omitempty" db:"schedule_id"`
	WindowID   string `json:"window_id,omitempty" db:"window_id"`

	PhoneHash   string `json:"-" db:"phone_hash"`
	CallingCode int    `json:"calling_code" db:"calling_code"`
	UserRegion  string `json:"user_region,omitempty" db:"user_region"`

	DestinationID      string `json:"destination_id" db:"destination_id"`
	DestinationCountry string `json:"destination_country,omitempty" db:"destination_country"`

	UserLegID        string `json:"user_leg_id,omitempty" db:"user_leg_id"`
	DestinationLegID string `json:"destination_leg_id,omitempty" db:"destination_leg_id"`

	// Reason is the internal diagnostic for non-completed outcomes,
	// including raw carrier detail. Never shown to Users.
	Reason string `json:"-" db:"reason"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	BridgedAt  *time.Time `json:"bridged_at,omitempty" db:"bridged_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is bridged talk time.
	DurationSeconds int `json:"duration" db:"duration"`
}

type Kind string

const (
	KindInstant   Kind = "instant"
	KindScheduled Kind = "scheduled"
)

type State string

const (
	StatePending            State = "pending"
	StateUserDialing        State = "user_dialing"
	StateUserConnected      State = "user_connected"
	StateDestinationDialing State = "destination_dialing"
	StateBridged            State = "bridged"

	StateCompleted              State = "completed"
	StateUserNoAnswer           State = "user_no_answer"
	StateUserRejected           State = "user_rejected"
	StateDestinationNoAnswer    State = "destination_no_answer"
	StateDestinationBusy        State = "destination_busy"
	StateDestinationUnavailable State = "destination_unavailable"
	StateCarrierError           State = "carrier_error"
	StateCanceled               State = "canceled"
)

var terminalStates = map[State]bool{
	StateCompleted:              true,
	StateUserNoAnswer:           true,
	StateUserRejected:           true,
	StateDestinationNoAnswer:    true,
	StateDestinationBusy:        true,
	StateDestinationUnavailable: true,
	StateCarrierError:           true,
	StateCanceled:               true,
}

func (s State) Terminal() bool { return terminalStates[s] }

// AllStates lists every state, in lifecycle order.
func AllStates() []State {
	return []State{
		StatePending, StateUserDialing, StateUserConnected, StateDestinationDialing, StateBridged,
		StateCompleted, StateUserNoAnswer, StateUserRejected, StateDestinationNoAnswer,
		StateDestinationBusy, StateDestinationUnavailable, StateCarrierError, StateCanceled,
	}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Since time.Time
	Until time.Time
	Kind  Kind
	Limit int
}
