package calls

import "callbridge/internal/telephony"

// Machine is the per-Call state, including the nested IVR menu. It is a plain
// value: Step never mutates its argument and performs no I/O.
type Machine struct {
	State State
	Menu  Menu
	// Invalid counts unrecognized or missing menu inputs.
	Invalid    int
	MaxRepeats int

	UserLeg        string
	DestinationLeg string

	// Reason explains a terminal state for operator review.
	Reason string
}

// Menu is the IVR position while the User leg is connected.
type Menu string

const (
	MenuNone Menu = ""
	MenuMain Menu = "main"
	// MenuChecking waits for the Destination gate after the User pressed 1.
	MenuChecking Menu = "checking"
)

const (
	DigitConnect       = "1"
	DigitTalkingPoints = "5"
	DigitDecline       = "9"
)

type Timer string

const (
	TimerUserAnswer        Timer = "user_answer"
	TimerIVR               Timer = "ivr"
	TimerDestinationAnswer Timer = "destination_answer"
	TimerMaxDuration       Timer = "max_duration"
)

var allTimers = []Timer{TimerUserAnswer, TimerIVR, TimerDestinationAnswer, TimerMaxDuration}

type InputKind string

const (
	InStart     InputKind = "start"
	InLegPlaced InputKind = "leg_placed"
	InCancel    InputKind = "cancel"
	InTimeout   InputKind = "timeout"
	// InCarrierError is fed when a carrier request fails.
	InCarrierError InputKind = "carrier_error"

	InUserAnswered InputKind = "user_answered"
	InUserNoAnswer InputKind = "user_no_answer"
	InUserBusy     InputKind = "user_busy"
	InUserHangup   InputKind = "user_hangup"
	InUserFailed   InputKind = "user_failed"
	InDigits       InputKind = "digits"

	InDestinationCleared  InputKind = "destination_cleared"
	InDestinationDenied   InputKind = "destination_denied"
	InDestinationAnswered InputKind = "destination_answered"
	InDestinationNoAnswer InputKind = "destination_no_answer"
	InDestinationBusy     InputKind = "destination_busy"
	InDestinationHangup   InputKind = "destination_hangup"
	InDestinationFailed   InputKind = "destination_failed"
)

type Input struct {
	Kind   InputKind
	Role   telephony.LegRole
	LegID  string
	Digits string
	Timer  Timer
	Reason string
}

type EffectKind string

const (
	EffPlaceLeg   EffectKind = "place_leg"
	EffPrompt     EffectKind = "prompt"
	EffBridge     EffectKind = "bridge"
	EffHangup     EffectKind = "hangup"
	EffStartTimer EffectKind = "start_timer"
	EffStopTimer  EffectKind = "stop_timer"
	// EffCheckDestination asks the executor to gate the Destination leg and
	// answer with InDestinationCleared or InDestinationDenied.
	EffCheckDestination EffectKind = "check_destination"
)

type Effect struct {
	Kind   EffectKind
	Role   telephony.LegRole
	Prompt telephony.Prompt
	Timer  Timer
}

func NewMachine(maxRepeats int) Machine {
	if maxRepeats < 0 {
		maxRepeats = 0
	}
	return Machine{State: StatePending, MaxRepeats: maxRepeats}
}

// Step applies in to m. Terminal machines absorb every input. Terminal
// carrier events are honored from any non-terminal state.
func Step(m Machine, in Input) (Machine, []Effect) {
	if m.State.Terminal() {
		return m, nil
	}
	switch in.Kind {
	case InLegPlaced:
		m.setLeg(in.Role, in.LegID)
		return m, nil
	case InCancel:
		return m.end(StateCanceled, "canceled by user", m.hangupAll()...)
	case InCarrierError:
		return m.fail(in.Reason)
	}

	switch m.State {
	case StatePending:
		return m.pending(in)
	case StateUserDialing:
		return m.userDialing(in)
	case StateUserConnected:
		return m.userConnected(in)
	case StateDestinationDialing:
		return m.destinationDialing(in)
	case StateBridged:
		return m.bridged(in)
	}
	return m, nil
}

func (m Machine) pending(in Input) (Machine, []Effect) {
	if in.Kind != InStart {
		return m, nil
	}
	m.State = StateUserDialing
	return m, []Effect{placeLeg(telephony.LegUser), startTimer(TimerUserAnswer)}
}

func (m Machine) userDialing(in Input) (Machine, []Effect) {
	switch in.Kind {
	case InUserAnswered:
		m.setLeg(telephony.LegUser, in.LegID)
		m.State = StateUserConnected
		m.Menu = MenuMain
		m.Invalid = 0
		return m, append([]Effect{stopTimer(TimerUserAnswer)}, mainMenu("")...)
	case InTimeout:
		if in.Timer != TimerUserAnswer {
			return m, nil
		}
		return m.end(StateUserNoAnswer, "no answer within timeout", m.hangup(telephony.LegUser)...)
	case InUserNoAnswer:
		return m.end(StateUserNoAnswer, "no answer")
	case InUserBusy:
		return m.end(StateUserNoAnswer, "busy")
	case InUserHangup:
		return m.end(StateUserNoAnswer, "hung up before answer")
	case InUserFailed:
		return m.fail(in.Reason)
	}
	return m, nil
}

func (m Machine) userConnected(in Input) (Machine, []Effect) {
	switch in.Kind {
	case InDigits:
		if m.Menu != MenuMain {
			return m, nil
		}
		switch in.Digits {
		case DigitConnect:
			m.Menu = MenuChecking
			return m, []Effect{stopTimer(TimerIVR), {Kind: EffCheckDestination}}
		case DigitTalkingPoints:
			return m, append([]Effect{stopTimer(TimerIVR)}, mainMenu(telephony.PromptTalkingPoints)...)
		case DigitDecline:
			return m.end(StateUserRejected, "declined in menu", farewell(telephony.PromptGoodbye))
		}
		return m.invalidInput("unrecognized menu input")
	case InTimeout:
		if in.Timer != TimerIVR || m.Menu != MenuMain {
			return m, nil
		}
		return m.invalidInput("no menu input")
	case InDestinationCleared:
		if m.Menu != MenuChecking {
			return m, nil
		}
		m.State = StateDestinationDialing
		m.Menu = MenuNone
		return m, []Effect{
			prompt(telephony.Prompt{Name: telephony.PromptConnecting}),
			placeLeg(telephony.LegDestination),
			startTimer(TimerDestinationAnswer),
		}
	case InDestinationDenied:
		if m.Menu != MenuChecking {
			return m, nil
		}
		return m.end(StateDestinationUnavailable, in.Reason, farewell(telephony.PromptDestinationUnavailable))
	case InUserHangup, InUserNoAnswer, InUserBusy:
		return m.end(StateUserRejected, "user hung up in menu")
	case InUserFailed:
		return m.fail(in.Reason)
	}
	return m, nil
}

// invalidInput repeats the menu up to MaxRepeats times, then gives up.
func (m Machine) invalidInput(reason string) (Machine, []Effect) {
	m.Invalid++
	if m.Invalid > m.MaxRepeats {
		return m.end(StateUserRejected, reason, farewell(telephony.PromptGoodbye))
	}
	return m, append([]Effect{stopTimer(TimerIVR)}, mainMenu(telephony.PromptInvalidInput)...)
}

func (m Machine) destinationDialing(in Input) (Machine, []Effect) {
	switch in.Kind {
	case InDestinationAnswered:
		m.setLeg(telephony.LegDestination, in.LegID)
		m.State = StateBridged
		return m, []Effect{stopTimer(TimerDestinationAnswer), {Kind: EffBridge}, startTimer(TimerMaxDuration)}
	case InTimeout:
		if in.Timer != TimerDestinationAnswer {
			return m, nil
		}
		effs := append(m.hangup(telephony.LegDestination), farewell(telephony.PromptDestinationNoAnswer))
		return m.end(StateDestinationNoAnswer, "destination did not answer within timeout", effs...)
	case InDestinationNoAnswer, InDestinationHangup:
		return m.end(StateDestinationNoAnswer, "destination did not answer", farewell(telephony.PromptDestinationNoAnswer))
	case InDestinationBusy:
		return m.end(StateDestinationBusy, "destination busy", farewell(telephony.PromptDestinationBusy))
	case InDestinationFailed, InUserFailed:
		return m.fail(in.Reason)
	case InUserHangup, InUserNoAnswer, InUserBusy:
		return m.end(StateUserRejected, "user hung up while connecting", m.hangup(telephony.LegDestination)...)
	}
	return m, nil
}

func (m Machine) bridged(in Input) (Machine, []Effect) {
	switch in.Kind {
	case InUserHangup, InUserNoAnswer, InUserBusy, InUserFailed:
		return m.end(StateCompleted, "user hung up", m.hangup(telephony.LegDestination)...)
	case InDestinationHangup, InDestinationNoAnswer, InDestinationBusy, InDestinationFailed:
		return m.end(StateCompleted, "destination hung up", m.hangup(telephony.LegUser)...)
	case InTimeout:
		if in.Timer != TimerMaxDuration {
			return m, nil
		}
		return m.end(StateCompleted, "maximum duration reached", m.hangupAll()...)
	}
	return m, nil
}

// fail ends the call as a carrier error. A connected User hears a generic
// apology; every other leg is hung up.
func (m Machine) fail(reason string) (Machine, []Effect) {
	var effs []Effect
	switch m.State {
	case StateUserConnected, StateDestinationDialing, StateBridged:
		effs = append(effs, farewell(telephony.PromptTechnicalError))
		effs = append(effs, m.hangup(telephony.LegDestination)...)
	default:
		effs = m.hangupAll()
	}
	if reason == "" {
		reason = "carrier error"
	}
	return m.end(StateCarrierError, reason, effs...)
}

func (m Machine) end(s State, reason string, effs ...Effect) (Machine, []Effect) {
	m.State = s
	m.Menu = MenuNone
	m.Reason = reason
	return m, effs
}

func (m *Machine) setLeg(role telephony.LegRole, id string) {
	if id == "" {
		return
	}
	switch role {
	case telephony.LegUser:
		m.UserLeg = id
	case telephony.LegDestination:
		m.DestinationLeg = id
	}
}

func (m Machine) hangup(role telephony.LegRole) []Effect {
	if role == telephony.LegUser && m.UserLeg == "" {
		return nil
	}
	if role == telephony.LegDestination && m.DestinationLeg == "" {
		return nil
	}
	return []Effect{{Kind: EffHangup, Role: role}}
}

func (m Machine) hangupAll() []Effect {
	return append(m.hangup(telephony.LegUser), m.hangup(telephony.LegDestination)...)
}

func mainMenu(preface telephony.PromptName) []Effect {
	return []Effect{
		prompt(telephony.Prompt{Name: telephony.PromptMainMenu, Gather: true, Preface: preface}),
		startTimer(TimerIVR),
	}
}

func farewell(name telephony.PromptName) Effect {
	return prompt(telephony.Prompt{Name: name, HangupAfter: true})
}

func prompt(p telephony.Prompt) Effect {
	return Effect{Kind: EffPrompt, Role: telephony.LegUser, Prompt: p}
}

func placeLeg(role telephony.LegRole) Effect { return Effect{Kind: EffPlaceLeg, Role: role} }

func startTimer(t Timer) Effect { return Effect{Kind: EffStartTimer, Timer: t} }

func stopTimer(t Timer) Effect { return Effect{Kind: EffStopTimer, Timer: t} }
