package recorder

// State is the recorder lifecycle state. STOPPED is terminal.
type State int

const (
	StateReady State = iota
	StateRecording
	StatePaused
	StateStopped
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is a high-level control event fed to the state machine. The
// surrounding CLI maps whatever input surface it has (keys, signals) onto
// these two; the automatic mode needs neither and derives stop on its own.
type Event int

const (
	// EventToggle starts recording from READY, pauses from RECORDING and
	// resumes from PAUSED.
	EventToggle Event = iota
	// EventStop ends the session from any non-terminal state.
	EventStop
)

// String returns the event name for logging.
func (e Event) String() string {
	switch e {
	case EventToggle:
		return "toggle"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}
