package runner

// State is the orchestrator lifecycle state. Transitions:
//
//	Idle → Validating            on Run
//	Validating → Running         on successful schema validation
//	Validating → Aborted         on validation failure
//	Running → Completed          when every draw has a terminal result
//	Running → Aborted            on fatal error, threshold breach, or cancellation
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateRunning
	StateCompleted
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
