package engine

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

// FinishReason tells consumers why a run ended.
type FinishReason int

const (
	FinishCompleted FinishReason = iota
	FinishStopped
	FinishShutdown
)

func (r FinishReason) String() string {
	switch r {
	case FinishCompleted:
		return "completed"
	case FinishStopped:
		return "stopped"
	case FinishShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
