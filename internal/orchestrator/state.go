package orchestrator

import "fmt"

// State is the stage a turn is in.
type State int

const (
	Idle State = iota
	Retrieving
	Completing
	ParsingDiff
	AwaitingConfirmation
	Applying
	ReIndexing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Retrieving:
		return "retrieving"
	case Completing:
		return "completing"
	case ParsingDiff:
		return "parsing_diff"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Applying:
		return "applying"
	case ReIndexing:
		return "reindexing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// OnStateChange registers a hook called on every transition. It runs on
// the turn goroutine and must not block.
func (o *Orchestrator) OnStateChange(fn func(from, to State)) {
	o.mu.Lock()
	o.onStateChange = fn
	o.mu.Unlock()
}

func (o *Orchestrator) setState(to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	hook := o.onStateChange
	o.mu.Unlock()

	if hook != nil && from != to {
		hook(from, to)
	}
}
