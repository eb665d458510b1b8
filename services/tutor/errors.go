package tutor

import "fmt"

// ContextNotFoundError means the node a session was created against no longer
// exists. There is nothing to teach, so the session cannot proceed.
type ContextNotFoundError struct {
	NodeID string
}

func (e *ContextNotFoundError) Error() string {
	return fmt.Sprintf("node %s not found, session context cannot be loaded", e.NodeID)
}

// TickOverrunError indicates the phase machine kept auto-advancing past the
// per-turn cap, which only happens when a transition cycle has been wired
// incorrectly.
type TickOverrunError struct {
	SessionID string
	Ticks     int
}

func (e *TickOverrunError) Error() string {
	return fmt.Sprintf("session %s exceeded %d phase ticks in a single turn", e.SessionID, e.Ticks)
}

// GradingParseError records a grader reply that did not follow the expected
// response format. Callers degrade to a neutral score rather than fail.
type GradingParseError struct {
	Raw string
}

func (e *GradingParseError) Error() string {
	return "grader response did not match the SCORE/REASONING format"
}
