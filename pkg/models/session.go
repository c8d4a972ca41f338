package models

import "fmt"

// SessionState is the lifecycle of one streaming session
type SessionState string

const (
	SessionSpawned   SessionState = "spawned"   // process launched, nothing relayed yet
	SessionStreaming SessionState = "streaming" // first stdout byte forwarded
	SessionCompleted SessionState = "completed" // exit 0 and stdout fully forwarded
	SessionFailed    SessionState = "failed"    // non-zero exit, signal, stream error or cancel
)

// validSessionTransitions maps from-state to allowed to-states
var validSessionTransitions = map[SessionState]map[SessionState]bool{
	SessionSpawned: {
		SessionStreaming: true,
		SessionCompleted: true, // process produced no output and exited 0
		SessionFailed:    true,
	},
	SessionStreaming: {
		SessionCompleted: true,
		SessionFailed:    true,
	},
	SessionCompleted: {},
	SessionFailed:    {},
}

// ValidateSessionTransition checks if a session state transition is valid
func ValidateSessionTransition(from, to SessionState) error {
	allowed, exists := validSessionTransitions[from]
	if !exists {
		return fmt.Errorf("unknown session state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid session transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true for completed and failed
func (s SessionState) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}
