package connect

// State is the lifecycle position of a handshake session.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateInitiating means the authorization URL is being requested.
	StateInitiating
	// StateAwaitingAuthorization means the browser is open and the session
	// is waiting for a completion signal.
	StateAwaitingAuthorization
	// StateConnected means the handshake settled successfully.
	StateConnected
	// StateFailed means the handshake settled with an error.
	StateFailed
	// StateTimedOut means the deadline elapsed before any other signal.
	StateTimedOut
	// StateCancelled means the consumer cancelled the handshake.
	StateCancelled
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiating:
		return "initiating"
	case StateAwaitingAuthorization:
		return "awaiting_authorization"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateConnected, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// FailureKind classifies why a session reached StateFailed.
type FailureKind string

const (
	// FailureNone is the zero kind for sessions that did not fail.
	FailureNone FailureKind = ""
	// FailureNetwork covers transport failures reaching the broker.
	FailureNetwork FailureKind = "network_error"
	// FailureProtocol covers broker responses missing required fields.
	FailureProtocol FailureKind = "protocol_error"
	// FailurePopupBlocked covers browser launches that could not start.
	FailurePopupBlocked FailureKind = "popup_blocked"
	// FailureRemote covers explicit error completion messages.
	FailureRemote FailureKind = "remote_error"
)

// CompletionMessage is the payload delivered by the local callback listener
// when the authorization page reports an outcome.
type CompletionMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

const (
	// MessageTypeSuccess settles the session as connected.
	MessageTypeSuccess = "success"
	// MessageTypeError settles the session as failed.
	MessageTypeError = "error"
)
