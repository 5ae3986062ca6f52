package types

// Role is the side a session plays in the handshake.
type Role int

const (
	RoleListener Role = iota
	RoleInitiator
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "listener"
}

// State is the session lifecycle.
//
//	Idle -> Listening|Connecting -> Authenticating -> Connected -> Closed
//
// Closed is terminal and reachable from every state.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateConnecting
	StateAuthenticating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
