package link

// State describes the lifecycle of a serial session.
type State int

const (
	// StateDisconnected is the initial state; no port is held.
	StateDisconnected State = iota

	// StateConnecting means a port is open but the handshake has not finished.
	StateConnecting

	// StateVerified means the peer answered the probe with the ready phrase.
	StateVerified

	// StateUnverified means the port opened but the handshake failed or the
	// peer stopped confirming commands.
	StateUnverified

	// StateFailed is terminal for one connection attempt. Unlike
	// StateDisconnected it records the failure cause, see Link.Cause.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateVerified:
		return "verified"
	case StateUnverified:
		return "unverified"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
