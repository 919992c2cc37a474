package link

// Command is a wire-level actuator command. The mapping from classifier
// labels to commands lives in pkg/dispatch; the link only knows tokens.
type Command int

const (
	// CommandProbe asks the peer to prove it is the expected firmware.
	CommandProbe Command = iota

	// CommandActivate turns the output on.
	CommandActivate

	// CommandDeactivate turns the output off.
	CommandDeactivate
)

// Token returns the ASCII wire token for the command. Tokens are
// newline-terminated on the wire; the terminator is added by Send.
func (c Command) Token() string {
	switch c {
	case CommandActivate:
		return "1"
	case CommandDeactivate:
		return "0"
	default:
		return "ping"
	}
}

// String returns a human-readable command name for logs.
func (c Command) String() string {
	switch c {
	case CommandProbe:
		return "probe"
	case CommandActivate:
		return "activate"
	case CommandDeactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}
