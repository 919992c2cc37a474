package link

import "errors"

// Sentinel errors for common failure conditions.
var (
	// ErrPortUnavailable is returned when a serial device cannot be opened
	// (missing device, permissions, busy port).
	ErrPortUnavailable = errors.New("link: serial port unavailable")

	// ErrDeviceNotVerified is returned when no candidate answered the
	// handshake with the expected ready phrase.
	ErrDeviceNotVerified = errors.New("link: device did not verify handshake")

	// ErrLinkNotReady is returned when Send is called on a link that is not
	// verified. No I/O is performed.
	ErrLinkNotReady = errors.New("link: link not ready")

	// ErrLinkLost is returned when I/O fails during an established session.
	ErrLinkLost = errors.New("link: connection lost")

	// ErrNoCandidatePorts is returned when discovery finds no serial ports.
	ErrNoCandidatePorts = errors.New("link: no candidate serial ports")

	// errNoResponse is internal: the peer sent nothing before the deadline.
	errNoResponse = errors.New("link: no response before deadline")
)
