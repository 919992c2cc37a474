package link

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/habproj/go-hab/internal/log"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBaudRate       = 9600
	DefaultTimeout        = 1 * time.Second
	DefaultSettleDelay    = 2 * time.Second
	DefaultMissedAckLimit = 3
	DefaultReadyPhrase    = "Arduino ready"

	// pollInterval bounds each blocking read so the response deadline is
	// checked regularly.
	pollInterval = 100 * time.Millisecond
)

// Config describes one serial session. Immutable once a Link is constructed.
type Config struct {
	// Port is the device path. Empty means auto-discover.
	Port string

	// BaudRate of the serial line. Defaults to 9600.
	BaudRate int

	// Timeout bounds every probe/confirmation read. Defaults to 1s.
	Timeout time.Duration

	// SettleDelay is waited after opening the port, because most boards
	// reset when the host opens the line. Defaults to 2s.
	SettleDelay time.Duration

	// ReadyPhrase must appear in the probe response for the peer to count
	// as verified. Defaults to "Arduino ready".
	ReadyPhrase string

	// MissedAckLimit is how many consecutive commands may go unconfirmed
	// before the link downgrades itself to unverified. Defaults to 3.
	MissedAckLimit int

	// RequireDevice makes Connect fail with ErrDeviceNotVerified when no
	// candidate verifies, instead of settling for a lesser state.
	RequireDevice bool

	// Open overrides the serial transport. Nil means go.bug.st/serial.
	Open Opener

	// Discover overrides candidate discovery. Nil means Discover.
	Discover func() ([]PortCandidate, error)
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ReadyPhrase == "" {
		c.ReadyPhrase = DefaultReadyPhrase
	}
	if c.MissedAckLimit == 0 {
		c.MissedAckLimit = DefaultMissedAckLimit
	}
	if c.Open == nil {
		c.Open = openSerial
	}
	if c.Discover == nil {
		c.Discover = Discover
	}
	return c
}

// Link is one exclusively-owned serial session to the LED controller.
// Not safe for concurrent use; exactly one caller drives it.
type Link struct {
	cfg Config
	log *slog.Logger

	port       Port
	portPath   string
	state      State
	cause      error
	missedAcks int
}

// New creates a disconnected Link. Call Connect before Send.
func New(cfg Config) *Link {
	return &Link{
		cfg:   cfg.withDefaults(),
		log:   log.With("component", "link"),
		state: StateDisconnected,
	}
}

// State returns the current link state.
func (l *Link) State() State {
	return l.state
}

// PortPath returns the device path of the current or last session, empty if
// the link never opened a port.
func (l *Link) PortPath() string {
	return l.portPath
}

// Cause returns the failure cause when the link is in StateFailed.
func (l *Link) Cause() error {
	return l.cause
}

// Connect establishes and verifies the session. With an explicit Config.Port
// it attempts that device only; otherwise it walks discovery candidates in
// priority order and stops at the first verified peer. Calling Connect on an
// already verified link is a no-op. Every attempt is bounded by the
// configured settle delay plus timeout.
func (l *Link) Connect() (State, error) {
	if l.state == StateVerified {
		return l.state, nil
	}
	l.reset()

	session := uuid.NewString()
	lg := l.log.With("session", session)

	candidates, err := l.candidates()
	if err != nil {
		return l.state, err
	}
	if len(candidates) == 0 {
		lg.Warn("no serial ports found")
		return l.state, ErrNoCandidatePorts
	}

	sawUnverified := false
	for _, cand := range candidates {
		state, err := l.attempt(lg, cand)
		switch state {
		case StateVerified:
			lg.Info("device verified", "port", cand.Path)
			return l.state, nil
		case StateUnverified:
			sawUnverified = true
			lg.Warn("port open but peer not responding", "port", cand.Path)
		default:
			lg.Warn("could not open port", "port", cand.Path, "error", err)
		}
	}

	if sawUnverified {
		l.state = StateUnverified
	}
	if l.cfg.RequireDevice {
		return l.state, ErrDeviceNotVerified
	}
	if l.cfg.Port != "" && !sawUnverified {
		// Explicit port that would not even open: surface the open failure
		// instead of silently degrading.
		return l.state, l.cause
	}
	return l.state, nil
}

// candidates resolves the ports to try, in priority order.
func (l *Link) candidates() ([]PortCandidate, error) {
	if l.cfg.Port != "" {
		return []PortCandidate{{Path: l.cfg.Port}}, nil
	}
	return l.cfg.Discover()
}

// attempt runs the full connect-and-verify sequence against one candidate.
// The port stays open only when the peer verifies.
func (l *Link) attempt(lg *slog.Logger, cand PortCandidate) (State, error) {
	l.state = StateConnecting
	l.portPath = cand.Path

	port, err := l.cfg.Open(cand.Path, l.cfg.BaudRate)
	if err != nil {
		l.state = StateFailed
		l.cause = fmt.Errorf("%w: %v", ErrPortUnavailable, err)
		return l.state, l.cause
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		l.state = StateFailed
		l.cause = fmt.Errorf("%w: set read timeout: %v", ErrPortUnavailable, err)
		return l.state, l.cause
	}

	// The board resets when the host opens the line; give the firmware its
	// startup window before probing.
	time.Sleep(l.cfg.SettleDelay)

	l.port = port
	if err := l.handshake(lg); err != nil {
		_ = port.Close()
		l.port = nil
		l.state = StateUnverified
		return l.state, nil
	}

	l.state = StateVerified
	l.missedAcks = 0
	return l.state, nil
}

// handshake writes one probe and waits for the ready phrase.
func (l *Link) handshake(lg *slog.Logger) error {
	if err := l.writeToken(CommandProbe); err != nil {
		return err
	}
	deadline := time.Now().Add(l.cfg.Timeout)
	for {
		line, err := l.readLine(deadline)
		if err != nil {
			return err
		}
		if strings.Contains(line, l.cfg.ReadyPhrase) {
			return nil
		}
		// Boot chatter before the ready banner is normal; keep reading
		// until the deadline.
		lg.Debug("handshake response", "line", line)
	}
}

// Send transmits one command. Valid only on a verified link; otherwise it
// returns ErrLinkNotReady without touching the wire. A confirmation line is
// read best-effort: one missing confirmation is tolerated, but
// MissedAckLimit consecutive misses downgrade the link to unverified since
// the peer may have reset or been unplugged.
func (l *Link) Send(cmd Command) error {
	if l.state != StateVerified {
		return ErrLinkNotReady
	}

	if err := l.writeToken(cmd); err != nil {
		l.fail(err)
		return fmt.Errorf("%w: %v", ErrLinkLost, err)
	}

	line, err := l.readLine(time.Now().Add(l.cfg.Timeout))
	switch {
	case errors.Is(err, errNoResponse):
		l.missedAcks++
		l.log.Debug("no confirmation", "command", cmd, "missed", l.missedAcks)
		if l.missedAcks >= l.cfg.MissedAckLimit {
			l.log.Warn("peer stopped confirming, downgrading link",
				"port", l.portPath, "missed", l.missedAcks)
			l.closePort()
			l.state = StateUnverified
		}
	case err != nil:
		l.fail(err)
		return fmt.Errorf("%w: %v", ErrLinkLost, err)
	default:
		l.missedAcks = 0
		l.log.Debug("command confirmed", "command", cmd, "response", line)
	}
	return nil
}

// ReadLine reads one peer line, waiting up to timeout. Used by tooling that
// monitors the device; requires an open port.
func (l *Link) ReadLine(timeout time.Duration) (string, error) {
	if l.port == nil {
		return "", ErrLinkNotReady
	}
	return l.readLine(time.Now().Add(timeout))
}

// Disconnect releases the device unconditionally and is idempotent. It must
// run on every exit path, including failed verification.
func (l *Link) Disconnect() {
	if l.port != nil {
		l.log.Info("disconnecting", "port", l.portPath)
	}
	l.reset()
}

func (l *Link) reset() {
	l.closePort()
	l.state = StateDisconnected
	l.cause = nil
	l.missedAcks = 0
}

func (l *Link) closePort() {
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
}

func (l *Link) fail(cause error) {
	l.closePort()
	l.state = StateFailed
	l.cause = fmt.Errorf("%w: %v", ErrLinkLost, cause)
}

func (l *Link) writeToken(cmd Command) error {
	_, err := l.port.Write([]byte(cmd.Token() + "\n"))
	return err
}

// readLine accumulates bytes until a newline or the deadline. The port's
// poll timeout keeps each Read short so the deadline is honored; a Read that
// returns no data simply ticks the loop.
func (l *Link) readLine(deadline time.Time) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := l.port.Read(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		switch buf[0] {
		case '\n':
			return string(line), nil
		case '\r':
			// swallow
		default:
			line = append(line, buf[0])
		}
	}
	return "", errNoResponse
}
