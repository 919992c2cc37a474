// Package dispatch translates classifier output into actuator commands.
//
// The Dispatcher sits above pkg/link and applies three policies: the
// label-to-command mapping, a debounce that suppresses consecutive identical
// commands, and the degraded-mode behavior when no hardware is present.
// It adds no error semantics of its own; link errors pass through unchanged.
package dispatch

import (
	"errors"
	"log/slog"
	"time"

	"github.com/habproj/go-hab/internal/log"
	"github.com/habproj/go-hab/pkg/link"
)

// DeviceLink is the slice of the link contract the Dispatcher consumes.
// *link.Link satisfies it; tests substitute a fake.
type DeviceLink interface {
	Connect() (link.State, error)
	Send(link.Command) error
	State() link.State
	Disconnect()
}

var _ DeviceLink = (*link.Link)(nil)

// Result is the outcome of one dispatch cycle.
type Result int

const (
	// ResultSkipped means no command was resolved or no link is available;
	// zero I/O happened.
	ResultSkipped Result = iota

	// ResultSuppressed means the resolved command equals the last one sent,
	// so the send was debounced.
	ResultSuppressed

	// ResultSent means the command went out on the wire.
	ResultSent
)

// String returns a human-readable result name.
func (r Result) String() string {
	switch r {
	case ResultSuppressed:
		return "suppressed"
	case ResultSent:
		return "sent"
	default:
		return "skipped"
	}
}

// Classification is one classifier verdict, supplied once per inference cycle.
type Classification struct {
	Label      string
	Confidence float64
}

// Mapping resolves classifier labels to commands. Labels with no entry
// produce no command. This table is the single place classification
// semantics are encoded.
type Mapping map[string]link.Command

// DefaultMapping is the reference mapping for the LED firmware.
func DefaultMapping() Mapping {
	return Mapping{
		"Good": link.CommandActivate,
		"Bad":  link.CommandDeactivate,
		// "Nothing" intentionally absent: it maps to no command.
	}
}

// Config holds dispatcher policy.
type Config struct {
	// Mapping resolves labels to commands. Nil means DefaultMapping.
	Mapping Mapping

	// MinConfidence skips classifications below this score. Zero accepts all.
	MinConfidence float64

	// RequireDevice makes construction fail when the link cannot verify.
	RequireDevice bool

	// AllowDegraded keeps the loop running without hardware: construction
	// succeeds with no link, and a lost link detaches instead of erroring.
	AllowDegraded bool
}

// Stats are cumulative dispatch counters for one session.
type Stats struct {
	Sent        uint64
	Suppressed  uint64
	Skipped     uint64
	LastCommand string
	LastSentAt  time.Time
}

// Dispatcher owns one DeviceLink and drives it once per inference cycle.
// Single-threaded by design: the classification loop is the only caller.
type Dispatcher struct {
	cfg Config
	lnk DeviceLink // nil while running degraded
	log *slog.Logger

	lastCmd    link.Command
	hasLast    bool
	lastSentAt time.Time
	stats      Stats
}

// New builds a Dispatcher and applies the startup policy: the link is
// connected immediately. A failed connect is fatal when RequireDevice is
// set; with AllowDegraded the Dispatcher comes up with no link attached and
// every Dispatch call short-circuits to skipped.
func New(lnk DeviceLink, cfg Config) (*Dispatcher, error) {
	if cfg.Mapping == nil {
		cfg.Mapping = DefaultMapping()
	}
	d := &Dispatcher{
		cfg: cfg,
		lnk: lnk,
		log: log.With("component", "dispatch"),
	}

	if lnk == nil {
		d.log.Warn("no device link configured, running degraded")
		return d, nil
	}

	state, err := lnk.Connect()
	if err != nil || state != link.StateVerified {
		if cfg.RequireDevice {
			lnk.Disconnect()
			if err == nil {
				err = link.ErrDeviceNotVerified
			}
			return nil, err
		}
		if cfg.AllowDegraded {
			d.log.Warn("device unavailable, continuing without hardware",
				"state", state, "error", err)
			lnk.Disconnect()
			d.lnk = nil
			return d, nil
		}
	}
	return d, nil
}

// Dispatch resolves the classification to at most one command and sends it.
// Redundant sends are suppressed: the peer treats repeated identical
// commands as no-ops, so the debounce is purely traffic reduction. A link
// that downgraded itself gets one reconnect attempt before the send.
func (d *Dispatcher) Dispatch(c Classification) (Result, error) {
	cmd, ok := d.cfg.Mapping[c.Label]
	if !ok || c.Confidence < d.cfg.MinConfidence {
		d.stats.Skipped++
		return ResultSkipped, nil
	}

	if d.lnk == nil {
		d.stats.Skipped++
		return ResultSkipped, nil
	}

	if d.lnk.State() != link.StateVerified {
		if state, err := d.lnk.Connect(); err != nil || state != link.StateVerified {
			return d.linkDown(err)
		}
		// The board reboots when the port reopens, so the last command no
		// longer reflects peer state.
		d.hasLast = false
		d.log.Info("link reestablished")
	}

	if d.hasLast && cmd == d.lastCmd {
		d.stats.Suppressed++
		return ResultSuppressed, nil
	}

	if err := d.lnk.Send(cmd); err != nil {
		if errors.Is(err, link.ErrLinkLost) {
			return d.linkDown(err)
		}
		d.stats.Skipped++
		return ResultSkipped, err
	}

	d.lastCmd = cmd
	d.hasLast = true
	d.lastSentAt = time.Now()
	d.stats.Sent++
	d.stats.LastCommand = cmd.String()
	d.stats.LastSentAt = d.lastSentAt
	d.log.Info("command dispatched", "label", c.Label, "command", cmd)
	return ResultSent, nil
}

// linkDown applies the configured policy for an unusable link: detach and
// keep going when degraded mode is allowed, otherwise surface the link's
// error unchanged.
func (d *Dispatcher) linkDown(err error) (Result, error) {
	d.stats.Skipped++
	if d.cfg.AllowDegraded {
		d.log.Warn("link lost, continuing without hardware", "error", err)
		d.lnk.Disconnect()
		d.lnk = nil
		return ResultSkipped, nil
	}
	return ResultSkipped, err
}

// Degraded reports whether the Dispatcher is running without hardware.
func (d *Dispatcher) Degraded() bool {
	return d.lnk == nil
}

// LinkState returns the current link state, or StateDisconnected when
// running degraded.
func (d *Dispatcher) LinkState() link.State {
	if d.lnk == nil {
		return link.StateDisconnected
	}
	return d.lnk.State()
}

// Stats returns a copy of the cumulative counters.
func (d *Dispatcher) Stats() Stats {
	return d.stats
}

// Close releases the link if one is attached. Idempotent.
func (d *Dispatcher) Close() {
	if d.lnk != nil {
		d.lnk.Disconnect()
		d.lnk = nil
	}
}
