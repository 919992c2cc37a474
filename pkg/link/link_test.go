package link

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// fakePort is a scripted serial peer. The respond function maps each written
// token to a reply line; an empty reply means silence.
type fakePort struct {
	respond  func(token string) string
	writes   []string
	buf      []byte
	writeErr error
	readErr  error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	token := strings.TrimSpace(string(b))
	p.writes = append(p.writes, token)
	if p.respond != nil {
		if reply := p.respond(token); reply != "" {
			p.buf = append(p.buf, []byte(reply+"\r\n")...)
		}
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.buf) == 0 {
		// Simulate a read timeout tick.
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

// readyPeer answers the probe with the ready banner and confirms commands.
func readyPeer(token string) string {
	switch token {
	case "ping":
		return "Arduino ready"
	case "1":
		return "LED on"
	case "0":
		return "LED off"
	default:
		return ""
	}
}

func testConfig(port *fakePort) Config {
	return Config{
		Port:        "/dev/fake0",
		Timeout:     100 * time.Millisecond,
		SettleDelay: time.Millisecond,
		Open: func(string, int) (Port, error) {
			return port, nil
		},
	}
}

func TestConnect_VerifiedPeer(t *testing.T) {
	port := &fakePort{respond: readyPeer}
	l := New(testConfig(port))
	defer l.Disconnect()

	state, err := l.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if state != StateVerified {
		t.Errorf("Connect() state = %v, want %v", state, StateVerified)
	}
	if len(port.writes) != 1 || port.writes[0] != "ping" {
		t.Errorf("writes = %v, want [ping]", port.writes)
	}
}

func TestConnect_BootChatterBeforeReady(t *testing.T) {
	port := &fakePort{}
	port.buf = []byte("booting\r\nArduino ready\r\n")
	l := New(testConfig(port))
	defer l.Disconnect()

	state, err := l.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if state != StateVerified {
		t.Errorf("Connect() state = %v, want %v", state, StateVerified)
	}
}

func TestConnect_SilentPeer(t *testing.T) {
	port := &fakePort{} // never responds
	cfg := testConfig(port)
	cfg.RequireDevice = true
	l := New(cfg)
	defer l.Disconnect()

	start := time.Now()
	state, err := l.Connect()
	elapsed := time.Since(start)

	if !errors.Is(err, ErrDeviceNotVerified) {
		t.Errorf("Connect() error = %v, want ErrDeviceNotVerified", err)
	}
	if state != StateUnverified {
		t.Errorf("Connect() state = %v, want %v", state, StateUnverified)
	}
	if elapsed > time.Second {
		t.Errorf("Connect() took %v, must not block far past the %v timeout", elapsed, cfg.Timeout)
	}
	if !port.closed {
		t.Error("port left open after failed verification")
	}
}

func TestConnect_SilentPeerAllowed(t *testing.T) {
	port := &fakePort{}
	l := New(testConfig(port)) // RequireDevice false
	defer l.Disconnect()

	state, err := l.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v, want nil without RequireDevice", err)
	}
	if state != StateUnverified {
		t.Errorf("Connect() state = %v, want %v", state, StateUnverified)
	}
}

func TestConnect_Idempotent(t *testing.T) {
	opens := 0
	port := &fakePort{respond: readyPeer}
	cfg := testConfig(port)
	cfg.Open = func(string, int) (Port, error) {
		opens++
		return port, nil
	}
	l := New(cfg)
	defer l.Disconnect()

	if _, err := l.Connect(); err != nil {
		t.Fatalf("first Connect() error = %v", err)
	}
	state, err := l.Connect()
	if err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if state != StateVerified {
		t.Errorf("second Connect() state = %v, want %v", state, StateVerified)
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1 (Connect on a verified link is a no-op)", opens)
	}
}

func TestConnect_OpenFailure(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Open = func(string, int) (Port, error) {
		return nil, errors.New("permission denied")
	}
	l := New(cfg)
	defer l.Disconnect()

	state, err := l.Connect()
	if !errors.Is(err, ErrPortUnavailable) {
		t.Errorf("Connect() error = %v, want ErrPortUnavailable", err)
	}
	if state != StateFailed {
		t.Errorf("Connect() state = %v, want %v", state, StateFailed)
	}
	if l.Cause() == nil {
		t.Error("Cause() = nil, want recorded failure")
	}
}

func TestConnect_DiscoveryTriesNextCandidate(t *testing.T) {
	// First candidate opens but stays silent, second one verifies.
	silent := &fakePort{}
	verified := &fakePort{respond: readyPeer}
	cfg := Config{
		Timeout:     50 * time.Millisecond,
		SettleDelay: time.Millisecond,
		Discover: func() ([]PortCandidate, error) {
			return []PortCandidate{{Path: "/dev/silent"}, {Path: "/dev/good"}}, nil
		},
		Open: func(path string, _ int) (Port, error) {
			if path == "/dev/silent" {
				return silent, nil
			}
			return verified, nil
		},
	}
	l := New(cfg)
	defer l.Disconnect()

	state, err := l.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if state != StateVerified {
		t.Errorf("Connect() state = %v, want %v", state, StateVerified)
	}
	if l.PortPath() != "/dev/good" {
		t.Errorf("PortPath() = %q, want /dev/good", l.PortPath())
	}
	if !silent.closed {
		t.Error("silent candidate port left open")
	}
}

func TestConnect_NoCandidates(t *testing.T) {
	cfg := Config{
		Discover: func() ([]PortCandidate, error) { return nil, nil },
	}
	l := New(cfg)

	_, err := l.Connect()
	if !errors.Is(err, ErrNoCandidatePorts) {
		t.Errorf("Connect() error = %v, want ErrNoCandidatePorts", err)
	}
}

func TestSend_NotReady(t *testing.T) {
	port := &fakePort{}
	l := New(testConfig(port))

	err := l.Send(CommandActivate)
	if !errors.Is(err, ErrLinkNotReady) {
		t.Errorf("Send() error = %v, want ErrLinkNotReady", err)
	}
	if len(port.writes) != 0 {
		t.Errorf("writes = %v, want none (no I/O before verification)", port.writes)
	}
}

func TestSend_Confirmed(t *testing.T) {
	port := &fakePort{respond: readyPeer}
	l := New(testConfig(port))
	defer l.Disconnect()

	if _, err := l.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := l.Send(CommandActivate); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if l.State() != StateVerified {
		t.Errorf("State() = %v, want %v", l.State(), StateVerified)
	}
	if got := port.writes[len(port.writes)-1]; got != "1" {
		t.Errorf("last write = %q, want %q", got, "1")
	}
}

func TestSend_WriteFailure(t *testing.T) {
	port := &fakePort{respond: readyPeer}
	l := New(testConfig(port))

	if _, err := l.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	port.writeErr = io.ErrClosedPipe

	err := l.Send(CommandActivate)
	if !errors.Is(err, ErrLinkLost) {
		t.Errorf("Send() error = %v, want ErrLinkLost", err)
	}
	if l.State() != StateFailed {
		t.Errorf("State() = %v, want %v", l.State(), StateFailed)
	}
	if !port.closed {
		t.Error("port left open after write failure")
	}
}

func TestSend_MissedAcksDowngrade(t *testing.T) {
	confirms := true
	port := &fakePort{respond: func(token string) string {
		if token == "ping" {
			return "Arduino ready"
		}
		if confirms {
			return "ok"
		}
		return ""
	}}
	cfg := testConfig(port)
	cfg.Timeout = 30 * time.Millisecond
	l := New(cfg)

	if _, err := l.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// A confirmed command keeps the counter at zero.
	if err := l.Send(CommandActivate); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if l.missedAcks != 0 {
		t.Errorf("missedAcks = %d, want 0 after confirmation", l.missedAcks)
	}

	// Three consecutive silent commands downgrade the link.
	confirms = false
	for i := 0; i < 3; i++ {
		if err := l.Send(CommandDeactivate); err != nil {
			t.Fatalf("Send() #%d error = %v (missing confirmation is not a send error)", i+1, err)
		}
		if i < 2 && l.State() != StateVerified {
			t.Fatalf("State() = %v after %d misses, want still verified", l.State(), i+1)
		}
	}
	if l.State() != StateUnverified {
		t.Errorf("State() = %v after 3 misses, want %v", l.State(), StateUnverified)
	}
	if !port.closed {
		t.Error("port left open after downgrade")
	}

	// The downgraded link refuses further sends until reconnected.
	if err := l.Send(CommandActivate); !errors.Is(err, ErrLinkNotReady) {
		t.Errorf("Send() after downgrade error = %v, want ErrLinkNotReady", err)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	port := &fakePort{respond: readyPeer}
	l := New(testConfig(port))

	if _, err := l.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	l.Disconnect()
	l.Disconnect()

	if l.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", l.State(), StateDisconnected)
	}
	if !port.closed {
		t.Error("port not closed by Disconnect")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateVerified, "verified"},
		{StateUnverified, "unverified"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCommand_Tokens(t *testing.T) {
	if got := CommandActivate.Token(); got != "1" {
		t.Errorf("CommandActivate.Token() = %q, want %q", got, "1")
	}
	if got := CommandDeactivate.Token(); got != "0" {
		t.Errorf("CommandDeactivate.Token() = %q, want %q", got, "0")
	}
	if got := CommandProbe.Token(); got != "ping" {
		t.Errorf("CommandProbe.Token() = %q, want %q", got, "ping")
	}
}
