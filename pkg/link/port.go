package link

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the minimal serial transport a Link needs. The production
// implementation is go.bug.st/serial; tests substitute a scripted fake.
// Read must honor the timeout set via SetReadTimeout and return (0, nil)
// when it expires with no data.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error
}

// Opener opens the serial device at path with the given baud rate.
type Opener func(path string, baud int) (Port, error)

// openSerial is the default Opener backed by go.bug.st/serial.
func openSerial(path string, baud int) (Port, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}
