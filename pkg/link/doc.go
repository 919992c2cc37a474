// Package link owns the serial connection to the LED controller firmware.
//
// A Link covers the full lifecycle of one physical serial session:
// candidate-port discovery, connection, a ping/ack handshake that proves the
// peer is the expected firmware rather than an arbitrary open device, raw
// command transmission, and teardown. A Link is owned by exactly one caller;
// it holds no internal locking by design.
//
// Example usage:
//
//	l := link.New(link.Config{Timeout: time.Second})
//	state, err := l.Connect()
//	if err != nil {
//	    // no device found or handshake failed
//	}
//	defer l.Disconnect()
//
//	if state == link.StateVerified {
//	    _ = l.Send(link.CommandActivate)
//	}
package link
