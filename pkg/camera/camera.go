// Package camera wraps a local video device as a frame source.
//
// Frames form a lazy, infinite, non-restartable sequence: the caller reads
// one frame at a time and owns when to stop. The camera owns its device
// handle; Close releases it.
package camera

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/habproj/go-hab/internal/log"
)

// Camera is one open capture device.
type Camera struct {
	id  int
	cap *gocv.VideoCapture
}

// Open acquires the capture device. ID 0 is usually the built-in webcam.
func Open(deviceID int) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", deviceID, err)
	}
	if !cap.IsOpened() {
		_ = cap.Close()
		return nil, fmt.Errorf("camera %d: device not available", deviceID)
	}
	log.Info("camera started", "device", deviceID)
	return &Camera{id: deviceID, cap: cap}, nil
}

// Read fills dst with the next frame.
func (c *Camera) Read(dst *gocv.Mat) error {
	if !c.cap.Read(dst) {
		return fmt.Errorf("camera %d: read frame failed", c.id)
	}
	if dst.Empty() {
		return fmt.Errorf("camera %d: empty frame", c.id)
	}
	return nil
}

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() error {
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	log.Info("camera released", "device", c.id)
	return err
}
