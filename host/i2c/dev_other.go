//go:build !linux

package i2c

import "errors"

// ErrUnsupported is returned by DevDriver on platforms without i2c-dev.
var ErrUnsupported = errors.New("i2c: i2c-dev is only available on linux")

// DevDriver opens Linux i2c-dev character devices. Unavailable on this platform.
type DevDriver struct {
	PathFormat string
}

// NewDevDriver creates a DevDriver.
func NewDevDriver() *DevDriver {
	return &DevDriver{PathFormat: "/dev/i2c-%d"}
}

// Open always fails on this platform.
func (d *DevDriver) Open(bus BusID) (Bus, error) {
	return nil, ErrUnsupported
}
