// Package i2c defines the bus driver interface the leader transport runs on,
// together with drivers for Linux i2c-dev and TinyGo buses.
package i2c

import (
	"errors"
	"fmt"
)

// BusID identifies a specific I2C bus (e.g., /dev/i2c-1 on a Raspberry Pi).
type BusID uint8

// Address is a 7-bit I2C device address.
type Address uint8

// MaxAddress is the highest valid 7-bit address.
const MaxAddress Address = 0x7F

// Valid reports whether a fits in 7 bits.
func (a Address) Valid() bool {
	return a <= MaxAddress
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02X", uint8(a))
}

// ErrShortTransfer is returned when the bus moved fewer bytes than requested.
var ErrShortTransfer = errors.New("i2c: short transfer")

// Driver acquires bus handles.
type Driver interface {
	// Open acquires exclusive use of the given bus.
	Open(bus BusID) (Bus, error)
}

// Bus is an open bus handle. Each call is one addressed bus transaction.
type Bus interface {
	// Write transmits data to the device at addr.
	Write(addr Address, data []byte) error

	// Read reads exactly n bytes from the device at addr.
	Read(addr Address, n int) ([]byte, error)

	// Close releases the handle.
	Close() error
}
