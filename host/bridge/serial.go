package bridge

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig holds serial port configuration
type SerialConfig struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this)
	Baud int

	// Read timeout (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns the standard Klipper serial settings
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// OpenSerial opens a native serial port
func OpenSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial device not set")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}
