//go:build linux

package i2c

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// ioctl request selecting the peripheral address for subsequent read/write (linux/i2c-dev.h)
const ioctlI2CSlave = 0x0703

// DevDriver opens Linux i2c-dev character devices (/dev/i2c-N).
type DevDriver struct {
	// PathFormat is formatted with the bus number. Defaults to "/dev/i2c-%d".
	PathFormat string
}

// NewDevDriver creates a DevDriver using the standard device path.
func NewDevDriver() *DevDriver {
	return &DevDriver{PathFormat: "/dev/i2c-%d"}
}

// Open opens /dev/i2c-N for reading and writing.
func (d *DevDriver) Open(bus BusID) (Bus, error) {
	format := d.PathFormat
	if format == "" {
		format = "/dev/i2c-%d"
	}
	path := fmt.Sprintf(format, bus)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DevBus{fd: fd, path: path, addr: -1}, nil
}

// DevBus is an open i2c-dev handle. It also implements drivers.I2C so TinyGo
// peripheral drivers can run on a Linux leader.
type DevBus struct {
	mu   sync.Mutex
	fd   int
	path string
	addr int // Address currently selected with I2C_SLAVE, -1 if none
}

var _ drivers.I2C = (*DevBus)(nil)

func (b *DevBus) selectAddress(addr Address) error {
	if b.fd < 0 {
		return fmt.Errorf("i2c: %s is closed", b.path)
	}
	if b.addr == int(addr) {
		return nil
	}
	if err := unix.IoctlSetInt(b.fd, ioctlI2CSlave, int(addr)); err != nil {
		return fmt.Errorf("select address %s on %s: %w", addr, b.path, err)
	}
	b.addr = int(addr)
	return nil
}

// Write performs one write transaction of all of data.
func (b *DevBus) Write(addr Address, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.selectAddress(addr); err != nil {
		return err
	}
	n, err := unix.Write(b.fd, data)
	if err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	if n != len(data) {
		return fmt.Errorf("write to %s: %w: %d/%d bytes", addr, ErrShortTransfer, n, len(data))
	}
	return nil
}

// Read performs one read transaction of n bytes.
func (b *DevBus) Read(addr Address, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.selectAddress(addr); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := unix.Read(b.fd, buf)
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", addr, err)
	}
	if got != n {
		return nil, fmt.Errorf("read from %s: %w: %d/%d bytes", addr, ErrShortTransfer, got, n)
	}
	return buf, nil
}

// Tx implements drivers.I2C. A write followed by a read is issued as two
// transactions; i2c-dev read/write cannot express a repeated start.
func (b *DevBus) Tx(addr uint16, w, r []byte) error {
	if addr > uint16(MaxAddress) {
		return fmt.Errorf("i2c: address 0x%X out of 7-bit range", addr)
	}
	if len(w) > 0 {
		if err := b.Write(Address(addr), w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		buf, err := b.Read(Address(addr), len(r))
		if err != nil {
			return err
		}
		copy(r, buf)
	}
	return nil
}

// Close closes the device file. Closing twice is a no-op.
func (b *DevBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	b.addr = -1
	return err
}
