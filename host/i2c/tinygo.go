package i2c

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// TxDriver adapts buses implementing drivers.I2C (machine.I2C on TinyGo
// boards, or DevBus) to the Driver interface.
type TxDriver struct {
	Buses map[BusID]drivers.I2C
}

// NewTxDriver creates a driver serving a single bus.
func NewTxDriver(bus BusID, dev drivers.I2C) *TxDriver {
	return &TxDriver{Buses: map[BusID]drivers.I2C{bus: dev}}
}

// Open returns a handle for a registered bus.
func (d *TxDriver) Open(bus BusID) (Bus, error) {
	dev, ok := d.Buses[bus]
	if !ok || dev == nil {
		return nil, fmt.Errorf("i2c: bus %d not registered", bus)
	}
	return &txBus{dev: dev}, nil
}

type txBus struct {
	dev drivers.I2C
}

func (b *txBus) Write(addr Address, data []byte) error {
	return b.dev.Tx(uint16(addr), data, nil)
}

func (b *txBus) Read(addr Address, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.dev.Tx(uint16(addr), nil, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close is a no-op: the underlying bus belongs to the board.
func (b *txBus) Close() error {
	return nil
}
