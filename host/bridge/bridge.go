// Package bridge reaches an I2C bus through a microcontroller running
// Klipper-compatible firmware (such as gopper) attached over a serial port.
// Every bus transaction becomes one i2c_write or i2c_read command.
package bridge

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crumbs/host/i2c"
	"crumbs/host/klipper"
)

// DefaultRate is the bus clock requested from the MCU, in Hz
const DefaultRate = 100000

// Config configures the bridge driver
type Config struct {
	Serial SerialConfig

	// Rate is the I2C clock in Hz. Zero means DefaultRate.
	Rate uint32

	// ResponseTimeout bounds each ACK and response wait. Zero means one second.
	ResponseTimeout time.Duration

	Logger zerolog.Logger

	// Dial opens the link to the MCU. Nil means OpenSerial.
	Dial func(SerialConfig) (io.ReadWriteCloser, error)
}

// Driver is an i2c.Driver backed by a Klipper MCU
type Driver struct {
	cfg Config
}

// NewDriver creates a bridge driver
func NewDriver(cfg Config) *Driver {
	if cfg.Rate == 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = OpenSerial
	}
	return &Driver{cfg: cfg}
}

// commandSet holds the dictionary IDs the bridge depends on
type commandSet struct {
	configI2C    uint32
	setBus       uint32
	write        uint32
	read         uint32
	readResponse uint32
}

func resolveCommands(dict *klipper.Dictionary) (commandSet, error) {
	var cs commandSet
	var ok bool
	for _, c := range []struct {
		name     string
		id       *uint32
		response bool
	}{
		{"config_i2c", &cs.configI2C, false},
		{"i2c_set_bus", &cs.setBus, false},
		{"i2c_write", &cs.write, false},
		{"i2c_read", &cs.read, false},
		{"i2c_read_response", &cs.readResponse, true},
	} {
		if c.response {
			*c.id, ok = dict.ResponseID(c.name)
		} else {
			*c.id, ok = dict.CommandID(c.name)
		}
		if !ok {
			return commandSet{}, fmt.Errorf("mcu does not support %s", c.name)
		}
	}
	return cs, nil
}

// Open connects to the MCU and loads its dictionary
func (d *Driver) Open(bus i2c.BusID) (i2c.Bus, error) {
	port, err := d.cfg.Dial(d.cfg.Serial)
	if err != nil {
		return nil, err
	}

	logger := d.cfg.Logger.With().Uint8("bus", uint8(bus)).Logger()
	tr := klipper.NewTransport(port, logger)

	dict, err := klipper.RetrieveDictionary(tr, d.cfg.ResponseTimeout)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
	}
	cmds, err := resolveCommands(dict)
	if err != nil {
		tr.Close()
		return nil, err
	}

	logger.Debug().Str("version", dict.Version).Msg("bridge mcu identified")
	return &Bus{
		id:        bus,
		rate:      d.cfg.Rate,
		logger:    logger,
		timeout:   d.cfg.ResponseTimeout,
		transport: tr,
		cmds:      cmds,
		oids:      make(map[i2c.Address]uint8),
	}, nil
}

// Bus is an open bridge connection
type Bus struct {
	mu sync.Mutex

	id        i2c.BusID
	rate      uint32
	logger    zerolog.Logger
	timeout   time.Duration
	transport *klipper.Transport
	cmds      commandSet

	oids    map[i2c.Address]uint8
	nextOID int
}

// device returns the oid configured for addr, allocating one on first use
func (b *Bus) device(addr i2c.Address) (uint8, error) {
	if oid, ok := b.oids[addr]; ok {
		return oid, nil
	}
	if b.nextOID > 0xFF {
		return 0, fmt.Errorf("bridge: out of object ids")
	}
	oid := uint8(b.nextOID)

	if err := b.transport.SendCommand(b.cmds.configI2C, klipper.AppendVLQUint(nil, uint32(oid)), b.timeout); err != nil {
		return 0, fmt.Errorf("config_i2c oid=%d: %w", oid, err)
	}
	args := klipper.AppendVLQUint(nil, uint32(oid))
	args = klipper.AppendVLQUint(args, uint32(b.id))
	args = klipper.AppendVLQUint(args, b.rate)
	args = klipper.AppendVLQUint(args, uint32(addr))
	if err := b.transport.SendCommand(b.cmds.setBus, args, b.timeout); err != nil {
		return 0, fmt.Errorf("i2c_set_bus oid=%d: %w", oid, err)
	}

	b.nextOID++
	b.oids[addr] = oid
	return oid, nil
}

// Write sends data to addr with i2c_write
func (b *Bus) Write(addr i2c.Address, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	oid, err := b.device(addr)
	if err != nil {
		return err
	}
	args := klipper.AppendVLQUint(nil, uint32(oid))
	args = klipper.AppendVLQBytes(args, data)
	if err := b.transport.SendCommand(b.cmds.write, args, b.timeout); err != nil {
		return fmt.Errorf("i2c_write to %s: %w", addr, err)
	}
	return nil
}

// Read reads n bytes from addr with i2c_read and waits for the response
func (b *Bus) Read(addr i2c.Address, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oid, err := b.device(addr)
	if err != nil {
		return nil, err
	}
	// A response to an earlier read that timed out must not answer this one
	if stale := b.transport.Discard(b.isReadResponse(oid, nil)); stale > 0 {
		b.logger.Debug().Str("addr", addr.String()).Int("responses", stale).Msg("discarded stale i2c_read_response")
	}

	args := klipper.AppendVLQUint(nil, uint32(oid))
	args = klipper.AppendVLQBytes(args, nil)
	args = klipper.AppendVLQUint(args, uint32(n))
	if err := b.transport.SendCommand(b.cmds.read, args, b.timeout); err != nil {
		return nil, fmt.Errorf("i2c_read from %s: %w", addr, err)
	}

	var data []byte
	_, err = b.transport.WaitResponse(b.isReadResponse(oid, &data), b.timeout)
	if err != nil {
		return nil, fmt.Errorf("i2c_read from %s: %w", addr, err)
	}
	if len(data) != n {
		return nil, fmt.Errorf("i2c_read from %s: %w: %d/%d bytes", addr, i2c.ErrShortTransfer, len(data), n)
	}
	return append([]byte(nil), data...), nil
}

// isReadResponse matches i2c_read_response for oid, storing its data in dst
// when dst is not nil
func (b *Bus) isReadResponse(oid uint8, dst *[]byte) func(klipper.Response) bool {
	return func(r klipper.Response) bool {
		if r.CmdID != b.cmds.readResponse {
			return false
		}
		rest := r.Args
		respOID, err := klipper.DecodeVLQUint(&rest)
		if err != nil || respOID != uint32(oid) {
			return false
		}
		data, err := klipper.DecodeVLQBytes(&rest)
		if err != nil {
			return false
		}
		if dst != nil {
			*dst = data
		}
		return true
	}
}

// Close disconnects from the MCU. Closing twice is a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transport.Close()
}
