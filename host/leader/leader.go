// Package leader implements the bus-controller side of CRUMBS: it owns one
// bus handle and moves encoded messages to and from peripherals.
package leader

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crumbs/host/i2c"
	"crumbs/host/metrics"
	"crumbs/protocol"
)

// State is the transport lifecycle state
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Operation names used in logs, errors and metrics
const (
	OpSend    = "send"
	OpRequest = "request"
)

// Transport sends and requests CRUMBS messages over a single bus.
//
// Calls are serialized: each Send or Request performs at most one bus
// transaction and completes before the next call starts. There are no
// retries or timeouts at this layer.
type Transport struct {
	mu sync.Mutex

	driver i2c.Driver
	busID  i2c.BusID
	bus    i2c.Bus // nil while closed

	logger  zerolog.Logger
	metrics bool
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger attaches a logger. Transports are silent by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(enabled bool) Option {
	return func(t *Transport) {
		t.metrics = enabled
	}
}

// New creates a closed transport for the given bus
func New(driver i2c.Driver, bus i2c.BusID, opts ...Option) *Transport {
	t := &Transport{
		driver: driver,
		busID:  bus,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Bus returns the bus this transport was created for
func (t *Transport) Bus() i2c.BusID {
	return t.busID
}

// State returns the current lifecycle state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Transport) stateLocked() State {
	if t.bus == nil {
		return StateClosed
	}
	return StateOpen
}

// Open acquires the bus. Opening an open transport does nothing.
func (t *Transport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus != nil {
		return nil
	}
	if t.driver == nil {
		return fmt.Errorf("%w: bus %d: no driver", ErrBusUnavailable, t.busID)
	}

	bus, err := t.driver.Open(t.busID)
	if err != nil {
		t.logger.Error().Err(err).Uint8("bus", uint8(t.busID)).Msg("failed to open bus")
		return fmt.Errorf("%w: bus %d: %w", ErrBusUnavailable, t.busID, err)
	}
	if bus == nil {
		return fmt.Errorf("%w: bus %d: driver returned no handle", ErrBusUnavailable, t.busID)
	}

	t.bus = bus
	if t.metrics {
		metrics.BusOpened()
	}
	t.logger.Info().Uint8("bus", uint8(t.busID)).Msg("bus opened as leader")
	return nil
}

// Close releases the bus. Closing a closed transport does nothing. The
// handle is dropped even when the driver reports an error while closing.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus == nil {
		return nil
	}

	bus := t.bus
	t.bus = nil
	if t.metrics {
		metrics.BusClosed()
	}

	if err := bus.Close(); err != nil {
		t.logger.Warn().Err(err).Uint8("bus", uint8(t.busID)).Msg("error closing bus")
		return fmt.Errorf("close bus %d: %w", t.busID, err)
	}
	t.logger.Info().Uint8("bus", uint8(t.busID)).Msg("bus closed")
	return nil
}

// checkLocked validates the preconditions shared by Send and Request
func (t *Transport) checkLocked(addr i2c.Address) error {
	if t.bus == nil {
		return ErrNotOpen
	}
	if !addr.Valid() {
		return fmt.Errorf("%w: %s exceeds 7 bits", ErrInvalidAddress, addr)
	}
	return nil
}

// Send encodes m and writes the 31-byte frame to addr in one transaction
func (t *Transport) Send(m protocol.Message, addr i2c.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(addr); err != nil {
		t.record(OpSend, err, 0)
		return err
	}

	frame := protocol.Encode(m)
	start := time.Now()
	err := t.bus.Write(addr, frame[:])
	elapsed := time.Since(start)

	if err != nil {
		err = &TransportError{Op: OpSend, Addr: addr, Err: err}
		t.logger.Warn().Err(err).Str("addr", addr.String()).Msg("failed to send message")
		t.record(OpSend, err, elapsed)
		return err
	}

	t.logger.Debug().
		Str("addr", addr.String()).
		Hex("frame", frame[:]).
		Msg("message sent")
	t.record(OpSend, nil, elapsed)
	return nil
}

// Request reads one 31-byte frame from addr and decodes it
func (t *Transport) Request(addr i2c.Address) (protocol.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(addr); err != nil {
		t.record(OpRequest, err, 0)
		return protocol.Message{}, err
	}

	start := time.Now()
	buf, err := t.bus.Read(addr, protocol.MessageSize)
	elapsed := time.Since(start)

	if err != nil {
		err = &TransportError{Op: OpRequest, Addr: addr, Err: err}
		t.logger.Warn().Err(err).Str("addr", addr.String()).Msg("failed to request message")
		t.record(OpRequest, err, elapsed)
		return protocol.Message{}, err
	}

	m, err := protocol.Decode(buf)
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("addr", addr.String()).
			Hex("frame", buf).
			Msg("rejected frame")
		t.record(OpRequest, err, elapsed)
		return protocol.Message{}, err
	}

	t.logger.Debug().
		Str("addr", addr.String()).
		Int("bytes", len(buf)).
		Hex("frame", buf).
		Msg("message received")
	t.record(OpRequest, nil, elapsed)
	return m, nil
}

func (t *Transport) record(op string, err error, elapsed time.Duration) {
	if !t.metrics {
		return
	}
	metrics.RecordTransaction(op, resultLabel(err), elapsed)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrNotOpen):
		return metrics.ResultNotOpen
	case errors.Is(err, ErrInvalidAddress):
		return metrics.ResultAddress
	case errors.Is(err, ErrTransport):
		return metrics.ResultTransport
	case errors.Is(err, protocol.ErrFrameTooShort):
		return metrics.ResultShort
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return metrics.ResultChecksum
	default:
		return "error"
	}
}
