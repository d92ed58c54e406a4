package leader

import (
	"errors"
	"fmt"

	"crumbs/host/i2c"
)

var (
	ErrNotOpen        = errors.New("leader: transport not open")
	ErrInvalidAddress = errors.New("leader: invalid address")
	ErrBusUnavailable = errors.New("leader: bus unavailable")
	ErrTransport      = errors.New("leader: transport error")
)

// TransportError wraps a failure reported by the bus driver during a send or
// request. errors.Is(err, ErrTransport) holds for every TransportError.
type TransportError struct {
	Op   string
	Addr i2c.Address
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("leader: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Retryable reports whether repeating the call may succeed. Only bus
// failures qualify; integrity and misuse errors never do.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
