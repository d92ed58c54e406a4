// Package i2ctest provides a recording in-memory bus driver for tests.
package i2ctest

import (
	"errors"
	"fmt"
	"sync"

	"crumbs/host/i2c"
)

// ErrNoResponse is returned by Read when nothing was queued for an address.
var ErrNoResponse = errors.New("i2ctest: no response queued")

// Op is the kind of a recorded transaction.
type Op string

const (
	OpWrite Op = "write"
	OpRead  Op = "read"
)

// Transaction is one recorded bus transaction.
type Transaction struct {
	Bus  i2c.BusID
	Op   Op
	Addr i2c.Address
	Data []byte // Bytes written, or bytes returned by a read
	Len  int    // Requested read length
}

// Driver is a mock i2c.Driver. Configure the exported error fields and
// queued responses before use; inspect Transactions afterwards.
type Driver struct {
	mu sync.Mutex

	OpenErr  error
	WriteErr error
	ReadErr  error

	Opens  int
	Closes int

	transactions []Transaction
	responses    map[i2c.Address][][]byte
}

// NewDriver creates an empty mock driver.
func NewDriver() *Driver {
	return &Driver{responses: make(map[i2c.Address][][]byte)}
}

// QueueResponse queues raw bytes to be returned by the next Read from addr.
// The bytes are returned as-is, even when shorter or longer than requested.
func (d *Driver) QueueResponse(addr i2c.Address, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.responses == nil {
		d.responses = make(map[i2c.Address][][]byte)
	}
	d.responses[addr] = append(d.responses[addr], append([]byte(nil), data...))
}

// Transactions returns a copy of the recorded transactions.
func (d *Driver) Transactions() []Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transaction(nil), d.transactions...)
}

// TransactionCount returns the number of recorded transactions.
func (d *Driver) TransactionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transactions)
}

// Open implements i2c.Driver.
func (d *Driver) Open(bus i2c.BusID) (i2c.Bus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.Opens++
	return &Bus{driver: d, id: bus}, nil
}

// Bus is a handle returned by Driver.Open.
type Bus struct {
	driver *Driver
	id     i2c.BusID
	closed bool
}

func (b *Bus) Write(addr i2c.Address, data []byte) error {
	d := b.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.closed {
		return fmt.Errorf("i2ctest: write on closed bus %d", b.id)
	}
	d.transactions = append(d.transactions, Transaction{
		Bus:  b.id,
		Op:   OpWrite,
		Addr: addr,
		Data: append([]byte(nil), data...),
	})
	return d.WriteErr
}

func (b *Bus) Read(addr i2c.Address, n int) ([]byte, error) {
	d := b.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("i2ctest: read on closed bus %d", b.id)
	}
	tx := Transaction{Bus: b.id, Op: OpRead, Addr: addr, Len: n}
	if d.ReadErr != nil {
		d.transactions = append(d.transactions, tx)
		return nil, d.ReadErr
	}
	queue := d.responses[addr]
	if len(queue) == 0 {
		d.transactions = append(d.transactions, tx)
		return nil, ErrNoResponse
	}
	resp := queue[0]
	d.responses[addr] = queue[1:]
	tx.Data = resp
	d.transactions = append(d.transactions, tx)
	return append([]byte(nil), resp...), nil
}

// Close fails if the handle was already released.
func (b *Bus) Close() error {
	d := b.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.closed {
		return fmt.Errorf("i2ctest: bus %d closed twice", b.id)
	}
	b.closed = true
	d.Closes++
	return nil
}
