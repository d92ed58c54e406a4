// Package klippertest simulates a Klipper-protocol MCU that exposes its I2C
// buses through the config_i2c/i2c_write/i2c_read commands.
package klippertest

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"

	"crumbs/host/klipper"
)

// Command formats advertised in the simulated dictionary
var commandFormats = map[string]string{
	"identify":    "identify offset=%u count=%c",
	"config_i2c":  "config_i2c oid=%c",
	"i2c_set_bus": "i2c_set_bus oid=%c i2c_bus=%u rate=%u address=%u",
	"i2c_write":   "i2c_write oid=%c data=%*s",
	"i2c_read":    "i2c_read oid=%c reg=%*s read_len=%u",
}

var commandIDs = map[string]int{
	"identify":    klipper.IdentifyCmdID,
	"config_i2c":  2,
	"i2c_set_bus": 3,
	"i2c_write":   4,
	"i2c_read":    5,
}

const i2cReadResponseID = 6

// Device is an I2C device slot configured through config_i2c and i2c_set_bus
type Device struct {
	Bus     uint32
	Rate    uint32
	Address uint8
	Ready   bool
}

// MCU is an in-process MCU. Connect it to a host transport with Connect.
type MCU struct {
	mu sync.Mutex

	dictionary []byte
	commands   map[uint32]func(args *[]byte) ([]byte, error)
	nextSeq    uint8
	silent     bool
	duplicate  bool

	devices   map[uint8]*Device
	writes    map[uint8][][]byte
	responses map[uint8][]byte
}

// Option adjusts the simulated firmware
type Option func(*options)

type options struct {
	omit map[string]bool
}

// WithoutCommand leaves a command out of the dictionary
func WithoutCommand(name string) Option {
	return func(o *options) {
		o.omit[name] = true
	}
}

// NewMCU creates a simulator with a zlib-wrapped dictionary
func NewMCU(opts ...Option) *MCU {
	o := options{omit: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	m := &MCU{
		nextSeq:   klipper.DestBit,
		devices:   make(map[uint8]*Device),
		writes:    make(map[uint8][][]byte),
		responses: make(map[uint8][]byte),
	}
	handlers := map[string]func(args *[]byte) ([]byte, error){
		"identify":    m.handleIdentify,
		"config_i2c":  m.handleConfigI2C,
		"i2c_set_bus": m.handleSetBus,
		"i2c_write":   m.handleWrite,
		"i2c_read":    m.handleRead,
	}

	dict := klipper.Dictionary{
		Version:       "crumbs-sim",
		BuildVersions: "go",
		Config:        map[string]any{"MCU": "sim", "CLOCK_FREQ": 1000000},
		Commands:      make(map[string]int),
		Responses: map[string]int{
			"identify_response offset=%u data=%.*s": klipper.IdentifyResponseID,
			"i2c_read_response oid=%c response=%*s": i2cReadResponseID,
		},
	}
	m.commands = make(map[uint32]func(args *[]byte) ([]byte, error))
	for name, id := range commandIDs {
		if o.omit[name] {
			continue
		}
		dict.Commands[commandFormats[name]] = id
		m.commands[uint32(id)] = handlers[name]
	}

	raw, err := json.Marshal(dict)
	if err != nil {
		panic(err)
	}
	m.dictionary = storedZlib(raw)
	return m
}

// Connect returns the host end of an in-memory serial link served by m
func (m *MCU) Connect() io.ReadWriteCloser {
	host, mcu := net.Pipe()
	go m.Serve(mcu)
	return host
}

// Serve runs the MCU side of the link until conn fails
func (m *MCU) Serve(conn io.ReadWriteCloser) {
	defer conn.Close()

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		for {
			frame, consumed, ok := klipper.NextFrame(pending)
			pending = pending[consumed:]
			if !ok {
				break
			}
			out, err := m.receive(frame)
			if err != nil {
				return
			}
			if len(out) > 0 {
				if _, err := conn.Write(out); err != nil {
					return
				}
			}
		}
	}
}

// receive handles one host frame and returns the bytes to send back
func (m *MCU) receive(frame klipper.Frame) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.silent {
		return nil, nil
	}

	var out []byte
	if frame.Seq == m.nextSeq {
		m.nextSeq = klipper.NextSeq(frame.Seq)
		payload := frame.Payload
		for len(payload) > 0 {
			cmdID, err := klipper.DecodeVLQUint(&payload)
			if err != nil {
				return nil, err
			}
			handler, ok := m.commands[cmdID]
			if !ok {
				return nil, errors.New("klippertest: unknown command")
			}
			resp, err := handler(&payload)
			if err != nil {
				return nil, err
			}
			if resp != nil {
				encoded, err := klipper.EncodeFrame(m.nextSeq, resp)
				if err != nil {
					return nil, err
				}
				out = append(out, encoded...)
				if m.duplicate {
					out = append(out, encoded...)
				}
			}
		}
	}

	// ACK, or NAK carrying the expected sequence
	ack, err := klipper.EncodeFrame(m.nextSeq, nil)
	if err != nil {
		return nil, err
	}
	return append(out, ack...), nil
}

func (m *MCU) handleIdentify(args *[]byte) ([]byte, error) {
	offset, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}
	count, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}

	start := min(int(offset), len(m.dictionary))
	end := min(start+int(count), len(m.dictionary))

	resp := klipper.AppendVLQUint(nil, klipper.IdentifyResponseID)
	resp = klipper.AppendVLQUint(resp, offset)
	return klipper.AppendVLQBytes(resp, m.dictionary[start:end]), nil
}

func (m *MCU) handleConfigI2C(args *[]byte) ([]byte, error) {
	oid, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}
	m.devices[uint8(oid)] = &Device{}
	return nil, nil
}

func (m *MCU) handleSetBus(args *[]byte) ([]byte, error) {
	var vals [4]uint32
	for i := range vals {
		v, err := klipper.DecodeVLQUint(args)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	dev, ok := m.devices[uint8(vals[0])]
	if !ok {
		return nil, nil
	}
	dev.Bus = vals[1]
	dev.Rate = vals[2]
	dev.Address = uint8(vals[3] & 0x7F)
	dev.Ready = true
	return nil, nil
}

func (m *MCU) handleWrite(args *[]byte) ([]byte, error) {
	oid, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}
	data, err := klipper.DecodeVLQBytes(args)
	if err != nil {
		return nil, err
	}
	dev, ok := m.devices[uint8(oid)]
	if !ok || !dev.Ready {
		return nil, nil
	}
	m.writes[dev.Address] = append(m.writes[dev.Address], append([]byte(nil), data...))
	return nil, nil
}

func (m *MCU) handleRead(args *[]byte) ([]byte, error) {
	oid, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}
	if _, err := klipper.DecodeVLQBytes(args); err != nil {
		return nil, err
	}
	readLen, err := klipper.DecodeVLQUint(args)
	if err != nil {
		return nil, err
	}
	dev, ok := m.devices[uint8(oid)]
	if !ok || !dev.Ready {
		return nil, nil
	}

	data := make([]byte, readLen)
	copy(data, m.responses[dev.Address])

	resp := klipper.AppendVLQUint(nil, i2cReadResponseID)
	resp = klipper.AppendVLQUint(resp, oid)
	return klipper.AppendVLQBytes(resp, data), nil
}

// SetResponse sets the bytes a device at addr returns to reads
func (m *MCU) SetResponse(addr uint8, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[addr] = append([]byte(nil), data...)
}

// Writes returns the data written to the device at addr
func (m *MCU) Writes(addr uint8) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.writes[addr]...)
}

// Devices returns a snapshot of configured devices by oid
func (m *MCU) Devices() map[uint8]Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint8]Device, len(m.devices))
	for oid, dev := range m.devices {
		out[oid] = *dev
	}
	return out
}

// SetSilent stops the MCU from answering, as if it had hung
func (m *MCU) SetSilent(silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent = silent
}

// SetDuplicateResponses makes the MCU send every response twice, leaving a
// stale copy queued on the host
func (m *MCU) SetDuplicateResponses(duplicate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicate = duplicate
}
