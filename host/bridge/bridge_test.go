package bridge

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crumbs/host/klipper"
	"crumbs/host/klipper/klippertest"
	"crumbs/host/leader"
	"crumbs/protocol"
)

func simDriver(mcu *klippertest.MCU) *Driver {
	return NewDriver(Config{
		ResponseTimeout: 2 * time.Second,
		Dial: func(SerialConfig) (io.ReadWriteCloser, error) {
			return mcu.Connect(), nil
		},
	})
}

func TestNewDriverDefaults(t *testing.T) {
	d := NewDriver(Config{})
	assert.Equal(t, uint32(DefaultRate), d.cfg.Rate)
	assert.Equal(t, time.Second, d.cfg.ResponseTimeout)
	assert.NotNil(t, d.cfg.Dial)
}

func TestDefaultSerialConfig(t *testing.T) {
	cfg := DefaultSerialConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 250000, cfg.Baud)
}

func TestOpenSerialRequiresDevice(t *testing.T) {
	_, err := OpenSerial(SerialConfig{})
	assert.Error(t, err)
}

func TestBridgeWriteAndRead(t *testing.T) {
	mcu := klippertest.NewMCU()
	bus, err := simDriver(mcu).Open(1)
	require.NoError(t, err)
	defer bus.Close()

	require.NoError(t, bus.Write(0x08, []byte{1, 2, 3}))
	require.NoError(t, bus.Write(0x08, []byte{4}))
	assert.Equal(t, [][]byte{{1, 2, 3}, {4}}, mcu.Writes(0x08))

	mcu.SetResponse(0x09, []byte{0xAA, 0xBB})
	data, err := bus.Read(0x09, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, data)

	// One oid per address, configured on the requested bus and rate
	devices := mcu.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, klippertest.Device{Bus: 1, Rate: DefaultRate, Address: 0x08, Ready: true}, devices[0])
	assert.Equal(t, uint8(0x09), devices[1].Address)
}

func TestBridgeMissingCommand(t *testing.T) {
	mcu := klippertest.NewMCU(klippertest.WithoutCommand("i2c_read"))
	_, err := simDriver(mcu).Open(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i2c_read")
}

func TestBridgeDialFailure(t *testing.T) {
	dialErr := errors.New("no such port")
	d := NewDriver(Config{Dial: func(SerialConfig) (io.ReadWriteCloser, error) {
		return nil, dialErr
	}})
	_, err := d.Open(0)
	assert.ErrorIs(t, err, dialErr)
}

func TestBridgeUnresponsiveMCU(t *testing.T) {
	mcu := klippertest.NewMCU()
	d := NewDriver(Config{
		ResponseTimeout: 100 * time.Millisecond,
		Dial: func(SerialConfig) (io.ReadWriteCloser, error) {
			return mcu.Connect(), nil
		},
	})
	bus, err := d.Open(0)
	require.NoError(t, err)
	defer bus.Close()

	mcu.SetSilent(true)
	err = bus.Write(0x08, []byte{1})
	assert.ErrorIs(t, err, klipper.ErrAckTimeout)
}

func TestBridgeReopenOnSameMCU(t *testing.T) {
	mcu := klippertest.NewMCU()
	d := simDriver(mcu)

	bus, err := d.Open(1)
	require.NoError(t, err)
	require.NoError(t, bus.Write(0x08, []byte{1}))
	require.NoError(t, bus.Close())

	// The MCU keeps its sequence while the new connection starts over
	bus, err = d.Open(1)
	require.NoError(t, err, "second open on the same MCU")
	defer bus.Close()

	require.NoError(t, bus.Write(0x08, []byte{2}))
	assert.Equal(t, [][]byte{{1}, {2}}, mcu.Writes(0x08))
}

func TestBridgeReadIgnoresStaleResponse(t *testing.T) {
	mcu := klippertest.NewMCU()
	bus, err := simDriver(mcu).Open(0)
	require.NoError(t, err)
	defer bus.Close()

	mcu.SetDuplicateResponses(true)
	mcu.SetResponse(0x08, []byte{0x01, 0x01})
	data, err := bus.Read(0x08, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x01}, data)

	mcu.SetDuplicateResponses(false)
	mcu.SetResponse(0x08, []byte{0x02, 0x02})
	data, err = bus.Read(0x08, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x02}, data)
}

func TestBridgeCloseTwice(t *testing.T) {
	bus, err := simDriver(klippertest.NewMCU()).Open(0)
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	assert.NoError(t, bus.Close())
}

func TestLeaderOverBridge(t *testing.T) {
	mcu := klippertest.NewMCU()
	tr := leader.New(simDriver(mcu), 1)
	require.NoError(t, tr.Open())
	defer tr.Close()

	out := protocol.NewMessage(1, 2, 75.0, 1.0, 0.0, 65.0, 2.0, 7.0, 3.14)
	require.NoError(t, tr.Send(out, 0x08))
	frame := protocol.Encode(out)
	require.Len(t, mcu.Writes(0x08), 1)
	assert.Equal(t, frame[:], mcu.Writes(0x08)[0])

	reply := protocol.NewMessage(1, 3, 42)
	replyFrame := protocol.Encode(reply)
	mcu.SetResponse(0x08, replyFrame[:])
	got, err := tr.Request(0x08)
	require.NoError(t, err)
	assert.True(t, reply.Equal(got))

	// An all-zero frame carries a valid CRC
	mcu.SetResponse(0x09, nil)
	got, err = tr.Request(0x09)
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{}, got)

	bad := replyFrame
	bad[3] ^= 0x01
	mcu.SetResponse(0x0A, bad[:])
	_, err = tr.Request(0x0A)
	assert.ErrorIs(t, err, protocol.ErrChecksumMismatch)
	assert.False(t, leader.Retryable(err))
}
