package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessagePadsShortData(t *testing.T) {
	m := NewMessage(1, 2, 1.5, 2.5, 3.5)

	assert.Len(t, m.Data, DataLength)
	assert.Equal(t, [DataLength]float32{1.5, 2.5, 3.5, 0, 0, 0, 0}, m.Data)
}

func TestNewMessageTruncatesLongData(t *testing.T) {
	m := NewMessage(1, 2, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	assert.Equal(t, [DataLength]float32{1, 2, 3, 4, 5, 6, 7}, m.Data)
}

func TestNewMessageNoData(t *testing.T) {
	m := NewMessage(3, 4)

	assert.Equal(t, uint8(3), m.TypeID)
	assert.Equal(t, uint8(4), m.CommandType)
	assert.Equal(t, [DataLength]float32{}, m.Data)
	assert.Equal(t, uint8(0), m.CRC8)
}

func TestNewMessageCopiesData(t *testing.T) {
	data := []float32{1, 2, 3}
	m := NewMessage(0, 0, data...)
	data[0] = 99

	assert.Equal(t, float32(1), m.Data[0])
}

func TestSetCRC8Masks(t *testing.T) {
	testCases := []struct {
		in       int
		expected uint8
	}{
		{0, 0},
		{0x7F, 0x7F},
		{0xFF, 0xFF},
		{0x100, 0x00},
		{0x1AB, 0xAB},
		{-1, 0xFF},
	}

	for _, tc := range testCases {
		var m Message
		m.SetCRC8(tc.in)
		assert.Equal(t, tc.expected, m.CRC8, "SetCRC8(%d)", tc.in)
	}
}

func TestMessageEqualIgnoresCRC(t *testing.T) {
	a := NewMessage(1, 2, 3)
	b := a
	b.CRC8 = 0x55
	assert.True(t, a.Equal(b))

	b.Data[6] = 1
	assert.False(t, a.Equal(b))
}

func TestMessageString(t *testing.T) {
	m := NewMessage(1, 2, 75, 1, 0, 65, 2, 7, 3.14159)
	m.CRC8 = 62

	assert.Equal(t,
		"Message(typeID=1, commandType=2, data=[75.00, 1.00, 0.00, 65.00, 2.00, 7.00, 3.14], crc8=62)",
		m.String())
}
