package protocol

import (
	"fmt"
	"strings"
)

// Message is one CRUMBS message.
//
// Data is a fixed array, so a Message always carries exactly DataLength
// values. CRC8 is ignored by Encode and set to the verified value by Decode.
type Message struct {
	TypeID      uint8
	CommandType uint8
	Data        [DataLength]float32
	CRC8        uint8
}

// NewMessage builds a Message from up to DataLength values.
// Missing slots stay 0.0 and extra values are dropped.
func NewMessage(typeID, commandType uint8, data ...float32) Message {
	m := Message{
		TypeID:      typeID,
		CommandType: commandType,
	}
	copy(m.Data[:], data)
	return m
}

// SetCRC8 stores the low 8 bits of v
func (m *Message) SetCRC8(v int) {
	m.CRC8 = uint8(v & 0xFF)
}

// Equal reports whether two messages carry the same fields, ignoring CRC8
func (m Message) Equal(other Message) bool {
	return m.TypeID == other.TypeID &&
		m.CommandType == other.CommandType &&
		m.Data == other.Data
}

func (m Message) String() string {
	var b strings.Builder
	for i, d := range m.Data {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%.2f", d)
	}
	return fmt.Sprintf("Message(typeID=%d, commandType=%d, data=[%s], crc8=%d)",
		m.TypeID, m.CommandType, b.String(), m.CRC8)
}
