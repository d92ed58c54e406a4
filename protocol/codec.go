package protocol

import (
	"encoding/binary"
	"math"
)

// Encode converts a message to its 31-byte wire form.
// Bytes 0-29 hold typeID, commandType and the little-endian float32 data;
// byte 30 is the CRC-8 of bytes 0-29.
func Encode(m Message) [MessageSize]byte {
	var frame [MessageSize]byte
	encodeFrame(frame[:], m)
	return frame
}

// EncodeTo writes the wire form of m into the first MessageSize bytes of dst
func EncodeTo(dst []byte, m Message) error {
	if len(dst) < MessageSize {
		return ErrBufferTooSmall
	}
	encodeFrame(dst[:MessageSize], m)
	return nil
}

func encodeFrame(frame []byte, m Message) {
	frame[OffsetTypeID] = m.TypeID
	frame[OffsetCommandType] = m.CommandType
	for i, v := range m.Data {
		off := OffsetData + i*4
		binary.LittleEndian.PutUint32(frame[off:off+4], math.Float32bits(v))
	}
	frame[OffsetCRC] = CRC8(frame[:PayloadSize])
}

// Decode parses a message from the first MessageSize bytes of buf.
// Trailing bytes are ignored.
func Decode(buf []byte) (Message, error) {
	if len(buf) < MessageSize {
		return Message{}, ErrFrameTooShort
	}
	frame := buf[:MessageSize]

	computed := CRC8(frame[:PayloadSize])
	received := frame[OffsetCRC]
	if computed != received {
		return Message{}, &ChecksumError{Computed: computed, Received: received}
	}

	m := Message{
		TypeID:      frame[OffsetTypeID],
		CommandType: frame[OffsetCommandType],
		CRC8:        received,
	}
	for i := range m.Data {
		off := OffsetData + i*4
		m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(frame[off : off+4]))
	}
	return m, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (m Message) MarshalBinary() ([]byte, error) {
	frame := Encode(m)
	return frame[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (m *Message) UnmarshalBinary(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
