// Package klipper speaks the Klipper host/MCU serial protocol. It is used to
// reach an I2C bus through a microcontroller running Klipper-compatible
// firmware.
package klipper

import (
	"errors"
	"fmt"
)

// Frame layout: [len][seq][payload...][crc16 hi][crc16 lo][sync]
const (
	HeaderSize   = 2
	TrailerSize  = 3
	MinFrameSize = HeaderSize + TrailerSize
	MaxFrameSize = 64
	MaxPayload   = MaxFrameSize - MinFrameSize

	PositionLen = 0
	PositionSeq = 1

	SyncByte = 0x7E
	DestBit  = 0x10 // High bits of every sequence byte
	SeqMask  = 0x0F
)

var ErrPayloadTooLarge = errors.New("klipper: payload too large")

// Frame is one decoded message block
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no commands
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// NextSeq returns the sequence byte following seq
func NextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | DestBit
}

// EncodeFrame builds a complete frame around payload
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayload)
	}
	n := MinFrameSize + len(payload)
	buf := make([]byte, 0, n)
	buf = append(buf, byte(n), seq&SeqMask|DestBit)
	buf = append(buf, payload...)
	crc := CRC16(buf)
	return append(buf, byte(crc>>8), byte(crc), SyncByte), nil
}

// NextFrame scans data for the first valid frame. It returns the frame, how
// many leading bytes of data were consumed, and whether a frame was found.
// Corrupt bytes are consumed up to the next sync byte; an incomplete frame at
// the end of data is left unconsumed so the caller can wait for more input.
func NextFrame(data []byte) (Frame, int, bool) {
	pos := 0
	for pos < len(data) {
		rest := data[pos:]
		if rest[0] == SyncByte {
			pos++
			continue
		}
		if len(rest) < MinFrameSize {
			break
		}

		n := int(rest[PositionLen])
		if n < MinFrameSize || n > MaxFrameSize || rest[PositionSeq]&^SeqMask != DestBit {
			pos = resync(data, pos)
			continue
		}
		if len(rest) < n {
			break
		}
		if rest[n-1] != SyncByte {
			pos = resync(data, pos)
			continue
		}
		crc := uint16(rest[n-TrailerSize])<<8 | uint16(rest[n-TrailerSize+1])
		if crc != CRC16(rest[:n-TrailerSize]) {
			pos = resync(data, pos)
			continue
		}

		payload := make([]byte, n-MinFrameSize)
		copy(payload, rest[HeaderSize:n-TrailerSize])
		return Frame{Seq: rest[PositionSeq], Payload: payload}, pos + n, true
	}
	return Frame{}, pos, false
}

// resync skips past the next sync byte after pos
func resync(data []byte, pos int) int {
	for i := pos + 1; i < len(data); i++ {
		if data[i] == SyncByte {
			return i + 1
		}
	}
	return len(data)
}
