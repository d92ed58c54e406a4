package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrFrameTooShort    = errors.New("protocol: frame too short")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrBufferTooSmall   = errors.New("protocol: buffer too small for frame")
)

// ChecksumError reports a frame whose trailing CRC byte does not match its contents.
type ChecksumError struct {
	Computed uint8
	Received uint8
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: computed 0x%02X, received 0x%02X", ErrChecksumMismatch, e.Computed, e.Received)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
