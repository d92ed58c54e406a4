// Package protocol implements the CRUMBS message protocol
package protocol

// Version represents the CRUMBS wire protocol revision implemented here
const Version = "0.2.0"

// Frame layout constants
const (
	DataLength  = 7                        // Number of float32 payload slots
	MessageSize = 1 + 1 + DataLength*4 + 1 // typeID + commandType + data + crc8
	PayloadSize = MessageSize - 1          // Bytes covered by the CRC

	OffsetTypeID      = 0
	OffsetCommandType = 1
	OffsetData        = 2
	OffsetCRC         = MessageSize - 1
)
