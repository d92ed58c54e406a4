package klippertest

import (
	"encoding/binary"
	"hash/adler32"
)

// maxStoredBlock is the largest DEFLATE stored block
const maxStoredBlock = 0xFFFF

// storedZlib wraps data in a zlib stream of uncompressed DEFLATE blocks, the
// form gopper firmware uses for its dictionary. Any zlib reader accepts it.
func storedZlib(data []byte) []byte {
	blocks := max(1, (len(data)+maxStoredBlock-1)/maxStoredBlock)
	out := make([]byte, 0, 2+blocks*5+len(data)+4)
	checksum := adler32.Checksum(data)

	// CMF/FLG: deflate, 32K window, default level
	out = append(out, 0x78, 0x9C)

	for {
		n := min(len(data), maxStoredBlock)
		final := n == len(data)

		var header byte // BTYPE=00
		if final {
			header = 0x01
		}
		out = append(out, header)
		out = binary.LittleEndian.AppendUint16(out, uint16(n))
		out = binary.LittleEndian.AppendUint16(out, ^uint16(n))
		out = append(out, data[:n]...)
		data = data[n:]
		if final {
			break
		}
	}
	return binary.BigEndian.AppendUint32(out, checksum)
}
