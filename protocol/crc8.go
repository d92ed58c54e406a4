package protocol

// CRC-8 parameters shared with the peripheral firmware:
// width=8 poly=0x07 init=0x00 refin=false refout=false xorout=0x00
const (
	CRC8Poly = 0x07
	CRC8Init = 0x00
)

// crc8Nibble is the 16-entry table for CRC8Poly, indexed one nibble at a time
// so the result matches the nibble-table firmware implementation bit for bit.
var crc8Nibble = [16]uint8{
	0x00, 0x07, 0x0e, 0x09, 0x1c, 0x1b, 0x12, 0x15,
	0x38, 0x3f, 0x36, 0x31, 0x24, 0x23, 0x2a, 0x2d,
}

// CRC8 calculates the CRC-8 checksum of data
func CRC8(data []byte) uint8 {
	return CRC8Update(CRC8Init, data)
}

// CRC8Update continues a running CRC-8 over data
func CRC8Update(crc uint8, data []byte) uint8 {
	for _, b := range data {
		crc = crc8Nibble[(crc>>4^b>>4)&0x0F] ^ crc<<4
		crc = crc8Nibble[(crc>>4^b)&0x0F] ^ crc<<4
	}
	return crc
}
