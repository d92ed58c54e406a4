package protocol

import "testing"

// crc8Bitwise is the straightforward shift-register form used as a reference
func crc8Bitwise(data []byte) uint8 {
	crc := uint8(CRC8Init)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ CRC8Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestCRC8CheckValue(t *testing.T) {
	// Standard CRC-8 check value for "123456789"
	if got := CRC8([]byte("123456789")); got != 0xF4 {
		t.Errorf("CRC8(\"123456789\") = 0x%02X, expected 0xF4", got)
	}
}

func TestCRC8KnownVectors(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint8
	}{
		{data: nil, expected: 0x00},
		{data: []byte{}, expected: 0x00},
		{data: []byte{0x00}, expected: 0x00},
		{data: []byte{0x01}, expected: 0x07},
		{data: []byte{0x80}, expected: 0x89},
		{data: []byte{0xFF}, expected: 0xF3},
		{data: make([]byte, PayloadSize), expected: 0x00},
	}

	for i, tc := range testCases {
		if got := CRC8(tc.data); got != tc.expected {
			t.Errorf("Test case %d: CRC8(%v) = 0x%02X, expected 0x%02X", i, tc.data, got, tc.expected)
		}
	}
}

func TestCRC8AllSingleBytes(t *testing.T) {
	for i := 0; i < 256; i++ {
		data := []byte{byte(i)}
		if got, want := CRC8(data), crc8Bitwise(data); got != want {
			t.Fatalf("CRC8(0x%02X) = 0x%02X, reference 0x%02X", i, got, want)
		}
	}
}

func TestCRC8MatchesReferenceOnLongerInputs(t *testing.T) {
	data := make([]byte, 0, 512)
	for i := 0; i < 512; i++ {
		data = append(data, byte(i*31+7))
		if got, want := CRC8(data), crc8Bitwise(data); got != want {
			t.Fatalf("length %d: CRC8 = 0x%02X, reference 0x%02X", len(data), got, want)
		}
	}
}

func TestCRC8UpdateIsIncremental(t *testing.T) {
	data := []byte("123456789")
	crc := CRC8Update(CRC8Init, data[:4])
	crc = CRC8Update(crc, data[4:])
	if crc != CRC8(data) {
		t.Errorf("incremental CRC 0x%02X differs from one-shot 0x%02X", crc, CRC8(data))
	}
}

func TestCRC8Table(t *testing.T) {
	// Each entry is the CRC of a byte whose high nibble is zero
	for i := range crc8Nibble {
		if want := crc8Bitwise([]byte{byte(i)}); crc8Nibble[i] != want {
			t.Errorf("crc8Nibble[%d] = 0x%02X, expected 0x%02X", i, crc8Nibble[i], want)
		}
	}
}
