package klipper

import (
	"bytes"
	"errors"
	"testing"
)

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte{}, expected: 0xFFFF},
		{data: []byte("123456789"), expected: 0x6F91}, // CRC-16/MCRF4XX check value
	}

	for i, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("Test case %d: CRC16(%q) = 0x%04X, expected 0x%04X", i, tc.data, got, tc.expected)
		}
	}
}

func TestCRC16Different(t *testing.T) {
	if CRC16([]byte{0x01, 0x02, 0x03}) == CRC16([]byte{0x01, 0x02, 0x04}) {
		t.Error("CRC16 collision on single-byte change")
	}
}

func TestVLQRoundTrip(t *testing.T) {
	values := []int32{0, 1, 95, 96, 100, -1, -32, -33, 4095, 12287, 12288, 1 << 20, -(1 << 20), 1 << 30, -(1 << 30)}

	for _, v := range values {
		enc := AppendVLQ(nil, v)
		data := enc
		got, err := DecodeVLQ(&data)
		if err != nil {
			t.Fatalf("DecodeVLQ(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("VLQ round trip: got %d, expected %d (encoded %x)", got, v, enc)
		}
		if len(data) != 0 {
			t.Errorf("VLQ %d left %d bytes", v, len(data))
		}
	}
}

func TestVLQKnownEncodings(t *testing.T) {
	testCases := []struct {
		v        int32
		expected []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7F}},
		{95, []byte{0x5F}},
		{100, []byte{0x80, 0x64}},
	}

	for _, tc := range testCases {
		if got := AppendVLQ(nil, tc.v); !bytes.Equal(got, tc.expected) {
			t.Errorf("AppendVLQ(%d) = %x, expected %x", tc.v, got, tc.expected)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	enc := AppendVLQBytes([]byte{0x05}, []byte("abc"))
	data := enc[1:]
	got, err := DecodeVLQBytes(&data)
	if err != nil {
		t.Fatalf("DecodeVLQBytes: %v", err)
	}
	if string(got) != "abc" || len(data) != 0 {
		t.Errorf("DecodeVLQBytes = %q, rest %x", got, data)
	}

	short := []byte{0x05, 'a'}
	if _, err := DecodeVLQBytes(&short); !errors.Is(err, ErrTruncatedVLQ) {
		t.Errorf("expected ErrTruncatedVLQ, got %v", err)
	}
	cont := []byte{0x80}
	if _, err := DecodeVLQ(&cont); !errors.Is(err, ErrTruncatedVLQ) {
		t.Errorf("expected ErrTruncatedVLQ for dangling continuation, got %v", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(0x10, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if len(frame) != 7 || frame[0] != 7 || frame[1] != 0x10 || frame[6] != SyncByte {
		t.Fatalf("unexpected frame %x", frame)
	}
	crc := CRC16(frame[:4])
	if frame[4] != byte(crc>>8) || frame[5] != byte(crc) {
		t.Errorf("bad trailer CRC in %x", frame)
	}

	if _, err := EncodeFrame(0x10, make([]byte, MaxPayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNextFrame(t *testing.T) {
	a, _ := EncodeFrame(0x10, []byte{0xAA})
	b, _ := EncodeFrame(0x11, nil)

	stream := append([]byte{SyncByte, SyncByte}, a...)
	stream = append(stream, b...)

	f, consumed, ok := NextFrame(stream)
	if !ok || f.Seq != 0x10 || !bytes.Equal(f.Payload, []byte{0xAA}) {
		t.Fatalf("first frame: ok=%v frame=%+v", ok, f)
	}
	stream = stream[consumed:]

	f, consumed, ok = NextFrame(stream)
	if !ok || f.Seq != 0x11 || !f.IsAck() {
		t.Fatalf("second frame: ok=%v frame=%+v", ok, f)
	}
	if consumed != len(stream) {
		t.Errorf("consumed %d of %d", consumed, len(stream))
	}
}

func TestNextFramePartial(t *testing.T) {
	a, _ := EncodeFrame(0x10, []byte{1, 2, 3})
	_, consumed, ok := NextFrame(a[:len(a)-1])
	if ok || consumed != 0 {
		t.Errorf("partial frame: ok=%v consumed=%d", ok, consumed)
	}
}

func TestNextFrameResyncsAfterCorruption(t *testing.T) {
	bad, _ := EncodeFrame(0x10, []byte{1, 2, 3})
	bad[2] ^= 0xFF
	good, _ := EncodeFrame(0x12, []byte{9})

	f, _, ok := NextFrame(append(bad, good...))
	if !ok || f.Seq != 0x12 || !bytes.Equal(f.Payload, []byte{9}) {
		t.Fatalf("resync failed: ok=%v frame=%+v", ok, f)
	}
}

func TestNextSeqWraps(t *testing.T) {
	if NextSeq(0x10) != 0x11 || NextSeq(0x1F) != 0x10 {
		t.Errorf("NextSeq wrap: %x %x", NextSeq(0x10), NextSeq(0x1F))
	}
}
