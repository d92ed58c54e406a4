package klipper

import "errors"

var ErrTruncatedVLQ = errors.New("klipper: truncated VLQ")

// AppendVLQ appends the Klipper variable-length encoding of v to dst
func AppendVLQ(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7F)|0x80)
	}
	return append(dst, byte(v&0x7F))
}

// AppendVLQUint appends an unsigned value
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQ(dst, int32(v))
}

// AppendVLQBytes appends a length-prefixed byte string
func AppendVLQBytes(dst []byte, data []byte) []byte {
	dst = AppendVLQUint(dst, uint32(len(data)))
	return append(dst, data...)
}

// DecodeVLQ decodes one value and advances data past it
func DecodeVLQ(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrTruncatedVLQ
	}

	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrTruncatedVLQ
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = v<<7 | c&0x7F
	}
	return int32(v), nil
}

// DecodeVLQUint decodes one unsigned value
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQ(data)
	return uint32(v), err
}

// DecodeVLQBytes decodes a length-prefixed byte string. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrTruncatedVLQ
	}
	out := (*data)[:n]
	*data = (*data)[n:]
	return out, nil
}
