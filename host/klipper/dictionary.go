package klipper

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Fixed IDs used before the dictionary is known
const (
	IdentifyResponseID = 0
	IdentifyCmdID      = 1

	identifyChunk = 40
	maxDictionary = 1 << 20
)

// Dictionary is the MCU data dictionary. Command and response keys are full
// format strings such as "i2c_write oid=%c data=%*s".
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]any `json:"enumerations,omitempty"`
}

// ParseDictionary decodes dictionary data, inflating it first when it is
// zlib compressed.
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed dictionary: %w", err)
		}
		inflated, err := io.ReadAll(io.LimitReader(zr, maxDictionary))
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to inflate dictionary: %w", err)
		}
		data = inflated
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dictionary: %w", err)
	}
	return dict, nil
}

// CommandID looks up a host-to-MCU command by name
func (d *Dictionary) CommandID(name string) (uint32, bool) {
	return lookup(d.Commands, name)
}

// ResponseID looks up an MCU-to-host response by name
func (d *Dictionary) ResponseID(name string) (uint32, bool) {
	return lookup(d.Responses, name)
}

func lookup(formats map[string]int, name string) (uint32, bool) {
	for format, id := range formats {
		if formatName(format) == name {
			return uint32(id), true
		}
	}
	return 0, false
}

func formatName(format string) string {
	if i := strings.IndexByte(format, ' '); i >= 0 {
		return format[:i]
	}
	return format
}

// RetrieveDictionary downloads the dictionary with identify commands
func RetrieveDictionary(t *Transport, timeout time.Duration) (*Dictionary, error) {
	var raw bytes.Buffer
	for raw.Len() < maxDictionary {
		offset := uint32(raw.Len())
		args := AppendVLQUint(nil, offset)
		args = AppendVLQUint(args, identifyChunk)

		if err := t.SendCommand(IdentifyCmdID, args, timeout); err != nil {
			return nil, fmt.Errorf("identify at offset %d: %w", offset, err)
		}
		resp, err := t.WaitResponse(func(r Response) bool {
			return r.CmdID == IdentifyResponseID
		}, timeout)
		if err != nil {
			return nil, fmt.Errorf("identify at offset %d: %w", offset, err)
		}

		args = resp.Args
		respOffset, err := DecodeVLQUint(&args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode identify offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("identify offset mismatch: expected %d, got %d", offset, respOffset)
		}
		chunk, err := DecodeVLQBytes(&args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode identify data: %w", err)
		}

		raw.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	return ParseDictionary(raw.Bytes())
}
