package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crumbs/host/i2c"
	"crumbs/host/leader"
	"crumbs/protocol"
)

// parseUint8 accepts decimal or 0x-prefixed hex
func parseUint8(name, s string) (uint8, error) {
	digits := strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(digits), "0x"); ok {
		digits, base = rest, 16
	}
	v, err := strconv.ParseUint(digits, base, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return uint8(v), nil
}

// parseAddress parses a peripheral address. Values above 0x7F parse so the
// transport can reject them.
func parseAddress(s string) (i2c.Address, error) {
	v, err := parseUint8("address", s)
	return i2c.Address(v), err
}

func parseData(args []string) ([]float32, error) {
	if len(args) > protocol.DataLength {
		return nil, fmt.Errorf("at most %d data values, got %d", protocol.DataLength, len(args))
	}
	data := make([]float32, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid data value %q: %w", arg, err)
		}
		data = append(data, float32(v))
	}
	return data, nil
}

// parseMessage parses "<type> <command> [data...]"
func parseMessage(args []string) (protocol.Message, error) {
	if len(args) < 2 {
		return protocol.Message{}, errors.New("need type and command")
	}
	typeID, err := parseUint8("type", args[0])
	if err != nil {
		return protocol.Message{}, err
	}
	command, err := parseUint8("command", args[1])
	if err != nil {
		return protocol.Message{}, err
	}
	data, err := parseData(args[2:])
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.NewMessage(typeID, command, data...), nil
}

// parseHex decodes hex bytes, ignoring whitespace, colons and a 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', ':':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// withRetries runs fn up to attempts+1 times while it fails with a
// retryable transport error
func withRetries(retries int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logger.Debug().Int("attempt", attempt).Err(err).Msg("retrying")
			time.Sleep(backoff)
		}
		err = fn()
		if err == nil || !leader.Retryable(err) {
			return err
		}
	}
	return err
}
