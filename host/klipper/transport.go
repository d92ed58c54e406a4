package klipper

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrClosed     = errors.New("klipper: transport closed")
	ErrAckTimeout = errors.New("klipper: ack timeout")
	ErrNak        = errors.New("klipper: sequence rejected by mcu")
	ErrNoResponse = errors.New("klipper: response timeout")
)

// Response is a decoded MCU-to-host message
type Response struct {
	CmdID uint32
	Args  []byte // Encoded parameters following the command ID
}

// Transport is the host side of a Klipper serial link. A background reader
// collects ACKs and responses; SendCommand blocks until the MCU acknowledges.
type Transport struct {
	port   io.ReadWriteCloser
	logger zerolog.Logger

	// writeMu serializes commands and guards seq
	writeMu sync.Mutex
	seq     uint8

	acks      chan uint8
	responses chan Response

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewTransport starts a transport on an open port
func NewTransport(port io.ReadWriteCloser, logger zerolog.Logger) *Transport {
	t := &Transport{
		port:      port,
		logger:    logger,
		seq:       DestBit,
		acks:      make(chan uint8, 1),
		responses: make(chan Response, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for the MCU to acknowledge it.
// When the MCU answers with a different sequence, as it does after a host
// reconnects, the transport adopts that sequence and retransmits once.
func (t *Transport) SendCommand(cmdID uint32, args []byte, timeout time.Duration) error {
	payload := AppendVLQUint(make([]byte, 0, 8+len(args)), cmdID)
	payload = append(payload, args...)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	for attempt := 0; ; attempt++ {
		// Drop ACKs left over from a previous timeout
		select {
		case <-t.acks:
		default:
		}

		frame, err := EncodeFrame(t.seq, payload)
		if err != nil {
			return err
		}
		if err := t.write(frame); err != nil {
			return err
		}
		t.logger.Trace().Uint32("cmd", cmdID).Hex("frame", frame).Msg("klipper frame sent")

		expected := NextSeq(t.seq)
		seq, err := t.waitAck(timeout)
		if err != nil {
			return err
		}
		t.seq = seq
		if seq == expected {
			return nil
		}
		if attempt > 0 {
			return fmt.Errorf("%w: expected 0x%02x, mcu wants 0x%02x", ErrNak, expected, seq)
		}
		t.logger.Debug().
			Uint8("expected", expected).
			Uint8("mcu", seq).
			Msg("klipper sequence resync, retransmitting")
	}
}

func (t *Transport) waitAck(timeout time.Duration) (uint8, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case seq := <-t.acks:
		return seq, nil
	case <-timer.C:
		return 0, fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stop:
		return 0, ErrClosed
	}
}

func (t *Transport) write(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return nil
}

// WaitResponse returns the next response accepted by match. Responses that do
// not match are discarded.
func (t *Transport) WaitResponse(match func(Response) bool, timeout time.Duration) (Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case resp := <-t.responses:
			if match == nil || match(resp) {
				return resp, nil
			}
			t.logger.Debug().Uint32("cmd", resp.CmdID).Msg("discarding unexpected klipper response")
		case <-timer.C:
			return Response{}, fmt.Errorf("%w after %v", ErrNoResponse, timeout)
		case <-t.stop:
			return Response{}, ErrClosed
		}
	}
}

// Discard drops queued responses accepted by match and returns how many were
// dropped. Other queued responses are kept in order.
func (t *Transport) Discard(match func(Response) bool) int {
	var keep []Response
	dropped := 0
drain:
	for {
		select {
		case resp := <-t.responses:
			if match(resp) {
				dropped++
			} else {
				keep = append(keep, resp)
			}
		default:
			break drain
		}
	}
	for _, resp := range keep {
		select {
		case t.responses <- resp:
		default:
			t.logger.Debug().Uint32("cmd", resp.CmdID).Msg("dropping klipper response, queue full")
		}
	}
	return dropped
}

func (t *Transport) readLoop() {
	defer close(t.done)

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = t.process(pending)
		}
		if err == nil {
			continue
		}

		select {
		case <-t.stop:
			return
		default:
		}
		if isClosedErr(err) {
			return
		}
		// Serial reads time out with io.EOF; keep polling
		if !errors.Is(err, io.EOF) {
			t.logger.Warn().Err(err).Msg("klipper read error")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed)
}

// process dispatches every complete frame in data and returns the unconsumed tail
func (t *Transport) process(data []byte) []byte {
	for {
		frame, consumed, ok := NextFrame(data)
		data = data[consumed:]
		if !ok {
			break
		}
		t.dispatch(frame)
	}
	return append([]byte(nil), data...)
}

func (t *Transport) dispatch(frame Frame) {
	if frame.IsAck() {
		select {
		case t.acks <- frame.Seq:
		default:
			t.logger.Debug().Uint8("seq", frame.Seq).Msg("dropping duplicate klipper ack")
		}
		return
	}

	payload := frame.Payload
	cmdID, err := DecodeVLQUint(&payload)
	if err != nil {
		t.logger.Warn().Err(err).Msg("malformed klipper response")
		return
	}
	resp := Response{CmdID: cmdID, Args: payload}

	select {
	case t.responses <- resp:
	default:
		// Full: drop the oldest response
		select {
		case <-t.responses:
		default:
		}
		t.responses <- resp
	}
}

// Close stops the reader and closes the port. Later calls return the first result.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.stop)
		t.closeErr = t.port.Close()
		<-t.done
	})
	return t.closeErr
}
