package beast

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Decoder reassembles framed Beast messages out of an arbitrarily-chunked
// byte stream, buffering partial frames across Decode calls the way a TCP
// read loop hands them over.
type Decoder struct {
	logger *logrus.Logger
	buffer []byte
}

// NewDecoder creates a Decoder backed by a small reassembly buffer.
func NewDecoder(logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		buffer: make([]byte, 0, 4096),
	}
}

// Decode appends data to the reassembly buffer and extracts every complete
// frame it now contains. A truncated trailing frame is left for the next
// call; bytes before a sync byte, and sync bytes followed by an unknown
// frame type, are discarded to resync. If the buffer still holds more than
// 2048 bytes afterwards it is dropped to recover from a desynced stream.
func (d *Decoder) Decode(data []byte) ([]*Message, error) {
	d.buffer = append(d.buffer, data...)

	var messages []*Message
	for {
		sync := bytes.IndexByte(d.buffer, SyncByte)
		if sync == -1 {
			d.buffer = d.buffer[:0]
			break
		}
		if sync > 0 {
			d.buffer = d.buffer[sync:]
		}
		if len(d.buffer) < 2 {
			break
		}

		frameType := d.buffer[1]
		length, known := frameLen[frameType]
		if !known {
			d.logger.WithField("frame_type", fmt.Sprintf("0x%02x", frameType)).
				Debug("beast: unrecognized frame type, resyncing")
			d.buffer = d.buffer[1:]
			continue
		}
		if len(d.buffer) < length {
			break
		}

		raw := make([]byte, length)
		copy(raw, d.buffer[:length])

		msg, err := decodeFrame(raw)
		if err != nil {
			d.logger.WithError(err).Debug("beast: dropping malformed frame")
			d.buffer = d.buffer[1:]
			continue
		}
		messages = append(messages, msg)
		d.buffer = d.buffer[length:]
	}

	if len(d.buffer) > 2048 {
		d.logger.WithField("buffer_size", len(d.buffer)).Warn("beast: reassembly buffer overflow, discarding")
		d.buffer = d.buffer[:0]
	}

	return messages, nil
}

// decodeFrame parses one complete, length-checked frame (sync byte, type,
// 6-byte 12MHz timestamp counter, signal byte, payload).
func decodeFrame(raw []byte) (*Message, error) {
	if len(raw) < 9 {
		return nil, fmt.Errorf("beast: frame too short: %d bytes", len(raw))
	}
	if raw[0] != SyncByte {
		return nil, fmt.Errorf("beast: bad sync byte 0x%02x", raw[0])
	}

	frameType := raw[1]
	var counter uint64
	for _, b := range raw[2:8] {
		counter = (counter << 8) | uint64(b)
	}
	// The 12MHz counter has no epoch of its own; approximate with the
	// arrival time minus the counter's elapsed duration.
	ts := time.Now().Add(-time.Duration(counter) * time.Nanosecond / 12)

	payload := unescape(raw[9:])

	return &Message{
		MessageType: frameType,
		Timestamp:   ts,
		Signal:      raw[8],
		Data:        payload,
		Raw:         raw,
	}, nil
}

// unescape removes Beast protocol byte-stuffing: 0x1A in the payload is
// sent as two bytes (0x1A 0x1A) to avoid colliding with the sync byte.
func unescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == SyncByte && i+1 < len(data) {
			out = append(out, data[i+1])
			i++
			continue
		}
		out = append(out, data[i])
	}
	return out
}
