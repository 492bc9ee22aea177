// Package beast decodes the Beast binary framing protocol used by other
// ADS-B receivers to ship Mode S frames over TCP, and adapts those frames
// into this system's internal/message.Message shape so the tracker cannot
// tell a Beast-fed aircraft from an RF-demodulated one (§6 supplemented
// feature: Beast protocol ingest).
package beast

import "time"

// Frame type octets, as placed immediately after the sync byte.
const (
	SyncByte   = 0x1A
	ModeAC     = 0x31 // Mode A/C, 2-byte payload
	ModeS      = 0x32 // Mode S short, 7-byte payload (56 bits)
	ModeSLong  = 0x33 // Mode S long, 14-byte payload (112 bits)
	ModeStatus = 0x34 // Receiver status, 2-byte payload
)

// frameLen maps a frame type octet to its total on-wire length, including
// the sync byte, type byte, 6-byte timestamp and 1-byte signal level.
var frameLen = map[byte]int{
	ModeAC:     11,
	ModeS:      16,
	ModeSLong:  23,
	ModeStatus: 11,
}

// Message is one decoded Beast frame.
type Message struct {
	MessageType byte
	Timestamp   time.Time
	Signal      byte
	Data        []byte
	Raw         []byte
}

// Frame returns the Mode S bit payload and its length for frames that carry
// one (ModeS/ModeSLong); Mode A/C and status frames don't decode to a
// message.Message and report ok=false.
func (msg *Message) Frame() (data []byte, numBits int, ok bool) {
	switch msg.MessageType {
	case ModeS:
		return msg.Data, 56, true
	case ModeSLong:
		return msg.Data, 112, true
	default:
		return nil, 0, false
	}
}

// IsValid reports whether the payload length matches what MessageType
// requires.
func (msg *Message) IsValid() bool {
	switch msg.MessageType {
	case ModeAC, ModeStatus:
		return len(msg.Data) >= 2
	case ModeS:
		return len(msg.Data) >= 7
	case ModeSLong:
		return len(msg.Data) >= 14
	default:
		return false
	}
}
