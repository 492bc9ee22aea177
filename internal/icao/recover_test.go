package icao

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go1090/internal/crc"
)

// buildShortFrame constructs a 56-bit frame whose AP field (bits [32..56))
// equals CRC(data[0:32]) XOR addr, mirroring scenario 6 in the spec.
func buildShortFrame(addr uint32) []byte {
	frame := make([]byte, 7)
	frame[0] = 5 << 3 // DF5
	parity := crc.Compute(frame, 32)
	ap := parity ^ addr
	setBits(frame, 32, 56, uint64(ap))
	return frame
}

func setBits(data []byte, firstBit, lastBit int, value uint64) {
	width := lastBit - firstBit
	for i := 0; i < width; i++ {
		bitPos := firstBit + i
		bit := (value >> uint(width-1-i)) & 1
		byteIndex := bitPos / 8
		bitOffset := 7 - uint(bitPos%8)
		if bit == 1 {
			data[byteIndex] |= 1 << bitOffset
		} else {
			data[byteIndex] &^= 1 << bitOffset
		}
	}
}

func TestRecoverFindsMatchingCandidate(t *testing.T) {
	frame := buildShortFrame(0xA12345)

	c := NewCandidates(time.Hour)
	c.Replace([]uint32{0xFFFFFF, 0xA12345, 0x000000})

	addr, ok := Recover(frame, c)
	assert.True(t, ok)
	assert.Equal(t, uint32(0xA12345), addr)
}

func TestRecoverNoMatch(t *testing.T) {
	frame := buildShortFrame(0xA12345)

	c := NewCandidates(time.Hour)
	c.Replace([]uint32{0xB67890})

	_, ok := Recover(frame, c)
	assert.False(t, ok)
}

func TestRecoverEmptyCandidateSet(t *testing.T) {
	frame := buildShortFrame(0xA12345)
	c := NewCandidates(time.Hour)

	_, ok := Recover(frame, c)
	assert.False(t, ok)
}

func TestCandidatesContains(t *testing.T) {
	c := NewCandidates(time.Hour)
	c.Add(0x123456)
	assert.True(t, c.Contains(0x123456))
	assert.False(t, c.Contains(0x654321))
}
