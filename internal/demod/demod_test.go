package demod

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/bits"
)

// synthesizeFrame builds a magnitude vector containing a valid preamble
// followed by a PPM-encoded bit frame, mirroring dump1090's demod test
// fixtures: pulse in the first half of a bit pair encodes 1, second half
// encodes 0.
func synthesizeFrame(t *testing.T, data []byte, numBits int) []float64 {
	t.Helper()
	const hi = 1.0
	const mid = 0.5
	const lo = 0.02

	preamble := make([]float64, bits.PreambleSamples)
	for i := range preamble {
		preamble[i] = lo
	}
	preamble[0] = hi
	preamble[2] = hi
	preamble[7] = mid
	preamble[9] = mid

	m := append([]float64{}, preamble...)
	for k := 0; k < numBits; k++ {
		bit := bits.GetBit(data, k)
		if bit == 1 {
			m = append(m, hi, lo)
		} else {
			m = append(m, lo, hi)
		}
	}
	// pad so the scan window for the next preamble attempt has enough
	// samples to safely fail out.
	for i := 0; i < bits.PreambleSamples+bits.LongMessageSamples; i++ {
		m = append(m, lo)
	}
	return m
}

func TestDemodulateValidFrame(t *testing.T) {
	raw, err := hex.DecodeString("8D4840D6202CC371C32CE0576098")
	require.NoError(t, err)

	mag := synthesizeFrame(t, raw, 112)

	d := New()
	frames := d.Process(mag)
	require.Len(t, frames, 1)
	assert.Equal(t, 112, frames[0].NumBits)
	assert.Equal(t, raw, frames[0].Bits)
	assert.Greater(t, frames[0].Signal, bits.MinSignalLevel)
}

func TestDemodulateRejectsFlatSignal(t *testing.T) {
	m := make([]float64, 1024)
	for i := range m {
		m[i] = 0.01
	}
	d := New()
	frames := d.Process(m)
	assert.Empty(t, frames)
}

func TestStatsSnapshot(t *testing.T) {
	raw, err := hex.DecodeString("8D4840D6202CC371C32CE0576098")
	require.NoError(t, err)
	mag := synthesizeFrame(t, raw, 112)

	d := New()
	d.Process(mag)

	snap := d.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.PreamblesSeen)
	assert.EqualValues(t, 1, snap.ValidDecodes)
	assert.EqualValues(t, len(mag), snap.SamplesProcessed)
}

func TestStatsCRCAndFilterCounters(t *testing.T) {
	s := &Stats{}
	s.AddCRCFailure()
	s.AddCRCFixed()
	s.AddCRCFixed()
	s.AddMessagesFiltered()

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.CRCFailures)
	assert.EqualValues(t, 2, snap.CRCFixed)
	assert.EqualValues(t, 1, snap.MessagesFiltered)
}
