package crc

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/bits"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestValid112(t *testing.T) {
	raw := mustHex(t, "8D4840D6202CC371C32CE0576098")
	assert.True(t, Valid112(raw))
}

func TestCorrectSingleBit(t *testing.T) {
	raw := mustHex(t, "8D4840D6202CC371C32CE0576098")
	flipBit(raw, 50)
	assert.False(t, Valid112(raw))

	p, fixed := CorrectSingleBit(raw)
	require.True(t, fixed)
	assert.Equal(t, 50, p)
	assert.True(t, Valid112(raw))
}

func TestCorrectSingleBitFailsOnTwoBitError(t *testing.T) {
	raw := mustHex(t, "8D4840D6202CC371C32CE0576098")
	flipBit(raw, 10)
	flipBit(raw, 80)

	_, fixed := CorrectSingleBit(raw)
	assert.False(t, fixed)
}

func TestSyndromeTableCoversEveryBit(t *testing.T) {
	table := syndromes()
	assert.Len(t, table, bits.LongFrameBits)
}
