package ingest

import (
	"context"
	"encoding/hex"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go1090/internal/bits"
	"go1090/internal/icao"
)

// fakeSource replays a single pre-synthesized magnitude buffer as raw I/Q
// bytes, then blocks until ctx is cancelled.
type fakeSource struct {
	iq []byte
}

func (f *fakeSource) StartCapture(ctx context.Context, dataChan chan<- []byte) error {
	select {
	case dataChan <- f.iq:
	case <-ctx.Done():
		return nil
	}
	<-ctx.Done()
	return nil
}

func synthesizeIQFrame(data []byte, numBits int) []byte {
	const hi, mid, lo = 255, 190, 128

	toByte := func(mag float64) byte { return byte(mag) }
	var out []byte
	preamble := []float64{hi, lo, hi, lo, lo, lo, lo, mid, lo, mid, lo, lo, lo, lo, lo, lo}
	for _, v := range preamble {
		out = append(out, toByte(v), 127)
	}
	for k := 0; k < numBits; k++ {
		bit := bits.GetBit(data, k)
		if bit == 1 {
			out = append(out, hi, 127, lo, 127)
		} else {
			out = append(out, lo, 127, hi, 127)
		}
	}
	for i := 0; i < (bits.PreambleSamples+bits.LongMessageSamples)*2; i++ {
		out = append(out, 128, 127)
	}
	return out
}

func TestPipelineDecodesFrameAndDumpsRaw(t *testing.T) {
	raw, err := hex.DecodeString("8D4840D6202CC371C32CE0576098")
	require.NoError(t, err)
	iq := synthesizeIQFrame(raw, 112)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dumpPath := filepath.Join(t.TempDir(), "raw.bin")
	p, err := New(Options{Logger: logger, FixErrors: true, CRCCheck: true, DumpRawTo: dumpPath}, icao.NewCandidates(time.Hour))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, &fakeSource{iq: iq}) }()

	select {
	case msg := <-p.Messages:
		assert.Equal(t, uint32(0x4840D6), msg.ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected a decoded message")
	}

	cancel()
	<-done
}

// beastFrame builds one framed Beast-protocol Mode S long message, per the
// wire layout in internal/beast: sync, type, 6-byte timestamp, signal, data.
func beastFrame(data []byte) []byte {
	frame := []byte{0x1A, 0x33, 0, 0, 0, 0, 0, 0, 200}
	return append(frame, data...)
}

func TestPipelineRunBeastDecodesFrame(t *testing.T) {
	raw, err := hex.DecodeString("8D4840D6202CC371C32CE0576098")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := New(Options{Logger: logger, FixErrors: true, CRCCheck: true}, icao.NewCandidates(time.Hour))
	require.NoError(t, err)
	defer p.Close()

	r, w := io.Pipe()
	go func() {
		w.Write(beastFrame(raw))
		<-time.After(100 * time.Millisecond)
		w.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.RunBeast(ctx, r) }()

	select {
	case msg := <-p.Messages:
		assert.Equal(t, uint32(0x4840D6), msg.ICAO)
	case <-time.After(time.Second):
		t.Fatal("expected a decoded message from the beast source")
	}

	cancel()
	<-done
}

func TestDecodeAndPublishTalliesMessagesFiltered(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := New(Options{Logger: logger, CRCCheck: true}, icao.NewCandidates(time.Hour))
	require.NoError(t, err)
	defer p.Close()

	shortFrame := make([]byte, 7)
	p.decodeAndPublish(shortFrame, bits.ShortFrameBits, 0.5, time.Now())

	snap := p.demod.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.MessagesFiltered)
	assert.EqualValues(t, 0, snap.CRCFailures)
}

func TestDecodeAndPublishTalliesCRCFailure(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := New(Options{Logger: logger, CRCCheck: true, FixErrors: false}, icao.NewCandidates(time.Hour))
	require.NoError(t, err)
	defer p.Close()

	longFrame := make([]byte, 14)
	for i := range longFrame {
		longFrame[i] = 0xFF
	}
	p.decodeAndPublish(longFrame, bits.LongFrameBits, 0.5, time.Now())

	snap := p.demod.Stats.Snapshot()
	assert.EqualValues(t, 1, snap.CRCFailures)
	assert.EqualValues(t, 0, snap.CRCFixed)
}

func TestPipelineSnipLevelDropsWeakSamples(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	p, err := New(Options{Logger: logger, SnipLevel: 0.9}, icao.NewCandidates(time.Hour))
	require.NoError(t, err)
	defer p.Close()

	flat := make([]byte, 256)
	for i := range flat {
		flat[i] = 128
	}
	p.process(flat)
	select {
	case <-p.Messages:
		t.Fatal("expected no messages from flat input")
	default:
	}
}
