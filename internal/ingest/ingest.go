// Package ingest wires the SDR sample stream into the demodulator and
// decoder, handling the ambient concerns around that pipeline (raw-dump
// passthrough, magnitude-level snip filtering) that the core demod/message
// packages stay agnostic of. Structurally grounded in the teacher's
// Application.processIQData loop (root application.go) generalized from
// ADSBProcessor.ProcessIQSamples to demod.Process + message.Decode.
package ingest

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/beast"
	"go1090/internal/bits"
	"go1090/internal/demod"
	"go1090/internal/icao"
	"go1090/internal/message"
)

// Source supplies raw I/Q byte-pair buffers, satisfied by
// internal/rtlsdr.RTLSDRDevice.StartCapture.
type Source interface {
	StartCapture(ctx context.Context, dataChan chan<- []byte) error
}

// Options configures the ingest pipeline (§6 Configuration).
type Options struct {
	Logger     *logrus.Logger
	FixErrors  bool
	CRCCheck   bool
	SnipLevel  float64
	DumpRawTo  string // empty disables raw-dump passthrough
}

// Pipeline reads raw I/Q buffers from a Source, demodulates and decodes
// them, and emits decoded messages on Messages.
type Pipeline struct {
	opts       Options
	demod      *demod.Demodulator
	candidates *icao.Candidates
	Messages   chan *message.Message

	dumpMu   sync.Mutex
	dumpFile *os.File
}

// New creates a Pipeline. candidates is shared with the tracker so ICAO
// recovery sees the same refreshed candidate set.
func New(opts Options, candidates *icao.Candidates) (*Pipeline, error) {
	p := &Pipeline{
		opts:       opts,
		demod:      demod.New(),
		candidates: candidates,
		Messages:   make(chan *message.Message, 1000),
	}

	if opts.DumpRawTo != "" {
		f, err := os.OpenFile(opts.DumpRawTo, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		p.dumpFile = f
	}

	return p, nil
}

// Close releases the raw-dump file handle, if any.
func (p *Pipeline) Close() error {
	if p.dumpFile != nil {
		return p.dumpFile.Close()
	}
	return nil
}

// Run reads from source until ctx is cancelled, feeding every buffer
// through the demodulator and decoder and publishing results on Messages.
// Run and RunBeast may run concurrently against the same Pipeline — the
// Messages channel is never closed, since either or both may be publishing
// to it; consumers rely on ctx cancellation for shutdown.
func (p *Pipeline) Run(ctx context.Context, source Source) error {
	dataChan := make(chan []byte, 100)

	errCh := make(chan error, 1)
	go func() {
		errCh <- source.StartCapture(ctx, dataChan)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case buf, ok := <-dataChan:
			if !ok {
				return nil
			}
			p.process(buf)
		}
	}
}

func (p *Pipeline) process(buf []byte) {
	if p.dumpFile != nil {
		p.dumpMu.Lock()
		p.dumpFile.Write(buf)
		p.dumpMu.Unlock()
	}

	mag := demod.Magnitude(buf)
	if p.opts.SnipLevel > 0 {
		for i, v := range mag {
			if v < p.opts.SnipLevel {
				mag[i] = 0
			}
		}
	}

	frames := p.demod.Process(mag)
	for _, f := range frames {
		p.decodeAndPublish(f.Bits, f.NumBits, f.Signal, time.Now())
	}
}

// decodeAndPublish runs message.Decode, tallies the CRC/filter counters §4.4
// and §7 require, and publishes a successful decode on Messages. It is the
// single point both the RF path (process) and the Beast path (RunBeast)
// feed through, so the tracker sees the same Message shape and the same
// stats regardless of ingest source.
func (p *Pipeline) decodeAndPublish(raw []byte, numBits int, signal float64, ts time.Time) {
	msg, ok := message.Decode(raw, numBits, signal, ts, p.opts.FixErrors, p.opts.CRCCheck, p.candidates)

	if numBits == bits.LongFrameBits && p.opts.CRCCheck {
		switch {
		case msg.CRCFixed:
			p.demod.Stats.AddCRCFixed()
		case !msg.CRCValid:
			p.demod.Stats.AddCRCFailure()
		}
	}

	if !ok {
		if numBits == bits.ShortFrameBits {
			p.demod.Stats.AddMessagesFiltered()
		}
		return
	}

	select {
	case p.Messages <- msg:
	default:
		p.opts.Logger.Debug("dropping decoded message, channel full")
	}
}

// RunBeast decodes framed Beast-protocol messages from r (typically a TCP
// connection to another receiver) until ctx is cancelled or the stream
// ends, publishing decoded Messages on the same channel the RF pipeline
// uses. Mode A/C and status frames carry no Mode S bit payload and are
// skipped.
func (p *Pipeline) RunBeast(ctx context.Context, r io.Reader) error {
	dec := beast.NewDecoder(p.opts.Logger)
	buf := make([]byte, 4096)

	type chunk struct {
		data []byte
		err  error
	}
	chunks := make(chan chunk)
	go func() {
		for {
			n, err := r.Read(buf)
			if n > 0 {
				c := make([]byte, n)
				copy(c, buf[:n])
				select {
				case chunks <- chunk{data: c}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case chunks <- chunk{err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-chunks:
			if c.err != nil {
				if c.err == io.EOF {
					return nil
				}
				return c.err
			}
			frames, err := dec.Decode(c.data)
			if err != nil {
				continue
			}
			for _, bm := range frames {
				raw, numBits, ok := bm.Frame()
				if !ok {
					continue
				}
				p.decodeAndPublish(raw, numBits, float64(bm.Signal)/255.0, bm.Timestamp)
			}
		}
	}
}
