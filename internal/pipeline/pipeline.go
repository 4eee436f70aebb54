// Package pipeline runs the producer loop that turns raw transport
// bytes into display state: reassembled frames, decoded messages,
// resampled rows, waterfall history, and recorder feed.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civ-tools/civscope/civ"
	"github.com/civ-tools/civscope/internal/bridge"
	"github.com/civ-tools/civscope/internal/dsp"
	"github.com/civ-tools/civscope/internal/logging"
	"github.com/civ-tools/civscope/internal/recorder"
	"github.com/civ-tools/civscope/internal/waterfall"
)

const (
	// readTimeout paces the producer loop; stop requests are observed
	// within one tick.
	readTimeout = 100 * time.Millisecond
	// livenessTicks is how many consecutive empty reads pass before the
	// radio is re-queried.
	livenessTicks = 20
	// frameLogCap bounds the frame log queue. Newest entries are
	// dropped when the consumer falls behind.
	frameLogCap = 100
)

// Options wires a Pipeline together.
type Options struct {
	Transport      bridge.Transport
	Recorder       *recorder.Recorder
	Log            logging.Logger
	RadioAddr      byte
	ControllerAddr byte
	SpectrumOffset int
	Width          int
	Depth          int
	FreqMHz        float64
	SpanKHz        int
	MaxPending     int
}

// Snapshot is a consistent copy of the display state.
type Snapshot struct {
	FreqMHz   float64
	SpanKHz   int
	Latest    []float64
	Waterfall [][]float64
	Frames    uint64
	Spectra   uint64
}

// FrameLog is one entry of the decoded-frame trace shown in the UI.
type FrameLog struct {
	When time.Time
	Kind string
	Text string
}

// Pipeline owns the producer goroutine and the shared display state.
type Pipeline struct {
	opts    Options
	decoder civ.Decoder
	reasm   *civ.Reassembler

	mu        sync.Mutex
	freqMHz   float64
	latest    []float64
	grid      *waterfall.Buffer
	frames    uint64
	spectra   uint64

	logMu    sync.Mutex
	frameLog []FrameLog
}

// New builds a pipeline. The transport must already be connected by the
// caller.
func New(opts Options) (*Pipeline, error) {
	grid, err := waterfall.New(opts.Depth, opts.Width)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	return &Pipeline{
		opts:    opts,
		decoder: civ.Decoder{SpectrumOffset: opts.SpectrumOffset},
		reasm:   civ.NewReassembler(opts.MaxPending),
		freqMHz: opts.FreqMHz,
		grid:    grid,
	}, nil
}

// Run drives the producer loop until ctx is cancelled or the transport
// fails. On return scope streaming has been asked to stop and any open
// recorder file is closed.
func (p *Pipeline) Run(ctx context.Context) error {
	t := p.opts.Transport
	if err := t.Send(civ.NewScopeStream(p.opts.RadioAddr, p.opts.ControllerAddr, true)); err != nil {
		return fmt.Errorf("enable scope streaming: %w", err)
	}
	if err := t.Send(civ.NewReadFrequency(p.opts.RadioAddr, p.opts.ControllerAddr)); err != nil {
		return fmt.Errorf("query frequency: %w", err)
	}

	defer p.shutdown()

	silent := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := t.Receive(readTimeout)
		if err != nil {
			return fmt.Errorf("pipeline receive: %w", err)
		}
		if len(chunk) == 0 {
			silent++
			if silent >= livenessTicks {
				silent = 0
				p.opts.Log.Debug("stream silent, re-querying radio")
				if err := t.Send(civ.NewReadFrequency(p.opts.RadioAddr, p.opts.ControllerAddr)); err != nil {
					return fmt.Errorf("liveness query: %w", err)
				}
				if err := t.Send(civ.NewScopeStream(p.opts.RadioAddr, p.opts.ControllerAddr, true)); err != nil {
					return fmt.Errorf("liveness scope enable: %w", err)
				}
			}
			continue
		}
		silent = 0

		p.reasm.Write(chunk)
		for {
			frame, ok := p.reasm.Next()
			if !ok {
				break
			}
			if err := p.handle(frame); err != nil {
				return err
			}
		}
	}
}

// handle dispatches one reassembled frame.
func (p *Pipeline) handle(frame civ.Frame) error {
	p.mu.Lock()
	p.frames++
	p.mu.Unlock()

	switch m := p.decoder.Decode(frame).(type) {
	case civ.FrequencyReading:
		p.mu.Lock()
		p.freqMHz = m.MHz()
		p.mu.Unlock()
		p.pushLog(frame.Type(), fmt.Sprintf("%.6f MHz", m.MHz()))

	case civ.SpectrumSample:
		row := p.resample(m.Amplitudes)
		var offerErr error
		p.mu.Lock()
		p.latest = row
		pushErr := p.grid.Push(row)
		p.spectra++
		freq := p.freqMHz
		p.mu.Unlock()
		if pushErr != nil {
			// resample always returns exactly Width values.
			p.opts.Log.Warn("waterfall push", logging.F("err", pushErr.Error()))
		}
		if p.opts.Recorder != nil {
			offerErr = p.opts.Recorder.Offer(row, freq, p.opts.SpanKHz)
		}
		if offerErr != nil {
			return fmt.Errorf("record spectrum row: %w", offerErr)
		}

	case civ.Unknown:
		p.pushLog(frame.Type(), frame.Hex())

	case nil:
		p.opts.Log.Debug("undecodable frame", logging.Hex("frame", frame))
	}
	return nil
}

// resample brings an amplitude sample to display width. Genuine
// low-resolution samples are interpolated; runts below the plausibility
// floor are zero-padded as-is.
func (p *Pipeline) resample(amps []byte) []float64 {
	values := dsp.Bytes(amps)
	if len(values) >= p.opts.Width || civ.Plausible(amps) {
		return dsp.Stretch(values, p.opts.Width)
	}
	// Near-constant runts usually mean the amplitude offset is wrong
	// for this bridge. Zero-pad rather than stretch noise.
	p.opts.Log.Debug("implausible spectrum row",
		logging.F("len", len(amps)), logging.F("offset", p.opts.SpectrumOffset))
	return dsp.Decimate(values, p.opts.Width)
}

func (p *Pipeline) shutdown() {
	t := p.opts.Transport
	if err := t.Send(civ.NewScopeStream(p.opts.RadioAddr, p.opts.ControllerAddr, false)); err != nil {
		p.opts.Log.Warn("disable scope streaming", logging.F("err", err.Error()))
	}
	if p.opts.Recorder != nil {
		if err := p.opts.Recorder.Stop(); err != nil {
			p.opts.Log.Warn("close recording on stop", logging.F("err", err.Error()))
		}
	}
}

// Snapshot copies the current display state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		FreqMHz: p.freqMHz,
		SpanKHz: p.opts.SpanKHz,
		Frames:  p.frames,
		Spectra: p.spectra,
	}
	if p.latest != nil {
		s.Latest = append([]float64(nil), p.latest...)
	}
	s.Waterfall = p.grid.Snapshot()
	return s
}

// FrameLogs drains and returns the queued frame log entries.
func (p *Pipeline) FrameLogs() []FrameLog {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	out := p.frameLog
	p.frameLog = nil
	return out
}

func (p *Pipeline) pushLog(kind, text string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	if len(p.frameLog) >= frameLogCap {
		return
	}
	p.frameLog = append(p.frameLog, FrameLog{When: time.Now(), Kind: kind, Text: text})
}
