package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/civ-tools/civscope/civ"
	"github.com/civ-tools/civscope/internal/logging"
	"github.com/civ-tools/civscope/internal/recorder"
)

// scriptTransport feeds queued chunks to the pipeline and records what
// was sent to it. An exhausted script yields timeouts until the test
// cancels the run.
type scriptTransport struct {
	mu     sync.Mutex
	script [][]byte
	sent   [][]byte
	closed bool
}

func (s *scriptTransport) Connect(ctx context.Context) error { return nil }

func (s *scriptTransport) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("transport closed")
	}
	s.sent = append(s.sent, append([]byte(nil), p...))
	return nil
}

func (s *scriptTransport) Receive(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.script) == 0 {
		return nil, nil
	}
	chunk := s.script[0]
	s.script = s.script[1:]
	return chunk, nil
}

func (s *scriptTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptTransport) sentFrames() []civ.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]civ.Frame, len(s.sent))
	for i, p := range s.sent {
		out[i] = civ.Frame(p)
	}
	return out
}

const (
	testWidth = 8
	testDepth = 4
)

func spectrumFrame(offset int, amps []byte) []byte {
	f := []byte{0xFE, 0xFE, 0xE0, 0xA4, 0x27}
	for len(f) < offset {
		f = append(f, 0x00)
	}
	f = append(f, amps...)
	return append(f, 0xFD)
}

func freqFrame(hz uint64) []byte {
	return civ.NewFrequencyResponse(0xE0, 0xA4, hz)
}

func newTestPipeline(t *testing.T, tr *scriptTransport, rec *recorder.Recorder) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Transport:      tr,
		Recorder:       rec,
		Log:            logging.New(logging.Error, logging.Text, io.Discard),
		RadioAddr:      0xA4,
		ControllerAddr: 0xE0,
		SpectrumOffset: 19,
		Width:          testWidth,
		Depth:          testDepth,
		FreqMHz:        7.100,
		SpanKHz:        200,
		MaxPending:     4096,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// runUntil runs the pipeline until cond holds on its snapshots, then
// cancels and waits for Run to return.
func runUntil(t *testing.T, p *Pipeline, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	var snap Snapshot
	for time.Now().Before(deadline) {
		snap = p.Snapshot()
		if cond(snap) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if !cond(snap) {
		t.Fatalf("condition never held; last snapshot %+v", snap)
	}
	return snap
}

func TestRunEnablesScopeAndQueriesFrequency(t *testing.T) {
	tr := &scriptTransport{}
	p := newTestPipeline(t, tr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	frames := tr.sentFrames()
	if len(frames) < 3 {
		t.Fatalf("sent %d frames, want scope on, freq query, scope off", len(frames))
	}
	if !bytes.Equal(frames[0], civ.NewScopeStream(0xA4, 0xE0, true)) {
		t.Errorf("first send = % X, want scope enable", frames[0])
	}
	if frames[1].Command() != civ.CmdReadFrequency {
		t.Errorf("second send cmd = %02X, want 03", frames[1].Command())
	}
	last := frames[len(frames)-1]
	if !bytes.Equal(last, civ.NewScopeStream(0xA4, 0xE0, false)) {
		t.Errorf("last send = % X, want scope disable", last)
	}
}

func TestSpectrumFlowsToWaterfall(t *testing.T) {
	amps := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	tr := &scriptTransport{script: [][]byte{
		freqFrame(14_074_000),
		spectrumFrame(19, amps),
	}}
	p := newTestPipeline(t, tr, nil)

	snap := runUntil(t, p, func(s Snapshot) bool { return s.Spectra >= 1 && s.FreqMHz > 10 })
	if snap.FreqMHz != 14.074 {
		t.Errorf("FreqMHz = %v, want 14.074", snap.FreqMHz)
	}
	if len(snap.Latest) != testWidth {
		t.Fatalf("len(Latest) = %d, want %d", len(snap.Latest), testWidth)
	}
	if snap.Latest[0] != 10 || snap.Latest[testWidth-1] != 80 {
		t.Errorf("Latest = %v, want endpoints 10 and 80", snap.Latest)
	}
	if snap.Waterfall[0][0] != 10 {
		t.Errorf("Waterfall[0][0] = %v, want 10", snap.Waterfall[0][0])
	}
}

func TestSpectrumArrivalOrderPreserved(t *testing.T) {
	var script [][]byte
	for i := 1; i <= 3; i++ {
		amps := bytes.Repeat([]byte{byte(i * 10)}, testWidth)
		script = append(script, spectrumFrame(19, amps))
	}
	tr := &scriptTransport{script: script}
	p := newTestPipeline(t, tr, nil)

	snap := runUntil(t, p, func(s Snapshot) bool { return s.Spectra >= 3 })
	// Newest first.
	for i, want := range []float64{30, 20, 10} {
		if snap.Waterfall[i][0] != want {
			t.Errorf("Waterfall[%d][0] = %v, want %v", i, snap.Waterfall[i][0], want)
		}
	}
}

func TestChunkedFramesReassemble(t *testing.T) {
	whole := spectrumFrame(19, []byte{5, 15, 25, 35, 45, 55, 65, 75})
	tr := &scriptTransport{script: [][]byte{whole[:7], whole[7:13], whole[13:]}}
	p := newTestPipeline(t, tr, nil)

	snap := runUntil(t, p, func(s Snapshot) bool { return s.Spectra >= 1 })
	if snap.Latest[0] != 5 {
		t.Errorf("Latest[0] = %v, want 5", snap.Latest[0])
	}
}

func TestResampledRowsAlwaysMatchWidth(t *testing.T) {
	// Odd sample lengths around the display width: a long sweep, a
	// genuine low-resolution sweep, and a runt.
	tr := &scriptTransport{script: [][]byte{
		spectrumFrame(19, bytes.Repeat([]byte{50}, testWidth*3)),
		spectrumFrame(19, []byte{5, 40, 90, 20}),
		spectrumFrame(19, []byte{7, 7, 7, 7, 7}),
	}}
	p := newTestPipeline(t, tr, nil)

	snap := runUntil(t, p, func(s Snapshot) bool { return s.Spectra >= 3 })
	if len(snap.Latest) != testWidth {
		t.Fatalf("len(Latest) = %d, want %d", len(snap.Latest), testWidth)
	}
	for i, row := range snap.Waterfall {
		if len(row) != testWidth {
			t.Fatalf("len(Waterfall[%d]) = %d, want %d", i, len(row), testWidth)
		}
	}
}

func TestLivenessRequery(t *testing.T) {
	tr := &scriptTransport{}
	p := newTestPipeline(t, tr, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// With an empty script every read is silent; the re-query fires
	// after livenessTicks reads, well inside this window since the mock
	// does not actually block for readTimeout.
	deadline := time.Now().Add(2 * time.Second)
	requeried := false
	for time.Now().Before(deadline) && !requeried {
		tr.mu.Lock()
		requeried = len(tr.sent) >= 4
		tr.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if !requeried {
		t.Fatal("silent stream never triggered a re-query")
	}
}

func TestTransportErrorStopsRun(t *testing.T) {
	tr := &scriptTransport{}
	p := newTestPipeline(t, tr, nil)
	tr.Close() // Send fails immediately
	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil on a dead transport")
	}
}

// memStorage lets the recorder write into buffers.
type memFile struct{ bytes.Buffer }

func (f *memFile) Close() error { return nil }

type memStorage struct {
	mu    sync.Mutex
	files map[string]*memFile
}

func (s *memStorage) Create(nameHint string) (io.WriteCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]*memFile)
	}
	f := &memFile{}
	s.files[nameHint] = f
	return f, nameHint, nil
}

func TestRecorderRunsInProducerPath(t *testing.T) {
	storage := &memStorage{}
	rec := recorder.New(testWidth, 70, storage, logging.New(logging.Error, logging.Text, io.Discard))
	if err := rec.Start(false); err != nil {
		t.Fatal(err)
	}

	var script [][]byte
	for i := 0; i < 5; i++ {
		script = append(script, spectrumFrame(19, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	}
	tr := &scriptTransport{script: script}
	p := newTestPipeline(t, tr, rec)

	runUntil(t, p, func(s Snapshot) bool { return s.Spectra >= 5 })
	// shutdown closed and flushed the file
	if rec.Phase() != recorder.Idle {
		t.Fatalf("recorder phase after stop = %v, want Idle", rec.Phase())
	}
	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.files) != 1 {
		t.Fatalf("%d files recorded, want 1", len(storage.files))
	}
	for _, f := range storage.files {
		lines := bytes.Count(f.Bytes(), []byte{'\n'})
		if lines != 6 { // header + 5 rows
			t.Errorf("recorded %d lines, want 6", lines)
		}
	}
}

func TestFrameLogBounded(t *testing.T) {
	p := newTestPipeline(t, &scriptTransport{}, nil)
	for i := 0; i < frameLogCap+50; i++ {
		p.pushLog("OK", "FE FE E0 A4 FB FD")
	}
	logs := p.FrameLogs()
	if len(logs) != frameLogCap {
		t.Fatalf("frame log kept %d entries, want cap %d", len(logs), frameLogCap)
	}
	if got := p.FrameLogs(); len(got) != 0 {
		t.Fatalf("second drain returned %d entries, want 0", len(got))
	}
}
