// Package recorder persists resampled spectrum rows to timestamped CSV
// files, either continuously or gated by an amplitude threshold.
package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/civ-tools/civscope/internal/dsp"
	"github.com/civ-tools/civscope/internal/logging"
)

// Phase is the recorder's state. A file is open if and only if the phase
// is Active.
type Phase int

const (
	// Idle: no recording requested.
	Idle Phase = iota
	// Armed: trigger mode on, waiting for the threshold, no file open.
	Armed
	// Active: file open, rows being written.
	Active
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Storage creates writable record files. The name hint is the file name
// the recorder wants; implementations return the handle and the full path
// actually used.
type Storage interface {
	Create(nameHint string) (io.WriteCloser, string, error)
}

// DirStorage writes record files into a directory, creating it on demand.
type DirStorage struct {
	Dir string
}

func (s DirStorage) Create(nameHint string) (io.WriteCloser, string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create record directory %s: %w", s.Dir, err)
	}
	path := filepath.Join(s.Dir, nameHint)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create record file %s: %w", path, err)
	}
	return f, path, nil
}

// flushEvery is how many rows may accumulate before the CSV writer is
// flushed to the file. Also flushed unconditionally on close.
const flushEvery = 100

// Status is a snapshot of the recorder for UIs and telemetry.
type Status struct {
	Phase     Phase
	Triggered bool
	Threshold float64
	Path      string
	Rows      int
	Files     int
}

// Recorder is the trigger-driven recording state machine. All methods are
// safe for concurrent use; in the live pipeline Offer runs on the producer
// goroutine while Start/Stop arrive from the UI.
type Recorder struct {
	mu        sync.Mutex
	width     int
	threshold float64
	storage   Storage
	log       logging.Logger
	now       func() time.Time

	phase     Phase
	triggered bool
	file      io.WriteCloser
	csvw      *csv.Writer
	path      string
	rows      int
	files     int
}

// New constructs a Recorder for rows of exactly width values.
func New(width int, threshold float64, storage Storage, log logging.Logger) *Recorder {
	if log == nil {
		log = logging.Default()
	}
	return &Recorder{
		width:     width,
		threshold: threshold,
		storage:   storage,
		log:       log,
		now:       time.Now,
	}
}

// Phase returns the current state.
func (r *Recorder) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Status returns a consistent snapshot of the recorder.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Phase:     r.phase,
		Triggered: r.triggered,
		Threshold: r.threshold,
		Path:      r.path,
		Rows:      r.rows,
		Files:     r.files,
	}
}

// SetThreshold updates the trigger threshold for subsequent rows.
func (r *Recorder) SetThreshold(v float64) {
	r.mu.Lock()
	r.threshold = v
	r.mu.Unlock()
}

// Start begins a recording session. With triggered=false a timestamped
// file opens immediately; with triggered=true the recorder arms and waits
// for a row to cross the threshold.
func (r *Recorder) Start(triggered bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != Idle {
		return fmt.Errorf("recorder: already %s", r.phase)
	}
	r.triggered = triggered
	r.files = 0
	if triggered {
		r.phase = Armed
		r.log.Info("recorder armed", logging.F("threshold", r.threshold))
		return nil
	}
	if err := r.openFile("spectre_" + r.now().Format("20060102_150405") + ".csv"); err != nil {
		return err
	}
	r.phase = Active
	return nil
}

// Stop ends the session. Any open file is flushed and closed before Stop
// returns.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.file != nil {
		err = r.closeFile()
	}
	r.phase = Idle
	r.triggered = false
	return err
}

// Offer feeds one resampled row through the state machine. The row must
// already be at display width; threshold decisions use this row so that
// persisted files and the live display agree pixel for pixel. A write
// failure closes the file, forces the recorder Idle and is returned to the
// caller.
func (r *Recorder) Offer(row []float64, freqMHz float64, spanKHz int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.phase {
	case Idle:
		return nil
	case Armed:
		if dsp.Max(row) < r.threshold {
			return nil
		}
		name := "trigger_" + r.now().Format("20060102_150405") +
			fmt.Sprintf("_%03d", r.now().Nanosecond()/1e6) + ".csv"
		if err := r.openFile(name); err != nil {
			r.phase = Idle
			return err
		}
		r.phase = Active
		return r.writeRow(row, freqMHz, spanKHz)
	case Active:
		if r.triggered && dsp.Max(row) < r.threshold {
			if err := r.closeFile(); err != nil {
				r.phase = Idle
				return err
			}
			r.phase = Armed
			r.log.Info("recorder re-armed", logging.F("rows", r.rows), logging.F("file", r.path))
			return nil
		}
		return r.writeRow(row, freqMHz, spanKHz)
	}
	return nil
}

// openFile must be called with the lock held.
func (r *Recorder) openFile(name string) error {
	w, path, err := r.storage.Create(name)
	if err != nil {
		return err
	}
	r.file = w
	r.csvw = csv.NewWriter(w)
	r.path = path
	r.rows = 0
	r.files++

	header := make([]string, 0, 3+r.width)
	header = append(header, "timestamp", "freq_mhz", "span_khz")
	for i := 0; i < r.width; i++ {
		header = append(header, "val_"+strconv.Itoa(i))
	}
	if err := r.csvw.Write(header); err != nil {
		r.file.Close()
		r.file = nil
		r.csvw = nil
		return fmt.Errorf("write header to %s: %w", path, err)
	}
	r.log.Info("recording to file", logging.F("file", path))
	return nil
}

// closeFile must be called with the lock held. Flush is guaranteed before
// the close completes.
func (r *Recorder) closeFile() error {
	r.csvw.Flush()
	flushErr := r.csvw.Error()
	closeErr := r.file.Close()
	r.file = nil
	r.csvw = nil
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", r.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", r.path, closeErr)
	}
	return nil
}

// writeRow must be called with the lock held.
func (r *Recorder) writeRow(row []float64, freqMHz float64, spanKHz int) error {
	if len(row) != r.width {
		return fmt.Errorf("recorder: row has %d values, want %d", len(row), r.width)
	}
	record := make([]string, 0, 3+r.width)
	record = append(record,
		r.now().Format("2006-01-02 15:04:05.000"),
		strconv.FormatFloat(freqMHz, 'f', 6, 64),
		strconv.Itoa(spanKHz),
	)
	for _, v := range row {
		record = append(record, strconv.FormatFloat(v, 'f', 1, 64))
	}
	if err := r.csvw.Write(record); err != nil {
		return r.fail(err)
	}
	r.rows++
	if r.rows%flushEvery == 0 {
		r.csvw.Flush()
		if err := r.csvw.Error(); err != nil {
			return r.fail(err)
		}
	}
	return nil
}

// fail must be called with the lock held. A storage failure while Active
// stops recording entirely; the error surfaces to the pipeline.
func (r *Recorder) fail(err error) error {
	path := r.path
	if r.file != nil {
		r.file.Close()
		r.file = nil
		r.csvw = nil
	}
	r.phase = Idle
	r.triggered = false
	r.log.Error("recording failed", logging.F("file", path), logging.F("err", err))
	return fmt.Errorf("write record to %s: %w", path, err)
}
