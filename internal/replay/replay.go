// Package replay reconstructs waterfall views from recorded CSV files
// without a live source.
package replay

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// timeLayout matches the recorder's timestamp column.
const timeLayout = "2006-01-02 15:04:05.000"

// Record is one persisted spectrum row.
type Record struct {
	Timestamp time.Time
	FreqMHz   float64
	SpanKHz   int
	Values    []float64
}

// FormatError reports a file that does not match the configured record
// schema. The whole load is rejected; no partial record set is returned.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("replay: %s line %d: %s", e.Path, e.Line, e.Reason)
}

// Engine loads record files recorded at a fixed display width and serves
// depth-row views at arbitrary positions. It has no timer of its own;
// playback rate belongs to the caller walking indices.
type Engine struct {
	width   int
	depth   int
	records []Record
}

// New constructs an engine expecting records of exactly width values and
// serving views of depth rows.
func New(width, depth int) *Engine {
	return &Engine{width: width, depth: depth}
}

// Len reports how many records are loaded.
func (e *Engine) Len() int { return len(e.records) }

// Load reads a record file. On any schema violation the whole file is
// rejected with a FormatError and the engine keeps zero records from it.
func (e *Engine) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open record file: %w", err)
	}
	defer f.Close()
	return e.LoadReader(f, path)
}

// LoadReader is Load over an arbitrary reader; path is used only in
// errors.
func (e *Engine) LoadReader(r io.Reader, path string) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // column count is validated here, not by the reader

	wantCols := 3 + e.width
	var records []Record
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &FormatError{Path: path, Line: line + 1, Reason: err.Error()}
		}
		line++
		if len(row) != wantCols {
			return &FormatError{
				Path: path, Line: line,
				Reason: fmt.Sprintf("%d columns, want %d", len(row), wantCols),
			}
		}
		if line == 1 && strings.EqualFold(row[0], "timestamp") {
			continue
		}
		rec, ferr := e.parseRow(row, path, line)
		if ferr != nil {
			return ferr
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return &FormatError{Path: path, Line: line, Reason: "no data rows"}
	}
	e.records = records
	return nil
}

func (e *Engine) parseRow(row []string, path string, line int) (Record, *FormatError) {
	ts, err := time.Parse(timeLayout, row[0])
	if err != nil {
		return Record{}, &FormatError{Path: path, Line: line, Reason: "bad timestamp " + strconv.Quote(row[0])}
	}
	freq, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return Record{}, &FormatError{Path: path, Line: line, Reason: "bad freq_mhz " + strconv.Quote(row[1])}
	}
	span, err := strconv.Atoi(row[2])
	if err != nil {
		return Record{}, &FormatError{Path: path, Line: line, Reason: "bad span_khz " + strconv.Quote(row[2])}
	}
	values := make([]float64, e.width)
	for i, s := range row[3:] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Record{}, &FormatError{Path: path, Line: line, Reason: "bad val_" + strconv.Itoa(i)}
		}
		values[i] = v
	}
	return Record{Timestamp: ts, FreqMHz: freq, SpanKHz: span, Values: values}, nil
}

// RecordAt returns the record at index, clamped into range. An engine
// with no records returns a zero Record.
func (e *Engine) RecordAt(index int) Record {
	if len(e.records) == 0 {
		return Record{}
	}
	return e.records[e.clamp(index)]
}

// ViewAt reconstructs the waterfall grid whose newest row (row 0) is the
// record at index, using the depth records ending there. Near the start
// of the file the view is padded by repeating the oldest available
// record rather than fabricating zero rows. An engine with no records
// yields an all-zero grid.
func (e *Engine) ViewAt(index int) [][]float64 {
	grid := make([][]float64, e.depth)
	if len(e.records) == 0 {
		for i := range grid {
			grid[i] = make([]float64, e.width)
		}
		return grid
	}
	index = e.clamp(index)
	for i := 0; i < e.depth; i++ {
		src := index - i
		if src < 0 {
			src = 0
		}
		row := make([]float64, e.width)
		copy(row, e.records[src].Values)
		grid[i] = row
	}
	return grid
}

func (e *Engine) clamp(index int) int {
	if index < 0 {
		return 0
	}
	if index >= len(e.records) {
		return len(e.records) - 1
	}
	return index
}
