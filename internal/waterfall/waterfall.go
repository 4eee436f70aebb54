// Package waterfall holds the rolling time history of resampled spectra.
package waterfall

import "fmt"

// Buffer is a fixed depth x width grid of amplitude values. Row 0 is
// always the most recently pushed spectrum; pushing shifts every row down
// one and evicts the oldest. Size is fixed at construction.
type Buffer struct {
	depth int
	width int
	rows  [][]float64
}

// New constructs a zeroed buffer. Depth and width must both be >= 1.
func New(depth, width int) (*Buffer, error) {
	if depth < 1 || width < 1 {
		return nil, fmt.Errorf("waterfall: invalid size %dx%d", depth, width)
	}
	rows := make([][]float64, depth)
	for i := range rows {
		rows[i] = make([]float64, width)
	}
	return &Buffer{depth: depth, width: width, rows: rows}, nil
}

// Depth returns the number of rows.
func (b *Buffer) Depth() int { return b.depth }

// Width returns the number of columns.
func (b *Buffer) Width() int { return b.width }

// Push inserts row as the new most-recent entry. Rows whose length does
// not match the buffer width are rejected; a row is either fully inserted
// or not at all.
func (b *Buffer) Push(row []float64) error {
	if len(row) != b.width {
		return fmt.Errorf("waterfall: row has %d values, want %d", len(row), b.width)
	}
	last := b.rows[b.depth-1]
	copy(b.rows[1:], b.rows[:b.depth-1])
	copy(last, row)
	b.rows[0] = last
	return nil
}

// Snapshot returns a copy of the grid, newest row first. The copy shares
// no storage with the buffer, so callers may hold it across later pushes.
func (b *Buffer) Snapshot() [][]float64 {
	out := make([][]float64, b.depth)
	for i, r := range b.rows {
		out[i] = make([]float64, b.width)
		copy(out[i], r)
	}
	return out
}

// Reset zeroes every row without changing the buffer's size.
func (b *Buffer) Reset() {
	for _, r := range b.rows {
		for i := range r {
			r[i] = 0
		}
	}
}
