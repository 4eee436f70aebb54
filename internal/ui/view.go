// Package ui renders spectrum rows and waterfall history into a
// termbox terminal. Shared by the live and replay commands.
package ui

import (
	"fmt"

	termbox "github.com/nsf/termbox-go"
)

// shades maps amplitude intensity to glyphs, darkest first.
var shades = []rune(" .:-=+*#%@")

// headerLines is how many rows the status header occupies.
const headerLines = 2

// Screen draws frames into the current termbox terminal.
type Screen struct {
	// Floor and Ceil bound the amplitude range mapped onto the shade
	// ramp. Values outside are clamped.
	Floor float64
	Ceil  float64
}

// NewScreen returns a renderer for byte-valued amplitudes.
func NewScreen() *Screen {
	return &Screen{Floor: 0, Ceil: 255}
}

// View is one frame of display state.
type View struct {
	FreqMHz float64
	SpanKHz int
	Status  string
	// Rows is the waterfall, newest first; Rows[0] doubles as the
	// spectrum trace.
	Rows [][]float64
}

// Draw renders v and flushes the terminal.
func (s *Screen) Draw(v View) error {
	if err := termbox.Clear(termbox.ColorDefault, termbox.ColorDefault); err != nil {
		return err
	}
	width, height := termbox.Size()

	header := fmt.Sprintf("freq %.6f MHz  span %d kHz  %s", v.FreqMHz, v.SpanKHz, v.Status)
	putString(0, 0, header, termbox.ColorWhite, termbox.ColorDefault)
	for x := 0; x < width; x++ {
		termbox.SetCell(x, 1, '-', termbox.ColorWhite, termbox.ColorDefault)
	}

	for y, row := range v.Rows {
		line := headerLines + y
		if line >= height {
			break
		}
		fg := termbox.ColorDefault
		if y == 0 {
			fg = termbox.ColorYellow
		}
		s.drawRow(line, row, width, fg)
	}
	return termbox.Flush()
}

// drawRow squeezes one amplitude row into the terminal width.
func (s *Screen) drawRow(y int, row []float64, width int, fg termbox.Attribute) {
	if len(row) == 0 || width < 1 {
		return
	}
	for x := 0; x < width; x++ {
		idx := x * len(row) / width
		termbox.SetCell(x, y, s.shade(row[idx]), fg, termbox.ColorDefault)
	}
}

func (s *Screen) shade(v float64) rune {
	span := s.Ceil - s.Floor
	if span <= 0 {
		return shades[0]
	}
	n := (v - s.Floor) / span
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	i := int(n * float64(len(shades)-1))
	return shades[i]
}

func putString(x, y int, s string, fg, bg termbox.Attribute) {
	for _, c := range s {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
