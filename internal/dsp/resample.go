package dsp

import (
	"gonum.org/v1/gonum/interp"
)

// Decimate maps values onto exactly width outputs by selecting evenly
// spaced indices across the input. Selection, not averaging: peaks stay
// visible at the cost of aliasing. When the input is shorter than width
// the tail is padded with exact zeros, which is the right treatment for a
// malformed or truncated sweep.
func Decimate(values []float64, width int) []float64 {
	out := make([]float64, width)
	n := len(values)
	if n == 0 {
		return out
	}
	if n < width {
		copy(out, values)
		return out
	}
	if width == 1 {
		out[0] = values[0]
		return out
	}
	step := float64(n-1) / float64(width-1)
	for i := 0; i < width; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx >= n {
			idx = n - 1
		}
		out[i] = values[idx]
	}
	return out
}

// Stretch maps values onto exactly width outputs, linearly interpolating
// when the input is shorter than width. Used when the source genuinely
// sweeps at a lower native resolution than the display; for truncated
// input use Decimate, which zero-pads instead of inventing values.
func Stretch(values []float64, width int) []float64 {
	n := len(values)
	if n >= width {
		return Decimate(values, width)
	}
	out := make([]float64, width)
	if n == 0 {
		return out
	}
	if n == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return out
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i) / float64(n-1)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, values); err != nil {
		// xs is strictly increasing by construction, so Fit cannot fail;
		// fall back to zero padding rather than panic if it ever does.
		copy(out, values)
		return out
	}
	for i := range out {
		out[i] = pl.Predict(float64(i) / float64(width-1))
	}
	return out
}

// Bytes converts raw amplitude bytes to float64 for the pipeline.
func Bytes(amps []byte) []float64 {
	out := make([]float64, len(amps))
	for i, a := range amps {
		out[i] = float64(a)
	}
	return out
}

// Max returns the largest value in row, or 0 for an empty row.
func Max(row []float64) float64 {
	var max float64
	for _, v := range row {
		if v > max {
			max = v
		}
	}
	return max
}
