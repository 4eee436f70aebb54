package civ

// Message is a decoded frame. Concrete types are FrequencyReading,
// SpectrumSample and Unknown.
type Message interface {
	message()
}

// FrequencyReading is the operating frequency decoded from a frequency
// response frame.
type FrequencyReading struct {
	Hz uint64
}

func (FrequencyReading) message() {}

// MHz reports the frequency in megahertz.
func (f FrequencyReading) MHz() float64 { return float64(f.Hz) / 1e6 }

// SpectrumSample carries the raw amplitude bytes of a scope waveform
// frame, in source resolution. Values are in the closed range [0, 255].
type SpectrumSample struct {
	Amplitudes []byte
}

func (SpectrumSample) message() {}

// Unknown wraps a frame whose command byte this package does not
// interpret. It exists only so the frame log can display it.
type Unknown struct {
	Frame Frame
}

func (Unknown) message() {}

// minSpectrumAmplitudes is the smallest amplitude payload worth keeping.
// Anything shorter is a truncated frame, not a usable sweep.
const minSpectrumAmplitudes = 4

// Decoder classifies frames by command byte and extracts their payloads.
// The zero value uses DefaultSpectrumOffset.
type Decoder struct {
	// SpectrumOffset is the index of the first amplitude byte in a scope
	// waveform frame. Bridge/firmware dependent, see DefaultSpectrumOffset.
	SpectrumOffset int
}

// Decode returns the decoded message for a frame, or nil when the frame is
// recognized but too short to carry its payload. Decode never fails:
// malformed frames simply produce no message.
func (d Decoder) Decode(f Frame) Message {
	if len(f) < MinFrameLen {
		return nil
	}
	switch f.Command() {
	case CmdReadFrequency:
		// Command byte at index 4, then exactly 5 BCD payload bytes.
		if len(f) < 11 {
			return nil
		}
		return FrequencyReading{Hz: DecodeBCD(f[5:10])}
	case CmdScopeWaveform:
		off := d.SpectrumOffset
		if off <= 0 {
			off = DefaultSpectrumOffset
		}
		// Amplitudes run from the configured offset to the byte before the
		// terminator.
		if len(f) < off+minSpectrumAmplitudes+1 {
			return nil
		}
		amps := make([]byte, len(f)-1-off)
		copy(amps, f[off:len(f)-1])
		return SpectrumSample{Amplitudes: amps}
	default:
		return Unknown{Frame: f}
	}
}

// DecodeBCD interprets payload bytes as little-endian binary-coded
// decimal: the low nibble of each byte is the digit at the current decimal
// weight and the high nibble the next weight up, weights increasing by ten
// per nibble across the payload.
func DecodeBCD(p []byte) uint64 {
	var hz, weight uint64 = 0, 1
	for _, b := range p {
		hz += uint64(b&0x0F) * weight
		hz += uint64(b>>4) * weight * 10
		weight *= 100
	}
	return hz
}

// EncodeBCD is the inverse of DecodeBCD over n output bytes.
func EncodeBCD(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		low := byte(v % 10)
		v /= 10
		high := byte(v % 10)
		v /= 10
		out[i] = high<<4 | low
	}
	return out
}

// Plausible reports whether an amplitude sequence looks like real sweep
// data. An empty or near-constant sequence is the signature of a
// misconfigured spectrum offset.
func Plausible(amps []byte) bool {
	if len(amps) < minSpectrumAmplitudes {
		return false
	}
	lo, hi := amps[0], amps[0]
	for _, a := range amps[1:] {
		if a < lo {
			lo = a
		}
		if a > hi {
			hi = a
		}
	}
	return hi-lo >= 3
}
