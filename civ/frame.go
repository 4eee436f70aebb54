package civ

import (
	"bytes"
	"fmt"
	"strings"
)

// Frame is one complete CI-V message, preamble through terminator
// inclusive. Frames returned by the Reassembler are freshly allocated and
// never mutated afterwards.
type Frame []byte

// Dest returns the destination bus address.
func (f Frame) Dest() byte { return f[2] }

// Source returns the source bus address.
func (f Frame) Source() byte { return f[3] }

// Command returns the command byte.
func (f Frame) Command() byte { return f[4] }

// SubCommand returns the sub-command byte when the frame carries one.
func (f Frame) SubCommand() (byte, bool) {
	if len(f) < MinFrameLen+1 {
		return 0, false
	}
	return f[5], true
}

// CommandName maps a command byte to the short label used in the frame log.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", cmd)
}

// Type returns the log label for the frame's command byte.
func (f Frame) Type() string {
	if len(f) < 5 {
		return "???"
	}
	return CommandName(f.Command())
}

// Hex renders the frame as space-separated uppercase hex bytes.
func (f Frame) Hex() string {
	var b strings.Builder
	b.Grow(len(f) * 3)
	for i, v := range f {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// Reassembler turns an arbitrarily chunked byte stream into complete
// frames. It never errors on malformed input: noise ahead of a valid
// double preamble is discarded, a lone preamble byte that turns out not to
// be the start of a frame is skipped one byte at a time, and an
// unterminated frame is held until more bytes arrive.
type Reassembler struct {
	buf []byte

	// maxPending caps how long an unterminated frame may grow before the
	// reassembler gives up on it and resyncs past its preamble. Zero
	// disables the cap.
	maxPending int
}

// NewReassembler constructs a Reassembler. maxPending <= 0 disables the
// pending-frame length cap.
func NewReassembler(maxPending int) *Reassembler {
	if maxPending < 0 {
		maxPending = 0
	}
	return &Reassembler{maxPending: maxPending}
}

// Write appends a chunk of transport bytes. Zero-length chunks are no-ops.
func (r *Reassembler) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	r.buf = append(r.buf, p...)
}

// Pending reports how many unconsumed bytes the reassembler is holding.
func (r *Reassembler) Pending() int { return len(r.buf) }

// Next returns the next complete frame, or ok=false once the available
// bytes contain no further complete frame. Bytes forming a returned frame
// (and any noise preceding it) are consumed.
func (r *Reassembler) Next() (Frame, bool) {
	for {
		if !r.sync() {
			return nil, false
		}
		end := bytes.IndexByte(r.buf, Terminator)
		if end < 0 {
			if r.maxPending > 0 && len(r.buf) > r.maxPending {
				// The pending frame has outgrown any plausible message.
				// Skip its preamble and resync on whatever follows.
				r.buf = r.buf[2:]
				continue
			}
			return nil, false
		}
		f := make(Frame, end+1)
		copy(f, r.buf[:end+1])
		r.consume(end + 1)
		if len(f) < MinFrameLen {
			// Runt span, e.g. FE FE FD. Not a frame.
			continue
		}
		return f, true
	}
}

// sync discards bytes until the buffer begins with a true double preamble.
// It returns false when the remaining bytes cannot yet start a frame.
func (r *Reassembler) sync() bool {
	for len(r.buf) > 0 {
		i := bytes.IndexByte(r.buf, Preamble)
		if i < 0 {
			r.buf = r.buf[:0]
			return false
		}
		if i > 0 {
			r.consume(i)
		}
		if len(r.buf) == 1 {
			// Lone preamble byte, need more input to tell noise from frame.
			return false
		}
		if r.buf[1] != Preamble {
			// False positive, advance past it.
			r.consume(1)
			continue
		}
		return true
	}
	return false
}

// consume drops n leading bytes, compacting in place so the buffer does
// not grow without bound across reslices.
func (r *Reassembler) consume(n int) {
	copy(r.buf, r.buf[n:])
	r.buf = r.buf[:len(r.buf)-n]
}
