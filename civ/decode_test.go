package civ

import (
	"bytes"
	"fmt"
	"testing"
)

func TestDecodeBCDFrequencies(t *testing.T) {
	cases := []struct {
		payload []byte
		wantMHz string
	}{
		{[]byte{0x00, 0x00, 0x00, 0x45, 0x01}, "145.000000"},
		{[]byte{0x00, 0x40, 0x07, 0x07, 0x00}, "7.074000"},
		{[]byte{0x00, 0x00, 0x10, 0x07, 0x00}, "7.100000"},
		{[]byte{0x00, 0x00, 0x00, 0x00, 0x00}, "0.000000"},
		{[]byte{0x99, 0x99, 0x99, 0x99, 0x99}, "9999.999999"},
	}
	for _, c := range cases {
		hz := DecodeBCD(c.payload)
		got := fmt.Sprintf("%.6f", FrequencyReading{Hz: hz}.MHz())
		if got != c.wantMHz {
			t.Errorf("payload % X: got %s MHz, want %s", c.payload, got, c.wantMHz)
		}
	}
}

func TestBCDRoundTrip(t *testing.T) {
	for _, hz := range []uint64{0, 7074000, 145000000, 7100000, 9999999999} {
		if got := DecodeBCD(EncodeBCD(hz, 5)); got != hz {
			t.Errorf("round trip %d -> %d", hz, got)
		}
	}
}

func TestDecodeFrequencyFrame(t *testing.T) {
	f := NewFrequencyResponse(ControllerAddr, RadioAddr, 145000000)
	msg := Decoder{}.Decode(f)
	fr, ok := msg.(FrequencyReading)
	if !ok {
		t.Fatalf("expected FrequencyReading, got %T", msg)
	}
	if fr.Hz != 145000000 {
		t.Fatalf("got %d Hz", fr.Hz)
	}
}

func TestDecodeShortFrequencyFrame(t *testing.T) {
	// Frequency command with only 3 payload bytes.
	f := Frame{0xFE, 0xFE, 0xE0, 0xA4, 0x03, 0x00, 0x45, 0x01, 0xFD}
	if msg := (Decoder{}).Decode(f); msg != nil {
		t.Fatalf("short payload decoded to %T, want nil", msg)
	}
}

func spectrumFrame(offset, amps int) Frame {
	f := make(Frame, 0, offset+amps+1)
	f = append(f, 0xFE, 0xFE, 0xE0, 0xA4, 0x27)
	for len(f) < offset {
		f = append(f, 0x00)
	}
	for i := 0; i < amps; i++ {
		f = append(f, byte(i*7%200))
	}
	return append(f, 0xFD)
}

func TestDecodeSpectrumFrame(t *testing.T) {
	d := Decoder{SpectrumOffset: 19}
	f := spectrumFrame(19, 120)
	msg := d.Decode(f)
	s, ok := msg.(SpectrumSample)
	if !ok {
		t.Fatalf("expected SpectrumSample, got %T", msg)
	}
	if len(s.Amplitudes) != 120 {
		t.Fatalf("got %d amplitudes, want 120", len(s.Amplitudes))
	}
	if !bytes.Equal(s.Amplitudes, f[19:len(f)-1]) {
		t.Fatal("amplitudes do not match frame payload")
	}
}

func TestDecodeSpectrumAlternateOffset(t *testing.T) {
	d := Decoder{SpectrumOffset: 14}
	s, ok := d.Decode(spectrumFrame(14, 60)).(SpectrumSample)
	if !ok {
		t.Fatal("expected SpectrumSample at offset 14")
	}
	if len(s.Amplitudes) != 60 {
		t.Fatalf("got %d amplitudes, want 60", len(s.Amplitudes))
	}
}

func TestDecodeShortSpectrumFrame(t *testing.T) {
	d := Decoder{SpectrumOffset: 19}
	if msg := d.Decode(spectrumFrame(19, 2)); msg != nil {
		t.Fatalf("truncated spectrum decoded to %T, want nil", msg)
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	f := Frame{0xFE, 0xFE, 0xE0, 0xA4, 0x1C, 0x00, 0xFD}
	msg := Decoder{}.Decode(f)
	if _, ok := msg.(Unknown); !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
}

// A wrong spectrum offset lands inside the fixed metadata prefix and
// produces a near-constant amplitude sequence. Plausible must catch that.
func TestPlausibleFlagsMisconfiguredOffset(t *testing.T) {
	d := Decoder{SpectrumOffset: 5}
	f := spectrumFrame(19, 200) // 14 zero metadata bytes land in the payload
	s, ok := d.Decode(f).(SpectrumSample)
	if !ok {
		t.Fatal("expected SpectrumSample")
	}
	good, ok := Decoder{SpectrumOffset: 19}.Decode(f).(SpectrumSample)
	if !ok {
		t.Fatal("expected SpectrumSample at the correct offset")
	}
	if !Plausible(good.Amplitudes) {
		t.Fatal("correctly offset sweep reported implausible")
	}
	if Plausible(s.Amplitudes[:10]) {
		t.Fatal("metadata prefix reported plausible")
	}
}

func TestPlausibleRejectsFlatAndEmpty(t *testing.T) {
	if Plausible(nil) {
		t.Fatal("empty sequence reported plausible")
	}
	if Plausible(bytes.Repeat([]byte{0x42}, 100)) {
		t.Fatal("constant sequence reported plausible")
	}
}

func TestScopeStreamCommand(t *testing.T) {
	on := NewScopeStream(RadioAddr, ControllerAddr, true)
	want := Frame{0xFE, 0xFE, 0xA4, 0xE0, 0x1A, 0x05, 0x00, 0x01, 0xFD}
	if !bytes.Equal(on, want) {
		t.Fatalf("scope on: got %s", on.Hex())
	}
	off := NewScopeStream(RadioAddr, ControllerAddr, false)
	if off[7] != 0x00 {
		t.Fatalf("scope off parameter: got %02X", off[7])
	}
	if sub, ok := on.SubCommand(); !ok || sub != SubScopeOnOff {
		t.Fatalf("sub-command: got %02X ok=%v", sub, ok)
	}
}
