package civ

// NewReadFrequency builds the frequency query frame sent to the radio.
func NewReadFrequency(radio, controller byte) Frame {
	return Frame{Preamble, Preamble, radio, controller, CmdReadFrequency, Terminator}
}

// NewScopeStream builds the 0x1A/0x05 frame that switches scope waveform
// streaming on or off.
func NewScopeStream(radio, controller byte, on bool) Frame {
	param := byte(0x00)
	if on {
		param = 0x01
	}
	return Frame{Preamble, Preamble, radio, controller, CmdScopeControl, SubScopeOnOff, 0x00, param, Terminator}
}

// NewFrequencyResponse builds a frequency response frame carrying hz as a
// 5-byte BCD payload. Used by tests and the mock bridge.
func NewFrequencyResponse(dest, src byte, hz uint64) Frame {
	f := Frame{Preamble, Preamble, dest, src, CmdReadFrequency}
	f = append(f, EncodeBCD(hz, 5)...)
	return append(f, Terminator)
}
