package civ

// Wire framing sentinels. Every CI-V frame starts with two preamble bytes
// and ends with a single terminator byte.
const (
	Preamble   = 0xFE
	Terminator = 0xFD
)

// Default bus addresses for an IC-705 behind a wfview-style bridge.
const (
	RadioAddr      = 0xA4
	ControllerAddr = 0xE0
)

// Command bytes handled by this package. Everything else is passed through
// as an Unknown message for logging.
const (
	CmdReadFrequency = 0x03
	CmdScopeWaveform = 0x27
	CmdScopeControl  = 0x1A
	CmdOK            = 0xFB
	CmdNG            = 0xFA
)

// SubScopeOnOff is the 0x1A sub-command that toggles scope waveform
// streaming from the radio.
const SubScopeOnOff = 0x05

// MinFrameLen is the shortest span that still qualifies as a frame:
// two preamble bytes, two addresses, a command byte and the terminator.
const MinFrameLen = 6

// DefaultSpectrumOffset is the byte index at which amplitude data starts in
// a scope waveform frame. Observed values differ between bridge and
// firmware combinations (14, 19 and 20 have all been seen in the wild), so
// the decoder takes it as configuration rather than hardcoding it.
const DefaultSpectrumOffset = 19

var commandNames = map[byte]string{
	0x00:             "TX",
	0x01:             "S-Meter",
	CmdReadFrequency: "Freq",
	0x04:             "Mode",
	0x05:             "Set Freq",
	0x14:             "Levels",
	0x15:             "Read",
	0x16:             "Functions",
	CmdScopeControl:  "Config",
	0x1B:             "Repeater",
	0x1C:             "PTT",
	CmdScopeWaveform: "SPECTRUM",
	CmdNG:            "NG",
	CmdOK:            "OK",
}
