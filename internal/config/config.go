// Package config holds the runtime settings shared by the scope tools.
// Settings come from built-in defaults, an optional INI file, and flag
// overrides applied by the commands themselves.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config is the full settings set. Zero value is not usable; start from
// Default().
type Config struct {
	// Bridge is the TCP address of the CI-V bridge.
	Bridge string
	// SerialPort, when set, selects a direct serial transport instead of
	// the TCP bridge.
	SerialPort string
	// BaudRate applies to the serial transport only.
	BaudRate uint

	// RadioAddr and ControllerAddr are the CI-V bus addresses.
	RadioAddr      byte
	ControllerAddr byte
	// SpectrumOffset is the index of the first amplitude byte in a
	// scope waveform frame. Firmware revisions differ here.
	SpectrumOffset int

	// Width and Depth size the waterfall grid.
	Width int
	Depth int

	// FreqMHz and SpanKHz label recorded rows until a frequency frame
	// arrives.
	FreqMHz float64
	SpanKHz int

	// Threshold arms triggered recording.
	Threshold float64
	// RecordDir receives CSV files.
	RecordDir string

	// MaxPending bounds the reassembly buffer.
	MaxPending int

	LogLevel  string
	LogFormat string
}

// Default returns the settings matching an unconfigured IC-705 setup.
func Default() Config {
	return Config{
		Bridge:         "127.0.0.1:50002",
		BaudRate:       115200,
		RadioAddr:      0xA4,
		ControllerAddr: 0xE0,
		SpectrumOffset: 19,
		Width:          950,
		Depth:          80,
		FreqMHz:        7.100,
		SpanKHz:        200,
		Threshold:      70,
		RecordDir:      "recep_csv",
		MaxPending:     16384,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads path over the defaults. A missing file is not an error so
// commands can run unconfigured; a present but malformed file is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := apply(f, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func apply(f *ini.File, cfg *Config) error {
	conn := f.Section("connection")
	cfg.Bridge = conn.Key("bridge").MustString(cfg.Bridge)
	cfg.SerialPort = conn.Key("serial_port").MustString(cfg.SerialPort)
	cfg.BaudRate = uint(conn.Key("baud_rate").MustUint(uint(cfg.BaudRate)))

	civ := f.Section("civ")
	if err := hexByte(civ.Key("radio_addr"), &cfg.RadioAddr); err != nil {
		return err
	}
	if err := hexByte(civ.Key("controller_addr"), &cfg.ControllerAddr); err != nil {
		return err
	}
	cfg.SpectrumOffset = civ.Key("spectrum_offset").MustInt(cfg.SpectrumOffset)
	cfg.MaxPending = civ.Key("max_pending").MustInt(cfg.MaxPending)

	scope := f.Section("scope")
	cfg.Width = scope.Key("width").MustInt(cfg.Width)
	cfg.Depth = scope.Key("depth").MustInt(cfg.Depth)
	cfg.FreqMHz = scope.Key("freq_mhz").MustFloat64(cfg.FreqMHz)
	cfg.SpanKHz = scope.Key("span_khz").MustInt(cfg.SpanKHz)

	rec := f.Section("record")
	cfg.Threshold = rec.Key("threshold").MustFloat64(cfg.Threshold)
	cfg.RecordDir = rec.Key("dir").MustString(cfg.RecordDir)

	log := f.Section("log")
	cfg.LogLevel = log.Key("level").MustString(cfg.LogLevel)
	cfg.LogFormat = log.Key("format").MustString(cfg.LogFormat)
	return nil
}

func hexByte(k *ini.Key, dst *byte) error {
	s := k.String()
	if s == "" {
		return nil
	}
	// Base 0 so both 0xA4 and 164 work.
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return fmt.Errorf("key %s: %q is not a bus address", k.Name(), s)
	}
	*dst = byte(v)
	return nil
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	if c.Width < 1 {
		return fmt.Errorf("width %d, must be at least 1", c.Width)
	}
	if c.Depth < 1 {
		return fmt.Errorf("depth %d, must be at least 1", c.Depth)
	}
	if c.SpectrumOffset < 5 {
		return fmt.Errorf("spectrum_offset %d, must be at least 5", c.SpectrumOffset)
	}
	if c.MaxPending < 64 {
		return fmt.Errorf("max_pending %d, must be at least 64", c.MaxPending)
	}
	if c.Bridge == "" && c.SerialPort == "" {
		return fmt.Errorf("neither bridge address nor serial port is set")
	}
	return nil
}
