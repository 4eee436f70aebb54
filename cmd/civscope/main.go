// civscope renders a live CI-V panadapter in the terminal: spectrum
// trace, waterfall history, frequency readout, and CSV recording.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	termbox "github.com/nsf/termbox-go"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/civ-tools/civscope/internal/bridge"
	"github.com/civ-tools/civscope/internal/config"
	"github.com/civ-tools/civscope/internal/dsp"
	"github.com/civ-tools/civscope/internal/logging"
	"github.com/civ-tools/civscope/internal/pipeline"
	"github.com/civ-tools/civscope/internal/recorder"
	"github.com/civ-tools/civscope/internal/telemetry"
	"github.com/civ-tools/civscope/internal/ui"
)

type flags struct {
	configPath  string
	bridgeAddr  string
	serialPort  string
	baudRate    uint
	sshAddr     string
	sshUser     string
	sshPassword string
	offset      int
	threshold   float64
	recordDir   string
	logFile     string
	logLevel    string
	httpAddr    string
}

func main() {
	var f flags
	root := &cobra.Command{
		Use:   "civscope",
		Short: "Terminal waterfall display for a CI-V spectrum stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			return run(cfg, &f)
		},
		SilenceUsage: true,
	}
	fs := root.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "civscope.ini", "config file")
	fs.StringVar(&f.bridgeAddr, "bridge", "", "TCP bridge address")
	fs.StringVar(&f.serialPort, "serial", "", "serial port instead of TCP bridge")
	fs.UintVar(&f.baudRate, "baud", 0, "serial baud rate")
	fs.StringVar(&f.sshAddr, "ssh", "", "reach the bridge through this SSH host")
	fs.StringVar(&f.sshUser, "ssh-user", "", "SSH user")
	fs.StringVar(&f.sshPassword, "ssh-password", "", "SSH password")
	fs.IntVar(&f.offset, "offset", 0, "spectrum amplitude offset in the waveform frame")
	fs.Float64Var(&f.threshold, "threshold", 0, "trigger threshold")
	fs.StringVar(&f.recordDir, "record-dir", "", "CSV output directory")
	fs.StringVar(&f.logFile, "log", "", "write logs to this file")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.httpAddr, "http", "", "serve telemetry endpoints on this address")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and lays explicitly set flags over it.
func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	set := cmd.Flags().Changed
	if set("bridge") {
		cfg.Bridge = f.bridgeAddr
	}
	if set("serial") {
		cfg.SerialPort = f.serialPort
	}
	if set("baud") {
		cfg.BaudRate = f.baudRate
	}
	if set("offset") {
		cfg.SpectrumOffset = f.offset
	}
	if set("threshold") {
		cfg.Threshold = f.threshold
	}
	if set("record-dir") {
		cfg.RecordDir = f.recordDir
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, path string) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		// Termbox owns the terminal, so without a file logs go nowhere.
		return logging.New(level, format, io.Discard), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(level, format, file), func() { file.Close() }, nil
}

func newTransport(cfg config.Config, f *flags) (bridge.Transport, error) {
	if cfg.SerialPort != "" {
		return bridge.NewSerial(cfg.SerialPort, cfg.BaudRate), nil
	}
	if f.sshAddr != "" {
		if f.sshUser == "" {
			return nil, fmt.Errorf("--ssh requires --ssh-user")
		}
		var auth []ssh.AuthMethod
		if f.sshPassword != "" {
			auth = append(auth, ssh.Password(f.sshPassword))
		}
		return bridge.NewTunnel(f.sshAddr, cfg.Bridge, f.sshUser, auth), nil
	}
	t := bridge.NewTCP(cfg.Bridge)
	t.MaxRetries = 3
	return t, nil
}

func run(cfg config.Config, f *flags) error {
	log, closeLog, err := newLogger(cfg, f.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	transport, err := newTransport(cfg, f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := transport.Connect(ctx); err != nil {
		return err
	}
	defer transport.Close()

	rec := recorder.New(cfg.Width, cfg.Threshold, recorder.DirStorage{Dir: cfg.RecordDir}, log)
	pipe, err := pipeline.New(pipeline.Options{
		Transport:      transport,
		Recorder:       rec,
		Log:            log,
		RadioAddr:      cfg.RadioAddr,
		ControllerAddr: cfg.ControllerAddr,
		SpectrumOffset: cfg.SpectrumOffset,
		Width:          cfg.Width,
		Depth:          cfg.Depth,
		FreqMHz:        cfg.FreqMHz,
		SpanKHz:        cfg.SpanKHz,
		MaxPending:     cfg.MaxPending,
	})
	if err != nil {
		return err
	}

	var hub *telemetry.Hub
	if f.httpAddr != "" {
		hub = telemetry.NewHub(0, func() telemetry.Grid {
			snap := pipe.Snapshot()
			return telemetry.Grid{FreqMHz: snap.FreqMHz, SpanKHz: snap.SpanKHz, Rows: snap.Waterfall}
		}, func() telemetry.RecorderStatus {
			st := rec.Status()
			return telemetry.RecorderStatus{
				Phase: st.Phase.String(), Path: st.Path, Rows: st.Rows, Files: st.Files,
			}
		})
		go telemetry.NewWebServer(f.httpAddr, hub, log).Start(ctx)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- pipe.Run(ctx) }()

	if err := termbox.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer termbox.Close()
	termbox.HideCursor()

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	screen := ui.NewScreen()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			if err != nil && err != context.Canceled {
				return err
			}
			return nil
		case ev := <-events:
			if ev.Type != termbox.EventKey {
				continue
			}
			switch {
			case ev.Ch == 'q' || ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
				cancel()
				err := <-runErr
				if err != nil && err != context.Canceled {
					return err
				}
				return nil
			case ev.Ch == 'r':
				toggleRecording(rec, false, log)
			case ev.Ch == 't':
				toggleRecording(rec, true, log)
			}
		case <-ticker.C:
			snap := pipe.Snapshot()
			reportSample(hub, snap)
			if err := screen.Draw(ui.View{
				FreqMHz: snap.FreqMHz,
				SpanKHz: snap.SpanKHz,
				Status:  statusLine(rec, snap),
				Rows:    snap.Waterfall,
			}); err != nil {
				return err
			}
		}
	}
}

// reportSample publishes the newest row's peak to the telemetry hub,
// feeding the history and SSE subscribers. Ticks without a spectrum
// yet produce no sample.
func reportSample(hub *telemetry.Hub, snap pipeline.Snapshot) {
	if hub == nil || len(snap.Latest) == 0 {
		return
	}
	hub.Report(snap.FreqMHz, dsp.Max(snap.Latest))
}

// toggleRecording flips the recorder on or off; triggered selects
// threshold-armed mode.
func toggleRecording(rec *recorder.Recorder, triggered bool, log logging.Logger) {
	var err error
	if rec.Phase() == recorder.Idle {
		err = rec.Start(triggered)
	} else {
		err = rec.Stop()
	}
	if err != nil {
		log.Warn("toggle recording", logging.F("err", err.Error()))
	}
}

func statusLine(rec *recorder.Recorder, snap pipeline.Snapshot) string {
	st := rec.Status()
	parts := []string{
		fmt.Sprintf("rec %s", strings.ToLower(st.Phase.String())),
		fmt.Sprintf("rows %d", st.Rows),
		fmt.Sprintf("spectra %d", snap.Spectra),
		"[q]uit [r]ecord [t]rigger",
	}
	return strings.Join(parts, "  ")
}
