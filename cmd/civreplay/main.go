// civreplay walks a recorded spectrum CSV and renders it with the same
// terminal waterfall as the live display.
package main

import (
	"fmt"
	"os"
	"time"

	termbox "github.com/nsf/termbox-go"
	"github.com/spf13/cobra"

	"github.com/civ-tools/civscope/internal/config"
	"github.com/civ-tools/civscope/internal/replay"
	"github.com/civ-tools/civscope/internal/ui"
)

func main() {
	var (
		configPath string
		width      int
		depth      int
		speed      int
	)
	root := &cobra.Command{
		Use:   "civreplay <recording.csv>",
		Short: "Replay a recorded spectrum CSV as a terminal waterfall",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("width") {
				cfg.Width = width
			}
			if cmd.Flags().Changed("depth") {
				cfg.Depth = depth
			}
			return run(args[0], cfg, speed)
		},
		SilenceUsage: true,
	}
	fs := root.Flags()
	fs.StringVarP(&configPath, "config", "c", "civscope.ini", "config file")
	fs.IntVar(&width, "width", 0, "values per record")
	fs.IntVar(&depth, "depth", 0, "waterfall rows")
	fs.IntVar(&speed, "speed", 10, "playback speed, 1 (slow) to 50 (fast)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// frameDelay maps a speed setting to the pause between records.
func frameDelay(speed int) time.Duration {
	if speed < 1 {
		speed = 1
	}
	ms := 200 / speed
	if ms < 4 {
		ms = 4
	}
	return time.Duration(ms) * time.Millisecond
}

func run(path string, cfg config.Config, speed int) error {
	engine := replay.New(cfg.Width, cfg.Depth)
	if err := engine.Load(path); err != nil {
		return err
	}

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
	index := 0
	paused := false
	ticker := time.NewTicker(frameDelay(speed))
	defer ticker.Stop()

	draw := func() error {
		rec := engine.RecordAt(index)
		status := fmt.Sprintf("replay %d/%d  speed %d  [space]pause [h/l]seek [q]uit",
			index+1, engine.Len(), speed)
		if paused {
			status = "paused  " + status
		}
		return screen.Draw(ui.View{
			FreqMHz: rec.FreqMHz,
			SpanKHz: rec.SpanKHz,
			Status:  status,
			Rows:    engine.ViewAt(index),
		})
	}
	if err := draw(); err != nil {
		return err
	}

	for {
		select {
		case ev := <-events:
			if ev.Type != termbox.EventKey {
				continue
			}
			switch {
			case ev.Ch == 'q' || ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC:
				return nil
			case ev.Key == termbox.KeySpace:
				paused = !paused
			case ev.Ch == 'h' || ev.Key == termbox.KeyArrowLeft:
				index = clamp(index-1, engine.Len())
			case ev.Ch == 'l' || ev.Key == termbox.KeyArrowRight:
				index = clamp(index+1, engine.Len())
			case ev.Ch == '0':
				index = 0
			case ev.Ch == '+', ev.Ch == '=':
				speed = clampSpeed(speed + 1)
				ticker.Reset(frameDelay(speed))
			case ev.Ch == '-':
				speed = clampSpeed(speed - 1)
				ticker.Reset(frameDelay(speed))
			}
			if err := draw(); err != nil {
				return err
			}
		case <-ticker.C:
			if paused {
				continue
			}
			if index < engine.Len()-1 {
				index++
			} else {
				paused = true
			}
			if err := draw(); err != nil {
				return err
			}
		}
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clampSpeed(s int) int {
	if s < 1 {
		return 1
	}
	if s > 50 {
		return 50
	}
	return s
}
