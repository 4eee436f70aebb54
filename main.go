// Command civpeek is a quick connectivity check: dial the bridge, ask
// for the current frequency, and print whatever frames come back.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/civ-tools/civscope/civ"
	"github.com/civ-tools/civscope/internal/bridge"
)

var connect = func(ctx context.Context, addr string) (bridge.Transport, error) {
	t := bridge.NewTCP(addr)
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("civpeek", flag.ContinueOnError)
	addr := fs.String("bridge", "", "bridge address (default $CIV_BRIDGE or 127.0.0.1:50002)")
	count := fs.Int("frames", 5, "frames to print before exiting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *addr == "" {
		*addr = getenv("CIV_BRIDGE")
	}
	if *addr == "" {
		*addr = "127.0.0.1:50002"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t, err := connect(ctx, *addr)
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.Send(civ.NewReadFrequency(civ.RadioAddr, civ.ControllerAddr)); err != nil {
		return err
	}

	reasm := civ.NewReassembler(0)
	decoder := civ.Decoder{SpectrumOffset: civ.DefaultSpectrumOffset}
	seen := 0
	for seen < *count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d frame(s): %w", seen, ctx.Err())
		default:
		}
		chunk, err := t.Receive(100 * time.Millisecond)
		if err != nil {
			return err
		}
		reasm.Write(chunk)
		for {
			frame, ok := reasm.Next()
			if !ok {
				break
			}
			seen++
			switch m := decoder.Decode(frame).(type) {
			case civ.FrequencyReading:
				fmt.Fprintf(out, "%-10s %.6f MHz\n", frame.Type(), m.MHz())
			case civ.SpectrumSample:
				fmt.Fprintf(out, "%-10s %d amplitudes\n", frame.Type(), len(m.Amplitudes))
			default:
				fmt.Fprintf(out, "%-10s %s\n", frame.Type(), frame.Hex())
			}
			if seen >= *count {
				break
			}
		}
	}
	return nil
}
