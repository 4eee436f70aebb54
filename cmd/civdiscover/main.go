// civdiscover lists CI-V bridges advertising themselves over mDNS.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/civ-tools/civscope/internal/bridge"
)

func main() {
	var timeout time.Duration
	root := &cobra.Command{
		Use:   "civdiscover",
		Short: "Discover CI-V bridges via mDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(timeout)
		},
		SilenceUsage: true,
	}
	root.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "browse duration")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	fmt.Printf("Browsing _wfview._tcp.local for %s...\n", timeout)

	start := time.Now()
	hosts, err := bridge.DiscoverBridges(timeout)
	if err != nil {
		return err
	}
	elapsed := time.Since(start).Truncate(time.Millisecond)

	if len(hosts) == 0 {
		fmt.Printf("No bridges found (%s)\n", elapsed)
		return nil
	}

	fmt.Printf("Found %d bridge(s) in %s\n", len(hosts), elapsed)
	for i, h := range hosts {
		fmt.Printf("\n#%d %s\n", i+1, h.Instance)
		fmt.Printf("   host: %s\n", h.Hostname)
		if addr := h.Addr(); addr != "" {
			fmt.Printf("   addr: %s\n", addr)
		}
		for _, txt := range h.TXT {
			fmt.Printf("   txt:  %s\n", txt)
		}
	}
	return nil
}
