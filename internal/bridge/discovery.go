package bridge

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Host represents a discovered CI-V bridge advertisement.
type Host struct {
	Instance  string // Advertised name: "wfview on shack-pc"
	Hostname  string // DNS hostname: "shack-pc.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns a dialable host:port for the first address, preferring
// IPv4. Empty when the advertisement carried no address.
func (h Host) Addr() string {
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			return net.JoinHostPort(ip.String(), fmt.Sprint(h.Port))
		}
	}
	if len(h.Addresses) > 0 {
		return net.JoinHostPort(h.Addresses[0].String(), fmt.Sprint(h.Port))
	}
	return ""
}

// DiscoverBridges performs a blocking mDNS browse for _wfview._tcp
// services and returns deduplicated host entries.
func DiscoverBridges(timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	// zeroconf closes entries when the context expires.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e == nil {
				continue
			}
			addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
			addrs = append(addrs, e.AddrIPv4...)
			addrs = append(addrs, e.AddrIPv6...)

			key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
			resultMap[key] = Host{
				Instance:  cleanInstance(e.Instance),
				Hostname:  e.HostName,
				Addresses: addrs,
				Port:      e.Port,
				TXT:       append([]string{}, e.Text...),
			}
		}
	}()

	if err := resolver.Browse(ctx, "_wfview._tcp", "local.", entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	return out, nil
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
