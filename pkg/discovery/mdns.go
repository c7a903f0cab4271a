package discovery

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowseTimeout is the default time spent collecting mDNS hints.
const BrowseTimeout = 500 * time.Millisecond

// MDNSBrowser collects device addresses from _ws3ds._tcp advertisements.
type MDNSBrowser struct {
	// Interface restricts browsing to one interface name when set.
	Interface string

	// Timeout bounds Hints (BrowseTimeout when zero).
	Timeout time.Duration

	Logger *slog.Logger
}

// Hints browses for advertised devices until the timeout or ctx ends and
// returns their IPv4 addresses. An empty result is not an error.
func (b *MDNSBrowser) Hints(ctx context.Context, port uint16) []Address {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...); err != nil && b.Logger != nil {
			b.Logger.Debug("mDNS browse failed", "error", err)
		}
	}()

	var hints []Address
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return hints
			}
			hints = MergeCandidates(hints, entryAddresses(entry, port))
		case <-removed:
		case <-ctx.Done():
			return hints
		}
	}
}

func (b *MDNSBrowser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.Interface != "" {
		iface, err := net.InterfaceByName(b.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryAddresses converts an mDNS entry to candidate addresses. The
// advertised port wins over the default when present.
func entryAddresses(entry *zeroconf.ServiceEntry, port uint16) []Address {
	if entry == nil {
		return nil
	}
	if entry.Port > 0 && entry.Port <= 0xFFFF {
		port = uint16(entry.Port)
	}
	addrs := make([]Address, 0, len(entry.AddrIPv4))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, Address{Host: ip.String(), Port: port})
	}
	return addrs
}
