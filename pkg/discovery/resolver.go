package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.uber.org/multierr"
)

// LocalAddressProvider observes an address bound on the local host.
type LocalAddressProvider interface {
	// LocalAddress returns a local IPv4 address or an error. Implementations
	// must return promptly once ctx is done.
	LocalAddress(ctx context.Context) (net.IP, error)
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	IP     net.IP
	Prefix Prefix
}

// Resolve observes the local address through provider and reduces it to a
// subnet prefix. It gives up after grace (ResolveGrace when zero) and returns
// an error wrapping ErrUnresolved; the failure is recoverable.
func Resolve(ctx context.Context, provider LocalAddressProvider, grace time.Duration) (Resolution, error) {
	if provider == nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrUnresolved, ErrNoProvider)
	}
	if grace <= 0 {
		grace = ResolveGrace
	}

	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	ip, err := provider.LocalAddress(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}

	prefix, err := PrefixOf(ip.String())
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrUnresolved, err)
	}
	return Resolution{IP: ip, Prefix: prefix}, nil
}

// StaticProvider always returns the same address. It backs the manual
// override flag and deterministic tests.
type StaticProvider struct {
	IP  net.IP
	Err error
}

// LocalAddress returns the configured address or error.
func (p StaticProvider) LocalAddress(ctx context.Context) (net.IP, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if p.IP == nil {
		return nil, ErrUnresolved
	}
	return p.IP, nil
}

// InterfaceProvider scans the host's network interfaces for the first up,
// non-loopback IPv4 address.
type InterfaceProvider struct {
	// Interface restricts the scan to one interface name when set.
	Interface string

	// addrs lists interface addresses; replaced in tests.
	addrs func() ([]ifaceAddr, error)
}

type ifaceAddr struct {
	name  string
	flags net.Flags
	addr  net.Addr
}

// LocalAddress returns the first usable IPv4 address.
func (p InterfaceProvider) LocalAddress(ctx context.Context) (net.IP, error) {
	list := p.addrs
	if list == nil {
		list = systemAddrs
	}
	addrs, err := list()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, a := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.Interface != "" && a.name != p.Interface {
			continue
		}
		if a.flags&net.FlagUp == 0 || a.flags&net.FlagLoopback != 0 {
			continue
		}
		ipnet, ok := a.addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
			return ip4, nil
		}
	}
	return nil, ErrUnresolved
}

func systemAddrs() ([]ifaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []ifaceAddr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, ifaceAddr{name: iface.Name, flags: iface.Flags, addr: a})
		}
	}
	return out, nil
}

// ChainProvider tries each provider in order and returns the first address.
type ChainProvider struct {
	Providers []LocalAddressProvider
	Logger    *slog.Logger
}

// LocalAddress returns the first address any provider yields.
func (c ChainProvider) LocalAddress(ctx context.Context) (net.IP, error) {
	var errs []error
	for _, p := range c.Providers {
		ip, err := p.LocalAddress(ctx)
		if err == nil {
			return ip, nil
		}
		if c.Logger != nil {
			c.Logger.Debug("local address provider failed", "provider", fmt.Sprintf("%T", p), "error", err)
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, ErrNoProvider
	}
	return nil, multierr.Combine(errs...)
}

// Compile-time interface satisfaction checks.
var (
	_ LocalAddressProvider = StaticProvider{}
	_ LocalAddressProvider = InterfaceProvider{}
	_ LocalAddressProvider = ChainProvider{}
)
