package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Network constants for ws3ds devices.
const (
	// DefaultPort is the fixed port the device's WebSocket server listens on.
	DefaultPort uint16 = 5050

	// SubnetSize is the number of candidate suffixes (0..255) per prefix.
	SubnetSize = 256

	// ResolveGrace bounds local address resolution.
	ResolveGrace = 1 * time.Second

	// ServiceType is the mDNS service type optionally advertised by devices.
	ServiceType = "_ws3ds._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// Discovery errors.
var (
	ErrUnresolved  = errors.New("local address unresolved")
	ErrNotIPv4     = errors.New("address is not IPv4")
	ErrInvalidHost = errors.New("invalid host")
	ErrNoProvider  = errors.New("no local address provider")
)

// Prefix is a subnet prefix in dotted form including the trailing dot,
// e.g. "192.168.0.".
type Prefix string

// Valid reports whether the prefix has three octets and a trailing dot.
func (p Prefix) Valid() bool {
	_, err := ParsePrefix(string(p))
	return err == nil
}

// Host returns the host address for suffix i.
func (p Prefix) Host(i int) string {
	return string(p) + strconv.Itoa(i)
}

// Address is one candidate endpoint of the device.
type Address struct {
	Host string
	Port uint16
}

// String returns host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// URL returns the WebSocket URL for the address.
func (a Address) URL() string {
	return fmt.Sprintf("ws://%s/", a.String())
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}
