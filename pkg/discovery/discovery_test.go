package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixOf(t *testing.T) {
	tests := []struct {
		ip   string
		want Prefix
	}{
		{"192.168.0.17", "192.168.0."},
		{"10.0.1.1", "10.0.1."},
		{"172.16.254.255", "172.16.254."},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, err := PrefixOf(tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixOf_RejectsNonIPv4(t *testing.T) {
	for _, ip := range []string{"", "fe80::1", "::ffff:10.0.0.1", "not-an-ip", "1.2.3"} {
		t.Run(ip, func(t *testing.T) {
			_, err := PrefixOf(ip)
			assert.ErrorIs(t, err, ErrNotIPv4)
		})
	}
}

func TestParsePrefix(t *testing.T) {
	p, err := ParsePrefix("10.0.1")
	require.NoError(t, err)
	assert.Equal(t, Prefix("10.0.1."), p)
	assert.True(t, p.Valid())

	for _, bad := range []string{"", "10.0.", "10.0.1.2.", "300.1.1."} {
		_, err := ParsePrefix(bad)
		assert.ErrorIs(t, err, ErrInvalidHost, bad)
	}
}

func TestSubnetCandidates(t *testing.T) {
	addrs := SubnetCandidates("192.168.0.", DefaultPort)

	require.Len(t, addrs, SubnetSize)
	assert.Equal(t, Address{Host: "192.168.0.0", Port: 5050}, addrs[0])
	assert.Equal(t, Address{Host: "192.168.0.255", Port: 5050}, addrs[255])
	assert.Equal(t, "ws://192.168.0.7:5050/", addrs[7].URL())

	seen := make(map[string]bool)
	for _, a := range addrs {
		assert.False(t, seen[a.Host], "duplicate host %s", a.Host)
		seen[a.Host] = true
	}
}

func TestSingleCandidate(t *testing.T) {
	addrs, err := SingleCandidate(" 192.168.1.40 ", DefaultPort)
	require.NoError(t, err)
	assert.Equal(t, []Address{{Host: "192.168.1.40", Port: 5050}}, addrs)

	_, err = SingleCandidate("", DefaultPort)
	assert.ErrorIs(t, err, ErrInvalidHost)

	_, err = SingleCandidate("ws://x/", DefaultPort)
	assert.ErrorIs(t, err, ErrInvalidHost)
}

func TestMergeCandidates(t *testing.T) {
	hint := Address{Host: "10.0.0.9", Port: 5050}
	merged := MergeCandidates([]Address{hint}, SubnetCandidates("10.0.0.", 5050))

	require.Len(t, merged, SubnetSize)
	assert.Equal(t, hint, merged[0])
}

func TestResolve_Static(t *testing.T) {
	res, err := Resolve(context.Background(), StaticProvider{IP: net.ParseIP("192.168.0.42")}, 0)
	require.NoError(t, err)
	assert.Equal(t, Prefix("192.168.0."), res.Prefix)
	assert.Equal(t, "192.168.0.42", res.IP.String())
}

func TestResolve_Failure(t *testing.T) {
	t.Run("ProviderError", func(t *testing.T) {
		_, err := Resolve(context.Background(), StaticProvider{Err: errors.New("unsupported")}, 0)
		assert.ErrorIs(t, err, ErrUnresolved)
	})

	t.Run("NilProvider", func(t *testing.T) {
		_, err := Resolve(context.Background(), nil, 0)
		assert.ErrorIs(t, err, ErrUnresolved)
		assert.ErrorIs(t, err, ErrNoProvider)
	})

	t.Run("IPv6Only", func(t *testing.T) {
		_, err := Resolve(context.Background(), StaticProvider{IP: net.ParseIP("fe80::1")}, 0)
		assert.ErrorIs(t, err, ErrUnresolved)
	})

	t.Run("GraceExpires", func(t *testing.T) {
		start := time.Now()
		_, err := Resolve(context.Background(), blockingProvider{}, 20*time.Millisecond)
		assert.ErrorIs(t, err, ErrUnresolved)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

type blockingProvider struct{}

func (blockingProvider) LocalAddress(ctx context.Context) (net.IP, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestInterfaceProvider(t *testing.T) {
	_, lan, _ := net.ParseCIDR("192.168.5.20/24")
	lan.IP = net.ParseIP("192.168.5.20")
	_, lo, _ := net.ParseCIDR("127.0.0.1/8")
	_, v6, _ := net.ParseCIDR("fe80::1/64")
	_, linkLocal, _ := net.ParseCIDR("169.254.3.3/16")
	linkLocal.IP = net.ParseIP("169.254.3.3")

	addrs := []ifaceAddr{
		{name: "lo", flags: net.FlagUp | net.FlagLoopback, addr: lo},
		{name: "eth0", flags: net.FlagUp, addr: v6},
		{name: "eth0", flags: net.FlagUp, addr: linkLocal},
		{name: "wlan0", flags: 0, addr: lan},
		{name: "eth1", flags: net.FlagUp, addr: lan},
	}
	p := InterfaceProvider{addrs: func() ([]ifaceAddr, error) { return addrs, nil }}

	ip, err := p.LocalAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "192.168.5.20", ip.String())

	p.Interface = "wlan0"
	_, err = p.LocalAddress(context.Background())
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestChainProvider(t *testing.T) {
	chain := ChainProvider{Providers: []LocalAddressProvider{
		StaticProvider{Err: errors.New("first")},
		StaticProvider{IP: net.ParseIP("10.1.2.3")},
	}}
	ip, err := chain.LocalAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", ip.String())

	_, err = ChainProvider{}.LocalAddress(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)

	failing := ChainProvider{Providers: []LocalAddressProvider{
		StaticProvider{Err: errors.New("a")},
		StaticProvider{Err: errors.New("b")},
	}}
	_, err = failing.LocalAddress(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestEntryAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("192.168.0.33")},
	}
	entry.Port = 6060

	addrs := entryAddresses(entry, DefaultPort)
	assert.Equal(t, []Address{{Host: "192.168.0.33", Port: 6060}}, addrs)
	assert.Nil(t, entryAddresses(nil, DefaultPort))
}
