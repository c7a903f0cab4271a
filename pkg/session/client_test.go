package session

import (
	"context"
	"errors"
	"image"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ws3ds/ws3ds-go/pkg/connection"
	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/frame"
	"github.com/ws3ds/ws3ds-go/pkg/metrics"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
	"github.com/ws3ds/ws3ds-go/pkg/transport/transporttest"
	"github.com/ws3ds/ws3ds-go/pkg/version"
)

const waitTimeout = 2 * time.Second

var device = discovery.Address{Host: "192.168.7.42", Port: discovery.DefaultPort}

type testClient struct {
	*Client
	dialer *transporttest.Dialer
	clock  *clock.Mock
	inbox  chan string

	mu          sync.Mutex
	transitions []State
}

func newTestClient(t *testing.T, fn transporttest.DialFunc, mutate ...func(*Config)) *testClient {
	t.Helper()
	tc := &testClient{
		dialer: transporttest.NewDialer(fn),
		clock:  clock.NewMock(),
		inbox:  make(chan string, 16),
	}
	config := Config{
		Dialer:   tc.dialer,
		Resolver: discovery.StaticProvider{IP: net.ParseIP("192.168.7.3")},
		Clock:    tc.clock,
		Metrics:  metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
		Sink: SinkFunc(func(_ discovery.Address, text string) {
			tc.inbox <- text
		}),
	}
	for _, m := range mutate {
		m(&config)
	}
	tc.Client = NewClient(config)
	tc.OnStateChange(func(_, newState State) {
		tc.mu.Lock()
		tc.transitions = append(tc.transitions, newState)
		tc.mu.Unlock()
	})
	t.Cleanup(func() { tc.Close() })
	return tc
}

func (tc *testClient) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return tc.State() == want }, waitTimeout, time.Millisecond,
		"state = %s, want %s", tc.State(), want)
}

func (tc *testClient) history() []State {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]State(nil), tc.transitions...)
}

func (tc *testClient) conn(t *testing.T, i int) *transporttest.Conn {
	t.Helper()
	var conns []*transporttest.Conn
	require.Eventually(t, func() bool {
		conns = tc.dialer.Conns()
		return len(conns) > i
	}, waitTimeout, time.Millisecond)
	return conns[i]
}

func (tc *testClient) expectFailure(t *testing.T) error {
	t.Helper()
	select {
	case err := <-tc.Failures():
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for failure")
		return nil
	}
}

func (tc *testClient) expectNoFailure(t *testing.T) {
	t.Helper()
	select {
	case err := <-tc.Failures():
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func withHost(host string) StartOptions {
	return StartOptions{Host: host}
}

func TestClient_ConnectsOnSubnet(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	require.NoError(t, tc.Start(context.Background(), StartOptions{}))
	tc.waitState(t, StateConnected)

	st := tc.Status()
	assert.Equal(t, device, st.Address)
	assert.NotEmpty(t, st.SearchID)
	assert.Equal(t, []State{StateSearching, StateConnected}, tc.history())
}

func TestClient_MessagesAndSends(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	assert.ErrorIs(t, tc.SendText("too early"), ErrNotConnected)

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)
	conn := tc.conn(t, 0)

	conn.DeliverText(version.FormatControl(version.Current))
	conn.DeliverText("Text received")

	select {
	case text := <-tc.inbox:
		assert.Equal(t, "Text received", text, "VERSION message is not forwarded")
	case <-time.After(waitTimeout):
		t.Fatal("message not forwarded to sink")
	}

	require.NoError(t, tc.SendText("hello"))
	require.NoError(t, tc.SendImage(image.NewRGBA(image.Rect(0, 0, 10, 10))))
	assert.ErrorIs(t, tc.SendFrame(make([]byte, 12)), frame.ErrBufferSize)

	sent := conn.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", string(sent[0].Data))
	assert.Equal(t, transport.MessageBinary, sent[1].Type)
	assert.Len(t, sent[1].Data, frame.Size)
}

func TestClient_VersionMismatchIsFatal(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)
	conn := tc.conn(t, 0)

	conn.DeliverText("VERSION 0.9")

	err := tc.expectFailure(t)
	assert.ErrorIs(t, err, version.ErrIncompatible)
	assert.Contains(t, err.Error(), "device=0.9")

	tc.waitState(t, StateCanceled)
	require.Eventually(t, conn.IsClosed, waitTimeout, time.Millisecond)

	for i := 0; i < 5; i++ {
		tc.clock.Add(connection.RetryDelay)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, tc.dialer.Conns(), 1, "no reconnect after a rejected version")
	assert.ErrorIs(t, tc.SendText("x"), ErrNotConnected)
}

func TestClient_SearchTimeoutFiresOnce(t *testing.T) {
	tc := newTestClient(t, transporttest.Refuse, func(c *Config) {
		c.Backoff = connection.BackoffConfig{Initial: 24 * time.Hour}
	})

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	require.Eventually(t, func() bool { return tc.dialer.Total() == 1 }, waitTimeout, time.Millisecond)

	tc.clock.Add(DefaultSearchTimeout - time.Second)
	tc.expectNoFailure(t)
	assert.Equal(t, StateSearching, tc.State())

	tc.clock.Add(time.Second)
	assert.ErrorIs(t, tc.expectFailure(t), ErrSearchTimeout)
	tc.waitState(t, StateCanceled)

	tc.clock.Add(10 * time.Minute)
	tc.expectNoFailure(t)
	assert.Equal(t, StateCanceled, tc.State())

	canceled := 0
	for _, s := range tc.history() {
		if s == StateCanceled {
			canceled++
		}
	}
	assert.Equal(t, 1, canceled)

	// Cancel after the timeout changes nothing.
	tc.Cancel()
	assert.Equal(t, StateCanceled, tc.State())
}

func TestClient_TimeoutStoppedByConnect(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)

	tc.clock.Add(2 * DefaultSearchTimeout)
	tc.expectNoFailure(t)
	assert.Equal(t, StateConnected, tc.State())
}

func TestClient_CancelBeforeOpen(t *testing.T) {
	gate := make(chan struct{})
	tc := newTestClient(t, func(ctx context.Context, addr discovery.Address) (transport.Conn, error) {
		<-gate
		return transporttest.NewConn(addr), nil
	})

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	require.Eventually(t, func() bool { return tc.dialer.Total() == 1 }, waitTimeout, time.Millisecond)

	tc.Cancel()
	assert.Equal(t, StateCanceled, tc.State())
	close(gate)

	conn := tc.conn(t, 0)
	require.Eventually(t, conn.IsClosed, waitTimeout, time.Millisecond)
	assert.Equal(t, StateCanceled, tc.State())
	tc.expectNoFailure(t)

	// A fresh start after cancel connects.
	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)
}

func TestClient_CancelWhileConnectedIsNoop(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)

	tc.Cancel()
	assert.Equal(t, StateConnected, tc.State())
	assert.False(t, tc.conn(t, 0).IsClosed())
}

func TestClient_LossResumesSameAddress(t *testing.T) {
	tc := newTestClient(t, transporttest.AcceptOnly(device))

	require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
	tc.waitState(t, StateConnected)

	tc.conn(t, 0).RemoteClose(errors.New("device went to sleep"))
	tc.waitState(t, StateSearching)

	require.Eventually(t, func() bool {
		tc.clock.Add(connection.RetryDelay)
		return tc.State() == StateConnected
	}, waitTimeout, time.Millisecond)

	assert.Equal(t, []State{
		StateSearching, StateConnected,
		StateDisconnected, StateSearching, StateConnected,
	}, tc.history())
	assert.Equal(t, device, tc.Status().Address)
	assert.Equal(t, 2, tc.dialer.Count(device))
}

func TestClient_StartErrors(t *testing.T) {
	t.Run("Unresolved", func(t *testing.T) {
		tc := newTestClient(t, transporttest.Refuse, func(c *Config) {
			c.Resolver = discovery.StaticProvider{Err: errors.New("no network")}
		})
		err := tc.Start(context.Background(), StartOptions{})
		assert.ErrorIs(t, err, discovery.ErrUnresolved)
		assert.Equal(t, StateIdle, tc.State())
		assert.Zero(t, tc.dialer.Total())

		// The explicit host still works.
		require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
		assert.Equal(t, StateSearching, tc.State())
	})

	t.Run("InvalidHost", func(t *testing.T) {
		tc := newTestClient(t, transporttest.Refuse)
		assert.ErrorIs(t, tc.Start(context.Background(), withHost("not a host")), discovery.ErrInvalidHost)
		assert.Equal(t, StateIdle, tc.State())
	})

	t.Run("AlreadyActive", func(t *testing.T) {
		tc := newTestClient(t, transporttest.Refuse)
		require.NoError(t, tc.Start(context.Background(), withHost(device.Host)))
		assert.ErrorIs(t, tc.Start(context.Background(), withHost(device.Host)), ErrAlreadyActive)
	})

	t.Run("Closed", func(t *testing.T) {
		tc := newTestClient(t, transporttest.Refuse)
		require.NoError(t, tc.Close())
		assert.ErrorIs(t, tc.Start(context.Background(), withHost(device.Host)), ErrClosed)
	})
}

type staticHints []discovery.Address

func (h staticHints) Hints(context.Context, uint16) []discovery.Address { return h }

func TestClient_RacesHints(t *testing.T) {
	// The hinted host lies outside the resolved subnet.
	hinted := discovery.Address{Host: "10.1.2.3", Port: discovery.DefaultPort}
	tc := newTestClient(t, transporttest.AcceptOnly(hinted), func(c *Config) {
		c.Hints = staticHints{hinted}
	})

	require.NoError(t, tc.Start(context.Background(), StartOptions{}))
	tc.waitState(t, StateConnected)
	assert.Equal(t, hinted, tc.Status().Address)
}
