// Package transporttest provides in-memory transport.Conn and
// transport.Dialer implementations for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
)

// ErrRefused is returned by dial functions that simulate an absent device.
var ErrRefused = errors.New("connection refused")

// Conn is an in-memory connection. Messages pushed with Deliver are
// returned by Receive; sent messages are recorded.
type Conn struct {
	addr    discovery.Address
	inbox   chan transport.Message
	closed  chan struct{}
	once    sync.Once
	closeMu sync.Mutex
	cause   error

	mu   sync.Mutex
	sent []transport.Message
}

// NewConn returns an open connection for addr.
func NewConn(addr discovery.Address) *Conn {
	return &Conn{
		addr:   addr,
		inbox:  make(chan transport.Message, 64),
		closed: make(chan struct{}),
	}
}

// Address implements transport.Conn.
func (c *Conn) Address() discovery.Address { return c.addr }

// Receive implements transport.Conn.
func (c *Conn) Receive() (transport.Message, error) {
	select {
	case <-c.closed:
		return transport.Message{}, c.closeCause()
	default:
	}
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return transport.Message{}, c.closeCause()
	}
}

// SendText implements transport.Conn.
func (c *Conn) SendText(text string) error {
	return c.record(transport.Message{Type: transport.MessageText, Data: []byte(text)})
}

// SendBinary implements transport.Conn.
func (c *Conn) SendBinary(data []byte) error {
	return c.record(transport.Message{Type: transport.MessageBinary, Data: append([]byte(nil), data...)})
}

func (c *Conn) record(msg transport.Message) error {
	if c.IsClosed() {
		return transport.ErrConnectionClosed
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	c.closeWith(transport.ErrConnectionClosed)
	return nil
}

// RemoteClose simulates the device dropping the connection.
func (c *Conn) RemoteClose(cause error) {
	c.closeWith(cause)
}

func (c *Conn) closeWith(cause error) {
	c.once.Do(func() {
		c.closeMu.Lock()
		c.cause = cause
		c.closeMu.Unlock()
		close(c.closed)
	})
}

func (c *Conn) closeCause() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.cause
}

// DeliverText queues an inbound text message.
func (c *Conn) DeliverText(text string) {
	c.inbox <- transport.Message{Type: transport.MessageText, Data: []byte(text)}
}

// DeliverBinary queues an inbound binary message.
func (c *Conn) DeliverBinary(data []byte) {
	c.inbox <- transport.Message{Type: transport.MessageBinary, Data: data}
}

// IsClosed reports whether the connection was closed by either side.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Sent returns a copy of the messages sent so far.
func (c *Conn) Sent() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Message(nil), c.sent...)
}

// DialFunc decides the outcome of one dial.
type DialFunc func(ctx context.Context, addr discovery.Address) (transport.Conn, error)

// Dialer records dials and delegates to a DialFunc.
type Dialer struct {
	fn    DialFunc
	total atomic.Int64

	mu     sync.Mutex
	counts map[discovery.Address]int
	conns  []*Conn
}

// NewDialer returns a Dialer using fn.
func NewDialer(fn DialFunc) *Dialer {
	return &Dialer{fn: fn, counts: make(map[discovery.Address]int)}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, addr discovery.Address) (transport.Conn, error) {
	d.total.Add(1)
	d.mu.Lock()
	d.counts[addr]++
	d.mu.Unlock()

	conn, err := d.fn(ctx, addr)
	if err != nil {
		return nil, err
	}
	if fc, ok := conn.(*Conn); ok {
		d.mu.Lock()
		d.conns = append(d.conns, fc)
		d.mu.Unlock()
	}
	return conn, nil
}

// Total returns the number of dials made.
func (d *Dialer) Total() int {
	return int(d.total.Load())
}

// Count returns the number of dials made to addr.
func (d *Dialer) Count(addr discovery.Address) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[addr]
}

// Conns returns every fake connection handed out, in dial order.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Refuse fails every dial.
func Refuse(context.Context, discovery.Address) (transport.Conn, error) {
	return nil, ErrRefused
}

// Accept opens every dial.
func Accept(_ context.Context, addr discovery.Address) (transport.Conn, error) {
	return NewConn(addr), nil
}

// AcceptOnly opens dials to the given addresses and refuses the rest.
func AcceptOnly(addrs ...discovery.Address) DialFunc {
	set := make(map[discovery.Address]bool, len(addrs))
	for _, a := range addrs {
		set[a] = true
	}
	return func(ctx context.Context, addr discovery.Address) (transport.Conn, error) {
		if set[addr] {
			return NewConn(addr), nil
		}
		return nil, ErrRefused
	}
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Dialer = (*Dialer)(nil)
)
