package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
)

// ClientConfig configures the WebSocket dialer.
type ClientConfig struct {
	// HandshakeTimeout bounds connect plus upgrade (default: 5s).
	HandshakeTimeout time.Duration

	// MaxMessageSize is the maximum inbound message size (default: 1 MiB).
	MaxMessageSize int64

	// WriteTimeout bounds a single send (default: 10s).
	WriteTimeout time.Duration

	// Header is sent with the upgrade request.
	Header http.Header
}

// WSDialer dials ws3ds devices with gorilla/websocket.
type WSDialer struct {
	config ClientConfig
	dialer *websocket.Dialer
}

// NewDialer creates a WebSocket dialer.
func NewDialer(config ClientConfig) *WSDialer {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	return &WSDialer{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  64 * 1024,
		},
	}
}

// Dial connects to the device at addr.
func (d *WSDialer) Dial(ctx context.Context, addr discovery.Address) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, addr.URL(), d.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.SetReadLimit(d.config.MaxMessageSize)

	return &WSConn{
		conn:         conn,
		addr:         addr,
		writeTimeout: d.config.WriteTimeout,
		closeCh:      make(chan struct{}),
	}, nil
}

// WSConn is a WebSocket connection to one device address.
type WSConn struct {
	conn         *websocket.Conn
	addr         discovery.Address
	writeTimeout time.Duration
	closeCh      chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
}

// Address returns the dialed address.
func (c *WSConn) Address() discovery.Address {
	return c.addr
}

// Receive reads the next text or binary message.
func (c *WSConn) Receive() (Message, error) {
	select {
	case <-c.closeCh:
		return Message{}, ErrConnectionClosed
	default:
	}

	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		select {
		case <-c.closeCh:
			return Message{}, ErrConnectionClosed
		default:
		}
		return Message{}, err
	}

	switch mt {
	case websocket.TextMessage:
		return Message{Type: MessageText, Data: data}, nil
	default:
		return Message{Type: MessageBinary, Data: data}, nil
	}
}

// SendText sends a text message.
func (c *WSConn) SendText(text string) error {
	return c.write(websocket.TextMessage, []byte(text))
}

// SendBinary sends a binary message.
func (c *WSConn) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *WSConn) write(mt int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(mt, data)
}

// Close sends a best-effort close frame and closes the socket.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(100*time.Millisecond))
		c.writeMu.Unlock()
		if werr == websocket.ErrCloseSent {
			werr = nil
		}

		err = multierr.Combine(werr, c.conn.Close())
	})
	return err
}

// IsNormalClose reports whether err is a clean WebSocket close or a local
// Close.
func IsNormalClose(err error) bool {
	if err == ErrConnectionClosed {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer = (*WSDialer)(nil)
	_ Conn   = (*WSConn)(nil)
)
