package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
)

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrMessageTooLarge  = errors.New("message too large")
)

// Defaults for the WebSocket client.
const (
	// DefaultHandshakeTimeout bounds the TCP connect plus WebSocket upgrade.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultMaxMessageSize limits inbound messages.
	DefaultMaxMessageSize = 1 << 20

	// DefaultWriteTimeout bounds a single outbound message.
	DefaultWriteTimeout = 10 * time.Second
)

// MessageType distinguishes text and binary messages.
type MessageType uint8

const (
	// MessageText is a UTF-8 text message.
	MessageText MessageType = 1

	// MessageBinary is a raw byte message.
	MessageBinary MessageType = 2
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "TEXT"
	case MessageBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Message is one inbound WebSocket message.
type Message struct {
	Type MessageType
	Data []byte
}

// Conn is an open connection to one device address.
// Implemented by WSConn.
type Conn interface {
	// Address returns the candidate address this connection was dialed to.
	Address() discovery.Address

	// Receive blocks until the next message arrives or the connection ends.
	Receive() (Message, error)

	// SendText sends one text message.
	SendText(text string) error

	// SendBinary sends one binary message.
	SendBinary(data []byte) error

	// Close closes the connection locally. Safe to call more than once.
	Close() error
}

// Dialer opens connections to candidate addresses.
// Implemented by WSDialer.
type Dialer interface {
	// Dial connects to addr. It returns once the connection is open or failed.
	Dial(ctx context.Context, addr discovery.Address) (Conn, error)
}
