package log

import (
	"time"
)

// Event is one trace record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SearchID identifies the discovery attempt (UUID).
	SearchID string `cbor:"2,keyasint"`

	// Direction indicates message flow (messages only).
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Address is the candidate address (host:port), if any.
	Address string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"`
	Candidate   *CandidateEvent   `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the WebSocket message layer.
	LayerTransport Layer = 0
	// LayerRace is the connection race coordinator.
	LayerRace Layer = 1
	// LayerSession is the session state machine.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerRace:
		return "RACE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a message sent or received.
	CategoryMessage Category = 0
	// CategoryCandidate indicates a candidate connection outcome.
	CategoryCandidate Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryCandidate:
		return "CANDIDATE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a WebSocket message.
type MessageEvent struct {
	// Binary is true for binary messages.
	Binary bool `cbor:"1,keyasint,omitempty"`

	// Size is the payload size in bytes.
	Size int `cbor:"2,keyasint"`

	// Text is the payload of text messages (may be truncated).
	Text string `cbor:"3,keyasint,omitempty"`

	// Truncated indicates Text was shortened.
	Truncated bool `cbor:"4,keyasint,omitempty"`

	// Verdict is the handshake classification of inbound text.
	Verdict string `cbor:"5,keyasint,omitempty"`
}

// MaxTextCapture limits the text stored per message event.
const MaxTextCapture = 256

// NewTextMessage builds a MessageEvent for text, truncating long payloads.
func NewTextMessage(text string) *MessageEvent {
	m := &MessageEvent{Size: len(text), Text: text}
	if len(text) > MaxTextCapture {
		m.Text = text[:MaxTextCapture]
		m.Truncated = true
	}
	return m
}

// CandidateAction is the outcome recorded for a candidate.
type CandidateAction uint8

const (
	// CandidatePromoted indicates the candidate became the active session.
	CandidatePromoted CandidateAction = 0
	// CandidateRejected indicates an open candidate lost the race.
	CandidateRejected CandidateAction = 1
	// CandidateCanceled indicates an open candidate was closed after cancel.
	CandidateCanceled CandidateAction = 2
	// CandidateStale indicates an event from a non-canonical address was dropped.
	CandidateStale CandidateAction = 3
	// CandidateLost indicates the active session closed.
	CandidateLost CandidateAction = 4
	// CandidateStopped indicates the candidate's retry loop ended.
	CandidateStopped CandidateAction = 5
)

// String returns the action name.
func (a CandidateAction) String() string {
	switch a {
	case CandidatePromoted:
		return "PROMOTED"
	case CandidateRejected:
		return "REJECTED"
	case CandidateCanceled:
		return "CANCELED"
	case CandidateStale:
		return "STALE"
	case CandidateLost:
		return "LOST"
	case CandidateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// CandidateEvent captures a race outcome for one address.
type CandidateEvent struct {
	Action CandidateAction `cbor:"1,keyasint"`

	// Attempts is the number of dials made by the candidate so far.
	Attempts int `cbor:"2,keyasint,omitempty"`

	// Reason gives detail (e.g. the close error).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures session lifecycle changes.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
