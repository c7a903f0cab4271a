package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/log"
	"github.com/ws3ds/ws3ds-go/pkg/metrics"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
)

// Coordinator errors.
var (
	ErrCanceled     = errors.New("search canceled")
	ErrClosed       = errors.New("coordinator closed")
	ErrNotConnected = errors.New("not connected")
)

// DefaultEventBuffer is the capacity of the Events channel.
const DefaultEventBuffer = 256

// Config configures a Coordinator. Zero fields take defaults.
type Config struct {
	// Backoff configures the per-candidate retry delay.
	// Default: fixed RetryDelay.
	Backoff BackoffConfig

	// Clock drives retry timers. Default: the wall clock.
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// Trace receives discovery trace events.
	Trace log.Logger

	// SearchID tags trace events.
	SearchID string

	// Metrics is optional.
	Metrics *metrics.Metrics

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.Trace = log.OrNoop(c.Trace)
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
}

// EventType identifies coordinator events.
type EventType uint8

const (
	// EventPromoted reports a candidate became the active session.
	EventPromoted EventType = iota

	// EventMessage carries a message received on the active session.
	EventMessage

	// EventLost reports the active session closed.
	EventLost
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventPromoted:
		return "PROMOTED"
	case EventMessage:
		return "MESSAGE"
	case EventLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered on the Events channel.
type Event struct {
	Type    EventType
	Address discovery.Address

	// Session is set for EventPromoted.
	Session ActiveSession

	// Message is set for EventMessage.
	Message transport.Message

	// Err is the close cause for EventLost.
	Err error
}

// ActiveSession is the promoted connection.
type ActiveSession struct {
	Address     discovery.Address
	Conn        transport.Conn
	ConnectedAt time.Time
}

// Coordinator owns the active-session slot of one search.
type Coordinator struct {
	dialer transport.Dialer
	token  *Token
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	events chan Event

	mu         sync.Mutex
	closed     bool
	active     *ActiveSession
	canonical  discovery.Address
	candidates map[discovery.Address]*Candidate
}

// NewCoordinator creates a Coordinator for one search. Canceling token stops
// every candidate and closes any open connection.
func NewCoordinator(dialer transport.Dialer, token *Token, config Config) *Coordinator {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	co := &Coordinator{
		dialer:     dialer,
		token:      token,
		config:     config,
		logger:     config.Logger.With("component", "race"),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, config.EventBuffer),
		candidates: make(map[discovery.Address]*Candidate),
	}

	co.wg.Add(1)
	go func() {
		defer co.wg.Done()
		select {
		case <-token.Done():
			co.logger.Debug("token canceled, stopping candidates", "reason", token.Err())
			cancel()
		case <-ctx.Done():
		}
	}()

	return co
}

// Token returns the search token.
func (co *Coordinator) Token() *Token {
	return co.token
}

// Events returns the channel of promotions, messages and losses.
func (co *Coordinator) Events() <-chan Event {
	return co.events
}

// Race starts one candidate per address. Addresses already racing are
// skipped.
func (co *Coordinator) Race(addrs []discovery.Address) error {
	if co.token.Canceled() {
		return ErrCanceled
	}

	co.mu.Lock()
	defer co.mu.Unlock()

	if co.closed {
		return ErrClosed
	}

	started := 0
	for _, addr := range addrs {
		if _, ok := co.candidates[addr]; ok {
			continue
		}
		c := newCandidate(co, addr)
		co.candidates[addr] = c
		co.wg.Add(1)
		go func() {
			defer co.wg.Done()
			c.run()
		}()
		started++
	}
	co.logger.Debug("race started", "candidates", started)
	return nil
}

// RaceSubnet races every address of the /24 prefix on port.
func (co *Coordinator) RaceSubnet(prefix discovery.Prefix, port uint16) error {
	if !prefix.Valid() {
		return fmt.Errorf("%w: %q", discovery.ErrInvalidHost, string(prefix))
	}
	return co.Race(discovery.SubnetCandidates(prefix, port))
}

// RaceSingle races one explicit host.
func (co *Coordinator) RaceSingle(host string, port uint16) error {
	addrs, err := discovery.SingleCandidate(host, port)
	if err != nil {
		return err
	}
	return co.Race(addrs)
}

// Canonical returns the promoted address, if any promotion happened.
func (co *Coordinator) Canonical() (discovery.Address, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.canonical, !co.canonical.IsZero()
}

// Active returns the current active session.
func (co *Coordinator) Active() (ActiveSession, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	if co.active == nil {
		return ActiveSession{}, false
	}
	return *co.active, true
}

// IsStale reports whether events from addr must be ignored: another address
// is canonical.
func (co *Coordinator) IsStale(addr discovery.Address) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return !co.canonical.IsZero() && co.canonical != addr
}

// SendText sends text over the active session.
func (co *Coordinator) SendText(text string) error {
	s, ok := co.Active()
	if !ok {
		return ErrNotConnected
	}
	if err := s.Conn.SendText(text); err != nil {
		return fmt.Errorf("send to %s: %w", s.Address, err)
	}
	co.trace(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Address:   s.Address.String(),
		Message:   log.NewTextMessage(text),
	})
	return nil
}

// SendBinary sends a binary message over the active session.
func (co *Coordinator) SendBinary(data []byte) error {
	s, ok := co.Active()
	if !ok {
		return ErrNotConnected
	}
	if err := s.Conn.SendBinary(data); err != nil {
		return fmt.Errorf("send to %s: %w", s.Address, err)
	}
	co.trace(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Address:   s.Address.String(),
		Message:   &log.MessageEvent{Binary: true, Size: len(data)},
	})
	return nil
}

// CloseActive closes the active session's socket locally. The candidate
// observes the close and releases the slot.
func (co *Coordinator) CloseActive() error {
	s, ok := co.Active()
	if !ok {
		return ErrNotConnected
	}
	return s.Conn.Close()
}

// Close stops all candidates, closes open connections and waits for the
// candidate goroutines to exit.
func (co *Coordinator) Close() error {
	co.mu.Lock()
	if co.closed {
		co.mu.Unlock()
		return nil
	}
	co.closed = true
	co.mu.Unlock()

	co.cancel()
	co.wg.Wait()
	return nil
}

// Wait blocks until every candidate has stopped.
func (co *Coordinator) Wait() {
	co.wg.Wait()
}

// Outcomes of promote.
type promotion uint8

const (
	promoted promotion = iota
	refusedCanceled
	refusedSuperseded
)

// promote is the single check-and-set on the active-session slot.
func (co *Coordinator) promote(c *Candidate, conn transport.Conn) promotion {
	co.mu.Lock()

	switch {
	case co.closed || co.token.Canceled():
		co.mu.Unlock()
		return refusedCanceled
	case co.active != nil:
		co.mu.Unlock()
		return refusedSuperseded
	case !co.canonical.IsZero() && co.canonical != c.addr:
		co.mu.Unlock()
		return refusedSuperseded
	}

	session := ActiveSession{
		Address:     c.addr,
		Conn:        conn,
		ConnectedAt: co.config.Clock.Now(),
	}
	first := co.canonical.IsZero()
	co.active = &session
	co.canonical = c.addr

	// Losers still dialing are abandoned.
	if first {
		for addr, other := range co.candidates {
			if addr != c.addr {
				other.stop()
			}
		}
	}
	co.mu.Unlock()

	co.config.Metrics.Promotion()
	co.logger.Info("device connected", "addr", c.addr.String())
	co.emit(Event{Type: EventPromoted, Address: c.addr, Session: session})
	return promoted
}

// release clears the slot if conn is the active session.
func (co *Coordinator) release(addr discovery.Address, conn transport.Conn, cause error) {
	co.mu.Lock()
	lost := co.active != nil && co.active.Conn == conn
	if lost {
		co.active = nil
	}
	co.mu.Unlock()

	if !lost {
		return
	}
	co.logger.Info("device disconnected", "addr", addr.String(), "reason", cause)
	co.emit(Event{Type: EventLost, Address: addr, Err: cause})
}

// deliver forwards a message from the active session, dropping anything
// from a non-canonical address or a connection no longer in the slot.
func (co *Coordinator) deliver(addr discovery.Address, conn transport.Conn, msg transport.Message) {
	co.mu.Lock()
	current := co.active != nil && co.active.Conn == conn && co.canonical == addr
	co.mu.Unlock()

	if !current {
		co.config.Metrics.StaleEvent()
		co.trace(log.Event{
			Layer:     log.LayerRace,
			Category:  log.CategoryCandidate,
			Address:   addr.String(),
			Candidate: &log.CandidateEvent{Action: log.CandidateStale, Reason: "message"},
		})
		return
	}
	co.emit(Event{Type: EventMessage, Address: addr, Message: msg})
}

// shouldDial is the fire-time re-check before every dial, including retries.
func (co *Coordinator) shouldDial(addr discovery.Address) bool {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.closed || co.token.Canceled() {
		return false
	}
	return co.canonical.IsZero() || co.canonical == addr
}

func (co *Coordinator) emit(ev Event) {
	select {
	case co.events <- ev:
	case <-co.ctx.Done():
	}
}

func (co *Coordinator) trace(ev log.Event) {
	ev.Timestamp = co.config.Clock.Now()
	ev.SearchID = co.config.SearchID
	co.config.Trace.Log(ev)
}
