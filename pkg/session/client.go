package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/ws3ds/ws3ds-go/pkg/connection"
	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/frame"
	"github.com/ws3ds/ws3ds-go/pkg/log"
	"github.com/ws3ds/ws3ds-go/pkg/metrics"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
	"github.com/ws3ds/ws3ds-go/pkg/version"
)

// Session errors.
var (
	ErrSearchTimeout = errors.New("no device found before the search timeout")
	ErrNotConnected  = connection.ErrNotConnected
	ErrAlreadyActive = errors.New("search already in progress")
	ErrClosed        = errors.New("client closed")
)

// DefaultSearchTimeout bounds a search without a promotion.
const DefaultSearchTimeout = 60 * time.Second

// failureBuffer is the capacity of the Failures channel.
const failureBuffer = 16

// MessageSink receives text messages from the device that are not protocol
// control messages.
type MessageSink interface {
	HandleMessage(addr discovery.Address, text string)
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc func(addr discovery.Address, text string)

// HandleMessage calls f.
func (f SinkFunc) HandleMessage(addr discovery.Address, text string) {
	f(addr, text)
}

// HintSource supplies addresses to race ahead of the subnet scan.
// Implemented by discovery.MDNSBrowser.
type HintSource interface {
	Hints(ctx context.Context, port uint16) []discovery.Address
}

// Config configures a Client.
type Config struct {
	// Dialer opens candidate connections. Required.
	Dialer transport.Dialer

	// Resolver finds the local address when no host is given.
	// Default: discovery.InterfaceProvider.
	Resolver discovery.LocalAddressProvider

	// Hints is optional.
	Hints HintSource

	// Port is the device port. Default: discovery.DefaultPort.
	Port uint16

	// SearchTimeout bounds a search. Default: DefaultSearchTimeout.
	SearchTimeout time.Duration

	// ResolveGrace bounds local address resolution. Default: discovery.ResolveGrace.
	ResolveGrace time.Duration

	// Backoff configures candidate retries. Default: fixed 10ms.
	Backoff connection.BackoffConfig

	// Version is the local protocol version. Default: version.Current.
	Version string

	// Sink receives device text. Optional.
	Sink MessageSink

	// Clock drives the search timeout and retries. Default: wall clock.
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// Trace receives discovery trace events. Optional.
	Trace log.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

func (c *Config) applyDefaults() {
	if c.Resolver == nil {
		c.Resolver = discovery.InterfaceProvider{}
	}
	if c.Port == 0 {
		c.Port = discovery.DefaultPort
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = DefaultSearchTimeout
	}
	if c.ResolveGrace <= 0 {
		c.ResolveGrace = discovery.ResolveGrace
	}
	if c.Version == "" {
		c.Version = version.Current
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c.Trace = log.OrNoop(c.Trace)
}

// StartOptions configures one search.
type StartOptions struct {
	// Host skips resolution and races this single host.
	Host string
}

// Status is a snapshot of the client.
type Status struct {
	State    State
	SearchID string
	Address  discovery.Address
	Since    time.Time
}

// search is the state of one discovery attempt.
type search struct {
	id      string
	token   *connection.Token
	co      *connection.Coordinator
	started time.Time
	stop    chan struct{}

	connectedOnce bool
}

// Client finds the device and keeps one session with it.
type Client struct {
	config    Config
	logger    *slog.Logger
	machine   *Machine
	validator *version.Validator
	failures  chan error

	mu      sync.Mutex
	current *search
	since   time.Time
	closed  bool
	wg      sync.WaitGroup

	onStateChange func(oldState, newState State)
}

// NewClient creates a Client in StateIdle.
func NewClient(config Config) *Client {
	config.applyDefaults()
	c := &Client{
		config:    config,
		logger:    config.Logger.With("component", "session"),
		machine:   NewMachine(),
		validator: &version.Validator{Local: config.Version},
		failures:  make(chan error, failureBuffer),
		since:     config.Clock.Now(),
	}
	c.machine.OnStateChange(c.stateChanged)
	config.Metrics.SetSessionState(int(StateIdle))
	return c
}

// OnStateChange sets a callback for state changes. It runs while the
// client's lock is held and must not call back into the Client.
func (c *Client) OnStateChange(fn func(oldState, newState State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// State returns the current state.
func (c *Client) State() State {
	return c.machine.State()
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.machine.State(), Since: c.since}
	if c.current != nil {
		st.SearchID = c.current.id
		if s, ok := c.current.co.Active(); ok {
			st.Address = s.Address
		}
	}
	return st
}

// Failures delivers user-visible failures: ErrSearchTimeout and
// version.ErrIncompatible.
func (c *Client) Failures() <-chan error {
	return c.failures
}

// Start begins a search. Without a host the local subnet is resolved first;
// when that fails the error wraps discovery.ErrUnresolved and the state is
// unchanged, so the caller can retry with an explicit host.
func (c *Client) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if st := c.machine.State(); st != StateIdle && st != StateCanceled {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyActive, st)
	}
	c.mu.Unlock()

	addrs, prefix, err := c.candidates(ctx, opts)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if st := c.machine.State(); st != StateIdle && st != StateCanceled {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyActive, st)
	}

	prev := c.current
	s := c.newSearch()
	c.current = s
	if err := c.machine.Transition(StateSearching); err != nil {
		c.current = prev
		c.mu.Unlock()
		s.co.Close()
		return err
	}
	s.token.ArmTimeout(c.config.Clock, c.config.SearchTimeout, func() { c.searchTimedOut(s) })

	c.wg.Add(1)
	go c.loop(s)
	if opts.Host == "" && c.config.Hints != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.raceHints(s)
		}()
	}
	c.mu.Unlock()

	c.teardown(prev)

	if err := s.co.Race(addrs); err != nil && !errors.Is(err, connection.ErrCanceled) {
		c.Cancel()
		return err
	}
	c.logger.Info("search started", "search_id", s.id, "host", opts.Host, "prefix", string(prefix))
	return nil
}

// candidates returns the addresses to race: the explicit host, or every
// address of the resolved subnet.
func (c *Client) candidates(ctx context.Context, opts StartOptions) ([]discovery.Address, discovery.Prefix, error) {
	if opts.Host != "" {
		addrs, err := discovery.SingleCandidate(opts.Host, c.config.Port)
		return addrs, "", err
	}

	res, err := discovery.Resolve(ctx, c.config.Resolver, c.config.ResolveGrace)
	if err != nil {
		c.logger.Warn("local address unresolved, an explicit host is required", "error", err)
		return nil, "", err
	}
	c.logger.Debug("local address resolved", "ip", res.IP.String(), "prefix", string(res.Prefix))
	return discovery.SubnetCandidates(res.Prefix, c.config.Port), res.Prefix, nil
}

func (c *Client) newSearch() *search {
	s := &search{
		id:      uuid.NewString(),
		token:   connection.NewToken(),
		started: c.config.Clock.Now(),
		stop:    make(chan struct{}),
	}
	s.co = connection.NewCoordinator(c.config.Dialer, s.token, connection.Config{
		Backoff:  c.config.Backoff,
		Clock:    c.config.Clock,
		Logger:   c.config.Logger,
		Trace:    c.config.Trace,
		SearchID: s.id,
		Metrics:  c.config.Metrics,
	})
	return s
}

func (c *Client) raceHints(s *search) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	hints := c.config.Hints.Hints(ctx, c.config.Port)
	if len(hints) == 0 {
		return
	}
	if _, ok := s.co.Canonical(); ok {
		return
	}
	c.logger.Debug("racing mdns hints", "count", len(hints))
	if err := s.co.Race(hints); err != nil {
		c.logger.Debug("hints not raced", "error", err)
	}
}

// Cancel ends the current search. It is a no-op while Connected.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil {
		return
	}
	switch c.machine.State() {
	case StateSearching, StateDisconnected:
	default:
		return
	}

	if err := c.machine.Transition(StateCanceled); err != nil {
		c.logger.Error("cancel failed", "error", err)
		return
	}
	s.token.Cancel(connection.ErrCanceled)
	if !s.connectedOnce {
		c.config.Metrics.SearchFinished(metrics.ResultCanceled, c.config.Clock.Since(s.started))
	}
	c.logger.Info("search canceled", "search_id", s.id)
}

// SendText sends text to the device.
func (c *Client) SendText(text string) error {
	co, err := c.connected()
	if err != nil {
		return err
	}
	if err := co.SendText(text); err != nil {
		return err
	}
	c.config.Metrics.MessageSent("text")
	return nil
}

// SendFrame sends an encoded full-screen frame.
func (c *Client) SendFrame(data []byte) error {
	if len(data) != frame.Size {
		return fmt.Errorf("%w: got %d bytes, want %d", frame.ErrBufferSize, len(data), frame.Size)
	}
	co, err := c.connected()
	if err != nil {
		return err
	}
	if err := co.SendBinary(data); err != nil {
		return err
	}
	c.config.Metrics.FrameSent()
	return nil
}

// SendImage fits img to the top screen, encodes it and sends it.
func (c *Client) SendImage(img image.Image) error {
	if _, err := c.connected(); err != nil {
		return err
	}
	data, err := frame.EncodeImage(img)
	if err != nil {
		return err
	}
	return c.SendFrame(data)
}

func (c *Client) connected() (*connection.Coordinator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.machine.State() != StateConnected {
		return nil, ErrNotConnected
	}
	return c.current.co, nil
}

// Close stops the current search, closes any session and waits for
// background goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.current
	if s != nil {
		s.token.Cancel(ErrClosed)
	}
	c.mu.Unlock()

	c.teardown(s)
	c.wg.Wait()
	return nil
}

func (c *Client) teardown(s *search) {
	if s == nil {
		return
	}
	s.token.Cancel(connection.ErrCanceled)
	close(s.stop)
	s.co.Close()
}

func (c *Client) loop(s *search) {
	defer c.wg.Done()
	for {
		select {
		case ev := <-s.co.Events():
			c.handle(s, ev)
		case <-s.stop:
			return
		}
	}
}

func (c *Client) handle(s *search, ev connection.Event) {
	switch ev.Type {
	case connection.EventPromoted:
		c.promoted(s, ev)
	case connection.EventMessage:
		c.message(s, ev)
	case connection.EventLost:
		c.lost(s, ev)
	}
}

func (c *Client) promoted(s *search, ev connection.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s {
		return
	}
	switch c.machine.State() {
	case StateSearching, StateDisconnected:
	default:
		// Canceled between the promotion and this event.
		s.co.CloseActive()
		return
	}

	s.token.StopTimeout()
	if err := c.machine.Transition(StateConnected); err != nil {
		c.logger.Error("promotion not applied", "error", err)
		return
	}
	if !s.connectedOnce {
		s.connectedOnce = true
		c.config.Metrics.SearchFinished(metrics.ResultConnected, c.config.Clock.Since(s.started))
	}
}

func (c *Client) message(s *search, ev connection.Event) {
	c.mu.Lock()
	current := c.current == s
	c.mu.Unlock()
	if !current {
		return
	}
	if ev.Message.Type != transport.MessageText {
		c.logger.Debug("ignoring binary message", "addr", ev.Address.String(), "size", len(ev.Message.Data))
		return
	}
	text := string(ev.Message.Data)
	verdict, err := c.validator.Inspect(text)

	if verdict != version.VerdictData {
		c.trace(s, log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerSession,
			Category:  log.CategoryMessage,
			Address:   ev.Address.String(),
			Message:   &log.MessageEvent{Size: len(text), Text: text, Verdict: verdict.String()},
		})
	}

	switch verdict {
	case version.VerdictAccepted:
		c.logger.Debug("device version accepted", "addr", ev.Address.String())
	case version.VerdictRejected:
		c.rejected(s, err)
	default:
		if c.config.Sink != nil {
			c.config.Sink.HandleMessage(ev.Address, text)
		}
	}
}

func (c *Client) rejected(s *search, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s {
		return
	}
	if !c.machine.TransitionFrom(StateConnected, StateCanceled) {
		return
	}
	s.token.Cancel(err)
	s.co.CloseActive()
	c.logger.Error("device rejected", "error", err)
	c.fail(err)
}

func (c *Client) lost(s *search, ev connection.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s {
		return
	}
	if !c.machine.TransitionFrom(StateConnected, StateDisconnected) {
		return
	}
	// The canonical address's own candidate keeps retrying.
	if err := c.machine.Transition(StateSearching); err != nil {
		c.logger.Error("resume search failed", "error", err)
	}
}

func (c *Client) searchTimedOut(s *search) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != s || s.token.Canceled() {
		return
	}
	if !c.machine.TransitionFrom(StateSearching, StateCanceled) {
		return
	}
	s.token.Cancel(ErrSearchTimeout)
	c.config.Metrics.SearchFinished(metrics.ResultTimeout, c.config.Clock.Since(s.started))
	c.logger.Warn("search timed out", "search_id", s.id, "timeout", c.config.SearchTimeout)
	c.fail(ErrSearchTimeout)
}

// fail publishes a user-visible failure. Called with c.mu held.
func (c *Client) fail(err error) {
	select {
	case c.failures <- err:
	default:
		c.logger.Warn("failure dropped, channel full", "error", err)
	}
}

// stateChanged runs under c.mu for every transition.
func (c *Client) stateChanged(oldState, newState State) {
	c.since = c.config.Clock.Now()
	c.config.Metrics.SetSessionState(int(newState))
	c.logger.Info("state changed", "from", oldState.String(), "to", newState.String())

	if c.current != nil {
		c.trace(c.current, log.Event{
			Layer:       log.LayerSession,
			Category:    log.CategoryState,
			StateChange: &log.StateChangeEvent{OldState: oldState.String(), NewState: newState.String()},
		})
	}
	if c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
}

func (c *Client) trace(s *search, ev log.Event) {
	ev.Timestamp = c.config.Clock.Now()
	ev.SearchID = s.id
	c.config.Trace.Log(ev)
}
