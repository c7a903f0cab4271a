package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/ws3ds/ws3ds-go/pkg/discovery"
	"github.com/ws3ds/ws3ds-go/pkg/log"
	"github.com/ws3ds/ws3ds-go/pkg/transport"
)

// CandidateState is the lifecycle state of one candidate.
type CandidateState uint8

const (
	// StateConnecting indicates a dial is in progress.
	StateConnecting CandidateState = iota

	// StateOpen indicates the connection is open.
	StateOpen

	// StateClosed indicates the connection closed and a retry may follow.
	StateClosed

	// StateStopped indicates the retry loop has exited.
	StateStopped
)

// String returns a human-readable state name.
func (s CandidateState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Candidate is one persistent connection attempt to a single address.
// Its loop runs in one goroutine, so its own events are sequential.
type Candidate struct {
	co      *Coordinator
	addr    discovery.Address
	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    CandidateState
	attempts int
}

func newCandidate(co *Coordinator, addr discovery.Address) *Candidate {
	ctx, cancel := context.WithCancel(co.ctx)
	return &Candidate{
		co:      co,
		addr:    addr,
		backoff: NewBackoffWithConfig(co.config.Backoff),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Address returns the candidate's address.
func (c *Candidate) Address() discovery.Address {
	return c.addr
}

// State returns the current state.
func (c *Candidate) State() CandidateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of dials made so far.
func (c *Candidate) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Candidate) setState(s CandidateState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// stop abandons the candidate: a pending dial or retry wait is interrupted
// and an open connection is closed.
func (c *Candidate) stop() {
	c.cancel()
}

func (c *Candidate) run() {
	co := c.co
	co.config.Metrics.CandidateStarted()
	defer func() {
		c.setState(StateStopped)
		c.cancel()
		co.config.Metrics.CandidateStopped()
	}()

	for {
		if !co.shouldDial(c.addr) {
			c.traceAction(log.CandidateStopped, "")
			return
		}

		c.setState(StateConnecting)
		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()
		co.config.Metrics.DialAttempt()

		conn, err := co.dialer.Dial(c.ctx, c.addr)
		if err != nil {
			co.logger.Debug("dial failed", "addr", c.addr.String(), "error", err)
		} else if !c.open(conn) {
			return
		}

		c.setState(StateClosed)
		if !c.wait() {
			c.traceAction(log.CandidateStopped, "")
			return
		}
	}
}

// open handles an established connection. It returns false when the
// candidate must stop instead of retrying.
func (c *Candidate) open(conn transport.Conn) bool {
	co := c.co
	c.setState(StateOpen)

	switch co.promote(c, conn) {
	case refusedCanceled:
		conn.Close()
		c.traceAction(log.CandidateCanceled, "")
		return false
	case refusedSuperseded:
		conn.Close()
		c.traceAction(log.CandidateRejected, "")
		return false
	}

	c.backoff.Reset()
	c.traceAction(log.CandidatePromoted, "")

	stop := context.AfterFunc(c.ctx, func() { conn.Close() })
	err := c.readLoop(conn)
	stop()
	conn.Close()

	reason := ""
	if err != nil && !errors.Is(err, transport.ErrConnectionClosed) {
		reason = err.Error()
	}
	c.traceAction(log.CandidateLost, reason)
	co.release(c.addr, conn, err)
	return true
}

func (c *Candidate) readLoop(conn transport.Conn) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}
		c.traceMessage(msg)
		c.co.deliver(c.addr, conn, msg)
	}
}

// wait pauses for the next backoff delay. It returns false when the
// candidate was stopped or the token canceled during the wait.
func (c *Candidate) wait() bool {
	select {
	case <-c.co.config.Clock.After(c.backoff.Next()):
		return true
	case <-c.ctx.Done():
		return false
	case <-c.co.token.Done():
		return false
	}
}

func (c *Candidate) traceAction(action log.CandidateAction, reason string) {
	c.co.trace(log.Event{
		Layer:    log.LayerRace,
		Category: log.CategoryCandidate,
		Address:  c.addr.String(),
		Candidate: &log.CandidateEvent{
			Action:   action,
			Attempts: c.Attempts(),
			Reason:   reason,
		},
	})
}

func (c *Candidate) traceMessage(msg transport.Message) {
	ev := log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Address:   c.addr.String(),
	}
	if msg.Type == transport.MessageText {
		ev.Message = log.NewTextMessage(string(msg.Data))
	} else {
		ev.Message = &log.MessageEvent{Binary: true, Size: len(msg.Data)}
	}
	c.co.trace(ev)
}
