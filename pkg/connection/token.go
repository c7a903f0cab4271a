package connection

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Token is the cancellation flag of one search, plus its pending timeout
// timer. It is shared by pointer between the session and every candidate.
type Token struct {
	mu       sync.Mutex
	canceled bool
	reason   error
	done     chan struct{}
	timer    *clock.Timer
}

// NewToken returns an uncanceled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel flips the token and stops any pending timeout. It returns false if
// the token was already canceled; the first reason is kept.
func (t *Token) Cancel(reason error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled {
		return false
	}
	t.canceled = true
	t.reason = reason
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	close(t.done)
	return true
}

// Canceled reports whether Cancel has been called.
func (t *Token) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Err returns the reason passed to the first Cancel, or nil.
func (t *Token) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Done is closed when the token is canceled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// ArmTimeout schedules fire after d on clk, replacing any pending timeout.
// It does nothing on a canceled token.
func (t *Token) ArmTimeout(clk clock.Clock, d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = clk.AfterFunc(d, fire)
}

// StopTimeout stops the pending timeout. It reports whether one was pending.
func (t *Token) StopTimeout() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil {
		return false
	}
	stopped := t.timer.Stop()
	t.timer = nil
	return stopped
}
