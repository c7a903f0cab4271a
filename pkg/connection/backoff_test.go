package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("FixedByDefault", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			if d := b.Next(); d != RetryDelay {
				t.Errorf("Attempt %d: delay = %v, want %v", i, d, RetryDelay)
			}
		}
	})

	t.Run("Growth", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        50 * time.Millisecond,
			Multiplier: 2.0,
		})

		expected := []time.Duration{
			10 * time.Millisecond,
			20 * time.Millisecond,
			40 * time.Millisecond,
			50 * time.Millisecond,
			50 * time.Millisecond,
		}
		for i, exp := range expected {
			if d := b.Next(); d != exp {
				t.Errorf("Attempt %d: delay = %v, want %v", i, d, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 100 * time.Millisecond, Jitter: 0.5})
		for i := 0; i < 10; i++ {
			d := b.Next()
			if d < 100*time.Millisecond || d > 150*time.Millisecond {
				t.Errorf("Sample %d: %v out of range [100ms, 150ms]", i, d)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond, Max: time.Second, Multiplier: 3})
		for i := 0; i < 4; i++ {
			b.Next()
		}
		if b.Attempts() != 4 {
			t.Errorf("Attempts() = %d, want 4", b.Attempts())
		}

		b.Reset()

		if b.Current() != time.Millisecond {
			t.Errorf("Current() = %v after reset, want 1ms", b.Current())
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("InvalidConfigFallsBack", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: -1, Multiplier: 0.5, Jitter: -1})
		if d := b.Next(); d != RetryDelay {
			t.Errorf("delay = %v, want %v", d, RetryDelay)
		}
		if d := b.Next(); d != RetryDelay {
			t.Errorf("second delay = %v, want fixed %v", d, RetryDelay)
		}
	})
}

func TestCandidateStateString(t *testing.T) {
	tests := []struct {
		state CandidateState
		want  string
	}{
		{StateConnecting, "CONNECTING"},
		{StateOpen, "OPEN"},
		{StateClosed, "CLOSED"},
		{StateStopped, "STOPPED"},
		{CandidateState(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
