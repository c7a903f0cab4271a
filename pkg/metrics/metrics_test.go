package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg))

	m.DialAttempt()
	m.DialAttempt()
	m.Promotion()
	m.StaleEvent()
	m.FrameSent()
	m.MessageSent("text")
	m.MessageSent("text")
	m.SearchFinished(ResultConnected, 300*time.Millisecond)
	m.CandidateStarted()
	m.CandidateStarted()
	m.CandidateStopped()
	m.SetSessionState(2)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"dial attempts", m.dialAttempts, 2},
		{"promotions", m.promotions, 1},
		{"stale", m.staleEvents, 1},
		{"frames", m.framesSent, 1},
		{"text messages", m.messagesSent.WithLabelValues("text"), 2},
		{"connected searches", m.searches.WithLabelValues(ResultConnected), 1},
		{"active candidates", m.candidatesActive, 1},
		{"session state", m.sessionState, 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.searchDuration); n != 1 {
		t.Errorf("search duration series = %d, want 1", n)
	}
}

func TestMetricsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("test"), WithConstLabels(prometheus.Labels{"device": "a"}))
	m.Promotion()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_promotions_total" {
			found = true
		}
	}
	if !found {
		t.Error("test_promotions_total not registered")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DialAttempt()
	m.Promotion()
	m.StaleEvent()
	m.FrameSent()
	m.MessageSent("text")
	m.SearchFinished(ResultTimeout, time.Second)
	m.CandidateStarted()
	m.CandidateStopped()
	m.SetSessionState(1)
}
