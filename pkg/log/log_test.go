package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+FileExt)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var read []Event
	for {
		event, err := r.Next()
		if err == io.EOF {
			return read
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestEventRoundTripPreservesPayload(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := Event{
		Timestamp: ts,
		SearchID:  "s-1",
		Layer:     LayerRace,
		Category:  CategoryCandidate,
		Address:   "192.168.1.42:5050",
		Candidate: &CandidateEvent{Action: CandidatePromoted, Attempts: 3},
	}

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !out.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v (nanoseconds must survive)", out.Timestamp, ts)
	}
	if out.Candidate == nil || out.Candidate.Action != CandidatePromoted || out.Candidate.Attempts != 3 {
		t.Errorf("Candidate = %+v", out.Candidate)
	}
	if out.Message != nil || out.StateChange != nil || out.Error != nil {
		t.Error("unset payloads decoded as non-nil")
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SearchID: "a", Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: time.Now(), SearchID: "b", Layer: LayerRace, Category: CategoryCandidate},
		{Timestamp: time.Now(), SearchID: "c", Layer: LayerSession, Category: CategoryState},
	}
	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].SearchID != "a" || read[2].SearchID != "c" {
		t.Errorf("events out of order: %q, %q", read[0].SearchID, read[2].SearchID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next on empty file = %v, want io.EOF", err)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, SearchID: "s1", Layer: LayerRace, Category: CategoryCandidate, Address: "10.0.0.1:5050"},
		{Timestamp: base.Add(time.Second), SearchID: "s1", Direction: DirectionOut, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: base.Add(2 * time.Second), SearchID: "s2", Layer: LayerSession, Category: CategoryState},
	}
	path := createTestLogFile(t, events)

	race := LayerRace
	out := DirectionOut
	msg := CategoryMessage
	end := base.Add(2 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"search", Filter{SearchID: "s1"}, 2},
		{"address", Filter{Address: "10.0.0.1:5050"}, 1},
		{"layer", Filter{Layer: &race}, 1},
		{"direction and category", Filter{Direction: &out, Category: &msg}, 1},
		{"time end exclusive", Filter{TimeEnd: &end}, 2},
		{"time start inclusive", Filter{TimeStart: &end}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed"+FileExt)
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{SearchID: "before"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	logger.Log(Event{SearchID: "after"})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 1 || read[0].SearchID != "before" {
		t.Errorf("read %+v, want only the event logged before Close", read)
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent"+FileExt)
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), Layer: LayerRace, Category: CategoryCandidate})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if got := len(readAll(t, reader)); got != 200 {
		t.Errorf("got %d events, want 200", got)
	}
	if logger.Dropped() != 0 {
		t.Errorf("Dropped() = %d", logger.Dropped())
	}
}

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)

	m.Log(Event{SearchID: "x"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events: a=%d b=%d, want 1 each", len(a.events), len(b.events))
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) is not NoopLogger")
	}
	r := &recordingLogger{}
	if OrNoop(r) != r {
		t.Error("OrNoop did not return the given logger")
	}
}

func TestNewTextMessageTruncates(t *testing.T) {
	short := NewTextMessage("hi")
	if short.Truncated || short.Text != "hi" || short.Size != 2 {
		t.Errorf("short = %+v", short)
	}

	long := NewTextMessage(strings.Repeat("x", MaxTextCapture+10))
	if !long.Truncated || len(long.Text) != MaxTextCapture || long.Size != MaxTextCapture+10 {
		t.Errorf("long: truncated=%v len=%d size=%d", long.Truncated, len(long.Text), long.Size)
	}
}

func TestSlogAdapterLogsCandidateEvent(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(slogger).Log(Event{
		Timestamp: time.Now(),
		SearchID:  "s-9",
		Layer:     LayerRace,
		Category:  CategoryCandidate,
		Address:   "192.168.0.7:5050",
		Candidate: &CandidateEvent{Action: CandidateStale, Reason: "superseded"},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	checks := map[string]string{
		"search_id": "s-9",
		"layer":     "RACE",
		"addr":      "192.168.0.7:5050",
		"action":    "STALE",
		"reason":    "superseded",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %q", k, entry[k], want)
		}
	}
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(slogger).Log(Event{
		Layer:       LayerSession,
		Category:    CategoryState,
		StateChange: &StateChangeEvent{OldState: "SEARCHING", NewState: "CONNECTED"},
	})

	out := buf.String()
	if !strings.Contains(out, `"new_state":"CONNECTED"`) || !strings.Contains(out, `"old_state":"SEARCHING"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerSession.String(), "SESSION"},
		{Layer(9).String(), "UNKNOWN"},
		{CategoryError.String(), "ERROR"},
		{Category(9).String(), "UNKNOWN"},
		{CandidateRejected.String(), "REJECTED"},
		{CandidateLost.String(), "LOST"},
		{CandidateAction(99).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
