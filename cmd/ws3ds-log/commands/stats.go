package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ws3ds/ws3ds-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Searches          map[string]*SearchStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SearchStats summarizes one search.
type SearchStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	Connected   string
	ConnectedAt time.Time
	Rejected    int
	Stale       int
	Lost        int
	FinalState  string
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Searches:          make(map[string]*SearchStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	if event.Message != nil {
		s.EventsByDirection[event.Direction]++
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	search, ok := s.Searches[event.SearchID]
	if !ok {
		search = &SearchStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Searches[event.SearchID] = search
	}
	search.Events++
	if event.Timestamp.After(search.LastSeen) {
		search.LastSeen = event.Timestamp
	}

	if c := event.Candidate; c != nil {
		switch c.Action {
		case log.CandidatePromoted:
			if search.Connected == "" {
				search.Connected = event.Address
				search.ConnectedAt = event.Timestamp
			}
		case log.CandidateRejected:
			search.Rejected++
		case log.CandidateStale:
			search.Stale++
		case log.CandidateLost:
			search.Lost++
		}
	}
	if event.StateChange != nil {
		search.FinalState = event.StateChange.NewState
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== ws3ds Discovery Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerRace, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryCandidate, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Messages by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Searches: %d\n", len(stats.Searches))
	type searchInfo struct {
		id    string
		stats *SearchStats
	}
	searches := make([]searchInfo, 0, len(stats.Searches))
	for id, ss := range stats.Searches {
		searches = append(searches, searchInfo{id, ss})
	}
	sort.Slice(searches, func(i, j int) bool {
		return searches[i].stats.FirstSeen.Before(searches[j].stats.FirstSeen)
	})
	for _, s := range searches {
		fmt.Fprintf(w, "\n  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events,
			s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond))
		if s.stats.Connected != "" {
			fmt.Fprintf(w, "           Connected: %s after %s\n", s.stats.Connected,
				s.stats.ConnectedAt.Sub(s.stats.FirstSeen).Round(time.Millisecond))
		}
		if s.stats.Rejected > 0 || s.stats.Stale > 0 || s.stats.Lost > 0 {
			fmt.Fprintf(w, "           Rejected: %d  Stale: %d  Lost: %d\n", s.stats.Rejected, s.stats.Stale, s.stats.Lost)
		}
		if s.stats.FinalState != "" {
			fmt.Fprintf(w, "           Final state: %s\n", s.stats.FinalState)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
