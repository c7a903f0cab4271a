// Package log captures a machine-readable trace of discovery and session
// events.
//
// It is separate from operational logging (slog): the trace records every
// promotion, rejected or stale candidate, session state change and message
// exchanged with the device, tagged with the search it belongs to.
//
// # Basic Usage
//
//	// Console during development
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Binary file for later analysis with ws3ds-log
//	cfg.Trace, _ = log.NewFileLogger("search.wlog")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: messages sent or received (MessageEvent)
//   - Race: candidate outcomes such as promotion or staleness (CandidateEvent)
//   - Session: lifecycle state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys, using
// the .wlog extension.
package log
