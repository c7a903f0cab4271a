// Package connection races WebSocket connections to candidate device
// addresses and keeps the single winner as the active session.
//
// A Coordinator starts one Candidate per address. Each candidate runs its
// own goroutine that dials, and on failure or close waits RetryDelay before
// dialing again. The first candidate to open is promoted into the
// coordinator's slot and its address becomes canonical; every other
// candidate is closed locally as soon as it opens and never retries.
//
// # Retry Rule
//
// A retry is re-checked when its timer fires. It is abandoned when:
//   - the search Token has been canceled
//   - the coordinator has been closed
//   - another address holds the canonical slot
//
// When the active session closes, the slot is cleared but the address stays
// canonical, so only its own candidate may reconnect.
//
// # Cancellation
//
// A Token is shared by the whole search. Once canceled, no candidate is
// promoted and all retry loops stop. The Token also carries the search
// timeout timer.
package connection
