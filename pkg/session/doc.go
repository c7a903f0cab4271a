// Package session keeps one validated session with the device.
//
// A Client runs the search lifecycle:
//
//	IDLE -> SEARCHING -> CONNECTED -> DISCONNECTED -> SEARCHING ...
//	SEARCHING -> CANCELED   (cancel or search timeout)
//	CONNECTED -> CANCELED   (device reports an incompatible version)
//
// Start resolves the local subnet (or uses an explicit host), arms the
// search timeout and races every candidate address. The first open
// connection becomes the active session. When it is lost the client goes
// back to SEARCHING and the same address is redialed; no new race is
// started.
//
// Only two failures are surfaced to the user, on Failures(): the search
// timeout and a protocol version mismatch. Both are terminal for the search
// and need a fresh Start.
package session
