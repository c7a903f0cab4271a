// Package discovery derives the candidate addresses of a ws3ds device on the
// local network.
//
// The device listens on a fixed port (5050) but its address is unknown. The
// local host's IPv4 address is observed through a best-effort side channel
// (ICE host candidates, the same trick a browser client uses) and reduced to
// a subnet prefix such as "192.168.0.". Every suffix 0..255 appended to that
// prefix becomes a candidate address that the connection package races.
//
// # Providers
//
// A LocalAddressProvider supplies the local address:
//   - ICEProvider gathers host ICE candidates with pion/webrtc.
//   - InterfaceProvider scans the host's network interfaces.
//   - StaticProvider returns a fixed address (manual override and tests).
//   - ChainProvider tries several providers in order.
//
// Resolution is bounded by a grace period (default 1 second). Failure is
// recoverable: callers fall back to an explicitly supplied host.
//
// # mDNS hints
//
// Devices that advertise _ws3ds._tcp are picked up by MDNSBrowser and raced
// in addition to the subnet scan.
package discovery
