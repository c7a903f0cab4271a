// Package transport provides the WebSocket transport to a ws3ds device.
//
// The device runs a minimal WebSocket server on ws://<host>:5050/. One
// connection carries two kinds of payload:
//   - Text frames: user text outbound, control messages ("VERSION 1.0")
//     and application text inbound.
//   - Binary frames: encoded image frames outbound; inbound binary is
//     logged and ignored.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  Text / binary messages        │
//	├────────────────────────────────┤
//	│  WebSocket (RFC 6455)          │
//	├────────────────────────────────┤
//	│  TCP, IPv4 LAN                 │
//	└────────────────────────────────┘
//
// No TLS and no authentication are used; the device is assumed reachable
// on the local network.
package transport
