package ntp

import "net/netip"

// DefaultLocalPort is the local UDP port the clock listens on for replies.
const DefaultLocalPort = 2390

// Transport exchanges datagrams with a time server.
// Receive must never block: the sync state machine polls it.
type Transport interface {
	// Listen opens the local endpoint. Calling it again while open is a no-op.
	Listen() error

	// Resolve looks up the server's address.
	Resolve(host string) (netip.Addr, error)

	// Send transmits one datagram.
	Send(to netip.AddrPort, packet []byte) error

	// Receive copies the next pending datagram into buf.
	// Returns (n, true) if one was available, (0, false) otherwise.
	Receive(buf []byte) (int, bool)

	// Close releases the local endpoint.
	Close() error
}
