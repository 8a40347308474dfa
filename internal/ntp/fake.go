package ntp

import (
	"errors"
	"net/netip"
)

// SentPacket is a datagram recorded by FakeTransport.
type SentPacket struct {
	To     netip.AddrPort
	Packet []byte
}

// FakeTransport is a test double with scripted replies.
type FakeTransport struct {
	// Addr is returned by Resolve when ResolveError is nil.
	Addr netip.Addr

	// Replies are queued datagrams; each Receive consumes one.
	Replies [][]byte

	// Sent records every datagram passed to Send.
	Sent []SentPacket

	// Resolved records every host passed to Resolve.
	Resolved []string

	// ListenError, ResolveError and SendError, if set, are returned by the
	// corresponding method.
	ListenError  error
	ResolveError error
	SendError    error

	// Listens counts calls to Listen.
	Listens int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeTransport creates a FakeTransport that resolves every host to 192.0.2.1.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{Addr: netip.MustParseAddr("192.0.2.1")}
}

// Listen records the call.
func (f *FakeTransport) Listen() error {
	f.Listens++
	return f.ListenError
}

// Resolve returns Addr or ResolveError.
func (f *FakeTransport) Resolve(host string) (netip.Addr, error) {
	f.Resolved = append(f.Resolved, host)
	if f.ResolveError != nil {
		return netip.Addr{}, f.ResolveError
	}
	if host == "" {
		return netip.Addr{}, errors.New("empty host")
	}
	return f.Addr, nil
}

// Send records the datagram.
func (f *FakeTransport) Send(to netip.AddrPort, packet []byte) error {
	if f.SendError != nil {
		return f.SendError
	}
	p := make([]byte, len(packet))
	copy(p, packet)
	f.Sent = append(f.Sent, SentPacket{To: to, Packet: p})
	return nil
}

// Receive pops the next scripted reply.
func (f *FakeTransport) Receive(buf []byte) (int, bool) {
	if len(f.Replies) == 0 {
		return 0, false
	}
	p := f.Replies[0]
	f.Replies = f.Replies[1:]
	return copy(buf, p), true
}

// Close marks the transport as closed.
func (f *FakeTransport) Close() error {
	f.Closed = true
	return nil
}

// QueueReply schedules a server reply carrying the given seconds since 1900.
func (f *FakeTransport) QueueReply(seconds uint32) {
	f.Replies = append(f.Replies, EncodeReply(seconds))
}

// Reset clears recorded calls and scripted replies.
func (f *FakeTransport) Reset() {
	f.Replies = nil
	f.Sent = nil
	f.Resolved = nil
	f.Listens = 0
	f.Closed = false
	f.ListenError = nil
	f.ResolveError = nil
	f.SendError = nil
}
