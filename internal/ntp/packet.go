// Package ntp implements the minimal NTP client subset used by the clock:
// the 48-byte request/reply codec and a datagram transport abstraction.
package ntp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PacketSize is the length of a basic NTP packet without extensions.
const PacketSize = 48

// Port is the NTP server port.
const Port = 123

// Mode values carried in the low three bits of the first byte.
const (
	ModeClient    = 3
	ModeServer    = 4
	ModeBroadcast = 5
)

// Offsets into the packet.
const (
	offsetReferenceID = 12
	offsetTransmit    = 40
)

var (
	// ErrShortPacket is returned for datagrams smaller than PacketSize.
	ErrShortPacket = errors.New("ntp: short packet")
	// ErrUnexpectedMode is returned when the reply is not from a server.
	ErrUnexpectedMode = errors.New("ntp: unexpected mode")
	// ErrZeroTimestamp is returned when the transmit timestamp is unset.
	ErrZeroTimestamp = errors.New("ntp: zero transmit timestamp")
)

// Reply holds the fields of a server reply the clock cares about.
type Reply struct {
	Leap     uint8
	Version  uint8
	Mode     uint8
	Stratum  uint8
	Seconds  uint32 // transmit timestamp, seconds since 1900
	Fraction uint32 // transmit timestamp, 1/2^32 s
}

// NewRequest builds a client request packet.
func NewRequest() []byte {
	p := make([]byte, PacketSize)
	p[0] = 0b11_100_011 // LI unsynchronized, version 4, client mode
	p[1] = 0            // stratum
	p[2] = 6            // poll interval, log2 seconds
	p[3] = 0xEC         // precision, log2 seconds
	copy(p[offsetReferenceID:], "1N14")
	return p
}

// ParseReply decodes and minimally validates a server reply.
// The payload is otherwise trusted: no origin or cryptographic checks.
func ParseReply(p []byte) (Reply, error) {
	if len(p) < PacketSize {
		return Reply{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(p))
	}

	r := Reply{
		Leap:     p[0] >> 6,
		Version:  (p[0] >> 3) & 0x07,
		Mode:     p[0] & 0x07,
		Stratum:  p[1],
		Seconds:  binary.BigEndian.Uint32(p[offsetTransmit:]),
		Fraction: binary.BigEndian.Uint32(p[offsetTransmit+4:]),
	}

	if r.Mode != ModeServer && r.Mode != ModeBroadcast {
		return Reply{}, fmt.Errorf("%w: %d", ErrUnexpectedMode, r.Mode)
	}
	if r.Seconds == 0 {
		return Reply{}, ErrZeroTimestamp
	}
	return r, nil
}

// EncodeReply builds a server reply carrying the given transmit seconds.
// Used by fakes and tests to stand in for a real server.
func EncodeReply(seconds uint32) []byte {
	p := make([]byte, PacketSize)
	p[0] = 0b00_100_100 // no warning, version 4, server mode
	p[1] = 2
	binary.BigEndian.PutUint32(p[offsetTransmit:], seconds)
	return p
}
