package ntp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"time"
)

// inboxSize bounds the datagrams queued between polls. Extra replies are dropped.
const inboxSize = 4

// DefaultResolveTimeout bounds a single DNS lookup.
const DefaultResolveTimeout = 2 * time.Second

// UDPTransport sends and receives NTP datagrams over IPv4 UDP.
// A background goroutine drains the socket so Receive never blocks.
type UDPTransport struct {
	localPort      int
	resolveTimeout time.Duration

	mu    sync.Mutex
	conn  *net.UDPConn
	inbox chan []byte
}

// NewUDPTransport creates a transport bound to localPort once Listen is called.
// Port 0 picks an ephemeral port.
func NewUDPTransport(localPort int) *UDPTransport {
	return &UDPTransport{
		localPort:      localPort,
		resolveTimeout: DefaultResolveTimeout,
	}
}

// Listen binds the local UDP port.
func (t *UDPTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: t.localPort})
	if err != nil {
		return fmt.Errorf("listen udp port %d: %w", t.localPort, err)
	}
	t.conn = conn
	t.inbox = make(chan []byte, inboxSize)
	go readLoop(conn, t.inbox)

	log.Printf("ntp: listening on %s", conn.LocalAddr())
	return nil
}

func readLoop(conn *net.UDPConn, inbox chan<- []byte) {
	buf := make([]byte, 512)
	for {
		n, _, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("ntp: read error: %v", err)
			continue
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case inbox <- pkt:
		default:
			log.Printf("ntp: inbox full, dropping %d byte datagram", n)
		}
	}
}

// LocalAddr returns the bound address, or nil before Listen.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Resolve returns the first IPv4 address for host.
func (t *UDPTransport) Resolve(host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.resolveTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("resolve %s: no addresses", host)
	}
	return addrs[0].Unmap(), nil
}

// Send writes one datagram to the given address.
func (t *UDPTransport) Send(to netip.AddrPort, packet []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return errors.New("ntp: transport not listening")
	}
	if _, err := conn.WriteToUDPAddrPort(packet, to); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// Receive returns the next queued datagram without blocking.
func (t *UDPTransport) Receive(buf []byte) (int, bool) {
	t.mu.Lock()
	inbox := t.inbox
	t.mu.Unlock()

	if inbox == nil {
		return 0, false
	}
	select {
	case pkt := <-inbox:
		return copy(buf, pkt), true
	default:
		return 0, false
	}
}

// Close releases the socket. The reader goroutine exits on its own.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.inbox = nil
	if err != nil {
		return fmt.Errorf("close udp: %w", err)
	}
	return nil
}
