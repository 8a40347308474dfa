// Package clock keeps wall-clock time on the device: it drives the sync
// state machine against a time server and extrapolates between syncs from
// the local millisecond counter.
package clock

import (
	"errors"
	"log"
	"net/netip"

	"github.com/sweeney/ntp-clock/internal/logic"
	"github.com/sweeney/ntp-clock/internal/millis"
	"github.com/sweeney/ntp-clock/internal/ntp"
)

// Stats counts sync activity since startup.
type Stats struct {
	Requests   int
	Syncs      int
	Timeouts   int
	Failures   int
	BadReplies int    // datagrams rejected by the codec
	LastSync   uint64 // epoch seconds of the last successful sync, 0 if never
}

// Syncer owns the TimeState and the sync session.
// Not safe for concurrent use: Poll and the setters must be called from
// one goroutine. Hand copies from State to other goroutines.
type Syncer struct {
	transport ntp.Transport
	counter   millis.Counter
	policy    logic.Policy

	server string
	offset int64

	session logic.Session
	state   logic.TimeState
	stats   Stats

	buf [ntp.PacketSize]byte
}

// New creates a Syncer in the INITIALIZE state.
func New(transport ntp.Transport, counter millis.Counter, policy logic.Policy) *Syncer {
	s := &Syncer{
		transport: transport,
		counter:   counter,
		policy:    policy,
	}
	s.state.Calendar = logic.Breaktime(0)
	return s
}

// SetServer sets the hostname or address used for all future requests.
func (s *Syncer) SetServer(name string) {
	s.server = name
}

// Server returns the configured server.
func (s *Syncer) Server() string {
	return s.server
}

// SetOffset sets the UTC offset in seconds and recomputes the calendar.
func (s *Syncer) SetOffset(seconds int64) {
	s.offset = seconds
	s.recompute()
}

// Offset returns the UTC offset in seconds.
func (s *Syncer) Offset() int64 {
	return s.offset
}

// State returns a copy of the current time state.
func (s *Syncer) State() logic.TimeState {
	return s.state
}

// Session returns a copy of the state machine bookkeeping.
func (s *Syncer) Session() logic.Session {
	return s.session
}

// Stats returns a copy of the sync counters.
func (s *Syncer) Stats() Stats {
	return s.stats
}

// Poll advances the state machine by one step. It never blocks.
func (s *Syncer) Poll() logic.Outcome {
	ev := logic.Event{NowMillis: s.counter.Millis()}
	if s.session.State == logic.StateWaiting {
		ev.Reply = s.receive()
	}

	next, eff := logic.Step(s.session, ev, s.policy)
	s.session = next
	s.apply(eff)
	s.record(eff.Outcome)

	return eff.Outcome
}

// receive returns the first parseable pending reply, discarding bad ones.
func (s *Syncer) receive() logic.Reply {
	for {
		n, ok := s.transport.Receive(s.buf[:])
		if !ok {
			return logic.Reply{}
		}
		r, err := ntp.ParseReply(s.buf[:n])
		if err != nil {
			s.stats.BadReplies++
			log.Printf("ntp: ignoring reply: %v", err)
			continue
		}
		return logic.Reply{Present: true, Seconds: r.Seconds}
	}
}

func (s *Syncer) apply(eff logic.Effects) {
	if eff.ClearSynced {
		s.state.Synced = false
	}
	if eff.Listen {
		if err := s.transport.Listen(); err != nil {
			log.Printf("ntp: listen: %v", err)
		}
	}
	if eff.SendRequest {
		if err := s.sendRequest(); err != nil {
			// Handled by the reply timeout
			log.Printf("ntp: request: %v", err)
		}
	}
	if eff.SetEpoch {
		s.state.Epoch = eff.Epoch
		s.state.Synced = true
	}
	s.state.Epoch += eff.AdvanceSeconds
	if eff.Recompute {
		s.recompute()
	}
}

func (s *Syncer) sendRequest() error {
	// Anything already queued answers an older request
	if n := s.discardPending(); n > 0 {
		log.Printf("ntp: discarded %d stale datagrams", n)
	}
	if s.server == "" {
		return errors.New("no server configured")
	}
	addr, err := s.transport.Resolve(s.server)
	if err != nil {
		return err
	}
	return s.transport.Send(netip.AddrPortFrom(addr, ntp.Port), ntp.NewRequest())
}

func (s *Syncer) discardPending() int {
	n := 0
	for {
		if _, ok := s.transport.Receive(s.buf[:]); !ok {
			return n
		}
		n++
	}
}

func (s *Syncer) recompute() {
	s.state.Calendar = logic.LocalCalendar(s.state.Epoch, s.offset)
}

func (s *Syncer) record(o logic.Outcome) {
	switch o {
	case logic.OutcomeRequestSent:
		s.stats.Requests++
		log.Printf("ntp: requesting time from %s (%d attempts left)", s.server, s.session.RetriesLeft)
	case logic.OutcomeSynced:
		s.stats.Syncs++
		s.stats.LastSync = s.state.Epoch
		log.Printf("ntp: synced, local time %s", s.state.Calendar)
	case logic.OutcomeTimeout:
		s.stats.Timeouts++
		log.Printf("ntp: timeout, requesting again")
	case logic.OutcomeSyncFailed:
		s.stats.Timeouts++
		s.stats.Failures++
		log.Printf("ntp: no reply after %d attempts, running on local counter", s.policy.MaxRetries)
	case logic.OutcomeResyncDue:
		log.Printf("ntp: resync due")
	case logic.OutcomeReset:
		log.Printf("ntp: unknown state, reinitializing")
	}
}
