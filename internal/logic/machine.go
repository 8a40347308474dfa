package logic

// Step advances the sync state machine by one transition.
// It decides only; the caller performs the returned effects (socket I/O,
// epoch updates, calendar recomputation).
func Step(s Session, ev Event, p Policy) (Session, Effects) {
	var eff Effects
	now := ev.NowMillis

	switch s.State {
	case StateInitialize:
		eff.ClearSynced = true
		eff.Listen = true
		s.RetriesLeft = p.MaxRetries
		s.LastMillis = now
		s.State = StateRequest

	case StateRequest:
		s.RequestMillis = now
		// Rebinds if the socket could not be opened at INITIALIZE
		eff.Listen = true
		eff.SendRequest = true
		eff.Outcome = OutcomeRequestSent
		s.State = StateWaiting

	case StateWaiting:
		s.ResyncCountdown = int64(p.ResyncInterval.Seconds())

		if ev.Reply.Present {
			eff.SetEpoch = true
			eff.Epoch = NTPToUnix(ev.Reply.Seconds)
			eff.Recompute = true
			eff.Outcome = OutcomeSynced
			// The epoch now describes this instant
			s.LastMillis = now
			s.State = StateClock
			break
		}

		// Unsigned subtraction stays correct across a counter wrap
		if now-s.RequestMillis < uint32(p.ReplyTimeout.Milliseconds()) {
			break
		}
		s.RetriesLeft--
		if s.RetriesLeft > 0 {
			eff.Outcome = OutcomeTimeout
			s.State = StateRequest
			break
		}
		eff.Outcome = OutcomeSyncFailed
		s.RetriesLeft = p.MaxRetries
		s.State = StateClock

	case StateClock:
		var secs uint64
		if now > s.LastMillis {
			// Keep the sub-second remainder for the next poll
			secs = uint64((now - s.LastMillis) / 1000)
			s.LastMillis += uint32(secs * 1000)
			eff.AdvanceSeconds = secs
			eff.Recompute = true
		} else {
			// Counter wrapped: drop this interval
			s.LastMillis = now
		}

		s.ResyncCountdown -= int64(secs)
		if s.ResyncCountdown <= 0 {
			eff.Outcome = OutcomeResyncDue
			s.RetriesLeft = p.MaxRetries
			s.State = StateRequest
		}

	default:
		eff.Outcome = OutcomeReset
		s.State = StateInitialize
	}

	return s, eff
}
