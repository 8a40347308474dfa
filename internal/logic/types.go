// Package logic contains the pure timekeeping logic of the clock.
// This package has NO external dependencies (no sockets, OS, or time.Sleep).
// Time is always injectable: the monotonic counter reading arrives as a
// parameter and wall-clock time is only ever derived from server replies.
package logic

import "time"

// NTPEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01T00:00:00Z) and the Unix epoch (1970-01-01T00:00:00Z).
const NTPEpochOffset = 2208988800

// Default sync policy.
const (
	DefaultReplyTimeout   = 5 * time.Second
	DefaultMaxRetries     = 3
	DefaultResyncInterval = 3600 * time.Second
)

// SyncState is the state tag of the sync state machine.
type SyncState int

const (
	StateInitialize SyncState = iota
	StateRequest
	StateWaiting
	StateClock
)

func (s SyncState) String() string {
	switch s {
	case StateInitialize:
		return "INITIALIZE"
	case StateRequest:
		return "REQUEST"
	case StateWaiting:
		return "WAITING"
	case StateClock:
		return "CLOCK"
	}
	return "UNKNOWN"
}

// Outcome summarises what a single step did. Most steps produce OutcomeNone.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeRequestSent Outcome = "REQUEST_SENT"
	OutcomeSynced      Outcome = "SYNCED"
	OutcomeTimeout     Outcome = "TIMEOUT"
	OutcomeSyncFailed  Outcome = "SYNC_FAILED"
	OutcomeResyncDue   Outcome = "RESYNC_DUE"
	OutcomeReset       Outcome = "RESET"
)

// Calendar is the broken-down form of an epoch-seconds value.
type Calendar struct {
	Year    int
	Month   int // 1-12
	Day     int // 1-31
	Hour    int // 0-23
	Minute  int // 0-59
	Second  int // 0-59
	Weekday int // 1-7, 1 = Sunday
}

// TimeState is the published view of the clock.
// Calendar is always the decomposition of Epoch plus the configured offset
// as of the last recomputation.
type TimeState struct {
	Synced bool
	Epoch  uint64 // seconds since 1970-01-01T00:00:00Z
	Calendar
}

// Policy holds the fixed timing constants of the sync cycle.
type Policy struct {
	ReplyTimeout   time.Duration
	MaxRetries     int
	ResyncInterval time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ReplyTimeout:   DefaultReplyTimeout,
		MaxRetries:     DefaultMaxRetries,
		ResyncInterval: DefaultResyncInterval,
	}
}

// Session is the ephemeral bookkeeping of the state machine.
type Session struct {
	State SyncState
	// Request attempts remaining before falling back to the local counter
	RetriesLeft int
	// Counter reading when the last request was sent
	RequestMillis uint32
	// Counter reading up to which elapsed time has been added to the epoch
	LastMillis uint32
	// Seconds until the next scheduled resync
	ResyncCountdown int64
}

// Reply is a validated server reply as seen by the state machine.
type Reply struct {
	Present bool
	// Transmit timestamp, whole seconds since 1900
	Seconds uint32
}

// Event is everything the state machine observes during one poll.
type Event struct {
	NowMillis uint32
	// Only inspected in StateWaiting
	Reply Reply
}

// Effects are the side effects the caller must apply after a step.
type Effects struct {
	ClearSynced bool
	Listen      bool
	SendRequest bool
	// SetEpoch replaces the epoch with Epoch and marks the state synced
	SetEpoch       bool
	Epoch          uint64
	AdvanceSeconds uint64
	Recompute      bool
	Outcome        Outcome
}
