// Package status provides a thread-safe view of the clock daemon's state
// for the web UI and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ntp-clock/internal/clock"
	"github.com/sweeney/ntp-clock/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs        int64
	HeartbeatMs   int64
	ResyncSeconds int64
	OffsetSeconds int64
	Broker        string
	HTTPPort      string
}

// Snapshot is a point-in-time view of daemon state.
type Snapshot struct {
	Clock         logic.TimeState
	Phase         logic.SyncState
	Server        string
	Stats         clock.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateClock records the clock state after a poll.
func (t *Tracker) UpdateClock(state logic.TimeState, phase logic.SyncState, server string, stats clock.Stats) {
	t.mu.Lock()
	t.snap.Clock = state
	t.snap.Phase = phase
	t.snap.Server = server
	t.snap.Stats = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a copy of the daemon state with Now set to the
// host time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
