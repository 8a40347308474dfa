package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Clock         ClockJSON    `json:"clock"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"sync_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ClockJSON is the clock's own view of the time.
type ClockJSON struct {
	Synced   bool   `json:"synced"`
	Phase    string `json:"phase"`
	Server   string `json:"server"`
	Epoch    uint64 `json:"epoch"`
	UTC      string `json:"utc"`
	Local    string `json:"local"`
	Weekday  int    `json:"weekday"`
	LastSync string `json:"last_sync,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of sync counters.
type CountsJSON struct {
	Requests   int `json:"requests"`
	Syncs      int `json:"syncs"`
	Timeouts   int `json:"timeouts"`
	Failures   int `json:"failures"`
	BadReplies int `json:"bad_replies"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	ResyncSeconds int64  `json:"resync_seconds"`
	OffsetSeconds int64  `json:"offset_seconds"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
}

func epochRFC3339(epoch uint64) string {
	return time.Unix(int64(epoch), 0).UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	c := ClockJSON{
		Synced:  snap.Clock.Synced,
		Phase:   snap.Phase.String(),
		Server:  snap.Server,
		Epoch:   snap.Clock.Epoch,
		UTC:     epochRFC3339(snap.Clock.Epoch),
		Local:   snap.Clock.Calendar.String(),
		Weekday: snap.Clock.Weekday,
	}
	if snap.Stats.Syncs > 0 {
		c.LastSync = epochRFC3339(snap.Stats.LastSync)
	}

	return StatusInner{
		Clock:         c,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Requests:   snap.Stats.Requests,
			Syncs:      snap.Stats.Syncs,
			Timeouts:   snap.Stats.Timeouts,
			Failures:   snap.Stats.Failures,
			BadReplies: snap.Stats.BadReplies,
		},
		Config: ConfigJSON{
			PollMs:        snap.Config.PollMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			ResyncSeconds: snap.Config.ResyncSeconds,
			OffsetSeconds: snap.Config.OffsetSeconds,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the indented status document served by the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
