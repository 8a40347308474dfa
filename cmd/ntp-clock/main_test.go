package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/ntp-clock/internal/clock"
	"github.com/sweeney/ntp-clock/internal/gpio"
	"github.com/sweeney/ntp-clock/internal/logic"
	"github.com/sweeney/ntp-clock/internal/mqtt"
	"github.com/sweeney/ntp-clock/internal/ntp"
	"github.com/sweeney/ntp-clock/internal/status"
)

// 2026-01-01T00:00:00Z in NTP seconds
const ntpNewYear2026 = 3976214400

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" {
		t.Errorf("expected empty Type and IP, got %q and %q", info.Type, info.IP)
	}
}

// --- runLoop tests ---

// stepCounter returns start, start+step, ... on successive reads. It is only
// read from the loop goroutine.
type stepCounter struct {
	now  uint32
	step uint32
}

func (c *stepCounter) Millis() uint32 {
	n := c.now
	c.now += c.step
	return n
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type loopFixture struct {
	transport *ntp.FakeTransport
	syncer    *clock.Syncer
	pub       *mqtt.FakePublisher
	led       *gpio.FakeIndicator
	tracker   *status.Tracker
}

// newFixture builds a syncer whose counter advances stepMs per poll.
func newFixture(stepMs uint32) *loopFixture {
	tr := ntp.NewFakeTransport()
	s := clock.New(tr, &stepCounter{step: stepMs}, logic.DefaultPolicy())
	s.SetServer("time.example")
	return &loopFixture{
		transport: tr,
		syncer:    s,
		pub:       mqtt.NewFakePublisher(),
		led:       gpio.NewFakeIndicator(),
		tracker:   status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
	}
}

// run drives runLoop for nTicks and then delivers signal.
func (f *loopFixture) run(t *testing.T, heartbeat time.Duration, now func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(f.syncer, f.pub, f.pub, f.led, f.tracker, heartbeat, now, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func defaultClock() func() time.Time {
	return fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100*time.Millisecond)
}

func TestRunLoopSyncPublishesEvent(t *testing.T) {
	f := newFixture(100)
	f.transport.QueueReply(ntpNewYear2026)

	// INITIALIZE, REQUEST, reply
	if err := f.run(t, 0, defaultClock(), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(f.pub.Events) != 1 {
		t.Fatalf("expected 1 sync event, got %d", len(f.pub.Events))
	}
	ev := f.pub.Events[0]
	if ev.Outcome != logic.OutcomeSynced {
		t.Errorf("Outcome: got %q, want SYNCED", ev.Outcome)
	}
	if ev.State.Epoch != 1767225600 || !ev.State.Synced {
		t.Errorf("State: got synced=%v epoch=%d", ev.State.Synced, ev.State.Epoch)
	}
	if ev.Server != "time.example" {
		t.Errorf("Server: got %q", ev.Server)
	}

	snap := f.tracker.Snapshot()
	if !snap.Clock.Synced || snap.Phase != logic.StateClock {
		t.Errorf("tracker: got synced=%v phase=%s", snap.Clock.Synced, snap.Phase)
	}
	if snap.Stats.Syncs != 1 || snap.Stats.Requests != 1 {
		t.Errorf("tracker stats: got %+v", snap.Stats)
	}
}

func TestRunLoopDrivesLED(t *testing.T) {
	f := newFixture(100)
	f.transport.QueueReply(ntpNewYear2026)

	if err := f.run(t, 0, defaultClock(), 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	// Off on the first tick, on at sync, off at shutdown; no repeats in between
	want := []bool{false, true, false}
	if len(f.led.History) != len(want) {
		t.Fatalf("LED history: got %v, want %v", f.led.History, want)
	}
	for i := range want {
		if f.led.History[i] != want[i] {
			t.Errorf("LED history: got %v, want %v", f.led.History, want)
			break
		}
	}
}

func TestRunLoopLEDErrorDoesNotStopLoop(t *testing.T) {
	f := newFixture(100)
	f.led.SetError = errors.New("line busy")
	f.transport.QueueReply(ntpNewYear2026)

	if err := f.run(t, 0, defaultClock(), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(f.pub.Events) != 1 {
		t.Errorf("expected sync event despite LED errors, got %d", len(f.pub.Events))
	}
}

func TestRunLoopSyncFailed(t *testing.T) {
	// Each poll advances 5s, so every wait times out on its first check:
	// INIT, then REQUEST/TIMEOUT twice, then REQUEST/SYNC_FAILED.
	f := newFixture(5000)

	if err := f.run(t, 0, defaultClock(), 7, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(f.transport.Sent) != 3 {
		t.Errorf("expected 3 requests, got %d", len(f.transport.Sent))
	}
	if len(f.pub.Events) != 1 {
		t.Fatalf("expected 1 sync event, got %d", len(f.pub.Events))
	}
	if f.pub.Events[0].Outcome != logic.OutcomeSyncFailed {
		t.Errorf("Outcome: got %q, want SYNC_FAILED", f.pub.Events[0].Outcome)
	}
	if f.pub.Events[0].State.Synced {
		t.Error("expected unsynced state on SYNC_FAILED")
	}

	snap := f.tracker.Snapshot()
	if snap.Phase != logic.StateClock {
		t.Errorf("Phase: got %s, want CLOCK", snap.Phase)
	}
	if snap.Stats.Failures != 1 {
		t.Errorf("Failures: got %d, want 1", snap.Stats.Failures)
	}
}

func TestRunLoopNoEventsWhileWaiting(t *testing.T) {
	f := newFixture(100)

	if err := f.run(t, 0, defaultClock(), 10, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(f.pub.Events) != 0 {
		t.Errorf("expected 0 sync events, got %d", len(f.pub.Events))
	}
	if len(f.pub.SystemEvents) != 1 || f.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected only SHUTDOWN, got %+v", f.pub.SystemEvents)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// now() calls: t0 at start, then one per tick at +5m steps.
	// With a 15m interval the heartbeat fires on the third tick.
	f := newFixture(100)
	f.transport.QueueReply(ntpNewYear2026)
	now := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)

	if err := f.run(t, 15*time.Minute, now, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for _, se := range f.pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats++
			var parsed status.StatusJSON
			if err := json.Unmarshal(se.RawPayload, &parsed); err != nil {
				t.Fatalf("heartbeat payload: %v", err)
			}
			if parsed.Status.Event != "HEARTBEAT" {
				t.Errorf("payload event: got %q", parsed.Status.Event)
			}
			if !parsed.Status.Clock.Synced {
				t.Error("heartbeat should report the synced clock")
			}
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	f := newFixture(100)
	now := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	if err := f.run(t, 0, now, 5, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	for _, se := range f.pub.SystemEvents {
		if se.Event == "HEARTBEAT" {
			t.Fatal("heartbeat should be disabled at 0")
		}
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	f := newFixture(100)
	now := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5*time.Minute)

	if err := f.run(t, 15*time.Minute, now, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var hb *mqtt.SystemEvent
	for i := range f.pub.SystemEvents {
		if f.pub.SystemEvents[i].Event == "HEARTBEAT" {
			hb = &f.pub.SystemEvents[i]
			break
		}
	}
	if hb == nil {
		t.Fatal("expected a HEARTBEAT system event")
	}

	var parsed status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &parsed); err != nil {
		t.Fatalf("heartbeat payload: %v", err)
	}
	if parsed.Status.Network == nil {
		t.Fatal("HEARTBEAT payload missing network info")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", parsed.Status.Network.IP, "192.168.1.42")
	}
	if parsed.Status.Network.SSID != "HomeNet" {
		t.Errorf("Network.SSID: got %q, want %q", parsed.Status.Network.SSID, "HomeNet")
	}
}

func TestRunLoopPublishError(t *testing.T) {
	f := newFixture(100)
	f.pub.PublishError = fmt.Errorf("broker unavailable")
	f.transport.QueueReply(ntpNewYear2026)

	if err := f.run(t, 0, defaultClock(), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(f.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(f.pub.Events))
	}
	if !f.tracker.Snapshot().Clock.Synced {
		t.Error("clock should sync regardless of publish errors")
	}
	if len(f.pub.SystemEvents) != 1 || f.pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopShutdownSignals(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := newFixture(100)
			f.pub.Connected = true

			if err := f.run(t, 0, defaultClock(), 2, tt.sig); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if len(f.pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(f.pub.SystemEvents))
			}
			se := f.pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tt.want {
				t.Errorf("expected reason %s, got %q", tt.want, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}

			var parsed status.StatusJSON
			if err := json.Unmarshal(se.RawPayload, &parsed); err != nil {
				t.Fatalf("shutdown payload: %v", err)
			}
			if parsed.Status.Reason != tt.want {
				t.Errorf("payload reason: got %q, want %q", parsed.Status.Reason, tt.want)
			}
			if !parsed.Status.MQTT.Connected {
				t.Error("expected MQTT connected in shutdown snapshot")
			}
		})
	}
}

// --- print-time mode ---

func tickN(n int) <-chan time.Time {
	ch := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		ch <- time.Time{}
	}
	close(ch)
	return ch
}

func TestPrintOnce(t *testing.T) {
	f := newFixture(100)
	f.syncer.SetOffset(-5 * 3600)
	f.transport.QueueReply(ntpNewYear2026)

	var out bytes.Buffer
	if err := printOnce(f.syncer, tickN(10), &out); err != nil {
		t.Fatalf("printOnce: %v", err)
	}
	want := "2025-12-31 19:00:00 (weekday 4, epoch 1767225600)\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestPrintOnceNoReply(t *testing.T) {
	f := newFixture(5000)

	var out bytes.Buffer
	err := printOnce(f.syncer, tickN(10), &out)
	if !errors.Is(err, errSyncFailed) {
		t.Fatalf("expected errSyncFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "time.example") {
		t.Errorf("error should name the server: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestPrintOnceTickStops(t *testing.T) {
	f := newFixture(100)

	if err := printOnce(f.syncer, tickN(2), &bytes.Buffer{}); err == nil {
		t.Fatal("expected error when ticks stop before a sync completes")
	}
}
