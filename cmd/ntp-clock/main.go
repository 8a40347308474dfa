// Command ntp-clock keeps wall-clock time from an NTP server and publishes sync state to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ntp-clock/internal/clock"
	"github.com/sweeney/ntp-clock/internal/config"
	"github.com/sweeney/ntp-clock/internal/gpio"
	"github.com/sweeney/ntp-clock/internal/logic"
	"github.com/sweeney/ntp-clock/internal/millis"
	"github.com/sweeney/ntp-clock/internal/mqtt"
	"github.com/sweeney/ntp-clock/internal/ntp"
	"github.com/sweeney/ntp-clock/internal/status"
	"github.com/sweeney/ntp-clock/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// Environment values become the flag defaults, so flags win.
	flag.StringVar(&cfg.Server, "server", cfg.Server, "NTP server hostname or address")
	flag.Float64Var(&cfg.OffsetHours, "offset", cfg.OffsetHours, "UTC offset in hours (may be fractional or negative)")
	flag.BoolVar(&cfg.DST, "dst", cfg.DST, "Daylight saving time (adds one hour)")
	flag.IntVar(&cfg.LocalPort, "local-port", cfg.LocalPort, "Local UDP port for NTP replies")
	flag.DurationVar(&cfg.Poll, "poll", cfg.Poll, "State machine polling interval")
	flag.DurationVar(&cfg.ReplyTimeout, "reply-timeout", cfg.ReplyTimeout, "How long to wait for an NTP reply")
	flag.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Requests per sync attempt before falling back to the local counter")
	flag.DurationVar(&cfg.ResyncInterval, "resync", cfg.ResyncInterval, "Interval between syncs")
	flag.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address")
	flag.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")
	flag.IntVar(&cfg.LEDPin, "led-pin", cfg.LEDPin, fmt.Sprintf("BCM pin for the sync LED, usually %d (negative to disable)", gpio.DefaultPinLED))
	printTime := flag.Bool("print-time", false, "Sync once, print the local time and exit")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, *printTime); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printTime bool) error {
	transport := ntp.NewUDPTransport(cfg.LocalPort)
	defer transport.Close()
	if err := transport.Listen(); err != nil {
		return fmt.Errorf("listen ntp: %w", err)
	}

	syncer := clock.New(transport, millis.NewSystemCounter(), cfg.Policy())
	syncer.SetServer(cfg.Server)
	syncer.SetOffset(cfg.OffsetSeconds())

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	if printTime {
		return printOnce(syncer, ticker.C, os.Stdout)
	}

	var led gpio.Indicator = gpio.Nop{}
	if cfg.LEDPin >= 0 {
		ind, err := gpio.NewRealIndicator(cfg.LEDPin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		led = ind
	}
	defer led.Close()

	publisher := mqtt.NewRealPublisher(cfg.Broker)
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:        cfg.Poll.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		ResyncSeconds: int64(cfg.ResyncInterval / time.Second),
		OffsetSeconds: cfg.OffsetSeconds(),
		Broker:        cfg.Broker,
		HTTPPort:      cfg.HTTPAddr,
	})
	tracker.UpdateClock(syncer.State(), syncer.Session().State, syncer.Server(), syncer.Stats())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Buffered by the publisher until the broker connection comes up
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: server=%s offset=%ds poll=%v resync=%v broker=%s heartbeat=%v",
		cfg.Server, cfg.OffsetSeconds(), cfg.Poll, cfg.ResyncInterval, cfg.Broker, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(syncer, publisher, publisher, led, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

// errSyncFailed is returned by printOnce when the server never answered.
var errSyncFailed = errors.New("no reply from time server")

// printOnce polls until the first sync attempt finishes and prints the result.
func printOnce(syncer *clock.Syncer, tick <-chan time.Time, w io.Writer) error {
	for range tick {
		switch syncer.Poll() {
		case logic.OutcomeSynced:
			st := syncer.State()
			fmt.Fprintf(w, "%s (weekday %d, epoch %d)\n", st.Calendar, st.Weekday, st.Epoch)
			return nil
		case logic.OutcomeSyncFailed:
			return fmt.Errorf("sync %s: %w", syncer.Server(), errSyncFailed)
		}
	}
	return errors.New("poll stopped before sync completed")
}

func runLoop(syncer *clock.Syncer, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, led gpio.Indicator, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()
	ledOn, ledKnown := false, false

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			if err := led.Set(false); err != nil {
				log.Printf("led: %v", err)
			}
			return nil

		case <-tick:
			t := now()
			outcome := syncer.Poll()
			state := syncer.State()

			if outcome == logic.OutcomeSynced || outcome == logic.OutcomeSyncFailed {
				event := mqtt.SyncEvent{Outcome: outcome, State: state, Server: syncer.Server()}
				if err := publisher.Publish(event); err != nil {
					// Don't crash on publish failure
					log.Printf("publish error: %v", err)
				}
			}

			if !ledKnown || ledOn != state.Synced {
				if err := led.Set(state.Synced); err != nil {
					log.Printf("led: %v", err)
				} else {
					ledOn, ledKnown = state.Synced, true
				}
			}

			if tracker != nil {
				tracker.UpdateClock(state, syncer.Session().State, syncer.Server(), syncer.Stats())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				stats := syncer.Stats()
				log.Printf("heartbeat: synced=%v local=%s requests=%d syncs=%d failures=%d",
					state.Synced, state.Calendar, stats.Requests, stats.Syncs, stats.Failures)

				hbEvent := mqtt.SystemEvent{Timestamp: t, Event: "HEARTBEAT"}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
