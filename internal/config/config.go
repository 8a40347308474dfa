// Package config provides daemon configuration loading using koanf.
// Precedence: command-line flags → NTPCLOCK_* environment variables → defaults.
// This package handles the last two; the command layers flags on top.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/sweeney/ntp-clock/internal/logic"
	"github.com/sweeney/ntp-clock/internal/ntp"
)

// EnvPrefix is stripped from environment variable names before mapping
// them to keys, e.g. NTPCLOCK_REPLY_TIMEOUT → reply_timeout.
const EnvPrefix = "NTPCLOCK_"

// maxOffsetHours bounds the UTC offset, DST included.
const maxOffsetHours = 26

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config holds all daemon configuration.
type Config struct {
	// Time server hostname or address
	Server string `koanf:"server"`
	// UTC offset in hours, may be fractional or negative
	OffsetHours float64 `koanf:"offset"`
	// Daylight saving adds one hour to the offset
	DST bool `koanf:"dst"`
	// Local UDP port replies arrive on
	LocalPort int `koanf:"local_port"`

	Poll           time.Duration `koanf:"poll"`
	ReplyTimeout   time.Duration `koanf:"reply_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	ResyncInterval time.Duration `koanf:"resync_interval"`

	Broker    string        `koanf:"broker"`
	Heartbeat time.Duration `koanf:"heartbeat"` // 0 disables
	HTTPAddr  string        `koanf:"http"`      // empty disables
	LEDPin    int           `koanf:"led_pin"`   // negative disables
}

// Defaults returns a Config with compiled default values.
func Defaults() *Config {
	return &Config{
		Server:         "time.nist.gov",
		LocalPort:      ntp.DefaultLocalPort,
		Poll:           100 * time.Millisecond,
		ReplyTimeout:   logic.DefaultReplyTimeout,
		MaxRetries:     logic.DefaultMaxRetries,
		ResyncInterval: logic.DefaultResyncInterval,
		Broker:         "tcp://192.168.1.200:1883",
		Heartbeat:      15 * time.Minute,
		HTTPAddr:       ":80",
		LEDPin:         -1,
	}
}

// Load returns the defaults overlaid with NTPCLOCK_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")
	cfg := Defaults()

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration can drive the clock.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("%w: server is empty", ErrInvalid)
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("%w: local_port %d out of range", ErrInvalid, c.LocalPort)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("%w: poll must be positive", ErrInvalid)
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("%w: reply_timeout must be positive", ErrInvalid)
	}
	if c.Poll >= c.ReplyTimeout {
		return fmt.Errorf("%w: poll %v must be shorter than reply_timeout %v", ErrInvalid, c.Poll, c.ReplyTimeout)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalid)
	}
	if c.ResyncInterval < time.Second {
		return fmt.Errorf("%w: resync_interval must be at least 1s", ErrInvalid)
	}
	if math.Abs(c.OffsetHours)+dstHours(c.DST) > maxOffsetHours {
		return fmt.Errorf("%w: offset %vh out of range", ErrInvalid, c.OffsetHours)
	}
	return nil
}

// OffsetSeconds combines the timezone offset and DST into one signed value.
func (c *Config) OffsetSeconds() int64 {
	return int64(math.Round((c.OffsetHours+dstHours(c.DST))*3600))
}

// Policy returns the sync policy described by the configuration.
func (c *Config) Policy() logic.Policy {
	return logic.Policy{
		ReplyTimeout:   c.ReplyTimeout,
		MaxRetries:     c.MaxRetries,
		ResyncInterval: c.ResyncInterval,
	}
}

func dstHours(dst bool) float64 {
	if dst {
		return 1
	}
	return 0
}
