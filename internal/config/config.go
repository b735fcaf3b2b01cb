package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the broker listens on.
	DefaultAddr = ":43127"
	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultTickInterval is the cadence of the authoritative simulation tick.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultStartVariant selects where the vehicle spawns; see StartPosition.
	DefaultStartVariant = StartVariantBase
	// DefaultCameraScreenSize is the viewport width handed to new sessions.
	DefaultCameraScreenSize int32 = 1000
	// DefaultCameraWorldSize is the world window width handed to new sessions.
	DefaultCameraWorldSize int32 = 10000

	// DefaultLogLevel controls verbosity for broker logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "broker.log"
)

// Start variants understood by BROKER_START_VARIANT.
const (
	StartVariantBase     = "base"
	StartVariantExtended = "extended"
)

// startPositions maps each deployment variant to its spawn position.
var startPositions = map[string]int32{
	StartVariantBase:     0,
	StartVariantExtended: 500,
}

// Config captures all runtime tunables for the broker service.
type Config struct {
	Address          string
	AllowedOrigins   []string
	MaxPayloadBytes  int64
	PingInterval     time.Duration
	MaxClients       int
	TickInterval     time.Duration
	StartVariant     string
	CameraScreenSize int32
	CameraWorldSize  int32
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level string
	Path  string
}

// StartPosition resolves the configured variant to a spawn position.
func (c *Config) StartPosition() int32 {
	return startPositions[c.StartVariant]
}

// Load reads the broker configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("BROKER_ADDR", DefaultAddr),
		AllowedOrigins:   parseList(os.Getenv("BROKER_ALLOWED_ORIGINS")),
		MaxPayloadBytes:  DefaultMaxPayloadBytes,
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TickInterval:     DefaultTickInterval,
		StartVariant:     DefaultStartVariant,
		CameraScreenSize: DefaultCameraScreenSize,
		CameraWorldSize:  DefaultCameraWorldSize,
		Logging: LoggingConfig{
			Level: strings.TrimSpace(getString("BROKER_LOG_LEVEL", DefaultLogLevel)),
			Path:  strings.TrimSpace(getString("BROKER_LOG_PATH", DefaultLogPath)),
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("BROKER_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BROKER_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BROKER_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BROKER_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BROKER_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BROKER_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BROKER_TICK_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BROKER_TICK_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.TickInterval = duration
		}
	}

	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("BROKER_START_VARIANT"))); raw != "" {
		if _, ok := startPositions[raw]; !ok {
			problems = append(problems, fmt.Sprintf("BROKER_START_VARIANT must be %q or %q, got %q", StartVariantBase, StartVariantExtended, raw))
		} else {
			cfg.StartVariant = raw
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BROKER_CAMERA_SCREEN_SIZE")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BROKER_CAMERA_SCREEN_SIZE must be a positive 32-bit integer, got %q", raw))
		} else {
			cfg.CameraScreenSize = int32(value)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BROKER_CAMERA_WORLD_SIZE")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || value == 0 {
			problems = append(problems, fmt.Sprintf("BROKER_CAMERA_WORLD_SIZE must be a non-zero 32-bit integer, got %q", raw))
		} else {
			cfg.CameraWorldSize = int32(value)
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
