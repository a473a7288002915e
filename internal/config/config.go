// Package config loads engine configuration from PAY_* environment
// variables with sensible single-machine defaults.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	// LaneCount is the number of parallel processing lanes events are
	// sharded over by client ID.
	LaneCount uint16
	// MailboxSize bounds each lane's queue; a full mailbox blocks the
	// producer.
	MailboxSize int

	// PostgresDSN switches the engine to the persistent store when set.
	PostgresDSN string

	// NATSURL is the broker for stream mode.
	NATSURL string
	// HTTPAddr is the stream-mode operational HTTP listener.
	HTTPAddr string
}

func Load() Config {
	return Config{
		LaneCount:   uint16(envIntOrDefault("PAY_LANE_COUNT", 4)),
		MailboxSize: envIntOrDefault("PAY_MAILBOX_SIZE", 16),
		PostgresDSN: os.Getenv("PAY_POSTGRES_DSN"),
		NATSURL:     envOrDefault("PAY_NATS_URL", "nats://localhost:4222"),
		HTTPAddr:    envOrDefault("PAY_HTTP_ADDR", ":8080"),
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
