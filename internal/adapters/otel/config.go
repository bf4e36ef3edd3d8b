package otel

import (
	"os"
	"strconv"
	"time"
)

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint       string
	Enabled        bool
	Insecure       bool
	ExportInterval time.Duration
}

// LoadConfig loads OTEL configuration from environment variables.
func LoadConfig() Config {
	enabled, _ := strconv.ParseBool(os.Getenv("MVARIANT_OTEL_ENABLED"))
	insecure, _ := strconv.ParseBool(os.Getenv("MVARIANT_OTEL_INSECURE"))
	interval, err := time.ParseDuration(os.Getenv("MVARIANT_OTEL_EXPORT_INTERVAL"))
	if err != nil {
		interval = 0
	}

	return Config{
		Endpoint:       os.Getenv("MVARIANT_OTEL_ENDPOINT"),
		Enabled:        enabled,
		Insecure:       insecure,
		ExportInterval: interval,
	}
}
