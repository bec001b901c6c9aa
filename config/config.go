// Package config loads environment variables and provides a typed Config
// used across the service. It applies sensible defaults so the binary can
// run locally with minimal setup. For required monitoring settings, use
// ValidateMonitorReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Transport
	GatewayAddr string

	// Monitoring target
	TargetGroupID    int64
	ForwardRecipient string
	GroupFile        string

	// Polling
	PollInterval time.Duration
	FetchWindow  time.Duration
	FetchLimit   int

	// Link resolution
	ResolveTimeout time.Duration

	// Recognition
	OCRCommand string

	// Storage
	ImagesDir string

	// Database (optional audit history; empty disables it)
	DBDsn string
}

// Load reads environment variables and applies defaults. It doesn't fail
// when the target group is missing; use ValidateMonitorReady() when you
// require monitoring to start. An empty DB_DSN just disables the audit
// history.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.GatewayAddr = os.Getenv("TELEGRAM_GATEWAY_ADDR")
	if cfg.GatewayAddr == "" {
		cfg.GatewayAddr = "http://localhost:8081"
	}

	if v := os.Getenv("TARGET_GROUP_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_GROUP_CHAT_ID (numeric chat id): %w", err)
		}
		cfg.TargetGroupID = id
	}

	cfg.ForwardRecipient = os.Getenv("FORWARD_RECIPIENT")
	if cfg.ForwardRecipient == "" {
		cfg.ForwardRecipient = "@imelda87541"
	}

	cfg.GroupFile = os.Getenv("SELECTED_GROUP_FILE")
	if cfg.GroupFile == "" {
		cfg.GroupFile = "selected_group.json"
	}

	var err error
	if cfg.PollInterval, err = durationEnv("POLL_INTERVAL", 300*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchWindow, err = durationEnv("FETCH_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ResolveTimeout, err = durationEnv("RESOLVE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.FetchLimit = 50
	if v := os.Getenv("FETCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_LIMIT: %q", v)
		}
		cfg.FetchLimit = n
	}

	cfg.OCRCommand = os.Getenv("OCR_COMMAND")
	if cfg.OCRCommand == "" {
		cfg.OCRCommand = "easyocr-json"
	}

	cfg.ImagesDir = os.Getenv("IMAGES_DIR")
	if cfg.ImagesDir == "" {
		cfg.ImagesDir = "group_images"
	}

	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}

// ValidateMonitorReady checks the fields required to start monitoring when
// no persisted group selection exists.
func (c *Config) ValidateMonitorReady() error {
	if c.TargetGroupID == 0 {
		return fmt.Errorf("missing target group: set TARGET_GROUP_CHAT_ID or run select-group")
	}
	return nil
}
