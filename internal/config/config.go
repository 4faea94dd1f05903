// Package config loads the gateway's process configuration from its
// environment, per SPEC_FULL.md §6: bootstrap/config loading belongs to an
// external collaborator (spec.md's explicit Non-goal), so this is kept to a
// small env-var carrier the rest of the code depends on.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the gateway's process-level configuration.
type Config struct {
	// ControlPlaneURL is the control plane's base URL (SOURCE_API_URL).
	ControlPlaneURL string
	// ServiceKey authenticates credential/permission lookups (SOURCE_KEY).
	ServiceKey string
	// ProxyURL optionally routes control-plane requests through an HTTP
	// proxy (SOURCE_API_PROXY_URL).
	ProxyURL string
	// LogLevel is the minimum log level: "debug", "info", "warn", "error".
	LogLevel string
	// LogFormat is the log output format: "text" or "json".
	LogFormat string
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string
	// MaxRequestBytes bounds any single PUT/UploadPart body.
	MaxRequestBytes int64
}

// Load builds a Config from the process environment, applying defaults for
// everything but ControlPlaneURL and ServiceKey, which are required.
func Load() (*Config, error) {
	cfg := &Config{
		ControlPlaneURL: os.Getenv("SOURCE_API_URL"),
		ServiceKey:      os.Getenv("SOURCE_KEY"),
		ProxyURL:        os.Getenv("SOURCE_API_PROXY_URL"),
		LogLevel:        firstNonEmpty(os.Getenv("RUST_LOG"), os.Getenv("LOG_LEVEL"), "info"),
		LogFormat:       getenvDefault("LOG_FORMAT", "text"),
		ListenAddr:      getenvDefault("LISTEN_ADDR", "0.0.0.0:8080"),
		MaxRequestBytes: 52428800,
	}

	if cfg.ControlPlaneURL == "" {
		return nil, fmt.Errorf("SOURCE_API_URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("SOURCE_KEY is required")
	}

	if v := os.Getenv("MAX_REQUEST_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("MAX_REQUEST_BYTES: invalid value %q", v)
		}
		cfg.MaxRequestBytes = n
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
