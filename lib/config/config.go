// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "CUSTODY_CONFIG"

// Config is the engine configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Search  SearchConfig  `yaml:"search" json:"search"`
	Control ControlConfig `yaml:"control" json:"control"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`
}

// BackendConfig locates the ingestion backend.
type BackendConfig struct {
	// RequestSocket is where outbound requests (expand, action,
	// search, metadata) are sent.
	RequestSocket string `yaml:"request_socket" json:"request_socket"`

	// EventSocket is where the engine listens for backend events.
	EventSocket string `yaml:"event_socket" json:"event_socket"`

	// OutboxSize bounds requests queued for the request socket.
	// Default: 256
	OutboxSize int `yaml:"outbox_size" json:"outbox_size"`
}

// EngineConfig tunes the catalog engine.
type EngineConfig struct {
	// AccumulatorTTL is how long a partially received fragment set
	// may sit idle before it is discarded. Zero disables eviction.
	// Default: 10m
	AccumulatorTTL Duration `yaml:"accumulator_ttl" json:"accumulator_ttl"`

	// ExpandTimeout is how long a requested subtree may stay
	// unresolved before it is requested again. Zero disables
	// re-requests.
	// Default: 2m
	ExpandTimeout Duration `yaml:"expand_timeout" json:"expand_timeout"`

	// ExpandMaxAttempts caps requests per subtree before it is
	// marked stalled.
	// Default: 3
	ExpandMaxAttempts int `yaml:"expand_max_attempts" json:"expand_max_attempts"`

	// TickInterval is how often eviction and re-request sweeps run.
	// Default: 15s
	TickInterval Duration `yaml:"tick_interval" json:"tick_interval"`

	// CancelInvalidatesAccumulators discards open fragment sets for
	// a source when a cancel action is dispatched for it.
	CancelInvalidatesAccumulators bool `yaml:"cancel_invalidates_accumulators" json:"cancel_invalidates_accumulators"`
}

// SearchConfig configures the search controller.
type SearchConfig struct {
	// PageSize is used for queries that do not set one.
	// Default: 15
	PageSize int `yaml:"page_size" json:"page_size"`
}

// ControlConfig configures the local command socket used by
// "custody ctl".
type ControlConfig struct {
	// Socket is the control socket path. Empty disables it.
	Socket string `yaml:"socket" json:"socket"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`
}

// CaptureConfig configures recording of inbound envelopes.
type CaptureConfig struct {
	// Path is the capture file. Empty disables capture.
	Path string `yaml:"path" json:"path"`

	// Compression is none, lz4, or zstd.
	// Default: zstd
	Compression string `yaml:"compression" json:"compression"`
}

// Default returns the configuration used for fields the file omits.
func Default() *Config {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}
	return &Config{
		Backend: BackendConfig{
			RequestSocket: filepath.Join(runtimeDir, "custody", "backend.sock"),
			EventSocket:   filepath.Join(runtimeDir, "custody", "events.sock"),
			OutboxSize:    256,
		},
		Engine: EngineConfig{
			AccumulatorTTL:    Duration(10 * time.Minute),
			ExpandTimeout:     Duration(2 * time.Minute),
			ExpandMaxAttempts: 3,
			TickInterval:      Duration(15 * time.Second),
		},
		Search: SearchConfig{
			PageSize: 15,
		},
		Control: ControlConfig{
			Socket: filepath.Join(runtimeDir, "custody", "control.sock"),
		},
		Capture: CaptureConfig{
			Compression: "zstd",
		},
	}
}

// Load loads the file named by CUSTODY_CONFIG. It fails if the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your custody config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads and validates the file at path over [Default].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return json.Unmarshal(jsonc.ToJSON(data), c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.RequestSocket == "" {
		errs = append(errs, errors.New("backend.request_socket is required"))
	}
	if c.Backend.EventSocket == "" {
		errs = append(errs, errors.New("backend.event_socket is required"))
	}
	if c.Backend.OutboxSize < 1 {
		errs = append(errs, fmt.Errorf("backend.outbox_size must be at least 1, got %d", c.Backend.OutboxSize))
	}

	for _, field := range []struct {
		name  string
		value Duration
	}{
		{"engine.accumulator_ttl", c.Engine.AccumulatorTTL},
		{"engine.expand_timeout", c.Engine.ExpandTimeout},
	} {
		if field.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", field.name, field.value))
		}
	}
	if c.Engine.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.tick_interval must be positive, got %s", c.Engine.TickInterval))
	}
	if c.Engine.ExpandMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.expand_max_attempts must be at least 1, got %d", c.Engine.ExpandMaxAttempts))
	}

	if c.Search.PageSize < 1 {
		errs = append(errs, fmt.Errorf("search.page_size must be at least 1, got %d", c.Search.PageSize))
	}

	switch c.Capture.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("capture.compression must be one of none, lz4, zstd; got %q", c.Capture.Compression))
	}

	return errors.Join(errs...)
}
