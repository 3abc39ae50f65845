package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cuemby/shadowd/pkg/types"
	"gopkg.in/yaml.v3"
)

// SyncShadow names one shadow the sync engine is responsible for, plus
// the conflict-resolution policy to apply to it.
type SyncShadow struct {
	Thing     string `yaml:"thing"`
	Shadow    string `yaml:"shadow"`
	Direction string `yaml:"direction"` // between | device_to_cloud | cloud_to_device
	Owner     string `yaml:"owner"`     // local | cloud
}

// Strategy selects how the sync engine schedules work: "immediate"
// drains the queue continuously, "periodic" drains then sleeps for
// Interval.
type Strategy struct {
	Mode     string        `yaml:"mode"` // immediate | periodic
	Interval time.Duration `yaml:"interval"`
}

// Config is shadowd's full configuration, loaded from YAML. Four fields
// take environment-variable overrides (SHADOWD_DATA_DIR,
// SHADOWD_MAX_DOCUMENT_BYTES, SHADOWD_CONTROL_ADDR, SHADOWD_LOG_LEVEL);
// the others come only from YAML or defaults.
type Config struct {
	DataDir           string       `yaml:"data_dir"`
	MaxDocumentBytes  int          `yaml:"max_document_bytes"`
	QueueCapacity     int          `yaml:"queue_capacity"`
	CloudCallsPerSec  float64      `yaml:"cloud_calls_per_second"`
	CloudBurst        int          `yaml:"cloud_burst"`
	ProvideSyncStatus bool         `yaml:"provide_sync_status"`
	Strategy          Strategy     `yaml:"strategy"`
	SyncSet           []SyncShadow `yaml:"sync_set"`
	ControlAddr       string       `yaml:"control_addr"`
	LogLevel          string       `yaml:"log_level"`
	LogJSON           bool         `yaml:"log_json"`
}

// Default returns the configuration shadowd starts from before a config
// file or environment overrides are applied.
func Default() *Config {
	return &Config{
		DataDir:          "./data",
		MaxDocumentBytes: 8 * 1024,
		QueueCapacity:    1024,
		CloudCallsPerSec: 400,
		CloudBurst:       50,
		Strategy:         Strategy{Mode: "immediate"},
		ControlAddr:      ":8080",
		LogLevel:         "info",
	}
}

// Load reads a YAML config file at path (if non-empty) over the default
// configuration, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHADOWD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SHADOWD_MAX_DOCUMENT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDocumentBytes = n
		}
	}
	if v := os.Getenv("SHADOWD_CONTROL_ADDR"); v != "" {
		cfg.ControlAddr = v
	}
	if v := os.Getenv("SHADOWD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate enforces the invariants the rest of shadowd assumes hold:
// document size never exceeds the hard ceiling, and every configured
// sync shadow has a recognized direction and owner.
func (c *Config) Validate() error {
	const hardMaxDocumentBytes = 30 * 1024
	if c.MaxDocumentBytes <= 0 || c.MaxDocumentBytes > hardMaxDocumentBytes {
		return fmt.Errorf("config: max_document_bytes must be in (0, %d]", hardMaxDocumentBytes)
	}
	if c.Strategy.Mode != "immediate" && c.Strategy.Mode != "periodic" {
		return fmt.Errorf("config: strategy.mode must be immediate or periodic, got %q", c.Strategy.Mode)
	}
	if c.Strategy.Mode == "periodic" && c.Strategy.Interval <= 0 {
		return fmt.Errorf("config: strategy.interval must be positive in periodic mode")
	}
	for _, s := range c.SyncSet {
		switch types.SyncDirection(s.Direction) {
		case types.SyncDirectionBetween, types.SyncDirectionDeviceToCloud, types.SyncDirectionCloudToDevice:
		default:
			return fmt.Errorf("config: sync_set[%s/%s]: unrecognized direction %q", s.Thing, s.Shadow, s.Direction)
		}
		switch types.DataOwner(s.Owner) {
		case types.DataOwnerLocal, types.DataOwnerCloud, "":
		default:
			return fmt.Errorf("config: sync_set[%s/%s]: unrecognized owner %q", s.Thing, s.Shadow, s.Owner)
		}
	}
	return nil
}

// Entries returns the configured sync set as typed SyncSetEntry values.
func (c *Config) Entries() []types.SyncSetEntry {
	out := make([]types.SyncSetEntry, 0, len(c.SyncSet))
	for _, s := range c.SyncSet {
		owner := types.DataOwner(s.Owner)
		if owner == "" {
			owner = types.DataOwnerCloud
		}
		out = append(out, types.SyncSetEntry{
			Identity:  types.ShadowIdentity{Thing: types.ThingName(s.Thing), Shadow: types.ShadowName(s.Shadow)},
			Direction: types.SyncDirection(s.Direction),
			Owner:     owner,
		})
	}
	return out
}

// Snapshot holds an atomically-swappable *Config so long-running workers
// can pick up a reload without restarting.
type Snapshot struct {
	v atomic.Pointer[Config]
}

// NewSnapshot creates a Snapshot initialized with cfg.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.v.Store(cfg)
	return s
}

// Get returns the current configuration.
func (s *Snapshot) Get() *Config { return s.v.Load() }

// Store atomically replaces the current configuration.
func (s *Snapshot) Store(cfg *Config) { s.v.Store(cfg) }
