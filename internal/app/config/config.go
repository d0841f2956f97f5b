package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/TrailSync/internal/adapters/netprobe"
	"github.com/ghalamif/TrailSync/internal/adapters/nmea"
	"github.com/ghalamif/TrailSync/internal/adapters/opcua"
	"github.com/ghalamif/TrailSync/internal/adapters/simulated"
	"github.com/ghalamif/TrailSync/internal/adapters/sink"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// Source and store kinds accepted in the config file.
const (
	RemoteHTTP      = "http"
	RemoteTimescale = "timescale"

	SourceNMEA      = "nmea"
	SourceOPCUA     = "opcua"
	SourceSimulated = "simulated"
	SourceNone      = "none"
)

type Config struct {
	Remote       RemoteConfig       `yaml:"remote"`
	Location     LocationConfig     `yaml:"location"`
	Motion       MotionConfig       `yaml:"motion"`
	Sync         ports.SyncPolicy   `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Log          LogConfig          `yaml:"log"`
}

type RemoteConfig struct {
	Kind      string          `yaml:"kind"`
	BaseURL   string          `yaml:"base_url"`
	Token     string          `yaml:"token"`
	UserID    string          `yaml:"user_id"`
	Timeout   time.Duration   `yaml:"request_timeout"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

// TimescaleConfig configures the direct database store. Migrate applies the embedded
// migrations (default table names, postgres:// conn_string only); EnsureSchema creates
// the configured tables without them.
type TimescaleConfig struct {
	ConnString    string `yaml:"conn_string"`
	SessionsTable string `yaml:"sessions_table"`
	PointsTable   string `yaml:"points_table"`
	Migrate       bool   `yaml:"migrate"`
	EnsureSchema  bool   `yaml:"ensure_schema"`
}

type LocationConfig struct {
	Source       string               `yaml:"source"`
	NMEA         nmea.Config          `yaml:"nmea"`
	Simulated    simulated.WalkConfig `yaml:"simulated"`
	HighAccuracy bool                 `yaml:"high_accuracy"`
	MaxFixAge    time.Duration        `yaml:"max_fix_age"`
	FixTimeout   time.Duration        `yaml:"fix_timeout"`
	StaleAfter   time.Duration        `yaml:"stale_after"`
}

type MotionConfig struct {
	Source        string               `yaml:"source"`
	OPCUA         opcua.Config         `yaml:"opcua"`
	Simulated     simulated.GaitConfig `yaml:"simulated"`
	WindowSize    int                  `yaml:"window_size"`
	EmitPolicy    string               `yaml:"emit_policy"`
	RateHz        float64              `yaml:"rate_hz"`
	AttachSamples bool                 `yaml:"attach_samples"`
}

// ConnectivityConfig either pins reachability with Static or probes Probe.Addr. An empty
// probe address is derived from remote.base_url.
type ConnectivityConfig struct {
	Static *bool           `yaml:"static"`
	Probe  netprobe.Config `yaml:"probe"`
}

// MetricsConfig configures the runtime HTTP server (/metrics, /healthz, /status).
// CORSOrigins lists browser origins allowed to read it; "*" allows any.
type MetricsConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Override adjusts a decoded config before defaults and validation run, e.g. from CLI flags.
type Override func(*Config)

func Load(path string, overrides ...Override) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, overrides...)
}

// Parse decodes YAML, applies overrides and defaults, and validates the result.
func Parse(raw []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		if o != nil {
			o(&cfg)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Remote.Kind == "" {
		c.Remote.Kind = RemoteHTTP
	}
	if c.Remote.Timeout <= 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Location.FixTimeout == 0 {
		c.Location.FixTimeout = 5 * time.Second
	}
	if c.Location.StaleAfter <= 0 {
		c.Location.StaleAfter = 5 * time.Second
	}
	if c.Motion.Source == "" {
		c.Motion.Source = SourceNone
	}
	if c.Motion.WindowSize <= 0 {
		c.Motion.WindowSize = 50
	}
	if c.Motion.EmitPolicy == "" {
		c.Motion.EmitPolicy = "on_fix"
	}
	if c.Motion.RateHz <= 0 {
		c.Motion.RateHz = 10
	}
	c.Sync = c.Sync.WithDefaults()
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9110"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	switch c.Location.Source {
	case SourceNMEA:
		c.Location.NMEA.ApplyDefaults()
	case SourceSimulated:
		c.Location.Simulated.ApplyDefaults()
	}
	switch c.Motion.Source {
	case SourceOPCUA:
		c.Motion.OPCUA.ApplyDefaults()
	case SourceSimulated:
		c.Motion.Simulated.ApplyDefaults()
	}
	c.Connectivity.Probe.ApplyDefaults()
}

func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteHTTP:
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote.base_url is required for kind %q", RemoteHTTP)
		}
	case RemoteTimescale:
		if c.Remote.Timescale.ConnString == "" {
			return fmt.Errorf("remote.timescale.conn_string is required for kind %q", RemoteTimescale)
		}
	default:
		return fmt.Errorf("remote.kind %q is not one of http, timescale", c.Remote.Kind)
	}
	if ts := c.Remote.Timescale; ts.Migrate && !usesDefaultTables(ts) {
		return fmt.Errorf("remote.timescale.migrate only manages the default tables; use ensure_schema with custom names")
	}

	switch c.Location.Source {
	case SourceNMEA:
		if err := c.Location.NMEA.Validate(); err != nil {
			return fmt.Errorf("location.nmea: %w", err)
		}
	case SourceSimulated, SourceNone:
	case "":
		return fmt.Errorf("location.source is required")
	default:
		return fmt.Errorf("location.source %q is not one of nmea, simulated, none", c.Location.Source)
	}

	switch c.Motion.Source {
	case SourceOPCUA:
		if err := c.Motion.OPCUA.Validate(); err != nil {
			return fmt.Errorf("motion.opcua: %w", err)
		}
	case SourceSimulated, SourceNone:
	default:
		return fmt.Errorf("motion.source %q is not one of opcua, simulated, none", c.Motion.Source)
	}

	switch c.Motion.EmitPolicy {
	case "on_fix", "fixed_rate":
	default:
		return fmt.Errorf("motion.emit_policy %q is not one of on_fix, fixed_rate", c.Motion.EmitPolicy)
	}

	if c.Sync.Tick.MaxAttempts != 1 {
		return fmt.Errorf("sync.tick.max_attempts must be 1: a failed tick is retried by the next tick")
	}

	if c.Location.MaxFixAge < 0 || c.Location.FixTimeout < 0 {
		return fmt.Errorf("location durations must not be negative")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}

func usesDefaultTables(ts TimescaleConfig) bool {
	return (ts.SessionsTable == "" || ts.SessionsTable == sink.DefaultSessionsTable) &&
		(ts.PointsTable == "" || ts.PointsTable == sink.DefaultPointsTable)
}

// LocationOptions maps the location section onto the tracker options.
func (c *Config) LocationOptions() ports.LocationOptions {
	return ports.LocationOptions{
		HighAccuracy: c.Location.HighAccuracy,
		MaxFixAge:    c.Location.MaxFixAge,
		FixTimeout:   c.Location.FixTimeout,
	}
}
