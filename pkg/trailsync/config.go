package trailsync

import (
	"github.com/ghalamif/TrailSync/internal/adapters/netprobe"
	"github.com/ghalamif/TrailSync/internal/adapters/nmea"
	"github.com/ghalamif/TrailSync/internal/adapters/opcua"
	"github.com/ghalamif/TrailSync/internal/adapters/simulated"
	"github.com/ghalamif/TrailSync/internal/app/config"
	"github.com/ghalamif/TrailSync/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// RemoteConfig selects and configures the remote session store.
	RemoteConfig = config.RemoteConfig
	// TimescaleConfig configures the direct database store.
	TimescaleConfig = config.TimescaleConfig
	// LocationConfig selects the position source and its fix options.
	LocationConfig = config.LocationConfig
	// MotionConfig selects the accelerometer source and the fusion policy.
	MotionConfig = config.MotionConfig
	// ConnectivityConfig pins or probes reachability of the remote store.
	ConnectivityConfig = config.ConnectivityConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// LogConfig configures the zap logger.
	LogConfig = config.LogConfig
	// SyncPolicy controls the periodic tick and the final flush.
	SyncPolicy = ports.SyncPolicy
	// RetryPolicy bounds attempts, spacing and per-request timeout.
	RetryPolicy = ports.RetryPolicy
	// NMEAConfig describes a serial GNSS receiver.
	NMEAConfig = nmea.Config
	// OPCUAConfig describes an OPC UA accelerometer.
	OPCUAConfig = opcua.Config
	// OPCUAAxisNodes names the node of each acceleration axis.
	OPCUAAxisNodes = opcua.AxisNodes
	// WalkConfig drives the simulated location source.
	WalkConfig = simulated.WalkConfig
	// GaitConfig drives the simulated motion source.
	GaitConfig = simulated.GaitConfig
	// ProbeConfig tunes the reachability probe.
	ProbeConfig = netprobe.Config
)

// Source and store kinds.
const (
	RemoteHTTP      = config.RemoteHTTP
	RemoteTimescale = config.RemoteTimescale
	SourceNMEA      = config.SourceNMEA
	SourceOPCUA     = config.SourceOPCUA
	SourceSimulated = config.SourceSimulated
	SourceNone      = config.SourceNone
)

// ConfigOverride adjusts a decoded config before defaults and validation run.
type ConfigOverride = config.Override

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string, overrides ...ConfigOverride) (*Config, error) {
	return config.Load(path, overrides...)
}

// ParseConfig decodes, defaults and validates an in-memory YAML document.
func ParseConfig(raw []byte, overrides ...ConfigOverride) (*Config, error) {
	return config.Parse(raw, overrides...)
}
