package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
remote:
  base_url: https://trails.example.com
  token: abc
location:
  source: nmea
  nmea:
    port: /dev/ttyUSB0
motion:
  source: opcua
  opcua:
    endpoint: opc.tcp://localhost:4840
    nodes:
      x: "ns=2;s=Accel.X"
      y: "ns=2;s=Accel.Y"
      z: "ns=2;s=Accel.Z"
sync:
  interval: 2s
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Remote.Kind != RemoteHTTP {
		t.Fatalf("expected default remote kind http, got %s", cfg.Remote.Kind)
	}
	if cfg.Sync.Interval != 2*time.Second {
		t.Fatalf("expected sync interval 2s from file, got %s", cfg.Sync.Interval)
	}
	if cfg.Sync.Tick.Timeout != 10*time.Second || cfg.Sync.Flush.Timeout != 15*time.Second {
		t.Fatalf("expected default tick/flush timeouts, got %s/%s", cfg.Sync.Tick.Timeout, cfg.Sync.Flush.Timeout)
	}
	if cfg.Sync.Flush.MaxAttempts != 3 || cfg.Sync.Flush.Delay != 2*time.Second {
		t.Fatalf("expected default flush retries, got %+v", cfg.Sync.Flush)
	}
	if cfg.Location.FixTimeout != 5*time.Second {
		t.Fatalf("expected default fix timeout 5s, got %s", cfg.Location.FixTimeout)
	}
	if cfg.Location.NMEA.BaudRate != 9600 {
		t.Fatalf("expected default baud 9600, got %d", cfg.Location.NMEA.BaudRate)
	}
	if cfg.Motion.WindowSize != 50 || cfg.Motion.EmitPolicy != "on_fix" || cfg.Motion.RateHz != 10 {
		t.Fatalf("unexpected motion defaults %+v", cfg.Motion)
	}
	if cfg.Motion.OPCUA.Nodes.Z != "ns=2;s=Accel.Z" {
		t.Fatalf("expected z node, got %q", cfg.Motion.OPCUA.Nodes.Z)
	}
	if cfg.Metrics.Addr != ":9110" {
		t.Fatalf("expected default metrics addr :9110, got %s", cfg.Metrics.Addr)
	}
	if cfg.Connectivity.Probe.Interval != 5*time.Second {
		t.Fatalf("expected default probe interval, got %s", cfg.Connectivity.Probe.Interval)
	}
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		want string
		data string
	}{
		{"remote.base_url", "location:\n  source: simulated\n"},
		{"conn_string", "remote:\n  kind: timescale\nlocation:\n  source: simulated\n"},
		{"location.source is required", "remote:\n  base_url: http://x\n"},
		{"emit_policy", "remote:\n  base_url: http://x\nlocation:\n  source: simulated\nmotion:\n  emit_policy: sometimes\n"},
		{"location.nmea", "remote:\n  base_url: http://x\nlocation:\n  source: nmea\n"},
		{"motion.source", "remote:\n  base_url: http://x\nlocation:\n  source: none\nmotion:\n  source: gyro\n"},
		{"sync.tick.max_attempts", "remote:\n  base_url: http://x\nlocation:\n  source: none\nsync:\n  tick:\n    max_attempts: 3\n"},
		{"default tables", "remote:\n  kind: timescale\n  timescale:\n    conn_string: postgres://db/trail\n    points_table: pts\n    migrate: true\nlocation:\n  source: none\n"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.data))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
		}
	}
}

func TestStaticConnectivity(t *testing.T) {
	cfg, err := Parse([]byte("remote:\n  base_url: http://x\nlocation:\n  source: simulated\nconnectivity:\n  static: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Connectivity.Static == nil || *cfg.Connectivity.Static {
		t.Fatalf("expected static offline override")
	}
	if cfg.Location.Simulated.SpeedMPS != 1.4 {
		t.Fatalf("expected simulated walk defaults, got %+v", cfg.Location.Simulated)
	}
}

func TestOverridesRunBeforeValidation(t *testing.T) {
	withURL := func(c *Config) { c.Remote.BaseURL = "https://trails.example.com" }

	cfg, err := Parse([]byte("location:\n  source: none\n"), withURL, nil)
	if err != nil {
		t.Fatalf("parse with override: %v", err)
	}
	if cfg.Remote.BaseURL != "https://trails.example.com" {
		t.Fatalf("expected override to win, got %q", cfg.Remote.BaseURL)
	}
}
