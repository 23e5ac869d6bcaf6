package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Simulation.TickInterval != 10*time.Second {
		t.Errorf("tick interval = %v, want 10s", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.Jitter != 0.0005 {
		t.Errorf("jitter = %v, want 0.0005", cfg.Simulation.Jitter)
	}
	if cfg.Trip.HistoryLimit != 100 {
		t.Errorf("history limit = %d, want 100", cfg.Trip.HistoryLimit)
	}
	if cfg.Auth.Delay != 1500*time.Millisecond {
		t.Errorf("auth delay = %v, want 1.5s", cfg.Auth.Delay)
	}
	if cfg.Map.GeoIndex != "rtree" {
		t.Errorf("geo index = %q, want rtree", cfg.Map.GeoIndex)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka should be disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
simulation:
  tick_interval: 2s
  demo_vehicles: 5
trip:
  watch_timeout: 45s
map:
  geo_index: quadtree
kafka:
  enabled: true
  brokers: ["broker-1:9092", "broker-2:9092"]
`)

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Simulation.TickInterval != 2*time.Second {
		t.Errorf("tick interval = %v", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.DemoVehicles != 5 {
		t.Errorf("demo vehicles = %d", cfg.Simulation.DemoVehicles)
	}
	if cfg.Trip.WatchTimeout != 45*time.Second {
		t.Errorf("watch timeout = %v", cfg.Trip.WatchTimeout)
	}
	if cfg.Map.GeoIndex != "quadtree" {
		t.Errorf("geo index = %q", cfg.Map.GeoIndex)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "vehicle-locations" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero tick", "simulation:\n  tick_interval: 0s\n", "TickInterval"},
		{"bad index", "map:\n  geo_index: kdtree\n", "GeoIndex"},
		{"bad level", "log:\n  level: chatty\n", "Level"},
		{"kafka without brokers", "kafka:\n  enabled: true\n", "Brokers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(viper.New(), writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("loading a missing explicit config file should fail")
	}
}
