package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDatasetDefaults(t *testing.T) {
	path := writeConfig(t, `
dataset:
  data_file: configs/dataset.txt
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenPort != 10000 || cfg.Server.HTTPPort != 8080 {
		t.Fatalf("ports = %d/%d, want 10000/8080", cfg.Server.ListenPort, cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Fatalf("ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Watcher.Debounce != 50*time.Millisecond {
		t.Fatalf("Debounce = %v, want 50ms", cfg.Watcher.Debounce)
	}
	if cfg.Bus.ReadTimeout != 0 {
		t.Fatalf("ReadTimeout = %v, want 0", cfg.Bus.ReadTimeout)
	}
	if cfg.Telemetry.Topic != "espaltherma/log" {
		t.Fatalf("Topic = %q", cfg.Telemetry.Topic)
	}
	if !strings.HasSuffix(cfg.Telemetry.ClientID, "-spoofer") {
		t.Fatalf("ClientID = %q", cfg.Telemetry.ClientID)
	}
	if cfg.OperatingMode() != types.ModeDataset || cfg.TableFile() != "configs/dataset.txt" {
		t.Fatalf("mode = %s, table = %s", cfg.OperatingMode(), cfg.TableFile())
	}
	if cfg.Reload.FailFast {
		t.Fatal("FailFast should default to false")
	}
}

func TestLoadTelemetryMode(t *testing.T) {
	path := writeConfig(t, `
mode:
  telemetry: true
telemetry:
  broker_url: tcp://broker:1883
  spoof_file: /etc/spoofer/spoof.txt
  qos: 1
reload:
  fail_fast: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OperatingMode() != types.ModeTelemetry || cfg.TableFile() != "/etc/spoofer/spoof.txt" {
		t.Fatalf("mode = %s, table = %s", cfg.OperatingMode(), cfg.TableFile())
	}
	if cfg.Telemetry.QoS != 1 || !cfg.Reload.FailFast {
		t.Fatalf("telemetry = %+v, reload = %+v", cfg.Telemetry, cfg.Reload)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPOOF_SERVER_LISTEN_PORT", "12000")
	t.Setenv("SPOOF_TELEMETRY_PASSWORD", "s3cret")

	path := writeConfig(t, `
server:
  listen_port: 10000
dataset:
  data_file: d.txt
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenPort != 12000 {
		t.Fatalf("ListenPort = %d, want 12000 from env", cfg.Server.ListenPort)
	}
	if cfg.Telemetry.Password != "s3cret" {
		t.Fatal("telemetry password not taken from env")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"dataset mode without data file", "mode:\n  telemetry: false\n"},
		{"telemetry mode without broker", "mode:\n  telemetry: true\ntelemetry:\n  spoof_file: s.txt\n"},
		{"telemetry mode without spoof file", "mode:\n  telemetry: true\ntelemetry:\n  broker_url: tcp://b:1883\n"},
		{"port out of range", "server:\n  listen_port: 70000\ndataset:\n  data_file: d.txt\n"},
		{"bad qos", "telemetry:\n  qos: 3\ndataset:\n  data_file: d.txt\n"},
		{"bad log level", "logging:\n  level: verbose\ndataset:\n  data_file: d.txt\n"},
		{"plain api key", "auth:\n  api_key_hashes: [\"hunter2\"]\ndataset:\n  data_file: d.txt\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), "config validation failed") {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, Database: "spoofer", User: "u", Password: "p"}
	want := "postgres://u:p@db:5433/spoofer?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "SPOOFER_TEST_JWT"}

	t.Setenv("SPOOFER_TEST_JWT", "")
	if a.IsProductionReady() {
		t.Fatal("development secret reported production ready")
	}

	t.Setenv("SPOOFER_TEST_JWT", strings.Repeat("k", 32))
	if got := a.GetJWTSecret(); got != strings.Repeat("k", 32) {
		t.Fatalf("GetJWTSecret = %q", got)
	}
	if !a.IsProductionReady() {
		t.Fatal("32 byte secret not production ready")
	}
}

func TestNewLogger(t *testing.T) {
	for _, l := range []LoggingConfig{{Level: "debug"}, {Level: "warn", Development: true}, {}} {
		logger, err := l.NewLogger()
		if err != nil {
			t.Fatalf("NewLogger(%+v): %v", l, err)
		}
		logger.Sync()
	}

	if _, err := (LoggingConfig{Level: "loud"}).NewLogger(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
