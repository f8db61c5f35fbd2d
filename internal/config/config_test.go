package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(EnvPrefix+"CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Path != "data/patient_data_cleaned.csv" {
		t.Fatalf("unexpected dataset path %q", cfg.Dataset.Path)
	}
	if cfg.Dataset.PreviewRows != 100 {
		t.Fatalf("expected 100 preview rows, got %d", cfg.Dataset.PreviewRows)
	}
	if cfg.Cache.Backend != "memory" || !cfg.Cache.Enabled {
		t.Fatalf("expected in-memory cache enabled by default, got %+v", cfg.Cache)
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "dashboard.yaml")
	content := []byte(`
server:
  address: ":9000"
  gracefulTimeout: 3s
dataset:
  path: /srv/patients.xlsx
  previewRows: 25
cache:
  backend: valkey
  addr: localhost:6379
  exportTTL: 1m
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvPrefix+"LOG_LEVEL", "debug")
	t.Setenv(EnvPrefix+"CACHE_EXPORT_TTL", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.Server.GracefulTimeout != 3*time.Second {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("expected default metrics address to survive, got %q", cfg.Server.MetricsAddress)
	}
	if cfg.Dataset.Path != "/srv/patients.xlsx" || cfg.Dataset.PreviewRows != 25 {
		t.Fatalf("unexpected dataset config %+v", cfg.Dataset)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
	if cfg.Cache.ExportTTL != 90*time.Second {
		t.Fatalf("expected env export ttl, got %s", cfg.Cache.ExportTTL)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv(EnvPrefix+"CONFIG", "")
	t.Setenv(EnvPrefix+"DATASET_PATH", "")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PATIENT_DASHBOARD_DATASET_PATH=from-dotenv.csv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	os.Unsetenv(EnvPrefix + "DATASET_PATH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Path != "from-dotenv.csv" {
		t.Fatalf("expected dataset path from .env, got %q", cfg.Dataset.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsValkeyWithoutAddr(t *testing.T) {
	cfg := defaultConfig()
	cfg.Cache.Backend = "valkey"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	cfg.Cache.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled cache should not be validated: %v", err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
