package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.Concurrency != runtime.NumCPU() || cfg.CacheMB != 64 || cfg.Lang != "en" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Logs.Directory != filepath.Join("data", "logs") || cfg.Logs.MaxSizeMB != 25 {
		t.Fatalf("unexpected log defaults: %+v", cfg.Logs)
	}
}

func TestLoadConfigResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stations.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.yaml")
	body := "catalog: stations.json\nrules: missing.json\nlang: ja\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Catalog != filepath.Join(dir, "stations.json") {
		t.Fatalf("catalog = %q", cfg.Catalog)
	}
	if cfg.Rules != "missing.json" {
		t.Fatalf("rules = %q", cfg.Rules)
	}
	if cfg.Lang != "ja" {
		t.Fatalf("lang = %q", cfg.Lang)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("profiles: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
