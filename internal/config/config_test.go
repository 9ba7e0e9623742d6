package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("default cache backend = %q", cfg.Cache.Backend)
	}
	if cfg.Engine.MaxLimit != 1000 || cfg.Engine.DefaultLimit != 25 {
		t.Errorf("default engine limits = %+v", cfg.Engine)
	}
	if cfg.Database.DBName != "backoffice" {
		t.Errorf("default dbname = %q", cfg.Database.DBName)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
database:
  host: db.internal
  dbname: erp
cache:
  backend: badger
  path: /var/lib/backoffice/cache
engine:
  max_limit: 500
  cache_ttl: 30s
log_level: debug
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.DBName != "erp" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Cache.Backend != "badger" || cfg.Cache.Path != "/var/lib/backoffice/cache" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Engine.MaxLimit != 500 {
		t.Errorf("engine max limit = %d", cfg.Engine.MaxLimit)
	}
	if cfg.Engine.CacheTTL != 30*time.Second {
		t.Errorf("engine cache ttl = %v", cfg.Engine.CacheTTL)
	}
	// Values absent from the file keep their defaults.
	if cfg.Database.User != "postgres" {
		t.Errorf("user should default, got %q", cfg.Database.User)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BACKOFFICE_DATABASE_PASSWORD", "s3cret")
	t.Setenv("BACKOFFICE_CACHE_BACKEND", "badger")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("env password not applied, got %q", cfg.Database.Password)
	}
	if cfg.Cache.Backend != "badger" {
		t.Errorf("env cache backend not applied, got %q", cfg.Cache.Backend)
	}
}
