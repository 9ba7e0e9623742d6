// Package config loads application settings from an optional config.yaml
// plus environment overrides, viper-style.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opsgrid/backoffice/internal/db"
	"github.com/opsgrid/backoffice/internal/query"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// CacheConfig selects and sizes the query result cache.
type CacheConfig struct {
	// Backend is "memory" or "badger".
	Backend string
	// Path is the badger data directory; empty runs badger in memory.
	Path string
	// Capacity bounds the memory backend's entry count.
	Capacity int
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig
	Database db.Config
	Cache    CacheConfig
	Engine   query.Options
	LogLevel string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: db.DefaultConfig(),
		Cache: CacheConfig{
			Backend:  "memory",
			Capacity: 4096,
		},
		Engine:   query.DefaultOptions(),
		LogLevel: "info",
	}
}

// Load reads config.yaml from configPath when present and applies
// environment overrides (BACKOFFICE_DATABASE_HOST and so on). Missing
// files fall back to defaults.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"server.host", "server.port", "server.shutdown_timeout", "server.allowed_origins",
		"database.host", "database.port", "database.user", "database.password",
		"database.dbname", "database.sslmode", "database.max_conns", "database.min_conns",
		"cache.backend", "cache.path", "cache.capacity",
		"engine.max_limit", "engine.default_limit", "engine.max_or_clauses",
		"engine.enable_cache", "engine.cache_ttl", "engine.timeout",
		"log_level",
	} {
		v.BindEnv(key)
	}

	// Config file is optional; defaults + env carry a bare deployment.
	_ = v.ReadInConfig()

	if v.IsSet("server.host") {
		cfg.Server.Host = v.GetString("server.host")
	}
	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}
	if v.IsSet("database.min_conns") {
		cfg.Database.MinConns = v.GetInt32("database.min_conns")
	}

	if v.IsSet("cache.backend") {
		cfg.Cache.Backend = v.GetString("cache.backend")
	}
	if v.IsSet("cache.path") {
		cfg.Cache.Path = v.GetString("cache.path")
	}
	if v.IsSet("cache.capacity") {
		cfg.Cache.Capacity = v.GetInt("cache.capacity")
	}

	if v.IsSet("engine.max_limit") {
		cfg.Engine.MaxLimit = v.GetInt("engine.max_limit")
	}
	if v.IsSet("engine.default_limit") {
		cfg.Engine.DefaultLimit = v.GetInt("engine.default_limit")
	}
	if v.IsSet("engine.max_or_clauses") {
		cfg.Engine.MaxOrClauses = v.GetInt("engine.max_or_clauses")
	}
	if v.IsSet("engine.enable_cache") {
		cfg.Engine.EnableCache = v.GetBool("engine.enable_cache")
	}
	if v.IsSet("engine.cache_ttl") {
		cfg.Engine.CacheTTL = v.GetDuration("engine.cache_ttl")
	}
	if v.IsSet("engine.timeout") {
		cfg.Engine.Timeout = v.GetDuration("engine.timeout")
	}

	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	return cfg, nil
}
