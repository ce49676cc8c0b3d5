package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/database"
	"github.com/jengzang/memorymap-backend-go/internal/disclosure"
	"github.com/jengzang/memorymap-backend-go/internal/globe"
	"github.com/jengzang/memorymap-backend-go/internal/mapview"
	"github.com/jengzang/memorymap-backend-go/internal/viewport"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MEMORYMAP_"

// Note source kinds
const (
	SourceSQLite = "sqlite"
	SourceFile   = "file"
)

// Config is the application configuration
type Config struct {
	Server     ServerConfig           `koanf:"server"`
	Database   database.Config        `koanf:"database"`
	Source     SourceConfig           `koanf:"source"`
	Cluster    cluster.Options        `koanf:"cluster"`
	Globe      globe.Config           `koanf:"globe"`
	Disclosure disclosure.Config      `koanf:"disclosure"`
	Viewport   viewport.Config        `koanf:"viewport"`
	Views      mapview.RegistryConfig `koanf:"views"`
	Auth       AuthConfig             `koanf:"auth"`
	Log        LogConfig              `koanf:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            string        `koanf:"port"`
	Mode            string        `koanf:"mode"` // gin mode: debug, release or test
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second per client IP, 0 disables
	RateBurst       int           `koanf:"rate_burst"`
}

// SourceConfig selects where notes come from
type SourceConfig struct {
	Kind            string        `koanf:"kind"` // "sqlite" or "file"
	File            string        `koanf:"file"`
	Watch           bool          `koanf:"watch"`
	CachePath       string        `koanf:"cache_path"` // empty disables the local fallback
	RefreshInterval time.Duration `koanf:"refresh_interval"` // 0 disables periodic rebuilds
}

// AuthConfig holds the view token settings
type AuthConfig struct {
	ViewTokenSecret string        `koanf:"view_token_secret"`
	ViewTokenTTL    time.Duration `koanf:"view_token_ttl"`
}

// LogConfig selects the log format and level
type LogConfig struct {
	Mode  string `koanf:"mode"` // "prod" or "dev"
	Level string `koanf:"level"`
}

// Default returns the configuration used when nothing overrides it
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Database: database.Config{
			Path:         "./data/notes/notes.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Source: SourceConfig{
			Kind:      SourceSQLite,
			CachePath: "./data/cache/notes.json.zst",
		},
		Cluster:    cluster.DefaultOptions(),
		Globe:      globe.DefaultConfig(),
		Disclosure: disclosure.DefaultConfig(),
		Viewport:   viewport.DefaultConfig(),
		Views:      mapview.DefaultRegistryConfig(),
		Auth: AuthConfig{
			ViewTokenSecret: "your-secret-key-change-in-production",
			ViewTokenTTL:    24 * time.Hour,
		},
		Log: LogConfig{
			Mode:  "prod",
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and MEMORYMAP_* environment variables, in increasing precedence.
//
//	MEMORYMAP_SERVER_PORT         -> server.port
//	MEMORYMAP_CLUSTER_RADIUS_PX   -> cluster.radius_px
//	MEMORYMAP_SOURCE_CACHE_PATH   -> source.cache_path
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps MEMORYMAP_SECTION_FIELD_NAME to section.field_name
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// Validate rejects settings the engine cannot work with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Cluster.RadiusPx <= 0 {
		errs = append(errs, fmt.Errorf("cluster.radius_px must be positive, got %v", c.Cluster.RadiusPx))
	}
	if c.Cluster.MinZoom < 0 || c.Cluster.MinZoom > c.Cluster.MaxZoom {
		errs = append(errs, fmt.Errorf("cluster zoom range [%d, %d] is invalid", c.Cluster.MinZoom, c.Cluster.MaxZoom))
	}
	if c.Globe.RadiusPx <= 0 {
		errs = append(errs, fmt.Errorf("globe.radius_px must be positive, got %v", c.Globe.RadiusPx))
	}
	if c.Viewport.GlobeModeZoomFloor > c.Disclosure.SpiderfyZoomFloor {
		errs = append(errs, fmt.Errorf("viewport.globe_mode_zoom_floor (%d) is above disclosure.spiderfy_zoom_floor (%d)",
			c.Viewport.GlobeModeZoomFloor, c.Disclosure.SpiderfyZoomFloor))
	}
	if c.Disclosure.MaxFlyZoom < c.Viewport.GlobeModeZoomFloor {
		errs = append(errs, fmt.Errorf("disclosure.max_fly_zoom (%d) is below viewport.globe_mode_zoom_floor (%d)",
			c.Disclosure.MaxFlyZoom, c.Viewport.GlobeModeZoomFloor))
	}
	if c.Disclosure.BaseLeg <= 0 || c.Disclosure.LegPerMember < 0 || c.Disclosure.LegCap < 0 {
		errs = append(errs, errors.New("disclosure leg lengths must be positive"))
	}
	switch c.Source.Kind {
	case SourceSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite source"))
		}
	case SourceFile:
		if c.Source.File == "" {
			errs = append(errs, errors.New("source.file is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.kind %q", c.Source.Kind))
	}
	if c.Auth.ViewTokenSecret == "" {
		errs = append(errs, errors.New("auth.view_token_secret is required"))
	}

	return errors.Join(errs...)
}
