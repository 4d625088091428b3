package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppmusicbot/ppmusicbot/internal/search"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "PPMUSIC_"

// Discord select menus accept at most this many options.
const maxMenuOptions = 25

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr       = ":8080"
	DefaultCatalogueTimeout = 15 * time.Second
	DefaultMenuMaxTracks    = 15
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment without overriding variables that are
// already set. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("no dotenv file found", "path", p)
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields of cfg from PPMUSIC_-prefixed environment
// variables (e.g. PPMUSIC_DISCORD_TOKEN). Unset variables leave the field
// untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment overrides: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	if cfg.Catalogue.Provider == "" {
		cfg.Catalogue.Provider = "kenobi"
	}
	if cfg.Catalogue.Timeout <= 0 {
		cfg.Catalogue.Timeout = DefaultCatalogueTimeout
	}
	if cfg.Catalogue.Burst <= 0 {
		cfg.Catalogue.Burst = 1
	}

	if cfg.Search.LowThreshold == 0 {
		cfg.Search.LowThreshold = search.DefaultLowThreshold
	}
	if cfg.Search.HighThreshold == 0 {
		cfg.Search.HighThreshold = search.DefaultHighThreshold
	}
	if cfg.Search.MaxSuggestions == 0 {
		cfg.Search.MaxSuggestions = search.DefaultMaxSuggestions
	}
	if cfg.Search.MenuMaxTracks == 0 {
		cfg.Search.MenuMaxTracks = DefaultMenuMaxTracks
	}
	if cfg.Search.MenuMaxOptions == 0 {
		cfg.Search.MenuMaxOptions = maxMenuOptions
	}

	if cfg.Telemetry.Driver == "" {
		cfg.Telemetry.Driver = DriverPostgres
	}
	if cfg.Telemetry.BatchSize == 0 {
		cfg.Telemetry.BatchSize = 10
	}
	if cfg.Telemetry.MaxRetries == 0 {
		cfg.Telemetry.MaxRetries = 5
	}
	if cfg.Telemetry.BaseTimeout == 0 {
		cfg.Telemetry.BaseTimeout = time.Second
	}

	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = DefaultResetTimeout
	}
}

// EngineConfig converts the search section into [search.Config].
func (s SearchConfig) EngineConfig() search.Config {
	return search.Config{
		LowThreshold:   s.LowThreshold,
		HighThreshold:  s.HighThreshold,
		MaxSuggestions: s.MaxSuggestions,
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set PPMUSIC_DISCORD_TOKEN)"))
	}

	// Catalogue
	if cfg.Catalogue.BaseURL == "" {
		errs = append(errs, errors.New("catalogue.base_url is required (or set PPMUSIC_CATALOGUE_BASE_URL)"))
	}
	if cfg.Catalogue.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("catalogue.rate_limit %v must not be negative", cfg.Catalogue.RateLimit))
	}

	// Search
	if err := cfg.Search.EngineConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if cfg.Search.MenuMaxOptions < 1 || cfg.Search.MenuMaxOptions > maxMenuOptions {
		errs = append(errs, fmt.Errorf("search.menu_max_options %d is out of range [1, %d]", cfg.Search.MenuMaxOptions, maxMenuOptions))
	}
	if cfg.Search.MenuMaxTracks < 1 || cfg.Search.MenuMaxTracks > cfg.Search.MenuMaxOptions {
		errs = append(errs, fmt.Errorf("search.menu_max_tracks %d is out of range [1, menu_max_options]", cfg.Search.MenuMaxTracks))
	}

	// Telemetry
	if !cfg.Telemetry.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.driver %q is invalid; valid values: postgres, sqlite", cfg.Telemetry.Driver))
	}
	if cfg.Telemetry.DSN == "" {
		errs = append(errs, errors.New("telemetry.dsn is required (or set PPMUSIC_DATABASE_DSN)"))
	}
	if cfg.Telemetry.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("telemetry.batch_size %d must be positive", cfg.Telemetry.BatchSize))
	}
	if cfg.Telemetry.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("telemetry.max_retries %d must be positive", cfg.Telemetry.MaxRetries))
	}
	if cfg.Telemetry.BaseTimeout < 0 {
		errs = append(errs, fmt.Errorf("telemetry.base_timeout %v must not be negative", cfg.Telemetry.BaseTimeout))
	}

	// Breaker
	if cfg.Breaker.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must be positive", cfg.Breaker.MaxFailures))
	}

	return errors.Join(errs...)
}
