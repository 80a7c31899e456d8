package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
// Configuration is loaded from a JSON, YAML or TOML file and then
// overridden from SKYTRACK_* environment variables.
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Telescope TelescopeConfig `json:"telescope" mapstructure:"telescope"`
	Resolver  ResolverConfig  `json:"resolver" mapstructure:"resolver"`
	Auth      AuthConfig      `json:"auth" mapstructure:"auth"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" mapstructure:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" mapstructure:"host"`

	// AllowedOrigins lists CORS origins for the control API
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// DatabaseConfig contains activity history storage settings.
type DatabaseConfig struct {
	// Enabled turns activity history recording on
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Driver is the database driver (postgres, sqlite)
	Driver string `json:"driver" mapstructure:"driver"`

	// Host is the database server hostname
	Host string `json:"host" mapstructure:"host"`

	// Port is the database server port
	Port int `json:"port" mapstructure:"port"`

	// Database is the database name
	Database string `json:"database" mapstructure:"database"`

	// Username for database authentication
	Username string `json:"username" mapstructure:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password" mapstructure:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" mapstructure:"ssl_mode"`

	// Path is the database file for the sqlite driver
	Path string `json:"path" mapstructure:"path"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" mapstructure:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" mapstructure:"max_idle_conns"`
}

// TelescopeConfig contains ASCOM Alpaca mount settings.
type TelescopeConfig struct {
	// BaseURL is the Alpaca server address (e.g., "http://192.168.1.100:11111")
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// DeviceNumber is the Alpaca device number (typically 0)
	DeviceNumber int `json:"device_number" mapstructure:"device_number"`

	// MountType is either "altaz" or "equatorial"
	MountType string `json:"mount_type" mapstructure:"mount_type"`

	// Simulate replaces the Alpaca mount with an in-process simulator
	Simulate bool `json:"simulate" mapstructure:"simulate"`

	// StepsPerDegree converts bump steps into axis motion
	StepsPerDegree float64 `json:"steps_per_degree" mapstructure:"steps_per_degree"`

	// GuideRate is the axis rate used for bumps in degrees per second
	GuideRate float64 `json:"guide_rate" mapstructure:"guide_rate"`

	// PollIntervalMillis is how often slewing/tracking state is polled
	PollIntervalMillis int `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`

	// SlewTimeoutSeconds bounds a single slew; exceeding it is a motor fault
	SlewTimeoutSeconds int `json:"slew_timeout_seconds" mapstructure:"slew_timeout_seconds"`

	// TrackRefreshSeconds is how often moving targets are re-resolved while tracking
	TrackRefreshSeconds int `json:"track_refresh_seconds" mapstructure:"track_refresh_seconds"`

	// TrackToleranceArcmin is the drift that triggers a re-point while tracking
	TrackToleranceArcmin float64 `json:"track_tolerance_arcmin" mapstructure:"track_tolerance_arcmin"`

	// ConnectRetries is the number of connection attempts at startup
	ConnectRetries int `json:"connect_retries" mapstructure:"connect_retries"`
}

// ResolverConfig contains the target name resolution services.
type ResolverConfig struct {
	// SesameURL is the CDS Sesame name resolver endpoint
	SesameURL string `json:"sesame_url" mapstructure:"sesame_url"`

	// MinorPlanetURL is the JPL Horizons API endpoint used for asteroids and comets
	MinorPlanetURL string `json:"minor_planet_url" mapstructure:"minor_planet_url"`

	// TimeoutSeconds bounds every external lookup
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`

	// RequestsPerSecond limits calls to each external service
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	// Enabled requires a bearer token on control endpoints
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// JWTSecret signs issued tokens (should be loaded from environment)
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret"`

	// TokenHours is how long issued tokens stay valid
	TokenHours int `json:"token_hours" mapstructure:"token_hours"`

	// Users are the accounts allowed to request tokens
	Users []UserConfig `json:"users" mapstructure:"users"`
}

// UserConfig is a statically configured API account.
type UserConfig struct {
	Username string `json:"username" mapstructure:"username"`

	// PasswordHash is a bcrypt hash of the password
	PasswordHash string `json:"password_hash" mapstructure:"password_hash"`

	// Role is one of admin, observer, viewer
	Role string `json:"role" mapstructure:"role"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error
	Level string `json:"level" mapstructure:"level"`

	// JSON switches from console output to JSON lines
	JSON bool `json:"json" mapstructure:"json"`
}

// Load reads configuration from a JSON, YAML or TOML file.
// If the file doesn't exist, returns a default configuration.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Driver:       "sqlite",
			Host:         "localhost",
			Port:         5432,
			Database:     "skytrack",
			Username:     "skytrack",
			SSLMode:      "disable",
			Path:         "data/skytrack.db",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Telescope: TelescopeConfig{
			BaseURL:              "http://localhost:11111",
			DeviceNumber:         0,
			MountType:            "equatorial",
			Simulate:             false,
			StepsPerDegree:       3200.0, // 200-step motor, 16 microsteps, 1:1 worm per degree
			GuideRate:            0.5,
			PollIntervalMillis:   250,
			SlewTimeoutSeconds:   180,
			TrackRefreshSeconds:  60,
			TrackToleranceArcmin: 2.0,
			ConnectRetries:       5,
		},
		Resolver: ResolverConfig{
			SesameURL:         "https://cds.unistra.fr/cgi-bin/nph-sesame",
			MinorPlanetURL:    "https://ssd.jpl.nasa.gov/api/horizons.api",
			TimeoutSeconds:    10,
			RequestsPerSecond: 1.0,
		},
		Auth: AuthConfig{
			Enabled:    false,
			TokenHours: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Telescope.MountType) {
	case "altaz", "equatorial":
	default:
		return fmt.Errorf("telescope.mount_type must be altaz or equatorial, got %q", c.Telescope.MountType)
	}
	if c.Telescope.StepsPerDegree <= 0 {
		return fmt.Errorf("telescope.steps_per_degree must be positive")
	}
	if c.Telescope.GuideRate <= 0 {
		return fmt.Errorf("telescope.guide_rate must be positive")
	}
	if c.Telescope.PollIntervalMillis <= 0 {
		return fmt.Errorf("telescope.poll_interval_ms must be positive")
	}
	if c.Resolver.TimeoutSeconds <= 0 {
		return fmt.Errorf("resolver.timeout_seconds must be positive")
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
		}
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

// PollInterval returns the mount polling interval.
func (cfg TelescopeConfig) PollInterval() time.Duration {
	return time.Duration(cfg.PollIntervalMillis) * time.Millisecond
}

// SlewTimeout returns the per-slew time budget (0 = unbounded).
func (cfg TelescopeConfig) SlewTimeout() time.Duration {
	return time.Duration(cfg.SlewTimeoutSeconds) * time.Second
}

// TrackRefresh returns how often moving targets are re-resolved.
func (cfg TelescopeConfig) TrackRefresh() time.Duration {
	return time.Duration(cfg.TrackRefreshSeconds) * time.Second
}

// Timeout returns the external lookup time budget.
func (cfg ResolverConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() error {
	if port := os.Getenv("SKYTRACK_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("SKYTRACK_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if dbDriver := os.Getenv("SKYTRACK_DB_DRIVER"); dbDriver != "" {
		c.Database.Driver = dbDriver
	}
	if telescopeURL := os.Getenv("SKYTRACK_TELESCOPE_URL"); telescopeURL != "" {
		c.Telescope.BaseURL = telescopeURL
	}
	if sim := os.Getenv("SKYTRACK_SIMULATE"); sim != "" {
		v, err := strconv.ParseBool(sim)
		if err != nil {
			return fmt.Errorf("invalid SKYTRACK_SIMULATE %q: %w", sim, err)
		}
		c.Telescope.Simulate = v
	}
	if secret := os.Getenv("SKYTRACK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if level := os.Getenv("SKYTRACK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}
