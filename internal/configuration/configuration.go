package configuration

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendORDS   = "ords"
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// EnvPrefix prefixes environment overrides, e.g. CHEQUEO_STORE_ORDS_URL.
const EnvPrefix = "CHEQUEO"

var validate = validator.New()

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Logger: logger component configuration
	Logger LoggerConfig `mapstructure:"logger"`
	// Server: HTTP server configuration
	Server ServerConfig `mapstructure:"server"`
	// Store: record store backend
	Store StoreConfig `mapstructure:"store"`
	// Audit: JSONL audit log of batch runs
	Audit AuditConfig `mapstructure:"audit"`
	// History: in-memory run history
	History HistoryConfig `mapstructure:"history"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level: log level: debug, info, warn, warning, error.
	// Value is case-insensitive but checked in lowercase.
	Level string `mapstructure:"level"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	// Address: address and port where the server will listen (e.g., ":8080").
	Address string `mapstructure:"address"`
	// ShutdownTimeout bounds graceful shutdown (default 10s).
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	// Backend: ords, sql or memory.
	Backend string     `mapstructure:"backend" validate:"required,oneof=ords sql memory"`
	ORDS    ORDSConfig `mapstructure:"ords"`
	SQL     SQLConfig  `mapstructure:"sql"`
	// Fixture: optional YAML file seeding the memory backend.
	Fixture string `mapstructure:"fixture"`
}

// ORDSConfig configures the Oracle REST Data Services client.
type ORDSConfig struct {
	// URL: base URL of the AutoREST schema, e.g. https://host/ords/admin.
	URL string `mapstructure:"url"`
	// Timeout: per request timeout (default 20s).
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// RateLimit: requests per second, 0 disables pacing.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// PageSize: rows requested per page (default 100).
	PageSize int `mapstructure:"page_size" validate:"gte=0,lte=10000"`
}

// SQLConfig configures the database/sql backend.
type SQLConfig struct {
	// Driver: mysql or sqlite.
	Driver string `mapstructure:"driver"`
	// DSN: driver specific data source name.
	DSN string `mapstructure:"dsn"`
}

// AuditConfig defines the audit log parameters.
type AuditConfig struct {
	// Audit file path (optional, empty disables the audit log)
	File string `mapstructure:"file"`
	// Maximal audit file size in megabytes (default 100)
	Size int `mapstructure:"size" validate:"gte=0"`
	// Number of rotated audit files (default 20)
	Amount int `mapstructure:"amount" validate:"gte=0"`
}

// HistoryConfig defines how many runs are kept per evaluation.
type HistoryConfig struct {
	// Length: runs kept per evaluation (default 10).
	Length int `mapstructure:"length" validate:"gte=0"`
	// TTL: evaluations without runs for longer are forgotten (default 1h).
	// Example: "5m", "1h", "24h".
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// Validate checks the correctness of the entire application configuration.
// Calls validation for each nested structure and returns the first detected error.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.History.Validate()
}

// Validate checks the correctness of the logger configuration.
// Supported values: debug, info, warn, warning, error (case-insensitive).
func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}

	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}

	return nil
}

// Validate checks the correctness of the server configuration.
func (n *ServerConfig) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if n.Address == "" {
		return errors.New("server.address: must be specified")
	}
	if n.ShutdownTimeout == 0 {
		n.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

// Validate checks the selected backend has what it needs and fills
// defaults.
func (s *StoreConfig) Validate() error {
	s.Backend = strings.ToLower(s.Backend)
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	switch s.Backend {
	case BackendORDS:
		return s.ORDS.Validate()
	case BackendSQL:
		return s.SQL.Validate()
	}
	return nil
}

// Validate checks the ORDS base URL and fills defaults.
func (o *ORDSConfig) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("store.ords: %w", err)
	}
	if o.URL == "" {
		return errors.New("store.ords.url: must be specified")
	}
	u, err := url.Parse(o.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("store.ords.url: invalid URL '%s'", o.URL)
	}
	if o.Timeout == 0 {
		o.Timeout = 20 * time.Second
	}
	if o.PageSize == 0 {
		o.PageSize = 100
	}
	return nil
}

// Validate checks the SQL driver and DSN.
func (q *SQLConfig) Validate() error {
	switch q.Driver {
	case "mysql", "sqlite":
	case "":
		return errors.New("store.sql.driver: must be specified")
	default:
		return fmt.Errorf("store.sql.driver: unsupported driver '%s'", q.Driver)
	}
	if q.DSN == "" {
		return errors.New("store.sql.dsn: must be specified")
	}
	return nil
}

// Validate audit parameters
func (a *AuditConfig) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if a.Amount == 0 {
		a.Amount = 20
	}
	if a.Size == 0 {
		a.Size = 100
	}
	return nil
}

// Validate history parameters
func (h *HistoryConfig) Validate() error {
	if err := validate.Struct(h); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if h.Length == 0 {
		h.Length = 10
	}
	if h.TTL == 0 {
		h.TTL = time.Hour
	}
	return nil
}

// LoadConfig loads configuration from the specified YAML file. A .env file
// in the working directory is loaded first when present; environment
// variables prefixed with CHEQUEO override file values
// (store.ords.url → CHEQUEO_STORE_ORDS_URL).
//
// Returns an error if the file is not found or inaccessible, has an
// invalid format, or one of the sections fails validation.
func LoadConfig(configPath string) (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
