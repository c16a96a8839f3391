package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// Global configuration instance
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Get returns the global configuration instance
// If the configuration has not been initialized, it will return an error
func Get() (*Config, error) {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	return globalConfig, nil
}

// Set sets the global configuration instance
func Set(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()

	globalConfig = cfg
}

// Deployment environments. They select the push transport order.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config represents the complete application configuration
type Config struct {
	Environment string // development or production
	Server      ServerConfig
	Push        PushConfig
	Sync        SyncConfig
	Upload      UploadConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	configDir   string
}

// ServerConfig holds the REST backend connection
type ServerConfig struct {
	URL        string        // REST API base URL
	Token      string        // Bearer token
	UserID     string        // Current user, matched against read receipts
	DeviceName string        // Device name for identification
	Timeout    time.Duration // Request timeout
	MaxRetries int           // Retries for idempotent GETs
}

// PushConfig holds the push channel connection policy
type PushConfig struct {
	URL          string        // Push endpoint, http(s) or ws(s)
	Transports   []string      // Explicit transport order; empty derives it from Environment
	Upgrade      bool          // Probe websocket after connecting over polling
	MaxAttempts  int           // Reconnect attempts before giving up
	InitialDelay time.Duration // First reconnect delay
	MaxDelay     time.Duration // Reconnect delay ceiling
	PollTimeout  time.Duration // Long-poll request timeout
	ProbeTimeout time.Duration // Upgrade probe round trip timeout
}

// SyncConfig holds the unread counter synchronisation policy
type SyncConfig struct {
	Interval           time.Duration // Fallback re-pull period
	PullTimeout        time.Duration // Timeout of one authoritative pull
	RequestsPerSecond  float64       // Pull pacing, 0 disables it
	Burst              int
	MessageEvents      []string // Events that re-pull the messages counter
	NotificationEvents []string // Events that re-pull the notifications counter
	ReadReceiptEvent   string   // Event carrying a target user id
	ReadReceiptField   string   // Payload field holding that id
}

// UploadConfig holds the upload tracker settings
type UploadConfig struct {
	ClearDelay    time.Duration // How long 100% stays visible
	GuardMessage  string        // Shown when leaving during an upload
	ConfirmWindow time.Duration // Second interrupt within this window cancels the upload
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path         string        // Path to the SQLite database file
	JournalMode  string        // Journal mode (WAL recommended)
	BusyTimeout  int           // Busy timeout in milliseconds
	ForeignKeys  bool          // Whether to enforce foreign key constraints
	ConnMaxLife  time.Duration // Maximum connection lifetime
	QueryTimeout time.Duration // Query timeout
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Output     string // stdout, stderr, or file path
	AddSource  bool   // Include source code position in logs
	TimeFormat string // Time format for logs (empty uses RFC3339)
	MaxSizeMB  int    // Rotate the log file past this size
	MaxBackups int    // Rotated files to keep
}

// New returns a new empty Config
func New() *Config {
	return &Config{}
}

// ConfigDir returns the directory the configuration was loaded from
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("invalid environment: %q (must be %s or %s)", c.Environment, EnvDevelopment, EnvProduction)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validatePush(); err != nil {
		return fmt.Errorf("push config: %w", err)
	}

	if err := c.validateSync(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.validateUpload(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// TransportOrder returns the push transport preference. An explicit list wins;
// otherwise development prefers websocket first and production starts on
// polling and upgrades later.
func (c *Config) TransportOrder() []string {
	if len(c.Push.Transports) > 0 {
		return c.Push.Transports
	}
	if c.Environment == EnvProduction {
		return []string{"polling", "websocket"}
	}
	return []string{"websocket", "polling"}
}

// ParseLogLevel parses a log level string to a slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return slog.Level(9999)
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validateServer() error {
	if c.Server.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.Server.URL); err != nil {
		return fmt.Errorf("invalid url %q: %w", c.Server.URL, err)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Server.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	return nil
}

func (c *Config) validatePush() error {
	if c.Push.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.Push.URL); err != nil {
		return fmt.Errorf("invalid url %q: %w", c.Push.URL, err)
	}

	for _, t := range c.Push.Transports {
		if t != "websocket" && t != "polling" {
			return fmt.Errorf("unknown transport: %s", t)
		}
	}

	if c.Push.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}

	if c.Push.InitialDelay <= 0 || c.Push.MaxDelay <= 0 {
		return fmt.Errorf("reconnect delays must be positive")
	}

	if c.Push.MaxDelay < c.Push.InitialDelay {
		return fmt.Errorf("max_delay must not be below initial_delay")
	}

	if c.Push.PollTimeout <= 0 {
		return fmt.Errorf("poll_timeout must be positive")
	}

	if c.Push.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Sync.PullTimeout <= 0 {
		return fmt.Errorf("pull_timeout must be positive")
	}
	if c.Sync.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}
	if c.Sync.RequestsPerSecond > 0 && c.Sync.Burst <= 0 {
		return fmt.Errorf("burst must be positive when pacing is enabled")
	}
	if len(c.Sync.MessageEvents) == 0 && len(c.Sync.NotificationEvents) == 0 {
		return fmt.Errorf("at least one resync event is required")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.ClearDelay < 0 {
		return fmt.Errorf("clear_delay cannot be negative")
	}
	if c.Upload.ConfirmWindow <= 0 {
		return fmt.Errorf("confirm_window must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Database.Path != ":memory:" {
		dir := filepath.Dir(c.Database.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory for database: %w", err)
		}
	}

	if c.Database.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive")
	}

	if c.Database.ConnMaxLife <= 0 {
		return fmt.Errorf("connection max life must be positive")
	}

	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}

	return nil
}

func (c *Config) validateLogging() error {
	level := strings.ToLower(c.Logging.Level)
	if level != "debug" && level != "info" && level != "warn" && level != "error" && level != "none" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	format := strings.ToLower(c.Logging.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// getEnvString returns a string from the environment variable
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns an int from the environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool returns a bool from the environment variable
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration returns a time.Duration from the environment variable
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvFloat returns a float64 from the environment variable
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated list from the environment variable.
// Blank entries and entries starting with # are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" && !strings.HasPrefix(item, "#") {
			out = append(out, item)
		}
	}
	return out
}
