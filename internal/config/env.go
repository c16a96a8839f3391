package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads configuration from environment variables
// Parameters:
// - configDir: Directory containing config files (or empty for ~/.edusync)
// - configFilePath: Path to .env file (or empty for <configDir>/.env)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".edusync")

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	// ENV_FILE_PATH points at a custom .env file
	if envFilePath := getEnvString("ENV_FILE_PATH", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		_ = godotenv.Load() // current directory fallback, missing file is fine
	}

	cfg.Environment = getEnvString("EDUSYNC_ENV", EnvDevelopment)

	cfg.Server = ServerConfig{
		URL:        getEnvString("EDUSYNC_SERVER_URL", "http://localhost:5000"),
		Token:      getEnvString("EDUSYNC_SERVER_TOKEN", ""),
		UserID:     getEnvString("EDUSYNC_SERVER_USER_ID", ""),
		DeviceName: getEnvString("EDUSYNC_SERVER_DEVICE_NAME", ""),
		Timeout:    getEnvDuration("EDUSYNC_SERVER_TIMEOUT", 15*time.Second),
		MaxRetries: getEnvInt("EDUSYNC_SERVER_MAX_RETRIES", 1),
	}

	cfg.Push = PushConfig{
		URL:          getEnvString("EDUSYNC_PUSH_URL", "http://localhost:5000/realtime"),
		Transports:   getEnvList("EDUSYNC_PUSH_TRANSPORTS", nil),
		Upgrade:      getEnvBool("EDUSYNC_PUSH_UPGRADE", true),
		MaxAttempts:  getEnvInt("EDUSYNC_PUSH_MAX_ATTEMPTS", 10),
		InitialDelay: getEnvDuration("EDUSYNC_PUSH_INITIAL_DELAY", time.Second),
		MaxDelay:     getEnvDuration("EDUSYNC_PUSH_MAX_DELAY", 5*time.Second),
		PollTimeout:  getEnvDuration("EDUSYNC_PUSH_POLL_TIMEOUT", 25*time.Second),
		ProbeTimeout: getEnvDuration("EDUSYNC_PUSH_PROBE_TIMEOUT", 5*time.Second),
	}

	cfg.Sync = SyncConfig{
		Interval:           getEnvDuration("EDUSYNC_SYNC_INTERVAL", 30*time.Second),
		PullTimeout:        getEnvDuration("EDUSYNC_SYNC_PULL_TIMEOUT", 10*time.Second),
		RequestsPerSecond:  getEnvFloat("EDUSYNC_SYNC_REQUESTS_PER_SECOND", 2),
		Burst:              getEnvInt("EDUSYNC_SYNC_BURST", 4),
		MessageEvents:      getEnvList("EDUSYNC_SYNC_MESSAGE_EVENTS", []string{"newMessage", "conversationUpdated"}),
		NotificationEvents: getEnvList("EDUSYNC_SYNC_NOTIFICATION_EVENTS", []string{"newNotification"}),
		ReadReceiptEvent:   getEnvString("EDUSYNC_SYNC_READ_RECEIPT_EVENT", "messagesRead"),
		ReadReceiptField:   getEnvString("EDUSYNC_SYNC_READ_RECEIPT_FIELD", "userId"),
	}

	cfg.Upload = UploadConfig{
		ClearDelay:    getEnvDuration("EDUSYNC_UPLOAD_CLEAR_DELAY", 1500*time.Millisecond),
		GuardMessage:  getEnvString("EDUSYNC_UPLOAD_GUARD_MESSAGE", "Upload in progress. Leaving now will cancel it."),
		ConfirmWindow: getEnvDuration("EDUSYNC_UPLOAD_CONFIRM_WINDOW", 3*time.Second),
	}

	cfg.Database = DatabaseConfig{
		Path:         getEnvString("EDUSYNC_DB_PATH", filepath.Join(configDir, "edusync.db")),
		JournalMode:  getEnvString("EDUSYNC_DB_JOURNAL_MODE", "WAL"),
		BusyTimeout:  getEnvInt("EDUSYNC_DB_BUSY_TIMEOUT", 5000),
		ForeignKeys:  getEnvBool("EDUSYNC_DB_FOREIGN_KEYS", true),
		ConnMaxLife:  getEnvDuration("EDUSYNC_DB_CONN_MAX_LIFE", 5*time.Minute),
		QueryTimeout: getEnvDuration("EDUSYNC_DB_QUERY_TIMEOUT", 10*time.Second),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("EDUSYNC_LOG_LEVEL", "info"),
		Format:     getEnvString("EDUSYNC_LOG_FORMAT", "text"),
		Output:     getEnvString("EDUSYNC_LOG_OUTPUT", filepath.Join(configDir, "edusync.log")),
		AddSource:  getEnvBool("EDUSYNC_LOG_ADD_SOURCE", true),
		TimeFormat: getTimeFormat(getEnvString("EDUSYNC_LOG_TIME_FORMAT", "RFC3339")),
		MaxSizeMB:  getEnvInt("EDUSYNC_LOG_MAX_SIZE_MB", 10),
		MaxBackups: getEnvInt("EDUSYNC_LOG_MAX_BACKUPS", 3),
	}

	return cfg, cfg.Validate()
}

// getTimeFormat converts a named time format to its layout
func getTimeFormat(name string) string {
	switch name {
	case "RFC3339":
		return time.RFC3339
	case "RFC3339Nano":
		return time.RFC3339Nano
	case "Kitchen":
		return time.Kitchen
	case "StampMilli":
		return time.StampMilli
	case "DateTime":
		return time.DateTime
	default:
		return name
	}
}
