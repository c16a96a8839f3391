package config

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/ulid"
)

// Persisted setting keys. Values stored here override the environment.
const (
	KeyServerURL  = "server.url"
	KeyToken      = "server.token"
	KeyUserID     = "server.user_id"
	KeyDeviceName = "server.device_name"
)

const obfuscationMarker = "OBFS:"

// Settings represents a persistent setting in the database
type Settings struct {
	ID        string
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SettingsRepository defines operations for managing settings in the database
type SettingsRepository interface {
	// GetSetting retrieves a setting by key, empty when missing
	GetSetting(ctx context.Context, key string) (string, error)

	// GetSettings retrieves every setting whose key starts with prefix
	GetSettings(ctx context.Context, prefix string) (map[string]string, error)

	// SetSetting inserts or updates a setting
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting deletes a setting
	DeleteSetting(ctx context.Context, key string) error
}

// SQLSettingsRepository implements SettingsRepository using a SQL database
type SQLSettingsRepository struct {
	db      *sql.DB
	logger  *loggy.Logger
	builder sq.StatementBuilderType
}

// NewSQLSettingsRepository creates a new SQL settings repository
func NewSQLSettingsRepository(db *sql.DB, logger *loggy.Logger) *SQLSettingsRepository {
	return &SQLSettingsRepository{
		db:      db,
		logger:  logger,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// GetSetting retrieves a setting by key
func (r *SQLSettingsRepository) GetSetting(ctx context.Context, key string) (string, error) {
	query, args, err := r.builder.Select("value").
		From("settings").
		Where(sq.Eq{"key": key}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building get setting query: %w", err)
	}

	var value string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("executing get setting query: %w", err)
	}

	if key == KeyToken {
		return deobfuscateToken(value)
	}
	return value, nil
}

// GetSettings retrieves multiple settings by prefix
func (r *SQLSettingsRepository) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	query, args, err := r.builder.Select("key", "value").
		From("settings").
		Where(sq.Like{"key": prefix + "%"}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building get settings query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing get settings query: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}

		if key == KeyToken {
			value, err = deobfuscateToken(value)
			if err != nil {
				r.logger.Warn("Failed to deobfuscate token", "error", err)
				continue
			}
		}

		settings[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}

	return settings, nil
}

// SetSetting upserts a setting value
func (r *SQLSettingsRepository) SetSetting(ctx context.Context, key, value string) error {
	storeValue := value
	if key == KeyToken && value != "" {
		storeValue = obfuscateToken(value)
	}

	now := time.Now().UTC()
	query, args, err := r.builder.Insert("settings").
		Columns("id", "key", "value", "created_at", "updated_at").
		Values(ulid.SettingID(), key, storeValue, now, now).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing upsert setting query: %w", err)
	}

	return nil
}

// DeleteSetting deletes a setting
func (r *SQLSettingsRepository) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := r.builder.Delete("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete setting query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing delete setting query: %w", err)
	}

	return nil
}

// LoadServerSettings copies non-empty persisted server settings into cfg
func LoadServerSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	settings, err := repo.GetSettings(ctx, "server.")
	if err != nil {
		return fmt.Errorf("loading server settings: %w", err)
	}

	if v := settings[KeyServerURL]; v != "" {
		cfg.Server.URL = v
	}
	if v := settings[KeyToken]; v != "" {
		cfg.Server.Token = v
	}
	if v := settings[KeyUserID]; v != "" {
		cfg.Server.UserID = v
	}
	if v := settings[KeyDeviceName]; v != "" {
		cfg.Server.DeviceName = v
	}

	return nil
}

// SaveServerSettings persists the server section of cfg
func SaveServerSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	pairs := []struct{ key, value string }{
		{KeyServerURL, cfg.Server.URL},
		{KeyToken, cfg.Server.Token},
		{KeyUserID, cfg.Server.UserID},
		{KeyDeviceName, cfg.Server.DeviceName},
	}

	for _, p := range pairs {
		if err := repo.SetSetting(ctx, p.key, p.value); err != nil {
			return fmt.Errorf("saving %s: %w", p.key, err)
		}
	}

	return nil
}

// obfuscateToken keeps the token from being readable at a glance in the
// database file. It is not encryption.
func obfuscateToken(token string) string {
	return obfuscationMarker + base64.StdEncoding.EncodeToString([]byte(reverse(token)))
}

// deobfuscateToken reverses obfuscateToken; values without the marker pass through
func deobfuscateToken(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, obfuscationMarker)
	if !ok {
		return stored, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}

	return reverse(string(decoded)), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
