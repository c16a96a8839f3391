package config

import (
	"context"
	"database/sql"

	"github.com/tildaslashalef/edusync/internal/loggy"
)

// SettingsService keeps persisted settings and the in-memory Config in step
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service backed by db
func NewSettingsService(db *sql.DB, config *Config, logger *loggy.Logger) *SettingsService {
	return NewSettingsServiceWithRepository(NewSQLSettingsRepository(db, logger), config, logger)
}

// NewSettingsServiceWithRepository creates a settings service over an existing repository
func NewSettingsServiceWithRepository(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// GetSetting retrieves a setting by key
func (s *SettingsService) GetSetting(ctx context.Context, key string) (string, error) {
	return s.repo.GetSetting(ctx, key)
}

// GetSettings retrieves multiple settings by prefix
func (s *SettingsService) GetSettings(ctx context.Context, prefix string) (map[string]string, error) {
	return s.repo.GetSettings(ctx, prefix)
}

// LoadServerSettings applies persisted server settings to the Config
func (s *SettingsService) LoadServerSettings(ctx context.Context) error {
	return LoadServerSettings(ctx, s.config, s.repo)
}

// SaveServerSettings persists the Config's server section
func (s *SettingsService) SaveServerSettings(ctx context.Context) error {
	return SaveServerSettings(ctx, s.config, s.repo)
}

// SetToken stores the API token, obfuscated
func (s *SettingsService) SetToken(ctx context.Context, token string) error {
	s.config.Server.Token = token
	return s.repo.SetSetting(ctx, KeyToken, token)
}

// SetServerURL stores the REST base URL
func (s *SettingsService) SetServerURL(ctx context.Context, url string) error {
	s.config.Server.URL = url
	return s.repo.SetSetting(ctx, KeyServerURL, url)
}

// SetUserID stores the current user id used to match read receipts
func (s *SettingsService) SetUserID(ctx context.Context, id string) error {
	s.config.Server.UserID = id
	return s.repo.SetSetting(ctx, KeyUserID, id)
}

// SetDeviceName stores the device name
func (s *SettingsService) SetDeviceName(ctx context.Context, name string) error {
	s.config.Server.DeviceName = name
	return s.repo.SetSetting(ctx, KeyDeviceName, name)
}

// Unlink forgets the stored token and user id
func (s *SettingsService) Unlink(ctx context.Context) error {
	for _, key := range []string{KeyToken, KeyUserID} {
		if err := s.repo.DeleteSetting(ctx, key); err != nil {
			return err
		}
	}
	s.config.Server.Token = ""
	s.config.Server.UserID = ""
	s.logger.Info("Account unlinked")
	return nil
}
