// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tildaslashalef/edusync/internal/bridge"
	"github.com/tildaslashalef/edusync/internal/config"
	"github.com/tildaslashalef/edusync/internal/counter"
	"github.com/tildaslashalef/edusync/internal/database"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/push"
	"github.com/tildaslashalef/edusync/internal/rest"
	"github.com/tildaslashalef/edusync/internal/upload"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

// Counter names
const (
	CounterMessages      = "messages"
	CounterNotifications = "notifications"
)

// journalRetention bounds how long journaled signals are kept
const journalRetention = 30 * 24 * time.Hour

// App represents one session with its collaborators. Apps share no state.
type App struct {
	Config        *config.Config
	Settings      *config.SettingsService
	API           *rest.Client
	Push          *push.Client
	Messages      *counter.Synchronizer
	Notifications *counter.Synchronizer
	Uploads       *upload.Tracker
	Signals       *bridge.Bridge
	Journal       *bridge.Journal

	db     *sql.DB
	logger *loggy.Logger

	mu           sync.Mutex
	started      bool
	cancelUpload context.CancelFunc
}

// Option adjusts how Build assembles the session
type Option func(*buildOptions)

type buildOptions struct {
	dialer   push.Dialer
	guardOut io.Writer
	guard    upload.Guard
}

// WithDialer replaces the push channel dialer
func WithDialer(d push.Dialer) Option {
	return func(o *buildOptions) { o.dialer = d }
}

// WithGuard replaces the interrupt guard installed during uploads
func WithGuard(g upload.Guard) Option {
	return func(o *buildOptions) { o.guard = g }
}

// WithGuardOutput sets where the interrupt guard prints its warning
func WithGuardOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.guardOut = w }
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"environment", cfg.Environment,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()
	db, err := database.Init(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	settings := config.NewSettingsService(db, cfg, loggy.GetGlobalLogger())
	if err := settings.LoadServerSettings(ctx); err != nil {
		loggy.Warn("Failed to load server settings from database", "error", err)
	}

	app, err := Build(cfg, db, loggy.GetGlobalLogger())
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	loggy.Info("Application initialized successfully")
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// Build assembles a session for cfg. db may be nil, which disables the
// settings service and the signal journal.
func Build(cfg *config.Config, db *sql.DB, logger *loggy.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = loggy.GetGlobalLogger()
	}

	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	transports, err := push.ParseTransports(cfg.TransportOrder())
	if err != nil {
		return nil, fmt.Errorf("failed to parse push transports: %w", err)
	}

	app := &App{
		Config: cfg,
		db:     db,
		logger: logger.With("comp", "app"),
	}

	if db != nil {
		app.Settings = config.NewSettingsService(db, cfg, logger)
		app.Journal = bridge.NewJournal(db, logger)
	}

	app.API = rest.NewClient(rest.Config{
		BaseURL:    cfg.Server.URL,
		Token:      cfg.Server.Token,
		Timeout:    cfg.Server.Timeout,
		MaxRetries: cfg.Server.MaxRetries,
	}, logger)

	app.Push = push.NewClient(push.Options{
		URL:          cfg.Push.URL,
		Token:        cfg.Server.Token,
		Transports:   transports,
		Upgrade:      cfg.Push.Upgrade,
		MaxAttempts:  cfg.Push.MaxAttempts,
		InitialDelay: cfg.Push.InitialDelay,
		MaxDelay:     cfg.Push.MaxDelay,
		PollTimeout:  cfg.Push.PollTimeout,
		ProbeTimeout: cfg.Push.ProbeTimeout,
		Dialer:       bo.dialer,
	}, logger)

	var limiter *rate.Limiter
	if cfg.Sync.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Sync.RequestsPerSecond), max(cfg.Sync.Burst, 1))
	}

	app.Messages = counter.New(counter.FetcherFunc(app.fetchUnreadMessages), app.Push, counter.Options{
		Name:   CounterMessages,
		Events: cfg.Sync.MessageEvents,
		ReadReceipt: &counter.ReadReceipt{
			Event:     cfg.Sync.ReadReceiptEvent,
			UserField: cfg.Sync.ReadReceiptField,
			UserID:    cfg.Server.UserID,
		},
		Interval:    cfg.Sync.Interval,
		PullTimeout: cfg.Sync.PullTimeout,
		Limiter:     limiter,
	}, logger)

	app.Notifications = counter.New(counter.FetcherFunc(app.fetchUnreadNotifications), app.Push, counter.Options{
		Name:        CounterNotifications,
		Events:      cfg.Sync.NotificationEvents,
		Interval:    cfg.Sync.Interval,
		PullTimeout: cfg.Sync.PullTimeout,
		Limiter:     limiter,
	}, logger)

	var recorder bridge.Recorder
	if app.Journal != nil {
		recorder = app.Journal
	}
	app.Signals = bridge.New(bridge.Options{
		Type:     bridge.TypeUploadCompleted,
		Recorder: recorder,
		Logger:   logger,
	})

	guard := bo.guard
	if guard == nil {
		out := bo.guardOut
		if out == nil {
			out = os.Stderr
		}
		guard = upload.NewSignalGuard(out, cfg.Upload.ConfirmWindow, app.CancelUpload)
	}

	app.Uploads = upload.NewTracker(upload.Options{
		ClearDelay:   cfg.Upload.ClearDelay,
		Guard:        guard,
		GuardMessage: cfg.Upload.GuardMessage,
		Signaler:     app.Signals,
		Logger:       logger,
	})

	return app, nil
}

func (a *App) fetchUnreadMessages(ctx context.Context) (int, error) {
	convs, err := a.API.ListConversations(ctx)
	if err != nil {
		return 0, err
	}
	return counter.SumUnread(convs, func(c rest.Conversation) int { return c.UnreadCount }), nil
}

func (a *App) fetchUnreadNotifications(ctx context.Context) (int, error) {
	notes, err := a.API.ListNotifications(ctx)
	if err != nil {
		return 0, err
	}
	return counter.CountWhere(notes, func(n rest.Notification) bool { return !n.IsRead }), nil
}

// Start connects the push channel and mounts both counters. Initial pulls
// that fail are logged; the counters keep 0 until the next pull succeeds.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.mu.Unlock()

	if err := a.Push.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect push channel: %w", err)
	}
	if err := a.Messages.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messages counter: %w", err)
	}
	if err := a.Notifications.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notifications counter: %w", err)
	}

	if a.Journal != nil {
		if _, err := a.Journal.Prune(ctx, time.Now().Add(-journalRetention)); err != nil {
			a.logger.Warn("Failed to prune signal journal", "error", err)
		}
	}

	a.logger.Info("Session started", "transports", a.Config.TransportOrder())
	return nil
}

// Resync pulls both counters now
func (a *App) Resync(ctx context.Context) error {
	return errors.Join(a.Messages.Resync(ctx), a.Notifications.Resync(ctx))
}

// MarkAllNotificationsRead resets the notifications counter optimistically,
// tells the server and then pulls the authoritative value
func (a *App) MarkAllNotificationsRead(ctx context.Context) error {
	a.Notifications.Reset()

	err := a.API.MarkAllNotificationsRead(ctx)
	if err != nil {
		a.logger.Warn("Failed to mark notifications read", "error", err)
	}

	// the pull restores the real count if the request failed
	_ = a.Notifications.Resync(ctx)
	return err
}

// Upload streams body to the server through the upload tracker. While it
// runs the interrupt guard is installed; confirming an interrupt cancels it.
func (a *App) Upload(ctx context.Context, meta upload.Meta, body io.Reader, size int64) (upload.ActiveUpload, *rest.UploadResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancelUpload = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.cancelUpload = nil
		a.mu.Unlock()
	}()

	var result *rest.UploadResult
	record, err := upload.Transfer(ctx, a.Uploads, meta, body, size, func(ctx context.Context, r io.Reader) error {
		res, err := a.API.UploadFile(ctx, rest.UploadMeta{Title: meta.Title, FileName: meta.FileName}, r, size)
		result = res
		return err
	})
	return record, result, err
}

// CancelUpload cancels the upload started by Upload, if any
func (a *App) CancelUpload() {
	a.mu.Lock()
	cancel := a.cancelUpload
	a.mu.Unlock()

	if cancel != nil {
		a.logger.Warn("Cancelling upload on user request")
		cancel()
	}
}

// UploadGuarded reports whether an unfinished upload holds the leave guard
func (a *App) UploadGuarded() bool {
	return a.Uploads.Guarded()
}

// RecentSignals lists journaled completion signals, newest first. Sessions
// without a database have no journal and return nothing.
func (a *App) RecentSignals(ctx context.Context, limit int) ([]bridge.Entry, error) {
	if a.Journal == nil {
		return nil, nil
	}
	return a.Journal.Recent(ctx, limit)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down application")

	a.Messages.Stop()
	a.Notifications.Stop()
	a.Uploads.Close()

	if err := a.Push.Close(); err != nil {
		a.logger.Error("Error closing push channel", "error", err)
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Error closing database connection", "error", err)
		}
	}

	return nil
}

// DB returns the session database, nil when running without one
func (a *App) DB() *sql.DB {
	return a.db
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
