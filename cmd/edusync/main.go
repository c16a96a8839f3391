package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/commands"
	"github.com/tildaslashalef/edusync/internal/loggy"
)

// Version information - populated at build time
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
	Author     = "unknown"
	Email      = "unknown"
)

// standalone commands run without an App
var standalone = map[string]bool{
	"init": true,
	"help": true,
	"h":    true,
}

func main() {
	cliApp := &cli.App{
		Name:  "edusync",
		Usage: "Real-time unread counters and uploads for the learning platform",
		Description: "edusync keeps unread message and notification counters in sync with the platform\n" +
			"over its push channel and uploads files with live progress.\n\n" +
			"Run 'edusync init' once, link your account and then start 'edusync watch'.",
		Version: fmt.Sprintf("%s (%s)", Version, CommitHash),
		Compiled: func() time.Time {
			t, err := time.Parse(time.RFC3339, BuildTime)
			if err != nil {
				return time.Now()
			}
			return t
		}(),
		Authors: []*cli.Author{
			{
				Name:  Author,
				Email: Email,
			},
		},
		Before: func(c *cli.Context) error {
			// one request id per invocation, sent with every REST call
			c.Context = loggy.WithRequestID(c.Context, loggy.NewRequestID())

			if c.NArg() == 0 || standalone[c.Args().First()] {
				return nil
			}

			// Initialize the application
			application, err := app.New()
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			c.App.Metadata = map[string]interface{}{
				"app": application,
			}

			return nil
		},
		After: func(c *cli.Context) error {
			// Gracefully shutdown the application
			if app, ok := c.App.Metadata["app"].(*app.App); ok {
				return app.Shutdown()
			}
			return nil
		},
		Commands: []*cli.Command{
			commands.WatchCommand(),
			commands.CountsCommand(),
			commands.NotificationsCommand(),
			commands.UploadCommand(),
			commands.SignalsCommand(),
			commands.AccountCommand(),
			commands.InitCommand(),
			commands.MigrateCommand(),
		},
	}

	// SIGINT stays with the upload guard
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
