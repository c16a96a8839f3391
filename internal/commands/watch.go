package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/commands/watch"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/upload"
)

// WatchCommand returns the CLI command running the live dashboard
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch unread counters and uploads live",
		Description: "Connects the push channel and keeps the unread message and notification " +
			"counters in sync. Optionally uploads a file while watching.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "upload",
				Aliases: []string{"u"},
				Usage:   "File to upload once the dashboard is running",
			},
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Title of the uploaded file",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	route := watch.NewRoute(watch.RouteEvents)
	model := watch.NewModel(c.Context, application, route, watch.Snapshot{
		Server:        application.Config.Server.URL,
		Device:        application.Config.Server.DeviceName,
		State:         application.Push.State(),
		Transport:     application.Push.Transport(),
		Messages:      application.Messages.Value(),
		Notifications: application.Notifications.Value(),
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(c.Context))
	detach := watch.Attach(p, application, route)
	defer detach()

	if path := c.String("upload"); path != "" {
		go uploadWhileWatching(c, application, p, path)
	}

	loggy.Info("Starting watch dashboard", "events", watch.LoggedEvents(application))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running watch UI: %w", err)
	}
	return nil
}

func uploadWhileWatching(c *cli.Context, application *app.App, p *tea.Program, path string) {
	fileName := filepath.Base(path)
	done := func(err error) { p.Send(watch.UploadDoneMsg{FileName: fileName, Err: err}) }

	f, err := os.Open(path)
	if err != nil {
		done(err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		done(err)
		return
	}

	title := strings.TrimSpace(c.String("title"))
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	_, _, err = application.Upload(c.Context, upload.Meta{Title: title, FileName: fileName}, f, info.Size())
	done(err)
}
