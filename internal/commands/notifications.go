package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/rest"
	"github.com/tildaslashalef/edusync/internal/utils"
)

// NotificationsCommand returns the CLI command listing notifications
func NotificationsCommand() *cli.Command {
	return &cli.Command{
		Name:        "notifications",
		Usage:       "List platform notifications",
		Description: "Prints your notifications with their Markdown bodies rendered for the terminal",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "unread",
				Usage: "Only show unread notifications",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of notifications to show",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:  "read-all",
				Usage: "Mark every notification read after listing",
			},
		},
		Action: notificationsAction,
	}
}

func notificationsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	notes, err := application.API.ListNotifications(c.Context)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to list notifications: %s", err))
		return fmt.Errorf("failed to list notifications: %w", err)
	}

	unread := lo.CountBy(notes, func(n rest.Notification) bool { return !n.IsRead })
	if c.Bool("unread") {
		notes = lo.Filter(notes, func(n rest.Notification, _ int) bool { return !n.IsRead })
	}
	if limit := c.Int("limit"); limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}

	utils.PrintHeading(fmt.Sprintf("Notifications (%d unread)", unread))
	if len(notes) == 0 {
		utils.PrintInfo("Nothing to show")
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		loggy.Warn("Markdown renderer unavailable, printing raw text", "error", err)
	}

	for _, n := range notes {
		fmt.Fprint(utils.Out, renderNotification(renderer, n))
	}

	if c.Bool("read-all") && unread > 0 {
		if err := application.MarkAllNotificationsRead(c.Context); err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		utils.PrintSuccess(fmt.Sprintf("Marked %d notification(s) read", unread))
	}
	return nil
}

// renderNotification formats one notification as Markdown and renders it.
// A nil renderer falls back to the plain Markdown.
func renderNotification(renderer *glamour.TermRenderer, n rest.Notification) string {
	marker := ""
	if !n.IsRead {
		marker = " *(unread)*"
	}

	var md strings.Builder
	fmt.Fprintf(&md, "### %s%s\n\n", n.Title, marker)
	fmt.Fprintf(&md, "_%s_\n\n", utils.FormatTime(n.CreatedAt))
	md.WriteString(strings.TrimSpace(n.Message))
	md.WriteString("\n")

	if renderer == nil {
		return md.String() + "\n"
	}
	out, err := renderer.Render(md.String())
	if err != nil {
		return md.String() + "\n"
	}
	return out
}
