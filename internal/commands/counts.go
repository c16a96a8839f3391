package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/utils"
)

// CountsCommand returns the CLI command printing the unread counters
func CountsCommand() *cli.Command {
	return &cli.Command{
		Name:        "counts",
		Usage:       "Show unread messages and notifications",
		Description: "Pulls both unread counters from the platform once and prints them",
		Action:      countsAction,
	}
}

func countsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if err := application.Resync(c.Context); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to pull counters: %s", err))
		return fmt.Errorf("failed to pull counters: %w", err)
	}

	pulledAt := utils.FormatTime(time.Now())
	utils.PrintTable("Unread", []string{"Counter", "Value", "Pulled"}, [][]string{
		{application.Messages.Name(), strconv.Itoa(application.Messages.Value()), pulledAt},
		{application.Notifications.Name(), strconv.Itoa(application.Notifications.Value()), pulledAt},
	})
	return nil
}
