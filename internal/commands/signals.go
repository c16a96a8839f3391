package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/utils"
)

// SignalsCommand returns the CLI command listing journaled completion signals
func SignalsCommand() *cli.Command {
	return &cli.Command{
		Name:        "signals",
		Usage:       "List recent upload completion signals",
		Description: "Shows the journal of completion signals dispatched by uploads on this device",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of signals to show",
				Value:   20,
			},
			&cli.DurationFlag{
				Name:  "prune",
				Usage: "Delete signals older than this duration before listing (e.g. 168h)",
			},
		},
		Action: signalsAction,
	}
}

func signalsAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Journal == nil {
		return errors.New("the signal journal needs a database; run 'edusync init' first")
	}

	if age := c.Duration("prune"); age > 0 {
		removed, err := application.Journal.Prune(c.Context, time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("failed to prune signals: %w", err)
		}
		utils.PrintInfo(fmt.Sprintf("Pruned %d signal(s) older than %s", removed, age))
	}

	entries, err := application.Journal.Recent(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list signals: %w", err)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID,
			e.Type,
			strconv.Itoa(e.Listeners),
			utils.FormatTime(e.DispatchedAt),
		})
	}
	utils.PrintTable("Completion Signals", []string{"ID", "Type", "Listeners", "Dispatched"}, rows)
	return nil
}
