package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/database"
	"github.com/tildaslashalef/edusync/internal/migrations"
	"github.com/tildaslashalef/edusync/internal/utils"
	"github.com/urfave/cli/v2"
)

// MigrateCommand returns the CLI command for database migrations
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Manage database migrations",
		Hidden: true,
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Action: migrateUpAction,
			},
			{
				Name:  "down",
				Usage: "Revert the last migration",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to revert",
						Value: 1,
					},
				},
				Action: migrateDownAction,
			},
			{
				Name:   "status",
				Usage:  "Show the applied schema version and the embedded migrations",
				Action: migrateStatusAction,
			},
		},
	}
}

func migrateUpAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	utils.PrintInfo("Applying embedded migrations")
	if err := database.RunMigrations(application.DB()); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to apply migrations: %s", err))
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, _ := database.Version(application.DB())
	utils.PrintSuccess(fmt.Sprintf("Database schema is at version %d", version))
	return nil
}

func migrateDownAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	steps := c.Int("steps")
	utils.PrintWarning(fmt.Sprintf("Reverting %d embedded migration(s)", steps))

	if err := database.RevertMigrations(application.DB(), steps); err != nil {
		utils.PrintError(fmt.Sprintf("Failed to revert migrations: %s", err))
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	utils.PrintSuccess("Migration(s) reverted successfully!")
	return nil
}

func migrateStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	version, dirty, err := database.Version(application.DB())
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	files, err := migrations.Files()
	if err != nil {
		return fmt.Errorf("failed to list embedded migrations: %w", err)
	}

	rows := migrationRows(files, version)
	utils.PrintTable("Migrations", []string{"Version", "Name", "Applied"}, rows)

	if dirty {
		utils.PrintWarning(fmt.Sprintf("Schema version %d is dirty; fix it before migrating again", version))
	}
	return nil
}

// migrationRows groups the up/down files by version
func migrationRows(files []string, applied uint) [][]string {
	names := make(map[uint64]string)
	for _, f := range files {
		if !strings.HasSuffix(f, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(strings.TrimSuffix(f, ".up.sql"), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		names[v] = rest
	}

	versions := make([]uint64, 0, len(names))
	for v := range names {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		status := "no"
		if v <= uint64(applied) {
			status = "yes"
		}
		rows = append(rows, []string{strconv.FormatUint(v, 10), names[v], status})
	}
	return rows
}
