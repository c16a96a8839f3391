package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/tildaslashalef/edusync/internal/config"
	"github.com/tildaslashalef/edusync/internal/database"
	"github.com/tildaslashalef/edusync/internal/utils"
	"github.com/urfave/cli/v2"
)

// InitCommand returns the CLI command for initializing edusync
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize or update the edusync environment",
		Description: "Sets up the configuration directory and the local database. " +
			"Run it once after installing and again after upgrading to apply new migrations.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "backup",
				Usage: "Back up an existing .env before writing the sample configuration",
			},
		},
		Action: initAction,
	}
}

func initAction(c *cli.Context) error {
	utils.PrintHeading("Initializing edusync")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to get user home directory: %s", err))
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".edusync")
	utils.PrintInfo("Configuration directory: " + color.YellowString("%s", configDir))

	utils.PrintInfo("Extracting default configuration file")
	if err := config.SetupConfigDirectory(configDir, c.Bool("backup")); err != nil {
		utils.PrintWarning(fmt.Sprintf("Failed to set up configuration files: %s", err))
	}

	configFilePath := filepath.Join(configDir, ".env")
	cfg, err := config.LoadFromEnv(configDir, configFilePath)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to load configuration: %s", err))
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	utils.PrintInfo("Initializing database and applying migrations...")
	db, err := database.Init(c.Context, &cfg.Database)
	if err != nil {
		utils.PrintError(fmt.Sprintf("Failed to initialize database: %s", err))
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	version, _, err := database.Version(db)
	if err != nil {
		utils.PrintWarning(fmt.Sprintf("Could not read schema version: %s", err))
	}

	utils.PrintSuccess("edusync initialized successfully!")
	utils.PrintInfo(fmt.Sprintf("Schema version: %d", version))
	utils.PrintInfo("Configuration file: " + color.YellowString("%s", configFilePath))
	utils.PrintInfo("Database location: " + color.YellowString("%s", cfg.Database.Path))
	utils.PrintInfo("Log file location: " + color.YellowString("%s", cfg.Logging.Output))
	fmt.Fprintln(utils.Out)
	utils.PrintInfo("Link your account with " + color.CyanString("edusync account link --token <token>") +
		" and then run " + color.CyanString("edusync watch") + ".")

	return nil
}
