package commands

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/utils"
)

// AccountCommand returns the CLI command for managing the linked account
func AccountCommand() *cli.Command {
	return &cli.Command{
		Name:        "account",
		Usage:       "Manage the platform account connection",
		Description: "Link or unlink this device with your learning platform account",
		Subcommands: []*cli.Command{
			{
				Name:        "link",
				Usage:       "Link to a platform account",
				Description: "Verify a personal access token and store it for future sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Personal access token from the platform's settings page",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "A name for this device (e.g., 'Library PC')",
					},
					&cli.StringFlag{
						Name:  "server",
						Usage: "REST base URL, overrides EDUSYNC_SERVER_URL",
					},
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "Your user id, used to apply read receipts from other devices",
					},
				},
				Action: linkAccountAction,
			},
			{
				Name:        "unlink",
				Usage:       "Unlink from the platform account",
				Description: "Forget the stored token and user id",
				Action:      unlinkAccountAction,
			},
			{
				Name:        "status",
				Usage:       "Check account connection status",
				Description: "Show the stored connection settings and verify the token",
				Action:      accountStatusAction,
			},
		},
	}
}

// linkAccountAction handles linking to a platform account
func linkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Settings == nil {
		return errors.New("account settings need a database; run 'edusync init' first")
	}

	ctx := c.Context
	token := c.String("token")
	if token == "" {
		return fmt.Errorf("token is required")
	}

	if server := c.String("server"); server != "" {
		if err := application.Settings.SetServerURL(ctx, server); err != nil {
			return fmt.Errorf("saving server url: %w", err)
		}
		// the REST client was built with the old base URL
		application.API = application.API.WithBaseURL(server)
	}

	application.API.SetToken(token)
	valid, err := application.API.VerifyToken(ctx)
	if err != nil {
		return fmt.Errorf("verifying token: %w", err)
	}
	if !valid {
		return fmt.Errorf("invalid token")
	}

	deviceName := c.String("name")
	if deviceName == "" {
		deviceName = utils.GenerateDeviceName()
	}

	if err := application.Settings.SetToken(ctx, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := application.Settings.SetDeviceName(ctx, deviceName); err != nil {
		loggy.Warn("Failed to save device name to settings", "error", err)
	}
	if userID := c.String("user-id"); userID != "" {
		if err := application.Settings.SetUserID(ctx, userID); err != nil {
			loggy.Warn("Failed to save user id to settings", "error", err)
		}
	}
	if err := application.Settings.SetServerURL(ctx, application.Config.Server.URL); err != nil {
		loggy.Warn("Failed to save server URL to settings", "error", err)
	}

	utils.PrintSuccess("Successfully linked to " + application.Config.Server.URL + " as " + deviceName)
	return nil
}

// unlinkAccountAction handles unlinking from the platform account
func unlinkAccountAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}
	if application.Settings == nil {
		return errors.New("account settings need a database; run 'edusync init' first")
	}

	if err := application.Settings.Unlink(c.Context); err != nil {
		return fmt.Errorf("unlinking account: %w", err)
	}
	application.API.SetToken("")

	utils.PrintSuccess("Successfully unlinked from the platform")
	return nil
}

// accountStatusAction shows the stored connection settings
func accountStatusAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	server := application.Config.Server
	utils.PrintHeading("Account Status")
	utils.PrintKeyValue("Server", server.URL)
	utils.PrintKeyValue("Push endpoint", application.Config.Push.URL)
	utils.PrintKeyValue("Device", valueOrDash(server.DeviceName))
	utils.PrintKeyValue("User id", valueOrDash(server.UserID))

	if server.Token == "" {
		utils.PrintKeyValueWithColor("Status", "not linked", utils.Theme.Warning)
		utils.PrintInfo("Link an account with 'edusync account link --token <token>'")
		return nil
	}

	valid, err := application.API.VerifyToken(c.Context)
	switch {
	case err != nil:
		utils.PrintKeyValueWithColor("Status", "unreachable", utils.Theme.Error)
		return fmt.Errorf("verifying token: %w", err)
	case !valid:
		utils.PrintKeyValueWithColor("Status", "token rejected", utils.Theme.Error)
	default:
		utils.PrintKeyValueWithColor("Status", "linked", text.Colors{text.FgGreen, text.Bold})
	}
	return nil
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
