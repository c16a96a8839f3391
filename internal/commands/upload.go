package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/upload"
	"github.com/tildaslashalef/edusync/internal/utils"
)

// UploadCommand returns the CLI command uploading one file
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a file to the platform",
		ArgsUsage: "<file>",
		Description: "Streams the file to the platform and shows its progress. " +
			"Pressing Ctrl+C once warns; pressing it again within the confirm window cancels the upload.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "title",
				Aliases: []string{"t"},
				Usage:   "Title shown on the platform, defaults to the file name",
			},
		},
		Action: uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	if c.NArg() != 1 {
		return errors.New("expected exactly one file argument")
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	fileName := filepath.Base(path)
	title := strings.TrimSpace(c.String("title"))
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	pw := utils.NewProgressWriter(os.Stderr)
	tracker := utils.NewPercentTracker(utils.Truncate(fileName, 32))
	pw.AppendTracker(tracker)
	go pw.Render()

	unsubscribe := application.Uploads.Subscribe(func(u *upload.ActiveUpload) {
		if u != nil {
			tracker.SetValue(int64(u.Progress))
		}
	})
	defer unsubscribe()

	record, result, err := application.Upload(c.Context, upload.Meta{Title: title, FileName: fileName}, f, info.Size())
	if err != nil {
		tracker.MarkAsErrored()
	} else {
		tracker.MarkAsDone()
	}
	waitForRender(pw.IsRenderInProgress)

	if err != nil {
		utils.PrintError(fmt.Sprintf("Upload failed: %s", err))
		return err
	}

	utils.PrintSuccess(fmt.Sprintf("Uploaded %s", fileName))
	utils.PrintKeyValue("Upload", record.ID)
	utils.PrintKeyValue("Title", record.Title)
	if result != nil {
		utils.PrintKeyValue("Server id", result.ID)
		if result.URL != "" {
			utils.PrintKeyValue("URL", result.URL)
		}
	}
	utils.PrintKeyValue("Elapsed", time.Since(record.StartedAt).Round(time.Millisecond).String())
	return nil
}

// waitForRender gives the progress writer time to draw its final frame
func waitForRender(rendering func() bool) {
	deadline := time.Now().Add(time.Second)
	for rendering() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
