// Package utils holds terminal output helpers shared by the CLI commands
package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Out receives everything the Print helpers write
var Out io.Writer = os.Stdout

// Theme is the Gruvbox-inspired palette used across commands
var Theme = struct {
	Success     text.Colors
	Info        text.Colors
	Warning     text.Colors
	Error       text.Colors
	Heading     text.Colors
	Subtle      text.Colors
	Important   text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
}{
	Success:     text.Colors{text.FgGreen},
	Info:        text.Colors{text.FgBlue},
	Warning:     text.Colors{text.FgYellow},
	Error:       text.Colors{text.FgRed},
	Heading:     text.Colors{text.FgHiCyan, text.Bold},
	Subtle:      text.Colors{text.FgHiBlack},
	Important:   text.Colors{text.FgHiMagenta, text.Bold},
	TableHeader: text.Colors{text.FgHiBlue, text.Bold},
	TableBorder: text.Colors{text.FgBlue},
	TableRow:    text.Colors{text.FgWhite},
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
}

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Fprintln(Out, Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintln(Out, Theme.Success.Sprint("✓ ")+message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Fprintln(Out, Theme.Info.Sprint("ℹ ")+message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintln(Out, Theme.Warning.Sprint("⚠ ")+message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintln(Out, Theme.Error.Sprint("✗ ")+message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Out, "%s: %s\n", text.Bold.Sprint(key), value)
}

// PrintKeyValueWithColor prints a key-value pair with colored value
func PrintKeyValueWithColor(key, value string, colors text.Colors) {
	fmt.Fprintf(Out, "%s: %s\n", text.Bold.Sprint(key), colors.Sprint(value))
}

// NewTable creates a table writer styled with Theme and mirrored to Out
func NewTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(Out)
	if title != "" {
		t.SetTitle(title)
	}

	style := table.StyleRounded
	style.Color.Header = Theme.TableHeader
	style.Color.Border = Theme.TableBorder
	style.Color.Row = Theme.TableRow
	style.Color.RowAlternate = Theme.TableAltRow
	style.Title.Colors = Theme.Heading
	style.Title.Align = text.AlignCenter
	style.Box.PaddingLeft = " "
	style.Box.PaddingRight = " "
	t.SetStyle(style)

	return t
}

// PrintTable prints rows under headers
func PrintTable(title string, headers []string, rows [][]string) {
	t := NewTable(title)

	header := make(table.Row, 0, len(headers))
	for _, h := range headers {
		header = append(header, h)
	}
	t.AppendHeader(header)

	for _, r := range rows {
		row := make(table.Row, 0, len(r))
		for _, cell := range r {
			row = append(row, cell)
		}
		t.AppendRow(row)
	}

	if len(rows) == 0 {
		t.AppendFooter(table.Row{"no records"})
	}
	t.Render()
}

// NewProgressWriter creates a go-pretty progress writer for a single
// percentage tracker rendered to out
func NewProgressWriter(out io.Writer) progress.Writer {
	pw := progress.NewWriter()
	pw.SetAutoStop(true)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(32)
	pw.SetNumTrackersExpected(1)
	pw.SetStyle(progress.StyleDefault)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.Style().Colors.Message = Theme.Info
	pw.Style().Colors.Percent = Theme.Important
	pw.Style().Colors.Time = Theme.Subtle
	pw.Style().Options.PercentFormat = " %3.0f%%"
	pw.Style().Visibility.Value = false
	pw.SetOutputWriter(out)
	return pw
}

// NewPercentTracker creates a tracker counting from 0 to 100
func NewPercentTracker(message string) *progress.Tracker {
	return &progress.Tracker{
		Message: message,
		Total:   100,
		Units:   progress.UnitsDefault,
	}
}

// FormatTime renders t for tables, "-" when zero
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04:05")
}

// Truncate shortens s to maxLen runes, ending in "..."
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
