package watch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tildaslashalef/edusync/internal/push"
)

const defaultWidth = 80

// View renders the dashboard.
func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("edusync"))
	sb.WriteString("\n")
	sb.WriteString(m.connectionView())
	sb.WriteString("\n\n")

	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		m.counterBox("Unread messages", m.messages),
		m.counterBox("Unread notifications", m.notifications),
	))
	sb.WriteString("\n")
	sb.WriteString(m.uploadView())
	sb.WriteString("\n\n")

	sb.WriteString(m.tabsView())
	sb.WriteString("\n")
	if m.route.Get() == RouteUploads {
		sb.WriteString(m.listingView())
	} else {
		sb.WriteString(m.logView(width))
	}
	sb.WriteString("\n")

	if m.confirmQuit {
		sb.WriteString(m.styles.Warning.Render("An upload is in progress. Cancel it and quit? (y/n)"))
		sb.WriteString("\n")
	} else if m.err != "" {
		sb.WriteString(m.styles.Error.Render("Error: " + m.err))
		sb.WriteString("\n")
	}
	sb.WriteString(m.styles.StatusText.Render(m.status))
	sb.WriteString("\n\n")
	sb.WriteString(m.help.View(m.keymap))

	return sb.String()
}

func (m Model) connectionView() string {
	var state string
	switch m.state {
	case push.StateConnected:
		state = m.styles.Connected.Render("● connected")
	case push.StateConnecting:
		state = m.spinner.View() + m.styles.Connecting.Render("connecting")
	default:
		state = m.styles.Offline.Render("○ disconnected")
	}

	parts := []string{state}
	if m.transport != "" {
		parts = append(parts, m.styles.Label.Render("via ")+string(m.transport))
	}
	if m.server != "" {
		parts = append(parts, m.styles.Label.Render("server ")+m.server)
	}
	if m.device != "" {
		parts = append(parts, m.styles.Label.Render("device ")+m.device)
	}
	return strings.Join(parts, "  ")
}

func (m Model) counterBox(label string, value int) string {
	return m.styles.Box.Render(
		m.styles.Label.Render(label) + "\n" + m.styles.Value.Render(strconv.Itoa(value)),
	)
}

func (m Model) uploadView() string {
	if m.upload == nil {
		return m.styles.Subtle.Render("No active upload")
	}

	title := m.upload.Title
	if title == "" {
		title = m.upload.FileName
	}
	line := fmt.Sprintf("Uploading %s (%s)", title, m.upload.FileName)
	if m.upload.Progress >= 100 {
		line = fmt.Sprintf("Uploaded %s", title)
	}
	return line + "\n" + m.progress.ViewAs(float64(m.upload.Progress)/100)
}

func (m Model) tabsView() string {
	events, uploads := m.styles.ActiveTab, m.styles.Tab
	if m.route.Get() == RouteUploads {
		events, uploads = m.styles.Tab, m.styles.ActiveTab
	}
	return events.Render("Events") + uploads.Render("Uploads")
}

func (m Model) logView(width int) string {
	if len(m.log) == 0 {
		return m.styles.Subtle.Render("No events yet")
	}

	rows := m.visibleLogRows()
	lines := make([]string, 0, len(rows))
	for _, l := range rows {
		prefix := m.styles.EventTime.Render(l.at.Local().Format("15:04:05")) + " " +
			m.styles.EventName.Render(l.name)
		text := l.text
		if text != "" {
			text = wordwrap.String(text, max(width-4, 20))
		}
		lines = append(lines, strings.TrimRight(prefix+" "+text, " "))
	}
	return strings.Join(lines, "\n")
}

// visibleLogRows returns the newest lines that fit the window
func (m Model) visibleLogRows() []logLine {
	limit := 10
	if m.height > 0 {
		limit = max(m.height-18, 3)
	}
	if len(m.log) <= limit {
		return m.log
	}
	return m.log[len(m.log)-limit:]
}

func (m Model) listingView() string {
	if m.listingErr != "" {
		return m.styles.Error.Render("Failed to load uploads: " + m.listingErr)
	}
	if len(m.listing) == 0 {
		return m.styles.Subtle.Render("No completed uploads")
	}

	lines := make([]string, 0, len(m.listing))
	for _, e := range m.listing {
		lines = append(lines, fmt.Sprintf("%s  %s  %s",
			m.styles.EventTime.Render(e.DispatchedAt.Local().Format("Jan 02 15:04:05")),
			m.styles.EventName.Render(e.Type),
			m.styles.Label.Render(fmt.Sprintf("%d listener(s)", e.Listeners)),
		))
	}
	return strings.Join(lines, "\n")
}
