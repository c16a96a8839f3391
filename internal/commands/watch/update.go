package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/push"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.progress.Width = max(msg.Width-20, 10)
		m.ready = true

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StartedMsg:
		m.started = true
		if msg.Err != nil {
			m.err = msg.Err.Error()
			m.status = "Failed to start session."
			loggy.Error("Watch session failed to start", "error", msg.Err)
		} else {
			m.status = "Watching for changes."
		}

	case StateMsg:
		m.state = msg.State
		if msg.Transport != "" {
			m.transport = msg.Transport
		}
		m.appendLog(time.Now(), "state", fmt.Sprintf("%s over %s", msg.State, m.transport))
		if msg.State == push.StateConnected {
			m.err = ""
		}

	case EventMsg:
		m.appendLog(msg.At, msg.Name, msg.Data)

	case CounterMsg:
		switch msg.Name {
		case app.CounterMessages:
			m.messages = msg.Value
		case app.CounterNotifications:
			m.notifications = msg.Value
		}

	case UploadMsg:
		m.upload = msg.Upload

	case UploadDoneMsg:
		if msg.Err != nil {
			m.status = fmt.Sprintf("Upload of %s failed.", msg.FileName)
			m.appendLog(time.Now(), "upload", msg.Err.Error())
		} else {
			m.status = fmt.Sprintf("Uploaded %s.", msg.FileName)
		}
		if m.confirmQuit && !m.actions.UploadGuarded() {
			m.confirmQuit = false
		}

	case SignalMsg:
		m.appendLog(msg.Signal.At, msg.Signal.Type, "upload completed")

	case RefreshListingMsg:
		return m, m.loadListingCmd()

	case ListingMsg:
		if msg.Err != nil {
			m.listingErr = msg.Err.Error()
		} else {
			m.listing = msg.Entries
			m.listingErr = ""
		}

	case ActionDoneMsg:
		if msg.Err != nil {
			m.status = fmt.Sprintf("%s failed: %s", msg.Action, msg.Err)
			loggy.Warn("Dashboard action failed", "action", msg.Action, "error", msg.Err)
		} else {
			m.status = msg.Action + " done."
		}
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmQuit {
		switch {
		case key.Matches(msg, m.keymap.Confirm):
			m.actions.CancelUpload()
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Deny):
			m.confirmQuit = false
			m.status = "Upload continues."
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.actions.UploadGuarded() {
			m.confirmQuit = true
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keymap.MarkRead):
		m.status = "Marking notifications read..."
		return m, m.actionCmd("Mark read", m.actions.MarkAllNotificationsRead)

	case key.Matches(msg, m.keymap.Resync):
		m.status = "Resyncing counters..."
		return m, m.actionCmd("Resync", m.actions.Resync)

	case key.Matches(msg, m.keymap.Tab):
		if m.route.Get() == RouteUploads {
			m.route.Set(RouteEvents)
			return m, nil
		}
		m.route.Set(RouteUploads)
		return m, m.loadListingCmd()
	}

	return m, nil
}
