// Package watch implements the live dashboard of the watch command
package watch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tildaslashalef/edusync/internal/bridge"
	"github.com/tildaslashalef/edusync/internal/push"
	"github.com/tildaslashalef/edusync/internal/upload"
)

// Dashboard routes. The uploads route is a listing page.
const (
	RouteEvents  = "/dashboard"
	RouteUploads = "/dashboard/uploads"
)

const (
	maxLogLines   = 200
	listingLimit  = 10
	actionTimeout = 15 * time.Second
)

// Actions are the session operations the dashboard drives
type Actions interface {
	Start(ctx context.Context) error
	Resync(ctx context.Context) error
	MarkAllNotificationsRead(ctx context.Context) error
	UploadGuarded() bool
	CancelUpload()
	RecentSignals(ctx context.Context, limit int) ([]bridge.Entry, error)
}

// Route is the dashboard's current route, readable from other goroutines
type Route struct {
	v atomic.Value
}

// NewRoute creates a Route set to r
func NewRoute(r string) *Route {
	route := &Route{}
	route.Set(r)
	return route
}

// Get returns the current route
func (r *Route) Get() string {
	s, _ := r.v.Load().(string)
	return s
}

// Set changes the current route
func (r *Route) Set(route string) {
	r.v.Store(route)
}

type logLine struct {
	at   time.Time
	name string
	text string
}

// Snapshot seeds the dashboard before the first update arrives
type Snapshot struct {
	Server        string
	Device        string
	State         push.State
	Transport     push.TransportKind
	Messages      int
	Notifications int
}

// Model is the Bubble Tea model for the watch dashboard
type Model struct {
	ctx      context.Context
	actions  Actions
	route    *Route
	keymap   KeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	styles   Styles

	// UI state
	width       int
	height      int
	ready       bool
	started     bool
	confirmQuit bool
	status      string
	err         string

	server        string
	device        string
	state         push.State
	transport     push.TransportKind
	messages      int
	notifications int
	upload        *upload.ActiveUpload
	log           []logLine
	listing       []bridge.Entry
	listingErr    string
}

// NewModel initializes and returns a new Model
func NewModel(ctx context.Context, actions Actions, route *Route, snap Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorYellow)

	p := progress.New(progress.WithDefaultGradient())

	if route == nil {
		route = NewRoute(RouteEvents)
	}

	return Model{
		ctx:           ctx,
		actions:       actions,
		route:         route,
		keymap:        DefaultKeyMap(),
		help:          help.New(),
		spinner:       s,
		progress:      p,
		styles:        DefaultStyles(),
		status:        "Connecting...",
		server:        snap.Server,
		device:        snap.Device,
		state:         snap.State,
		transport:     snap.Transport,
		messages:      snap.Messages,
		notifications: snap.Notifications,
	}
}

// Init starts the session and the spinner
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startCmd())
}

func (m Model) startCmd() tea.Cmd {
	return func() tea.Msg {
		return StartedMsg{Err: m.actions.Start(m.ctx)}
	}
}

func (m Model) actionCmd(name string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, actionTimeout)
		defer cancel()
		return ActionDoneMsg{Action: name, Err: fn(ctx)}
	}
}

func (m Model) loadListingCmd() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.actions.RecentSignals(m.ctx, listingLimit)
		return ListingMsg{Entries: entries, Err: err}
	}
}

func (m *Model) appendLog(at time.Time, name, text string) {
	m.log = append(m.log, logLine{at: at, name: name, text: text})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}
