package watch

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard's lipgloss styles
type Styles struct {
	Title      lipgloss.Style
	Tab        lipgloss.Style
	ActiveTab  lipgloss.Style
	Box        lipgloss.Style
	Label      lipgloss.Style
	Value      lipgloss.Style
	Connected  lipgloss.Style
	Connecting lipgloss.Style
	Offline    lipgloss.Style
	EventName  lipgloss.Style
	EventTime  lipgloss.Style
	StatusText lipgloss.Style
	Warning    lipgloss.Style
	Error      lipgloss.Style
	Subtle     lipgloss.Style
}

// Gruvbox-inspired colors
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#98971a", Dark: "#b8bb26"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#d79921", Dark: "#fabd2f"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#cc241d", Dark: "#fb4934"}
	colorBlue   = lipgloss.AdaptiveColor{Light: "#458588", Dark: "#83a598"}
	colorOrange = lipgloss.AdaptiveColor{Light: "#af3a03", Dark: "#fe8019"}
	colorGray   = lipgloss.AdaptiveColor{Light: "#928374", Dark: "#7c6f64"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#d5c4a1", Dark: "#504945"}
	colorText   = lipgloss.AdaptiveColor{Light: "#3c3836", Dark: "#fbf1c7"}
)

// DefaultStyles returns the dashboard styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorOrange).
			MarginBottom(1),
		Tab: lipgloss.NewStyle().
			Foreground(colorGray).
			Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Underline(true).
			Padding(0, 1),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2).
			MarginRight(1),
		Label:      lipgloss.NewStyle().Foreground(colorGray),
		Value:      lipgloss.NewStyle().Bold(true).Foreground(colorBlue),
		Connected:  lipgloss.NewStyle().Bold(true).Foreground(colorGreen),
		Connecting: lipgloss.NewStyle().Bold(true).Foreground(colorYellow),
		Offline:    lipgloss.NewStyle().Bold(true).Foreground(colorRed),
		EventName:  lipgloss.NewStyle().Foreground(colorOrange),
		EventTime:  lipgloss.NewStyle().Foreground(colorGray),
		StatusText: lipgloss.NewStyle().Italic(true).Foreground(colorGray),
		Warning:    lipgloss.NewStyle().Bold(true).Foreground(colorYellow),
		Error:      lipgloss.NewStyle().Bold(true).Foreground(colorRed),
		Subtle:     lipgloss.NewStyle().Foreground(colorGray),
	}
}
