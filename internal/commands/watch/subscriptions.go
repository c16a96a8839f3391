package watch

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"github.com/tildaslashalef/edusync/internal/app"
	"github.com/tildaslashalef/edusync/internal/bridge"
	"github.com/tildaslashalef/edusync/internal/push"
	"github.com/tildaslashalef/edusync/internal/upload"
	"github.com/tildaslashalef/edusync/internal/utils"
)

const maxEventData = 160

// Sender delivers messages to a running program
type Sender interface {
	Send(msg tea.Msg)
}

// LoggedEvents returns the push events worth showing in the event log
func LoggedEvents(a *app.App) []string {
	events := append([]string{}, a.Config.Sync.MessageEvents...)
	events = append(events, a.Config.Sync.NotificationEvents...)
	if a.Config.Sync.ReadReceiptEvent != "" {
		events = append(events, a.Config.Sync.ReadReceiptEvent)
	}
	return lo.Uniq(lo.Compact(events))
}

// Attach forwards the session's push events, counter values, upload record
// and completion signals to s. The uploads listing is refreshed on a signal
// only while route is the uploads listing page.
func Attach(s Sender, a *app.App, route *Route) (detach func()) {
	var detachers []func()

	stateSub := a.Push.OnStateChange(func(st push.State) {
		s.Send(StateMsg{State: st, Transport: a.Push.Transport()})
	})
	detachers = append(detachers, func() { a.Push.Off(stateSub) })

	for _, name := range LoggedEvents(a) {
		sub := a.Push.On(name, func(ev push.Event) {
			s.Send(EventMsg{
				Name: ev.Name,
				Data: utils.Truncate(string(ev.Data), maxEventData),
				At:   time.Now(),
			})
		})
		detachers = append(detachers, func() { a.Push.Off(sub) })
	}

	detachers = append(detachers,
		a.Messages.Subscribe(func(v int) {
			s.Send(CounterMsg{Name: app.CounterMessages, Value: v})
		}),
		a.Notifications.Subscribe(func(v int) {
			s.Send(CounterMsg{Name: app.CounterNotifications, Value: v})
		}),
		a.Uploads.Subscribe(func(u *upload.ActiveUpload) {
			s.Send(UploadMsg{Upload: u})
		}),
		a.Signals.AddListener(func(sig bridge.Signal) {
			s.Send(SignalMsg{Signal: sig})
		}),
		a.Signals.AddListener(bridge.ListingRefresher(route.Get, RouteUploads, func() {
			s.Send(RefreshListingMsg{})
		})),
	)

	return func() {
		for _, d := range detachers {
			d()
		}
	}
}
