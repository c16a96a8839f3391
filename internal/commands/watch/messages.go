package watch

import (
	"time"

	"github.com/tildaslashalef/edusync/internal/bridge"
	"github.com/tildaslashalef/edusync/internal/push"
	"github.com/tildaslashalef/edusync/internal/upload"
)

type (
	// StartedMsg is sent once the session has connected and mounted its counters
	StartedMsg struct {
		Err error
	}

	// StateMsg reports a push channel state change
	StateMsg struct {
		State     push.State
		Transport push.TransportKind
	}

	// EventMsg carries one push event for the event log
	EventMsg struct {
		Name string
		Data string
		At   time.Time
	}

	// CounterMsg carries a new counter value
	CounterMsg struct {
		Name  string
		Value int
	}

	// UploadMsg carries the upload record; nil once it is cleared
	UploadMsg struct {
		Upload *upload.ActiveUpload
	}

	// UploadDoneMsg is sent when an upload started with the dashboard returns
	UploadDoneMsg struct {
		FileName string
		Err      error
	}

	// SignalMsg is sent for every completion signal
	SignalMsg struct {
		Signal bridge.Signal
	}

	// RefreshListingMsg asks the uploads tab to reload its listing
	RefreshListingMsg struct{}

	// ListingMsg carries the reloaded uploads listing
	ListingMsg struct {
		Entries []bridge.Entry
		Err     error
	}

	// ActionDoneMsg reports the result of a key-triggered action
	ActionDoneMsg struct {
		Action string
		Err    error
	}
)
