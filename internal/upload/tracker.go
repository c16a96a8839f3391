// Package upload tracks the one file upload a session may run at a time,
// keeps a leave guard installed while it is unfinished and raises the
// completion signal when it ends.
package upload

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/ulid"
)

// ErrUploadInProgress is returned by Start while another upload is unfinished
var ErrUploadInProgress = errors.New("upload: another upload is in progress")

// DefaultClearDelay is how long a finished upload stays visible at 100%
const DefaultClearDelay = 1500 * time.Millisecond

// Signaler raises the completion signal
type Signaler interface {
	Dispatch()
}

// Meta describes an upload about to start. An empty ID is generated.
type Meta struct {
	ID       string
	Title    string
	FileName string
}

// ActiveUpload is the live upload record
type ActiveUpload struct {
	ID        string
	Title     string
	FileName  string
	Progress  int
	StartedAt time.Time
}

// Phase is the tracker's lifecycle phase
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInProgress:
		return "in_progress"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Options configures a Tracker
type Options struct {
	ClearDelay   time.Duration
	Guard        Guard
	GuardMessage string
	Signaler     Signaler
	Logger       *loggy.Logger
}

// Tracker holds at most one ActiveUpload
type Tracker struct {
	clearDelay   time.Duration
	guard        Guard
	guardMessage string
	signaler     Signaler
	logger       *loggy.Logger

	mu         sync.Mutex
	active     *ActiveUpload
	finished   bool
	guarded    bool
	generation uint64
	timer      *time.Timer
	observers  map[int]func(*ActiveUpload)
	nextID     int
}

// NewTracker creates an idle tracker
func NewTracker(opts Options) *Tracker {
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}
	if opts.Guard == nil {
		opts.Guard = NopGuard{}
	}
	if opts.GuardMessage == "" {
		opts.GuardMessage = "Upload in progress. Leaving now will cancel it."
	}
	if opts.Logger == nil {
		opts.Logger = loggy.GetGlobalLogger()
	}

	return &Tracker{
		clearDelay:   opts.ClearDelay,
		guard:        opts.Guard,
		guardMessage: opts.GuardMessage,
		signaler:     opts.Signaler,
		logger:       opts.Logger.With("comp", "upload"),
		observers:    make(map[int]func(*ActiveUpload)),
	}
}

// Start begins tracking a new upload at 0%. A completed upload still on
// display is replaced; an unfinished one makes Start fail.
func (t *Tracker) Start(meta Meta) (ActiveUpload, error) {
	t.mu.Lock()
	if t.active != nil && t.active.Progress < 100 {
		t.mu.Unlock()
		return ActiveUpload{}, ErrUploadInProgress
	}

	t.stopTimer()
	t.generation++
	t.finished = false

	id := meta.ID
	if id == "" {
		id = ulid.UploadID()
	}
	t.active = &ActiveUpload{
		ID:        id,
		Title:     meta.Title,
		FileName:  meta.FileName,
		StartedAt: time.Now(),
	}
	t.installGuard()
	record := *t.active
	t.mu.Unlock()

	t.logger.Info("Upload started", "upload_id", record.ID, "file", record.FileName)
	t.notify(&record)
	return record, nil
}

// Update records progress as a percentage. Values are rounded and clamped
// to [0, 100]; reaching 100 removes the guard. Without an unfinished upload
// the call is ignored.
//
// Update(100) only means every byte was sent. The record stays on display
// until Finish raises the signal and schedules the clear, or Abort drops it.
func (t *Tracker) Update(percent float64) {
	if math.IsNaN(percent) {
		return
	}
	p := int(math.Round(math.Max(0, math.Min(100, percent))))

	t.mu.Lock()
	if t.active == nil || t.active.Progress >= 100 || t.active.Progress == p {
		t.mu.Unlock()
		return
	}

	t.active.Progress = p
	if p >= 100 {
		t.removeGuard()
	}
	record := *t.active
	t.mu.Unlock()

	t.notify(&record)
}

// Finish forces 100%, raises exactly one completion signal and clears the
// record after the display delay. Calling it again for the same upload does
// nothing.
func (t *Tracker) Finish() {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		t.logger.Warn("Finish called without an active upload")
		return
	}
	if t.finished {
		id := t.active.ID
		t.mu.Unlock()
		t.logger.Debug("Upload already finished", "upload_id", id)
		return
	}
	t.finished = true

	changed := t.active.Progress != 100
	t.active.Progress = 100
	t.removeGuard()
	record := *t.active
	gen := t.generation
	t.mu.Unlock()

	if changed {
		t.notify(&record)
	}

	t.logger.Info("Upload finished", "upload_id", record.ID, "took", time.Since(record.StartedAt))
	if t.signaler != nil {
		t.signaler.Dispatch()
	}

	t.mu.Lock()
	if gen == t.generation {
		t.stopTimer()
		t.timer = time.AfterFunc(t.clearDelay, func() { t.clear(gen) })
	}
	t.mu.Unlock()
}

// Abort drops the current upload at once without a completion signal
func (t *Tracker) Abort() {
	t.mu.Lock()
	if t.active == nil {
		t.mu.Unlock()
		return
	}
	record := *t.active
	t.resetLocked()
	t.mu.Unlock()

	t.logger.Warn("Upload aborted", "upload_id", record.ID, "progress", record.Progress)
	t.notify(nil)
}

// Close tears the tracker down with the session
func (t *Tracker) Close() {
	t.mu.Lock()
	hadRecord := t.active != nil
	t.resetLocked()
	t.mu.Unlock()

	if hadRecord {
		t.notify(nil)
	}
}

// Active returns a copy of the current record
func (t *Tracker) Active() (ActiveUpload, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return ActiveUpload{}, false
	}
	return *t.active, true
}

// Phase returns the lifecycle phase
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.active == nil:
		return PhaseIdle
	case t.active.Progress < 100:
		return PhaseInProgress
	default:
		return PhaseComplete
	}
}

// Guarded reports whether the leave guard is installed
func (t *Tracker) Guarded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.guarded
}

// Subscribe registers fn for every change. fn receives nil once the record is cleared.
func (t *Tracker) Subscribe(fn func(*ActiveUpload)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.observers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) clear(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.active == nil {
		t.mu.Unlock()
		return
	}
	t.active = nil
	t.finished = false
	t.timer = nil
	t.removeGuard()
	t.mu.Unlock()

	t.notify(nil)
}

func (t *Tracker) resetLocked() {
	t.stopTimer()
	t.generation++
	t.active = nil
	t.finished = false
	t.removeGuard()
}

func (t *Tracker) installGuard() {
	if !t.guarded {
		t.guard.Install(t.guardMessage)
		t.guarded = true
	}
}

func (t *Tracker) removeGuard() {
	if t.guarded {
		t.guard.Remove()
		t.guarded = false
	}
}

func (t *Tracker) stopTimer() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) notify(record *ActiveUpload) {
	t.mu.Lock()
	fns := make([]func(*ActiveUpload), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		if record == nil {
			fn(nil)
			continue
		}
		cp := *record
		fn(&cp)
	}
}
