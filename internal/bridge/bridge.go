// Package bridge broadcasts the upload-completed signal to whoever is
// listening at that moment. Delivery is fire-and-forget: there is no queue
// and no replay, so a dispatch with no listeners is lost.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/tildaslashalef/edusync/internal/loggy"
)

// TypeUploadCompleted tags the signal raised when an upload finishes
const TypeUploadCompleted = "upload:completed"

// Signal carries no payload beyond its type
type Signal struct {
	Type string
	At   time.Time
}

// Listener receives a signal
type Listener func(Signal)

// Recorder keeps an audit trail of dispatched signals
type Recorder interface {
	Record(ctx context.Context, sig Signal, listeners int) error
}

// Options configures a Bridge
type Options struct {
	Type          string
	Recorder      Recorder
	RecordTimeout time.Duration
	Logger        *loggy.Logger
}

// Bridge fans one signal type out to its listeners
type Bridge struct {
	typ           string
	recorder      Recorder
	recordTimeout time.Duration
	logger        *loggy.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	order     []int
	nextID    int
}

// New creates a bridge for upload-completed signals unless opts.Type says otherwise
func New(opts Options) *Bridge {
	if opts.Type == "" {
		opts.Type = TypeUploadCompleted
	}
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = loggy.GetGlobalLogger()
	}

	return &Bridge{
		typ:           opts.Type,
		recorder:      opts.Recorder,
		recordTimeout: opts.RecordTimeout,
		logger:        opts.Logger.With("comp", "bridge"),
		listeners:     make(map[int]Listener),
	}
}

// AddListener registers fn and returns the function that removes it
func (b *Bridge) AddListener(fn Listener) (remove func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// ListenerCount returns the number of registered listeners
func (b *Bridge) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Dispatch notifies every listener registered at call time exactly once, in
// registration order. Listeners added or removed during dispatch do not
// change who receives this signal.
func (b *Bridge) Dispatch() {
	sig := Signal{Type: b.typ, At: time.Now()}

	b.mu.Lock()
	fns := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.listeners[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		b.deliver(fn, sig)
	}

	if len(fns) == 0 {
		b.logger.Debug("Signal dispatched with no listeners", "type", sig.Type)
	}
	b.record(sig, len(fns))
}

func (b *Bridge) deliver(fn Listener, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Signal listener panicked", "type", sig.Type, "panic", r)
		}
	}()
	fn(sig)
}

func (b *Bridge) record(sig Signal, listeners int) {
	if b.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.recordTimeout)
	defer cancel()

	if err := b.recorder.Record(ctx, sig, listeners); err != nil {
		b.logger.Warn("Failed to journal signal", "type", sig.Type, "error", err)
	}
}
