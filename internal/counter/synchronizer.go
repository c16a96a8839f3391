// Package counter keeps an unread count in step with the server. The server
// is the source of truth: push events and reconnects trigger a re-pull whose
// result overwrites the local value, and local optimistic edits only bridge
// the gap until the next pull.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/push"
	"golang.org/x/time/rate"
)

// ErrAlreadyStarted is returned by Start on a mounted synchronizer
var ErrAlreadyStarted = errors.New("counter: already started")

// Channel is the part of the push client a synchronizer listens on
type Channel interface {
	On(event string, fn push.Handler) push.Subscription
	Off(sub push.Subscription)
	OnStateChange(fn func(push.State)) push.Subscription
}

// ReadReceipt describes an event telling that a user has read their messages.
// A receipt naming UserID resets the count at once and then re-pulls.
type ReadReceipt struct {
	Event     string
	UserField string
	UserID    string
}

// Options configures a Synchronizer
type Options struct {
	Name        string
	Events      []string
	ReadReceipt *ReadReceipt
	Interval    time.Duration
	PullTimeout time.Duration
	Limiter     *rate.Limiter
}

// Synchronizer owns one counter
type Synchronizer struct {
	fetcher Fetcher
	channel Channel
	opts    Options
	logger  *loggy.Logger

	mu          sync.Mutex
	value       int
	generation  uint64
	mounted     bool
	ctx         context.Context
	cancel      context.CancelFunc
	subs        []push.Subscription
	subscribers map[int]func(int)
	nextID      int
	delivered   int

	// notifyMu orders deliveries; subscribers must not mutate the counter
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// New creates an unmounted synchronizer. channel may be nil for one-shot use.
func New(fetcher Fetcher, channel Channel, opts Options, logger *loggy.Logger) *Synchronizer {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = loggy.GetGlobalLogger()
	}

	return &Synchronizer{
		fetcher:     fetcher,
		channel:     channel,
		opts:        opts,
		logger:      logger.With("comp", "counter", "counter", opts.Name),
		subscribers: make(map[int]func(int)),
	}
}

// Name returns the counter name
func (s *Synchronizer) Name() string {
	return s.opts.Name
}

// Start mounts the synchronizer: subscribe, pull once, then keep pulling on
// events, reconnects and the fallback interval. A failed first pull is logged
// and the counter keeps its current value.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mounted = true
	s.generation++
	gen := s.generation
	s.ctx, s.cancel = context.WithCancel(ctx)
	sessionCtx := s.ctx
	s.mu.Unlock()

	s.subscribe()

	if err := s.pull(sessionCtx, gen); err != nil {
		s.logger.Warn("Initial pull failed, keeping current value", "error", err)
	}

	s.mu.Lock()
	if s.generation == gen {
		s.wg.Add(1)
		go s.tick(sessionCtx, gen)
	}
	s.mu.Unlock()

	return nil
}

func (s *Synchronizer) subscribe() {
	if s.channel == nil {
		return
	}

	subs := make([]push.Subscription, 0, len(s.opts.Events)+2)
	for _, event := range s.opts.Events {
		name := event
		subs = append(subs, s.channel.On(name, func(push.Event) {
			s.resyncAsync(name)
		}))
	}

	if rr := s.opts.ReadReceipt; rr != nil && rr.Event != "" {
		subs = append(subs, s.channel.On(rr.Event, s.onReadReceipt))
	}

	subs = append(subs, s.channel.OnStateChange(func(st push.State) {
		if st == push.StateConnected {
			s.resyncAsync("reconnect")
		}
	}))

	s.mu.Lock()
	s.subs = subs
	s.mu.Unlock()
}

// Stop unmounts the synchronizer. Pulls still in flight are discarded when they resolve.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	s.generation++
	subs := s.subs
	s.subs = nil
	cancel := s.cancel
	s.mu.Unlock()

	for _, sub := range subs {
		s.channel.Off(sub)
	}
	cancel()
	s.wg.Wait()
}

// Value returns the current count
func (s *Synchronizer) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Subscribe registers fn to receive every new value
func (s *Synchronizer) Subscribe(fn func(int)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Resync pulls the authoritative count now. On error the previous value is kept.
func (s *Synchronizer) Resync(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	err := s.pull(ctx, gen)
	if err != nil {
		s.logger.Warn("Resync failed, keeping current value", "error", err)
	}
	return err
}

// Increment optimistically adds one
func (s *Synchronizer) Increment() { s.Apply(1) }

// Decrement optimistically removes one, never going below 0
func (s *Synchronizer) Decrement() { s.Apply(-1) }

// Reset optimistically sets the count to 0
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.store(0)
}

// Apply adds delta, clamping at 0
func (s *Synchronizer) Apply(delta int) {
	s.mu.Lock()
	s.store(s.value + delta)
}

// store must be called with s.mu held; it releases the lock before notifying.
func (s *Synchronizer) store(v int) {
	v = max(v, 0)
	changed := v != s.value
	s.value = v
	s.mu.Unlock()

	if changed {
		s.publish()
	}
}

// publish delivers the value current at delivery time, so the last value a
// subscriber sees is the last one stored even when stores race
func (s *Synchronizer) publish() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	v := s.value
	if v == s.delivered {
		s.mu.Unlock()
		return
	}
	s.delivered = v
	fns := make([]func(int), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (s *Synchronizer) pull(ctx context.Context, gen uint64) error {
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting to pull %s: %w", s.opts.Name, err)
		}
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.opts.PullTimeout)
	defer cancel()

	n, err := s.fetcher.Fetch(pullCtx)
	if err != nil {
		return fmt.Errorf("pulling %s: %w", s.opts.Name, err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding pull result from a stopped session", "value", n)
		return nil
	}
	s.store(n)
	return nil
}

// resyncAsync pulls in the background so push handlers never block the read loop
func (s *Synchronizer) resyncAsync(reason string) {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	gen, ctx := s.generation, s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.pull(ctx, gen); err != nil && ctx.Err() == nil {
			s.logger.Warn("Pull failed, keeping current value", "reason", reason, "error", err)
		}
	}()
}

func (s *Synchronizer) tick(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.pull(ctx, gen); err != nil && ctx.Err() == nil {
				s.logger.Warn("Interval pull failed, keeping current value", "error", err)
			}
		}
	}
}

func (s *Synchronizer) onReadReceipt(ev push.Event) {
	rr := s.opts.ReadReceipt
	if rr.UserID == "" {
		return
	}

	var payload map[string]any
	if err := ev.Decode(&payload); err != nil {
		s.logger.Debug("Ignoring malformed read receipt", "event", ev.Name, "error", err)
		return
	}

	if target, ok := payload[rr.UserField]; !ok || fmt.Sprint(target) != rr.UserID {
		return
	}

	s.Reset()
	s.resyncAsync(ev.Name)
}
