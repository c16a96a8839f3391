// Package push maintains the long-lived push channel to the platform's
// realtime server and fans named events out to in-process handlers.
package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"github.com/tildaslashalef/edusync/internal/loggy"
	"github.com/tildaslashalef/edusync/internal/ulid"
)

var (
	// ErrNotConnected is returned by Emit while no connection is live
	ErrNotConnected = errors.New("push: not connected")

	// ErrReconnectExhausted is the terminal error once every reconnect attempt failed
	ErrReconnectExhausted = errors.New("push: reconnect attempts exhausted")

	// ErrAlreadyStarted is returned when Connect is called twice
	ErrAlreadyStarted = errors.New("push: client already started")
)

const eventProbe = "probe"

// Handler receives one push event
type Handler func(Event)

// Subscription identifies a registered handler or state observer
type Subscription struct {
	ID    string
	Event string
}

// Options configures a Client
type Options struct {
	URL   string
	Token string

	// Transports is the dial order, fixed for the client's lifetime
	Transports []TransportKind
	// Upgrade probes websocket after connecting over polling
	Upgrade bool

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollTimeout  time.Duration
	ProbeTimeout time.Duration

	// Dialer overrides the HTTP dialer
	Dialer Dialer
}

func (o *Options) setDefaults() {
	if len(o.Transports) == 0 {
		o.Transports = Preference(EnvDevelopment)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = 5 * o.InitialDelay
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 25 * time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 5 * time.Second
	}
}

type handlerEntry struct {
	id    string
	event string
	fn    Handler
}

type observerEntry struct {
	id string
	fn func(State)
}

// Client is one push channel session. Handlers and observers live on the
// client, so they survive reconnects and transport upgrades.
type Client struct {
	opts   Options
	dialer Dialer
	logger *loggy.Logger

	mu        sync.RWMutex
	state     State
	conn      Conn
	err       error
	started   bool
	cancel    context.CancelFunc
	handlers  []handlerEntry
	observers []observerEntry

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates a disconnected client
func NewClient(opts Options, logger *loggy.Logger) *Client {
	opts.setDefaults()
	if logger == nil {
		logger = loggy.GetGlobalLogger()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewHTTPDialer(opts.URL, opts.Token, opts.PollTimeout)
	}

	return &Client{
		opts:   opts,
		dialer: dialer,
		logger: logger.With("comp", "push"),
		done:   make(chan struct{}),
	}
}

// Connect starts the connection loop and returns immediately
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// On registers fn for event. Handlers may be registered before Connect.
func (c *Client) On(event string, fn Handler) Subscription {
	sub := Subscription{ID: ulid.SubscriptionID(), Event: event}

	c.mu.Lock()
	c.handlers = append(c.handlers, handlerEntry{id: sub.ID, event: event, fn: fn})
	c.mu.Unlock()

	return sub
}

// OnStateChange registers fn to observe connection state transitions
func (c *Client) OnStateChange(fn func(State)) Subscription {
	sub := Subscription{ID: ulid.SubscriptionID()}

	c.mu.Lock()
	c.observers = append(c.observers, observerEntry{id: sub.ID, fn: fn})
	c.mu.Unlock()

	return sub
}

// Off removes a handler or observer. Unknown subscriptions are ignored.
func (c *Client) Off(sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = lo.Reject(c.handlers, func(h handlerEntry, _ int) bool { return h.id == sub.ID })
	c.observers = lo.Reject(c.observers, func(o observerEntry, _ int) bool { return o.id == sub.ID })
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether a connection is live
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Transport returns the active transport, empty while disconnected
func (c *Client) Transport() TransportKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.Kind()
}

// Err returns ErrReconnectExhausted once the client gave up, nil otherwise
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Done is closed when the session ends, either by Close or by giving up
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Emit sends an event upstream on the active transport
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if conn == nil || state != StateConnected {
		return ErrNotConnected
	}

	ev, err := NewEvent(event, data)
	if err != nil {
		return err
	}
	return conn.Send(ctx, ev)
}

// Close ends the session and waits for every goroutine to exit
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.started = true // a closed client cannot be connected again
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	c.setState(StateDisconnected)
	c.finish()
	return nil
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer c.finish()

	b := c.newBackOff()
	for {
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err == nil {
			b.Reset()
			err = c.serve(ctx, conn)
		}

		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			c.mu.Lock()
			c.err = ErrReconnectExhausted
			c.mu.Unlock()
			c.logger.Error("Push channel gave up reconnecting", "attempts", c.opts.MaxAttempts, "error", err)
			return
		}

		c.logger.Warn("Push channel disconnected, retrying", "error", err, "retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// newBackOff counts reconnect attempts; Reset after a successful connect
// gives the next outage the full budget again.
func (c *Client) newBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.InitialDelay
	expo.MaxInterval = c.opts.MaxDelay
	expo.Multiplier = 2
	expo.RandomizationFactor = 0.5
	expo.MaxElapsedTime = 0
	expo.Reset()

	return backoff.WithMaxRetries(expo, uint64(c.opts.MaxAttempts))
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	var errs []error
	for _, kind := range c.opts.Transports {
		conn, err := c.dialer.Dial(ctx, kind)
		if err == nil {
			return conn, nil
		}
		c.logger.Debug("Transport dial failed", "transport", kind, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", kind, err))

		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// serve reads from conn until it fails. A connection swapped in by a
// successful upgrade probe takes over transparently.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.logger.Info("Push channel connected", "transport", conn.Kind())

	if c.shouldProbe(conn.Kind()) {
		c.wg.Add(1)
		go c.probe(ctx, conn)
	}

	for {
		events, err := conn.Read(ctx)
		for _, ev := range events {
			if ctx.Err() != nil {
				break
			}
			c.dispatch(ev)
		}
		if err == nil {
			continue
		}

		c.mu.Lock()
		if c.conn != nil && c.conn != conn {
			conn = c.conn
			c.mu.Unlock()
			continue
		}
		c.conn = nil
		c.mu.Unlock()

		_ = conn.Close()
		return err
	}
}

func (c *Client) shouldProbe(kind TransportKind) bool {
	if !c.opts.Upgrade || kind != TransportPolling {
		return false
	}
	return lo.IndexOf(c.opts.Transports, TransportWebSocket) > lo.IndexOf(c.opts.Transports, TransportPolling)
}

func (c *Client) probe(ctx context.Context, polling Conn) {
	defer c.wg.Done()

	probeCtx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	ws, err := c.dialer.Dial(probeCtx, TransportWebSocket)
	if err != nil {
		c.logger.Info("Transport upgrade unavailable, staying on polling", "error", err)
		return
	}

	if err := awaitProbe(probeCtx, ws); err != nil {
		_ = ws.Close()
		c.logger.Info("Transport upgrade probe failed, staying on polling", "error", err)
		return
	}

	c.mu.Lock()
	if c.conn != polling || ctx.Err() != nil {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.conn = ws
	c.mu.Unlock()

	_ = polling.Close()
	c.logger.Info("Push channel upgraded", "from", TransportPolling, "to", TransportWebSocket)
}

func awaitProbe(ctx context.Context, conn Conn) error {
	if err := conn.Send(ctx, Event{Name: eventProbe}); err != nil {
		return err
	}

	for {
		events, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if lo.ContainsBy(events, func(ev Event) bool { return ev.Name == eventProbe }) {
			return nil
		}
	}
}

func (c *Client) dispatch(ev Event) {
	c.mu.RLock()
	matched := lo.Filter(c.handlers, func(h handlerEntry, _ int) bool { return h.event == ev.Name })
	c.mu.RUnlock()

	for _, h := range matched {
		c.invoke(h, ev)
	}
}

func (c *Client) invoke(h handlerEntry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Push handler panicked", "event", ev.Name, "subscription", h.id, "panic", r)
		}
	}()
	h.fn(ev)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	observers := append([]observerEntry(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(s)
	}
}
