package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/edusync/internal/loggy"
)

type fakeConn struct {
	kind      TransportKind
	events    chan Event
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
	onSend    func(*fakeConn, Event)

	mu   sync.Mutex
	sent []Event
}

func newFakeConn(kind TransportKind) *fakeConn {
	return &fakeConn{
		kind:   kind,
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Kind() TransportKind { return f.kind }

func (f *fakeConn) Read(ctx context.Context) ([]Event, error) {
	select {
	case ev := <-f.events:
		return []Event{ev}, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Send(_ context.Context, ev Event) error {
	if f.isClosed() {
		return ErrConnClosed
	}
	f.mu.Lock()
	f.sent = append(f.sent, ev)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(f, ev)
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) sentEvents() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.sent...)
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []TransportKind
	dial  func(kind TransportKind, n int) (Conn, error)
}

func (d *fakeDialer) Dial(_ context.Context, kind TransportKind) (Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, kind)
	n := len(d.dials)
	d.mu.Unlock()
	return d.dial(kind, n)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) history() []TransportKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TransportKind(nil), d.dials...)
}

func testOptions(d Dialer) Options {
	return Options{
		Transports:   Preference(EnvDevelopment),
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		ProbeTimeout: time.Second,
		Dialer:       d,
	}
}

var errRefused = errors.New("connection refused")

func TestClientDeliversEvents(t *testing.T) {
	conn := newFakeConn(TransportWebSocket)
	d := &fakeDialer{dial: func(TransportKind, int) (Conn, error) { return conn, nil }}
	c := NewClient(testOptions(d), loggy.NewNoopLogger())
	defer c.Close()

	received := make(chan Event, 4)
	sub := c.On("newMessage", func(ev Event) { received <- ev })
	c.On("other", func(Event) { t.Error("unrelated handler must not fire") })

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)
	assert.Equal(t, TransportWebSocket, c.Transport())

	conn.events <- Event{Name: "newMessage"}
	select {
	case ev := <-received:
		assert.Equal(t, "newMessage", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}

	c.Off(sub)
	conn.events <- Event{Name: "newMessage"}
	conn.events <- Event{Name: "marker"}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, received, "handler removed with Off must not fire")

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyStarted)
}

func TestClientFallsBackInPreferenceOrder(t *testing.T) {
	polling := newFakeConn(TransportPolling)
	d := &fakeDialer{dial: func(kind TransportKind, _ int) (Conn, error) {
		if kind == TransportWebSocket {
			return nil, errRefused
		}
		return polling, nil
	}}
	c := NewClient(testOptions(d), loggy.NewNoopLogger())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, 5*time.Millisecond)

	assert.Equal(t, TransportPolling, c.Transport())
	assert.Equal(t, []TransportKind{TransportWebSocket, TransportPolling}, d.history())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{dial: func(TransportKind, int) (Conn, error) { return nil, errRefused }}
	opts := testOptions(d)
	opts.Transports = []TransportKind{TransportWebSocket}
	c := NewClient(opts, loggy.NewNoopLogger())

	require.NoError(t, c.Connect(context.Background()))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client kept retrying past its attempt budget")
	}

	assert.ErrorIs(t, c.Err(), ErrReconnectExhausted)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1+opts.MaxAttempts, d.count(), "initial dial plus one per reconnect attempt")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1+opts.MaxAttempts, d.count(), "no dial after giving up")
	assert.ErrorIs(t, c.Emit(context.Background(), "x", nil), ErrNotConnected)
	require.NoError(t, c.Close())
}

func TestClientReconnectsAndResetsBudget(t *testing.T) {
	var conns []*fakeConn
	var mu sync.Mutex
	d := &fakeDialer{dial: func(kind TransportKind, n int) (Conn, error) {
		// every other dial fails so each outage consumes part of the budget
		if n%2 == 0 {
			return nil, errRefused
		}
		conn := newFakeConn(kind)
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		return conn, nil
	}}
	opts := testOptions(d)
	opts.Transports = []TransportKind{TransportWebSocket}
	opts.MaxAttempts = 2
	c := NewClient(opts, loggy.NewNoopLogger())
	defer c.Close()

	var connects atomic.Int32
	c.OnStateChange(func(s State) {
		if s == StateConnected {
			connects.Add(1)
		}
	})

	received := make(chan Event, 4)
	c.On("newNotification", func(ev Event) { received <- ev })

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return connects.Load() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		mu.Lock()
		current := conns[len(conns)-1]
		mu.Unlock()
		current.errs <- errors.New("connection reset")

		want := int32(i + 2)
		require.Eventually(t, func() bool { return connects.Load() == want }, time.Second, time.Millisecond,
			"reconnect %d should get the full attempt budget", i+1)
	}

	assert.NoError(t, c.Err())

	mu.Lock()
	latest := conns[len(conns)-1]
	mu.Unlock()
	latest.events <- Event{Name: "newNotification"}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handlers must survive reconnects")
	}
}

func TestClientCloseStopsDelivery(t *testing.T) {
	conn := newFakeConn(TransportWebSocket)
	d := &fakeDialer{dial: func(TransportKind, int) (Conn, error) { return conn, nil }}
	c := NewClient(testOptions(d), loggy.NewNoopLogger())

	var calls atomic.Int32
	c.On("newMessage", func(Event) { calls.Add(1) })

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.Transport())
	assert.True(t, conn.isClosed())
	assert.NoError(t, c.Err())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}

	assert.Zero(t, calls.Load())
}

func TestClientEmit(t *testing.T) {
	conn := newFakeConn(TransportWebSocket)
	d := &fakeDialer{dial: func(TransportKind, int) (Conn, error) { return conn, nil }}
	c := NewClient(testOptions(d), loggy.NewNoopLogger())
	defer c.Close()

	assert.ErrorIs(t, c.Emit(context.Background(), "markRead", nil), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, time.Millisecond)

	require.NoError(t, c.Emit(context.Background(), "markRead", map[string]int{"count": 2}))
	sent := conn.sentEvents()
	require.Len(t, sent, 1)
	assert.Equal(t, "markRead", sent[0].Name)
	assert.JSONEq(t, `{"count":2}`, string(sent[0].Data))
}

func TestClientRecoversFromHandlerPanic(t *testing.T) {
	conn := newFakeConn(TransportWebSocket)
	d := &fakeDialer{dial: func(TransportKind, int) (Conn, error) { return conn, nil }}
	c := NewClient(testOptions(d), loggy.NewNoopLogger())
	defer c.Close()

	done := make(chan struct{})
	c.On("newMessage", func(Event) { panic("boom") })
	c.On("newMessage", func(Event) { close(done) })

	require.NoError(t, c.Connect(context.Background()))
	conn.events <- Event{Name: "newMessage"}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a panicking handler must not stop the others")
	}
	assert.True(t, c.Connected())
}

func TestClientUpgradesAfterProbe(t *testing.T) {
	polling := newFakeConn(TransportPolling)
	ws := newFakeConn(TransportWebSocket)
	ws.onSend = func(f *fakeConn, ev Event) {
		if ev.Name == eventProbe {
			f.events <- Event{Name: eventProbe}
		}
	}
	d := &fakeDialer{dial: func(kind TransportKind, _ int) (Conn, error) {
		if kind == TransportPolling {
			return polling, nil
		}
		return ws, nil
	}}
	opts := testOptions(d)
	opts.Transports = Preference(EnvProduction)
	opts.Upgrade = true
	c := NewClient(opts, loggy.NewNoopLogger())
	defer c.Close()

	received := make(chan Event, 4)
	c.On("newMessage", func(ev Event) { received <- ev })

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return c.Transport() == TransportWebSocket }, time.Second, time.Millisecond)
	assert.Eventually(t, polling.isClosed, time.Second, time.Millisecond)
	assert.True(t, c.Connected())

	ws.events <- Event{Name: "newMessage"}
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("events on the upgraded transport must be delivered")
	}
}

func TestClientStaysOnPollingWhenProbeFails(t *testing.T) {
	polling := newFakeConn(TransportPolling)
	ws := newFakeConn(TransportWebSocket) // never answers the probe
	d := &fakeDialer{dial: func(kind TransportKind, _ int) (Conn, error) {
		if kind == TransportPolling {
			return polling, nil
		}
		return ws, nil
	}}
	opts := testOptions(d)
	opts.Transports = Preference(EnvProduction)
	opts.Upgrade = true
	opts.ProbeTimeout = 30 * time.Millisecond
	c := NewClient(opts, loggy.NewNoopLogger())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, ws.isClosed, time.Second, time.Millisecond)

	assert.Equal(t, TransportPolling, c.Transport())
	assert.False(t, polling.isClosed())
	assert.True(t, c.Connected())
}

func TestClientSkipsProbeWithoutUpgrade(t *testing.T) {
	polling := newFakeConn(TransportPolling)
	d := &fakeDialer{dial: func(kind TransportKind, _ int) (Conn, error) {
		if kind == TransportPolling {
			return polling, nil
		}
		return nil, errRefused
	}}
	opts := testOptions(d)
	opts.Transports = Preference(EnvProduction)
	c := NewClient(opts, loggy.NewNoopLogger())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, c.Connected, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []TransportKind{TransportPolling}, d.history())
}
