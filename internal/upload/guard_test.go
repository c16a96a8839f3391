package upload

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the watch goroutine to write into
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSignals struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	stopped int
}

func (f *fakeSignals) notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	f.ch = c
	f.mu.Unlock()
}

func (f *fakeSignals) stop(chan<- os.Signal) {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakeSignals) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeSignals) send() {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- os.Interrupt
}

func newTestGuard(out *syncBuffer, onCancel func()) (*SignalGuard, *fakeSignals) {
	sigs := &fakeSignals{}
	g := NewSignalGuard(out, time.Minute, onCancel)
	g.notify = sigs.notify
	g.stopFn = sigs.stop
	return g, sigs
}

func TestSignalGuardWarnsThenCancels(t *testing.T) {
	out := &syncBuffer{}
	cancelled := make(chan struct{})
	g, sigs := newTestGuard(out, func() { close(cancelled) })

	g.Install("Upload in progress.")
	g.Install("ignored")
	assert.True(t, g.Installed())

	sigs.send()
	require.Eventually(t, func() bool { return out.String() != "" }, time.Second, time.Millisecond)
	assert.Contains(t, out.String(), "Upload in progress. Press Ctrl+C again within 1m0s to cancel.")

	sigs.send()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("second interrupt within the window did not cancel")
	}
	assert.Equal(t, 1, sigs.stops(), "interrupts after the cancel are no longer intercepted")
	assert.True(t, g.Installed(), "the guard stays installed until the tracker removes it")

	g.Remove()
	assert.False(t, g.Installed())
}

func TestSignalGuardWindowExpires(t *testing.T) {
	out := &syncBuffer{}
	var cancels int
	var mu sync.Mutex
	g, sigs := newTestGuard(out, func() { mu.Lock(); cancels++; mu.Unlock() })

	clock := time.Now()
	var clockMu sync.Mutex
	g.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(2 * time.Minute)
		return clock
	}

	g.Install("Upload in progress.")
	sigs.send()
	sigs.send()
	require.Eventually(t, func() bool {
		return bytes.Count([]byte(out.String()), []byte("Press Ctrl+C")) == 2
	}, time.Second, time.Millisecond, "interrupts further apart than the window only warn")

	g.Remove()
	mu.Lock()
	assert.Zero(t, cancels)
	mu.Unlock()
}

func TestSignalGuardRemove(t *testing.T) {
	g, sigs := newTestGuard(&syncBuffer{}, nil)

	g.Remove()
	assert.Zero(t, sigs.stopped, "removing an uninstalled guard is a no-op")

	g.Install("x")
	g.Remove()
	g.Remove()
	assert.Equal(t, 1, sigs.stopped)
	assert.False(t, g.Installed())

	g.Install("x")
	assert.True(t, g.Installed(), "a removed guard can be installed again")
	g.Remove()
}
