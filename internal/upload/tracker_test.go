package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/edusync/internal/loggy"
)

type recordingGuard struct {
	mu        sync.Mutex
	installed bool
	installs  int
	removes   int
	message   string
}

func (g *recordingGuard) Install(message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.installed = true
	g.installs++
	g.message = message
}

func (g *recordingGuard) Remove() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.installed = false
	g.removes++
}

func (g *recordingGuard) isInstalled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installed
}

// timeline records observer callbacks and signals in the order they happen
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(s string) {
	tl.mu.Lock()
	tl.events = append(tl.events, s)
	tl.mu.Unlock()
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.events...)
}

func (tl *timeline) Dispatch() { tl.add("signal") }

func (tl *timeline) observe(u *ActiveUpload) {
	if u == nil {
		tl.add("nil")
		return
	}
	tl.add(fmt.Sprint(u.Progress))
}

func newTestTracker(guard Guard, signaler Signaler, delay time.Duration) *Tracker {
	return NewTracker(Options{
		ClearDelay: delay,
		Guard:      guard,
		Signaler:   signaler,
		Logger:     loggy.NewNoopLogger(),
	})
}

func TestReportUploadScenario(t *testing.T) {
	tl := &timeline{}
	guard := &recordingGuard{}
	tr := newTestTracker(guard, tl, 20*time.Millisecond)
	tr.Subscribe(tl.observe)

	record, err := tr.Start(Meta{Title: "Report", FileName: "r.pdf"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(record.ID, "upl-"))
	assert.Equal(t, "Report", record.Title)
	assert.Equal(t, "r.pdf", record.FileName)
	assert.WithinDuration(t, time.Now(), record.StartedAt, time.Second)

	tr.Update(10)
	tr.Update(55)
	tr.Finish()

	active, ok := tr.Active()
	require.True(t, ok, "the record stays visible during the display delay")
	assert.Equal(t, 100, active.Progress)
	assert.Equal(t, PhaseComplete, tr.Phase())
	assert.False(t, tr.Guarded(), "the guard is gone while 100% is on display")
	assert.False(t, guard.isInstalled())

	require.Eventually(t, func() bool { return tr.Phase() == PhaseIdle }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0", "10", "55", "100", "signal", "nil"}, tl.snapshot())
	assert.Equal(t, 1, guard.installs)
	assert.Equal(t, 1, guard.removes)
}

func TestGuardFollowsProgress(t *testing.T) {
	guard := &recordingGuard{}
	tr := newTestTracker(guard, nil, time.Hour)

	assert.False(t, tr.Guarded())

	_, err := tr.Start(Meta{FileName: "a.txt"})
	require.NoError(t, err)
	assert.True(t, tr.Guarded())
	assert.Equal(t, "Upload in progress. Leaving now will cancel it.", guard.message)

	tr.Update(99.4)
	assert.True(t, tr.Guarded())

	tr.Update(100)
	assert.False(t, tr.Guarded(), "reaching 100 removes the guard even before Finish")
	assert.Equal(t, PhaseComplete, tr.Phase())
}

func TestUpdateClampsAndRounds(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected int
	}{
		{name: "above range", input: 150, expected: 100},
		{name: "below range", input: -5, expected: 0},
		{name: "rounds up", input: 33.6, expected: 34},
		{name: "rounds down", input: 33.4, expected: 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(nil, nil, time.Hour)
			_, err := tr.Start(Meta{FileName: "f"})
			require.NoError(t, err)

			tr.Update(tt.input)
			active, ok := tr.Active()
			require.True(t, ok)
			assert.Equal(t, tt.expected, active.Progress)
		})
	}
}

func TestUpdateWithoutUploadIsIgnored(t *testing.T) {
	tl := &timeline{}
	tr := newTestTracker(nil, tl, time.Hour)
	tr.Subscribe(tl.observe)

	tr.Update(40)
	tr.Finish()

	_, ok := tr.Active()
	assert.False(t, ok)
	assert.Empty(t, tl.snapshot(), "no observer call and no signal without an upload")
}

func TestStartRejectsConcurrentUpload(t *testing.T) {
	tr := newTestTracker(nil, nil, time.Hour)

	first, err := tr.Start(Meta{ID: "upl-1", FileName: "a"})
	require.NoError(t, err)
	assert.Equal(t, "upl-1", first.ID)

	_, err = tr.Start(Meta{FileName: "b"})
	assert.ErrorIs(t, err, ErrUploadInProgress)

	active, _ := tr.Active()
	assert.Equal(t, "upl-1", active.ID, "the running upload is untouched")
}

func TestStartReplacesCompletedRecord(t *testing.T) {
	tl := &timeline{}
	tr := newTestTracker(&recordingGuard{}, tl, 30*time.Millisecond)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	tr.Finish()

	second, err := tr.Start(Meta{FileName: "b"})
	require.NoError(t, err, "a completed upload still on display can be replaced")
	assert.True(t, tr.Guarded())

	time.Sleep(60 * time.Millisecond)
	active, ok := tr.Active()
	require.True(t, ok, "the first upload's clear timer must not clear the second upload")
	assert.Equal(t, second.ID, active.ID)
}

func TestFinishTwiceSignalsOnce(t *testing.T) {
	tl := &timeline{}
	tr := newTestTracker(&recordingGuard{}, tl, 20*time.Millisecond)
	tr.Subscribe(tl.observe)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	tr.Finish()
	tr.Finish()

	require.Eventually(t, func() bool { return tr.Phase() == PhaseIdle }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0", "100", "signal", "nil"}, tl.snapshot())

	_, err = tr.Start(Meta{FileName: "b"})
	require.NoError(t, err)
	tr.Finish()
	require.Eventually(t, func() bool { return tr.Phase() == PhaseIdle }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0", "100", "signal", "nil", "0", "100", "signal", "nil"}, tl.snapshot(),
		"the next upload signals again")
}

func TestUpdateToHundredWaitsForFinish(t *testing.T) {
	tl := &timeline{}
	tr := newTestTracker(&recordingGuard{}, tl, 10*time.Millisecond)
	tr.Subscribe(tl.observe)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	tr.Update(100)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, PhaseComplete, tr.Phase(), "all bytes sent, still waiting for Finish")
	assert.Equal(t, []string{"0", "100"}, tl.snapshot())

	tr.Finish()
	require.Eventually(t, func() bool { return tr.Phase() == PhaseIdle }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"0", "100", "signal", "nil"}, tl.snapshot())
}

func TestAbort(t *testing.T) {
	tl := &timeline{}
	guard := &recordingGuard{}
	tr := newTestTracker(guard, tl, time.Hour)
	tr.Subscribe(tl.observe)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	tr.Update(30)
	tr.Abort()

	assert.Equal(t, PhaseIdle, tr.Phase())
	assert.False(t, guard.isInstalled())
	assert.Equal(t, []string{"0", "30", "nil"}, tl.snapshot(), "no completion signal for an aborted upload")

	_, err = tr.Start(Meta{FileName: "b"})
	assert.NoError(t, err, "a new upload can start after an abort")
}

func TestClose(t *testing.T) {
	guard := &recordingGuard{}
	tr := newTestTracker(guard, nil, time.Hour)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	tr.Close()

	assert.False(t, guard.isInstalled())
	assert.Equal(t, PhaseIdle, tr.Phase())
	tr.Close()
}

func TestUnsubscribe(t *testing.T) {
	tl := &timeline{}
	tr := newTestTracker(nil, nil, time.Hour)
	unsubscribe := tr.Subscribe(tl.observe)

	_, err := tr.Start(Meta{FileName: "a"})
	require.NoError(t, err)
	unsubscribe()
	tr.Update(50)

	assert.Equal(t, []string{"0"}, tl.snapshot())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "in_progress", PhaseInProgress.String())
	assert.Equal(t, "complete", PhaseComplete.String())
}

func TestProgressReader(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)
	var reports []float64
	pr := NewProgressReader(bytes.NewReader(data), int64(len(data)), func(p float64) {
		reports = append(reports, p)
	})

	buf := make([]byte, 100)
	for {
		_, err := pr.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1000), pr.BytesRead())
	require.NotEmpty(t, reports)
	assert.Equal(t, 10.0, reports[0])
	assert.Equal(t, 99.0, reports[len(reports)-1], "the reader never reports completion itself")
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
}

func TestTransfer(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		tl := &timeline{}
		tr := newTestTracker(&recordingGuard{}, tl, time.Hour)
		tr.Subscribe(tl.observe)

		body := strings.Repeat("a", 400)
		var got bytes.Buffer
		record, err := Transfer(context.Background(), tr, Meta{Title: "Notes", FileName: "n.txt"}, strings.NewReader(body), int64(len(body)),
			func(_ context.Context, r io.Reader) error {
				buf := make([]byte, 100)
				for {
					n, err := r.Read(buf)
					got.Write(buf[:n])
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
				}
			})
		require.NoError(t, err)
		assert.Equal(t, body, got.String())
		assert.Equal(t, "Notes", record.Title)
		assert.Equal(t, []string{"0", "25", "50", "75", "99", "100", "signal"}, tl.snapshot())
	})

	t.Run("failure aborts", func(t *testing.T) {
		tl := &timeline{}
		guard := &recordingGuard{}
		tr := newTestTracker(guard, tl, time.Hour)

		boom := errors.New("connection reset")
		_, err := Transfer(context.Background(), tr, Meta{FileName: "n.txt"}, strings.NewReader("abc"), 3,
			func(context.Context, io.Reader) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, PhaseIdle, tr.Phase())
		assert.False(t, guard.isInstalled())
		assert.NotContains(t, tl.snapshot(), "signal")
	})

	t.Run("busy tracker", func(t *testing.T) {
		tr := newTestTracker(nil, nil, time.Hour)
		_, err := tr.Start(Meta{FileName: "other"})
		require.NoError(t, err)

		_, err = Transfer(context.Background(), tr, Meta{FileName: "n.txt"}, strings.NewReader("abc"), 3,
			func(context.Context, io.Reader) error { t.Fatal("send must not run"); return nil })
		assert.ErrorIs(t, err, ErrUploadInProgress)
	})
}
