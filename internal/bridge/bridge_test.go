package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tildaslashalef/edusync/internal/loggy"
)

type recordedSignal struct {
	sig       Signal
	listeners int
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedSignal
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, sig Signal, listeners int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedSignal{sig: sig, listeners: listeners})
	return r.err
}

func newTestBridge(rec Recorder) *Bridge {
	return New(Options{Recorder: rec, Logger: loggy.NewNoopLogger()})
}

func TestDispatchNotifiesEachListenerOnce(t *testing.T) {
	b := newTestBridge(nil)

	var first, second []Signal
	b.AddListener(func(s Signal) { first = append(first, s) })
	b.AddListener(func(s Signal) { second = append(second, s) })

	b.Dispatch()

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, TypeUploadCompleted, first[0].Type)
	assert.WithinDuration(t, time.Now(), first[0].At, time.Second)
}

func TestDispatchWithoutListenersIsLost(t *testing.T) {
	rec := &fakeRecorder{}
	b := newTestBridge(rec)

	b.Dispatch()

	var calls int
	b.AddListener(func(Signal) { calls++ })
	assert.Zero(t, calls, "no replay for late listeners")

	require.Len(t, rec.entries, 1)
	assert.Zero(t, rec.entries[0].listeners)
}

func TestRemoveListener(t *testing.T) {
	b := newTestBridge(nil)

	var calls int
	remove := b.AddListener(func(Signal) { calls++ })
	assert.Equal(t, 1, b.ListenerCount())

	remove()
	remove()
	assert.Zero(t, b.ListenerCount())

	b.Dispatch()
	assert.Zero(t, calls)
}

func TestDispatchUsesSnapshot(t *testing.T) {
	b := newTestBridge(nil)

	var order []string
	var removeB func()
	b.AddListener(func(Signal) {
		order = append(order, "a")
		removeB()
		b.AddListener(func(Signal) { order = append(order, "late") })
	})
	removeB = b.AddListener(func(Signal) { order = append(order, "b") })

	b.Dispatch()
	assert.Equal(t, []string{"a", "b"}, order, "changes during dispatch apply to the next one")
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	b := newTestBridge(nil)

	var delivered bool
	b.AddListener(func(Signal) { panic("listener bug") })
	b.AddListener(func(Signal) { delivered = true })

	assert.NotPanics(t, b.Dispatch)
	assert.True(t, delivered)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	b := newTestBridge(rec)

	var calls int
	b.AddListener(func(Signal) { calls++ })

	assert.NotPanics(t, b.Dispatch)
	assert.Equal(t, 1, calls)
	require.Len(t, rec.entries, 1)
	assert.Equal(t, 1, rec.entries[0].listeners)
}

func TestIsListingRoute(t *testing.T) {
	tests := []struct {
		route    string
		expected bool
	}{
		{route: "/documents", expected: true},
		{route: "/documents/", expected: true},
		{route: "/documents?page=2", expected: true},
		{route: "documents", expected: true},
		{route: "/documents/add", expected: false},
		{route: "/documents/edit/12", expected: false},
		{route: "/documents/view/12", expected: false},
		{route: "/documentsx", expected: false},
		{route: "/", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsListingRoute(tt.route, "/documents"))
		})
	}
}

func TestListingRefresher(t *testing.T) {
	b := newTestBridge(nil)

	route := "/documents/add"
	var refreshes int
	b.AddListener(ListingRefresher(func() string { return route }, "/documents", func() { refreshes++ }))

	b.Dispatch()
	assert.Zero(t, refreshes, "the add form is not refreshed")

	route = "/documents"
	b.Dispatch()
	assert.Equal(t, 1, refreshes)
}

func TestJournal(t *testing.T) {
	ctx := context.Background()

	newMockJournal := func(t *testing.T) (*Journal, sqlmock.Sqlmock) {
		t.Helper()
		db, mock, err := sqlmock.New()
		require.NoError(t, err, "Failed to create mock database")
		t.Cleanup(func() { db.Close() })
		return NewJournal(db, loggy.NewNoopLogger()), mock
	}

	t.Run("Record", func(t *testing.T) {
		j, mock := newMockJournal(t)
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mock.ExpectExec("INSERT INTO completion_signals \\(id,type,listeners,dispatched_at\\) VALUES \\(\\?,\\?,\\?,\\?\\)").
			WithArgs(sqlmock.AnyArg(), TypeUploadCompleted, 2, at).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, j.Record(ctx, Signal{Type: TypeUploadCompleted, At: at}, 2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Recent", func(t *testing.T) {
		j, mock := newMockJournal(t)
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT id, type, listeners, dispatched_at FROM completion_signals ORDER BY dispatched_at DESC LIMIT 5").
			WillReturnRows(sqlmock.NewRows([]string{"id", "type", "listeners", "dispatched_at"}).
				AddRow("sig-2", TypeUploadCompleted, 1, at.Add(time.Minute)).
				AddRow("sig-1", TypeUploadCompleted, 0, at))

		entries, err := j.Recent(ctx, 5)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "sig-2", entries[0].ID)
		assert.Equal(t, 1, entries[0].Listeners)
		assert.Equal(t, at, entries[1].DispatchedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Prune", func(t *testing.T) {
		j, mock := newMockJournal(t)
		before := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM completion_signals WHERE dispatched_at < \\?").
			WithArgs(before).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		removed, err := j.Prune(ctx, before)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Prune rolls back on error", func(t *testing.T) {
		j, mock := newMockJournal(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM completion_signals").
			WillReturnError(errors.New("locked"))
		mock.ExpectRollback()

		_, err := j.Prune(ctx, time.Now())
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
