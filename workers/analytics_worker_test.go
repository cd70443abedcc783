package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scaler-service/models"
)

// memStore is an in-memory ClickStore
type memStore struct {
	mu      sync.Mutex
	clicks  map[string]int64
	events  []models.ClickEvent
	batches int
	err     error
	// appendErr fails the event insert after counters were bumped; the
	// whole batch rolls back like a transaction would
	appendErr error
	delay     time.Duration
}

func newMemStore(codes ...string) *memStore {
	s := &memStore{clicks: map[string]int64{}}
	for _, c := range codes {
		s.clicks[c] = 0
	}
	return s
}

func (s *memStore) RecordClicks(ctx context.Context, events []models.ClickEvent) ([]string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	clicks := make(map[string]int64, len(s.clicks))
	for code, n := range s.clicks {
		clicks[code] = n
	}

	var missing []string
	seen := map[string]bool{}
	for _, e := range events {
		if _, ok := clicks[e.ShortCode]; ok {
			clicks[e.ShortCode]++
		} else if !seen[e.ShortCode] {
			seen[e.ShortCode] = true
			missing = append(missing, e.ShortCode)
		}
	}
	if s.appendErr != nil {
		return nil, s.appendErr
	}

	s.batches++
	s.clicks = clicks
	s.events = append(s.events, events...)
	return missing, nil
}

func (s *memStore) clicksFor(code string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clicks[code]
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type recordingNotifier struct {
	mu     sync.Mutex
	deltas map[string]int64
}

func (n *recordingNotifier) Notify(code string, delta int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.deltas == nil {
		n.deltas = map[string]int64{}
	}
	n.deltas[code] += delta
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_DrainsOnStop(t *testing.T) {
	store := newMemStore("abc", "def")
	rec := NewRecorder(store, Options{Workers: 4, BatchSize: 10, FlushInterval: time.Hour}, discardLogger())
	notifier := &recordingNotifier{}
	rec.SetNotifier(notifier)
	rec.Start(context.Background())

	for i := 0; i < 250; i++ {
		rec.Schedule("abc", "US")
	}
	rec.Schedule("def", "DE")
	rec.Schedule("gone", "FR")

	require.NoError(t, rec.Stop(context.Background()))

	assert.Equal(t, int64(250), store.clicksFor("abc"))
	assert.Equal(t, int64(1), store.clicksFor("def"))
	assert.Equal(t, 252, store.eventCount())
	assert.Equal(t, map[string]int64{"abc": 250, "def": 1}, notifier.deltas)

	stats := rec.Stats()
	assert.Equal(t, int64(252), stats.Queued)
	assert.Equal(t, int64(252), stats.Recorded)
	assert.Equal(t, 0, stats.Pending)
	assert.Zero(t, stats.Dropped)
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	store := newMemStore("abc")
	rec := NewRecorder(store, Options{Workers: 1, BatchSize: 100, FlushInterval: 20 * time.Millisecond}, discardLogger())
	rec.Start(context.Background())
	defer rec.Stop(context.Background())

	rec.Schedule("abc", "US")

	assert.Eventually(t, func() bool {
		return store.clicksFor("abc") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecorder_ScheduleAfterStopDrops(t *testing.T) {
	store := newMemStore("abc")
	rec := NewRecorder(store, Options{Workers: 1}, discardLogger())
	rec.Start(context.Background())
	require.NoError(t, rec.Stop(context.Background()))

	rec.Schedule("abc", "US")
	assert.ErrorIs(t, rec.Enqueue(models.ClickEvent{ShortCode: "abc"}), ErrRecorderStopped)

	assert.Equal(t, int64(2), rec.Stats().Dropped)
	assert.Equal(t, int64(0), store.clicksFor("abc"))

	// Stop is idempotent
	assert.NoError(t, rec.Stop(context.Background()))
}

func TestRecorder_FullQueueDropsWithoutBlocking(t *testing.T) {
	store := newMemStore("abc")
	// Not started: nothing consumes the queue
	rec := NewRecorder(store, Options{QueueSize: 2}, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			rec.Schedule("abc", "US")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule blocked on a full queue")
	}

	assert.ErrorIs(t, rec.Enqueue(models.ClickEvent{ShortCode: "abc"}), ErrQueueFull)
	stats := rec.Stats()
	assert.Equal(t, int64(2), stats.Queued)
	assert.Equal(t, int64(4), stats.Dropped)
	assert.Equal(t, 2, stats.Pending)
}

func TestRecorder_FlushFailureIsSwallowed(t *testing.T) {
	store := newMemStore("abc")
	store.err = errors.New("database is locked")
	rec := NewRecorder(store, Options{Workers: 1}, discardLogger())
	rec.Start(context.Background())

	rec.Schedule("abc", "US")
	rec.Schedule("abc", "US")
	require.NoError(t, rec.Stop(context.Background()))

	stats := rec.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Zero(t, stats.Recorded)
}

func TestRecorder_StopTimesOut(t *testing.T) {
	store := newMemStore("abc")
	store.delay = 200 * time.Millisecond
	rec := NewRecorder(store, Options{Workers: 1}, discardLogger())
	rec.Start(context.Background())
	rec.Schedule("abc", "US")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Stop(ctx), context.DeadlineExceeded)

	// The in-flight flush still completes
	assert.Eventually(t, func() bool {
		return store.clicksFor("abc") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRecorder_CancelledContextStillDrains(t *testing.T) {
	store := newMemStore("abc")
	rec := NewRecorder(store, Options{Workers: 2, FlushInterval: time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)
	for i := 0; i < 10; i++ {
		rec.Schedule("abc", "US")
	}
	cancel()

	require.NoError(t, rec.Stop(context.Background()))
	assert.Equal(t, int64(10), store.clicksFor("abc"))
}

func TestRecorder_Record(t *testing.T) {
	store := newMemStore("abc")
	notifier := &recordingNotifier{}
	rec := NewRecorder(store, Options{}, discardLogger())
	rec.SetNotifier(notifier)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, "abc", "US"))
	// Unknown codes still log the event
	require.NoError(t, rec.Record(ctx, "gone", "DE"))

	assert.Equal(t, int64(1), store.clicksFor("abc"))
	assert.Equal(t, 2, store.eventCount())
	assert.Equal(t, map[string]int64{"abc": 1}, notifier.deltas)

	store.err = errors.New("disk full")
	assert.Error(t, rec.Record(ctx, "abc", "US"))
	assert.Equal(t, int64(1), rec.Stats().Failed)
}

func TestRecorder_Record_FailedAppendLeavesCounter(t *testing.T) {
	store := newMemStore("abc")
	store.appendErr = errors.New("no such table: analytics")
	notifier := &recordingNotifier{}
	rec := NewRecorder(store, Options{}, discardLogger())
	rec.SetNotifier(notifier)

	err := rec.Record(context.Background(), "abc", "US")

	assert.Error(t, err)
	assert.Zero(t, store.clicksFor("abc"))
	assert.Zero(t, store.eventCount())
	assert.Empty(t, notifier.deltas)
	assert.Equal(t, int64(1), rec.Stats().Failed)
	assert.Zero(t, rec.Stats().Recorded)
}
