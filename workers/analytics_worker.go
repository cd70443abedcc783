package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scaler-service/models"
)

const (
	DefaultWorkers       = 10
	DefaultQueueSize     = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultFlushTimeout  = 5 * time.Second
)

var (
	ErrRecorderStopped = errors.New("analytics recorder stopped")
	ErrQueueFull       = errors.New("analytics queue full")
)

// ClickStore is the part of the record store the recorder writes to
type ClickStore interface {
	RecordClicks(ctx context.Context, events []models.ClickEvent) ([]string, error)
}

// Notifier is told how many clicks each code gained after a successful write
type Notifier interface {
	Notify(code string, delta int64)
}

type Options struct {
	Workers       int
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	FlushTimeout  time.Duration
}

type Stats struct {
	Queued   int64 `json:"queued"`
	Pending  int   `json:"pending"`
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Recorder applies click events to the store off the request path. Events are
// batched per worker and written in one transaction per batch.
type Recorder struct {
	store    ClickStore
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	queue     chan models.ClickEvent
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup

	queued   atomic.Int64
	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

func NewRecorder(store ClickStore, opts Options, logger *slog.Logger) *Recorder {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}

	return &Recorder{
		store:  store,
		opts:   opts,
		logger: logger,
		queue:  make(chan models.ClickEvent, opts.QueueSize),
	}
}

// SetNotifier must be called before Start
func (r *Recorder) SetNotifier(n Notifier) {
	r.notifier = n
}

// Start launches the worker pool. Cancelling ctx stops intake; queued
// events are still drained.
func (r *Recorder) Start(ctx context.Context) {
	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.worker(ctx, id)
		}(i)
	}

	r.logger.Info("analytics workers started", "workers", r.opts.Workers, "queue_size", r.opts.QueueSize)
}

// Schedule enqueues a click without blocking. A full queue or a stopped
// recorder drops the event.
func (r *Recorder) Schedule(code, country string) {
	_ = r.Enqueue(models.ClickEvent{ShortCode: code, Country: country, Timestamp: time.Now().UTC()})
}

// Enqueue is Schedule for a fully formed event, as received from NATS
func (r *Recorder) Enqueue(event models.ClickEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return ErrRecorderStopped
	}

	select {
	case r.queue <- event:
		r.queued.Add(1)
		return nil
	default:
		r.dropped.Add(1)
		r.logger.Warn("analytics queue full, dropping event", "short_code", event.ShortCode)
		return ErrQueueFull
	}
}

// Record applies one click synchronously. The counter bump and the event
// row commit together or not at all.
func (r *Recorder) Record(ctx context.Context, code, country string) error {
	event := models.ClickEvent{ShortCode: code, Country: country, Timestamp: time.Now().UTC()}
	missing, err := r.store.RecordClicks(ctx, []models.ClickEvent{event})
	if err != nil {
		r.failed.Add(1)
		return err
	}

	r.recorded.Add(1)
	if len(missing) > 0 {
		r.logger.WarnContext(ctx, "click for unknown short code", "short_code", code)
		return nil
	}
	if r.notifier != nil {
		r.notifier.Notify(code, 1)
	}
	return nil
}

// Stop closes intake and waits for the workers to flush what is queued.
// Events still queued when ctx expires are lost.
func (r *Recorder) Stop(ctx context.Context) error {
	r.close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("analytics workers stopped", "recorded", r.recorded.Load(), "dropped", r.dropped.Load())
		return nil
	case <-ctx.Done():
		r.logger.Warn("analytics drain timed out", "pending", len(r.queue))
		return ctx.Err()
	}
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Queued:   r.queued.Load(),
		Pending:  len(r.queue),
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

func (r *Recorder) close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
}

func (r *Recorder) worker(ctx context.Context, id int) {
	batch := make([]models.ClickEvent, 0, r.opts.BatchSize)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	done := ctx.Done()

	for {
		select {
		case event, ok := <-r.queue:
			if !ok {
				r.flush(batch)
				r.logger.Debug("analytics worker exiting", "worker", id)
				return
			}
			batch = append(batch, event)

			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-done:
			// Keep draining until the queue is closed and empty
			r.close()
			done = nil
		}
	}
}

// flush writes one batch. It runs on its own deadline so a cancelled
// lifecycle context does not abort the drain.
func (r *Recorder) flush(events []models.ClickEvent) {
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FlushTimeout)
	defer cancel()

	missing, err := r.store.RecordClicks(ctx, events)
	if err != nil {
		r.failed.Add(int64(len(events)))
		r.logger.Error("failed to record click batch", "events", len(events), "error", err)
		return
	}
	r.recorded.Add(int64(len(events)))

	skip := make(map[string]bool, len(missing))
	for _, code := range missing {
		skip[code] = true
		r.logger.Warn("click for unknown short code", "short_code", code)
	}

	if r.notifier == nil {
		return
	}

	deltas := make(map[string]int64)
	for _, e := range events {
		if !skip[e.ShortCode] {
			deltas[e.ShortCode]++
		}
	}
	for code, delta := range deltas {
		r.notifier.Notify(code, delta)
	}
}
