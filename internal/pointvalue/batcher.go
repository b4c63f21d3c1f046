package pointvalue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Write-behind defaults.
const (
	defaultMaxInstances   = 5
	defaultSpawnThreshold = 10000

	// batchWriteTimeout bounds one batch insert including its retries.
	batchWriteTimeout = time.Minute

	// drainPollInterval is how often Drain re-checks a stalled queue.
	drainPollInterval = 10 * time.Millisecond

	batchWriterTaskName = "pointvalue-batch-writer"
)

// Executor runs background tasks. Submit must not block; it returns an
// error when the task cannot be started.
type Executor interface {
	Submit(name string, task func(ctx context.Context)) error
}

// writeBehindEntry is the reduced form of an async-eligible point value.
type writeBehindEntry struct {
	pointID  int
	dataType DataType
	value    float64
	ts       int64
}

// pointValue rebuilds the point value an entry was made from.
func (e writeBehindEntry) pointValue() PointValue {
	v, _ := Decode(Row{DataType: e.dataType, Double: e.value}) //nolint:errcheck // Entries only hold numeric kinds
	return PointValue{PointID: e.pointID, Time: e.ts, Value: v}
}

// batchConfig tunes a batcher.
type batchConfig struct {
	maxInstances   int
	spawnThreshold int
	maxRows        int
	retry          RetryPolicy
}

// batcher coalesces write-behind entries into multi-row inserts.
//
// One mutex guards both the queue and the active worker count so that a
// worker deciding to exit and an enqueue deciding whether to spawn always
// see the same state. Entries from different enqueue calls may be written
// in any order.
type batcher struct {
	cfg         batchConfig
	exec        Executor
	write       func(ctx context.Context, entries []writeBehindEntry) error
	isTransient func(error) bool
	onWritten   func(entries []writeBehindEntry)
	logger      Logger

	mu     sync.Mutex
	queue  []writeBehindEntry
	active int
	closed bool
	idle   chan struct{} // closed while the queue is empty and no worker runs

	activeGauge  atomic.Int64
	rowsWritten  atomic.Uint64
	rowsDropped  atomic.Uint64
	spawnRejects atomic.Uint64
}

func newBatcher(cfg batchConfig, exec Executor, write func(context.Context, []writeBehindEntry) error, isTransient func(error) bool) *batcher {
	if cfg.maxInstances <= 0 {
		cfg.maxInstances = defaultMaxInstances
	}
	if cfg.spawnThreshold <= 0 {
		cfg.spawnThreshold = defaultSpawnThreshold
	}
	if cfg.maxRows <= 0 {
		cfg.maxRows = 1
	}

	idle := make(chan struct{})
	close(idle)

	return &batcher{
		cfg:         cfg,
		exec:        exec,
		write:       write,
		isTransient: isTransient,
		onWritten:   func([]writeBehindEntry) {},
		logger:      noopLogger{},
		idle:        idle,
	}
}

// enqueue adds e to the queue and starts a worker if the backlog calls
// for one. A rejected worker start is not an error: the entry stays
// queued for a running or future worker.
func (b *batcher) enqueue(e writeBehindEntry) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrStoreClosed
	}
	b.queue = append(b.queue, e)
	b.markBusyLocked()
	spawn := b.reserveWorkerLocked()
	b.mu.Unlock()

	writeBehindQueueEntries.Inc()

	if spawn {
		b.spawn()
	}
	return nil
}

// markBusyLocked swaps in an open idle channel. Caller holds b.mu.
func (b *batcher) markBusyLocked() {
	select {
	case <-b.idle:
		b.idle = make(chan struct{})
	default:
	}
}

// markIdleLocked closes the idle channel if nothing is left to do.
// Caller holds b.mu.
func (b *batcher) markIdleLocked() {
	if len(b.queue) != 0 || b.active != 0 {
		return
	}
	select {
	case <-b.idle:
	default:
		close(b.idle)
	}
}

// reserveWorkerLocked decides whether another worker is needed and, if
// so, counts it as active. Caller holds b.mu.
func (b *batcher) reserveWorkerLocked() bool {
	if len(b.queue) <= b.active*b.cfg.spawnThreshold || b.active >= b.cfg.maxInstances {
		return false
	}
	b.active++
	return true
}

// spawn submits a reserved worker, rolling the reservation back if the
// executor refuses it.
func (b *batcher) spawn() {
	b.activeGauge.Add(1)
	writeBehindInstances.Inc()

	if err := b.exec.Submit(batchWriterTaskName, b.run); err != nil {
		b.mu.Lock()
		b.active--
		b.markIdleLocked()
		b.mu.Unlock()

		b.activeGauge.Add(-1)
		writeBehindInstances.Dec()
		b.spawnRejects.Add(1)
		writeBehindSpawnRejectedTotal.Inc()
		b.logger.Debug("batch writer spawn rejected", "error", err)
	}
}

// run is the worker loop: pop up to maxRows entries and write them until
// the queue is empty, then deregister.
func (b *batcher) run(ctx context.Context) {
	for {
		batch, ok := b.next(true)
		if !ok {
			return
		}
		b.flush(ctx, batch)
	}
}

// next pops the next batch. When the queue is empty and deregister is
// set, the calling worker is removed from the active count under the
// same lock.
func (b *batcher) next(deregister bool) ([]writeBehindEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		if deregister {
			b.active--
			b.activeGauge.Add(-1)
			writeBehindInstances.Dec()
		}
		b.markIdleLocked()
		return nil, false
	}

	n := min(len(b.queue), b.cfg.maxRows)
	batch := make([]writeBehindEntry, n)
	copy(batch, b.queue[:n])

	if n == len(b.queue) {
		b.queue = nil
	} else {
		b.queue = b.queue[n:]
	}
	writeBehindQueueEntries.Sub(float64(n))
	return batch, true
}

// flush writes one batch under the batch retry policy. A batch that still
// fails is dropped and logged.
func (b *batcher) flush(ctx context.Context, batch []writeBehindEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), batchWriteTimeout)
	defer cancel()

	start := time.Now()
	_, err := withRetry(ctx, b.cfg.retry, b.isTransient, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.write(ctx, batch)
	})
	batchWriteSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		b.rowsDropped.Add(uint64(len(batch)))
		batchRowsDroppedTotal.Add(float64(len(batch)))
		b.logger.Error("point value batch dropped, data lost",
			"rows", len(batch),
			"error", err,
		)
		return
	}

	b.rowsWritten.Add(uint64(len(batch)))
	batchRowsWrittenTotal.Add(float64(len(batch)))
	b.onWritten(batch)
}

// queueLen returns the number of queued entries.
func (b *batcher) queueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// kick starts a worker when entries are queued but none is running,
// which happens after every spawn attempt was rejected.
func (b *batcher) kick() {
	b.mu.Lock()
	spawn := false
	if b.active == 0 && len(b.queue) > 0 {
		b.active++
		spawn = true
	}
	b.mu.Unlock()

	if spawn {
		b.spawn()
	}
}

// drain waits until every queued entry has been written or dropped.
func (b *batcher) drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		b.kick()

		b.mu.Lock()
		idle := b.idle
		b.mu.Unlock()

		select {
		case <-idle:
			return nil
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close stops accepting entries, waits for running workers and writes
// whatever is left on the calling goroutine.
func (b *batcher) close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		b.mu.Lock()
		active := b.active
		b.mu.Unlock()
		if active == 0 {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		batch, ok := b.next(false)
		if !ok {
			return nil
		}
		b.flush(ctx, batch)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
