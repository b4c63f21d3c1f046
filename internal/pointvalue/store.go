package pointvalue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/database"
)

// SQL for point value writes.
const (
	insertValueSQL = `INSERT INTO point_values (data_point_id, data_type, point_value, ts) VALUES (?, ?, ?, ?)`

	insertAnnotationSQL = `INSERT INTO point_value_annotations
		(point_value_id, text_point_value_short, text_point_value_long, source_message)
		VALUES (?, ?, ?, ?)`

	insertBatchPrefix = `INSERT INTO point_values (data_point_id, data_type, point_value, ts) VALUES `

	unsavedFlushTaskName = "pointvalue-unsaved-flush"
)

// Logger defines the logging interface for the store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BlobStore keeps image payloads outside the database.
type BlobStore interface {
	Save(id int64, typeCode int, data []byte) error
	Load(id int64, typeCode int) ([]byte, error)
	Delete(id int64, typeCode int) error
}

// Mirror receives every point value after it has been persisted.
// Implementations must not block.
type Mirror interface {
	WritePointValue(pointID int, dataType string, value any, ts time.Time)
}

// Flusher is implemented by mirrors that buffer writes. Close flushes
// them once the write-behind queue has drained.
type Flusher interface {
	Flush()
}

// Mirrors fans a persisted value out to several mirrors in order.
type Mirrors []Mirror

// WritePointValue implements Mirror.
func (m Mirrors) WritePointValue(pointID int, dataType string, value any, ts time.Time) {
	for _, mirror := range m {
		mirror.WritePointValue(pointID, dataType, value, ts)
	}
}

// Flush implements Flusher for the members that buffer.
func (m Mirrors) Flush() {
	for _, mirror := range m {
		if f, ok := mirror.(Flusher); ok {
			f.Flush()
		}
	}
}

// Options tunes a Store. Zero fields take the defaults shown.
type Options struct {
	// MaxInstances caps concurrent batch writers (5).
	MaxInstances int

	// SpawnThreshold is the backlog per running writer that triggers
	// another writer (10000).
	SpawnThreshold int

	// MaxRows caps rows per batch insert. It is clamped to the backend
	// limit, which is also the default.
	MaxRows int

	// SyncAttempts, ReadAttempts and BatchAttempts bound the tries for a
	// synchronous insert, its read-back and a batch insert (5, 5, 10).
	SyncAttempts  int
	ReadAttempts  int
	BatchAttempts int

	// BatchBackoff is multiplied by the attempt number between batch
	// insert tries (100ms).
	BatchBackoff time.Duration

	// ChunkSize is the row count of one delete chunk (1000).
	ChunkSize int

	// OrphanChunkWait pauses between orphan delete chunks (5s).
	// A negative value disables the pause.
	OrphanChunkWait time.Duration

	// OrphanMaxRows caps one orphan purge (100000).
	OrphanMaxRows int

	// MaxUnsaved caps the unsaved value buffer (10000).
	MaxUnsaved int
}

// withDefaults fills zero fields.
func (o Options) withDefaults(dialect database.Dialect) Options {
	if o.MaxInstances <= 0 {
		o.MaxInstances = defaultMaxInstances
	}
	if o.SpawnThreshold <= 0 {
		o.SpawnThreshold = defaultSpawnThreshold
	}
	if o.MaxRows <= 0 || o.MaxRows > dialect.MaxInsertRows() {
		o.MaxRows = dialect.MaxInsertRows()
	}
	if o.SyncAttempts <= 0 {
		o.SyncAttempts = 5
	}
	if o.ReadAttempts <= 0 {
		o.ReadAttempts = 5
	}
	if o.BatchAttempts <= 0 {
		o.BatchAttempts = 10
	}
	if o.BatchBackoff <= 0 {
		o.BatchBackoff = 100 * time.Millisecond
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.OrphanChunkWait < 0 {
		o.OrphanChunkWait = 0
	} else if o.OrphanChunkWait == 0 {
		o.OrphanChunkWait = 5 * time.Second
	}
	if o.OrphanMaxRows <= 0 {
		o.OrphanMaxRows = 100000
	}
	if o.MaxUnsaved <= 0 {
		o.MaxUnsaved = defaultMaxUnsaved
	}
	return o
}

// Stats is a snapshot of store activity counters.
type Stats struct {
	SyncInserts      uint64 `json:"sync_inserts"`
	AsyncEnqueued    uint64 `json:"async_enqueued"`
	Unsaved          int    `json:"unsaved"`
	UnsavedDropped   uint64 `json:"unsaved_dropped"`
	QueueLen         int    `json:"queue_len"`
	ActiveWriters    int    `json:"active_writers"`
	BatchRowsWritten uint64 `json:"batch_rows_written"`
	BatchRowsDropped uint64 `json:"batch_rows_dropped"`
	SpawnRejected    uint64 `json:"spawn_rejected"`
}

// Store is the point value store: synchronous and write-behind inserts,
// point and multi-point reads, bookend queries and chunked deletes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Store struct {
	db      *database.DB
	dialect database.Dialect
	blobs   BlobStore
	exec    Executor
	opts    Options
	logger  Logger
	mirror  Mirror

	syncRetry RetryPolicy
	readRetry RetryPolicy

	batcher *batcher
	unsaved *unsavedBuffer

	closed        atomic.Bool
	flushing      atomic.Bool
	syncInserts   atomic.Uint64
	asyncEnqueued atomic.Uint64
}

// New creates a Store on db.
//
// Parameters:
//   - db: Migrated database connection
//   - blobs: Side-store for image payloads (nil disables image inserts)
//   - exec: Executor that runs batch writers
//   - opts: Tuning, zero values take defaults
//
// Returns:
//   - *Store: Ready to use; call Close to flush queued values
func New(db *database.DB, blobs BlobStore, exec Executor, opts Options) *Store {
	dialect := db.Dialect()
	opts = opts.withDefaults(dialect)

	s := &Store{
		db:        db,
		dialect:   dialect,
		blobs:     blobs,
		exec:      exec,
		opts:      opts,
		logger:    noopLogger{},
		syncRetry: ImmediateRetry(opts.SyncAttempts),
		readRetry: ImmediateRetry(opts.ReadAttempts),
		unsaved:   newUnsavedBuffer(opts.MaxUnsaved),
	}

	s.batcher = newBatcher(batchConfig{
		maxInstances:   opts.MaxInstances,
		spawnThreshold: opts.SpawnThreshold,
		maxRows:        opts.MaxRows,
		retry:          LinearRetry(opts.BatchAttempts, opts.BatchBackoff),
	}, exec, s.writeBatch, dialect.IsTransient)
	s.batcher.onWritten = s.mirrorBatch

	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
	s.batcher.logger = logger
}

// SetMirror sets a receiver for persisted point values.
func (s *Store) SetMirror(m Mirror) {
	s.mirror = m
}

// InsertSync stores pv and returns it as read back from the database.
//
// The value row, its annotation row and any image payload are written in
// one transaction under the sync retry policy, then re-read by id under
// the read retry policy. If the retries run out on a transient failure
// the value is kept in the unsaved buffer and confirmed is false with a
// nil error; it is retried after the next successful write.
//
// Returns:
//   - PointValue: The stored value (image payload released)
//   - bool: confirmed, false when the value was buffered instead
//   - error: ErrPermanentStorage, ErrUnsupportedValueKind or a validation error
func (s *Store) InsertSync(ctx context.Context, pv PointValue) (PointValue, bool, error) {
	if err := validate(pv); err != nil {
		return PointValue{}, false, err
	}
	if s.closed.Load() {
		return PointValue{}, false, ErrStoreClosed
	}

	stored, err := s.persist(ctx, pv)
	if err != nil {
		if errors.Is(err, ErrTransientConflict) {
			if s.unsaved.add(pv) {
				s.logger.Warn("unsaved point value buffer full, oldest value dropped")
			}
			s.logger.Warn("point value not saved, buffered for retry",
				"point_id", pv.PointID,
				"ts", pv.Time,
				"error", err,
			)
			return pv, false, nil
		}
		return PointValue{}, false, fmt.Errorf("inserting point value: %w", err)
	}

	s.flushUnsaved(ctx)
	return stored, true, nil
}

// InsertAsync stores pv through the write-behind batcher when it is
// eligible (numeric, binary or multistate without annotation) and falls
// back to InsertSync otherwise.
//
// Queued values are written in batches with no ordering guarantee
// between calls. Callers that need strict write order must use
// InsertSync.
func (s *Store) InsertAsync(ctx context.Context, pv PointValue) error {
	if err := validate(pv); err != nil {
		return err
	}
	if !pv.asyncEligible() {
		_, _, err := s.InsertSync(ctx, pv)
		return err
	}

	if s.unsaved.size() > 0 {
		s.scheduleUnsavedFlush()
	}

	row, err := Encode(pv.Value)
	if err != nil {
		return err
	}

	if err := s.batcher.enqueue(writeBehindEntry{
		pointID:  pv.PointID,
		dataType: row.DataType,
		value:    row.Double,
		ts:       pv.Time,
	}); err != nil {
		return err
	}

	s.asyncEnqueued.Add(1)
	asyncEnqueuedTotal.Inc()
	return nil
}

// Drain blocks until every queued write-behind entry has been written
// or dropped.
func (s *Store) Drain(ctx context.Context) error {
	return s.batcher.drain(ctx)
}

// Close stops accepting writes, flushes the write-behind queue and then
// flushes a buffering mirror. Unsaved values still buffered are logged and discarded.
func (s *Store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.batcher.close(ctx)
	if f, ok := s.mirror.(Flusher); ok {
		f.Flush()
	}
	if n := s.unsaved.size(); n > 0 {
		s.logger.Warn("discarding unsaved point values on close", "count", n)
	}
	if err != nil {
		return fmt.Errorf("flushing write-behind queue: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	return Stats{
		SyncInserts:      s.syncInserts.Load(),
		AsyncEnqueued:    s.asyncEnqueued.Load(),
		Unsaved:          s.unsaved.size(),
		UnsavedDropped:   s.unsaved.droppedCount(),
		QueueLen:         s.batcher.queueLen(),
		ActiveWriters:    int(s.batcher.activeGauge.Load()),
		BatchRowsWritten: s.batcher.rowsWritten.Load(),
		BatchRowsDropped: s.batcher.rowsDropped.Load(),
		SpawnRejected:    s.batcher.spawnRejects.Load(),
	}
}

// validate checks the fields every insert needs.
func validate(pv PointValue) error {
	if pv.PointID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPoint, pv.PointID)
	}
	if pv.Value == nil {
		return ErrInvalidValue
	}
	return nil
}

// persist runs the two-step protocol: insert returning the id, then
// fetch the row back by id. A failed read-back falls back to the value
// built locally since the insert itself committed.
func (s *Store) persist(ctx context.Context, pv PointValue) (PointValue, error) {
	id, err := withRetry(ctx, s.syncRetry, s.dialect.IsTransient, func(ctx context.Context) (int64, error) {
		return s.insertReturningID(ctx, pv)
	})
	if err != nil {
		return PointValue{}, classify(err)
	}

	s.syncInserts.Add(1)
	syncInsertsTotal.Inc()

	result := storedForm(pv, id)
	fetched, err := withRetry(ctx, s.readRetry, s.dialect.IsTransient, func(ctx context.Context) (*PointValue, error) {
		return s.FetchByID(ctx, id)
	})
	switch {
	case err != nil:
		s.logger.Warn("point value read-back failed, returning local copy", "id", id, "error", err)
	case fetched == nil:
		s.logger.Warn("point value missing on read-back, returning local copy", "id", id)
	default:
		result = *fetched
	}

	s.mirrorValue(result)
	return result, nil
}

// storedForm returns pv as it exists once inserted under id: the id is
// set and an image payload is released in favour of its blob id.
func storedForm(pv PointValue, id int64) PointValue {
	pv.ID = id
	if img, ok := pv.Value.(ImageValue); ok {
		if !img.Saved() {
			img.BlobID = id
		}
		img.Data = nil
		pv.Value = img
	}
	return pv
}

// insertReturningID writes the value row, its annotation row and any
// image payload in one transaction.
func (s *Store) insertReturningID(ctx context.Context, pv PointValue) (int64, error) {
	row, err := Encode(pv.Value)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	id, err := s.dialect.InsertReturningID(ctx, tx, insertValueSQL,
		pv.PointID, int(row.DataType), row.Double, pv.Time)
	if err != nil {
		return 0, fmt.Errorf("inserting value row: %w", err)
	}

	img, isImage := pv.Value.(ImageValue)
	newBlob := isImage && !img.Saved()
	if newBlob {
		row.Short = sql.NullString{String: strconv.FormatInt(id, 10), Valid: true}
	}

	if row.hasText() || pv.Annotation != nil {
		var source sql.NullString
		if pv.Annotation != nil {
			source = sql.NullString{String: pv.Annotation.SourceMessage, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind(insertAnnotationSQL),
			id, row.Short, row.Long, source); err != nil {
			return 0, fmt.Errorf("inserting annotation row: %w", err)
		}
	}

	if newBlob {
		if s.blobs == nil {
			return 0, fmt.Errorf("%w: no blob store for image value", ErrPermanentStorage)
		}
		if err := s.blobs.Save(id, img.TypeCode, img.Data); err != nil {
			return 0, fmt.Errorf("%w: saving image: %w", ErrPermanentStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if newBlob {
			s.blobs.Delete(id, img.TypeCode) //nolint:errcheck // Best effort, id is never reused
		}
		return 0, fmt.Errorf("committing point value: %w", err)
	}
	return id, nil
}

// writeBatch inserts entries with one multi-row statement.
func (s *Store) writeBatch(ctx context.Context, entries []writeBehindEntry) error {
	var b strings.Builder
	b.Grow(len(insertBatchPrefix) + len(entries)*len("(?,?,?,?),"))
	b.WriteString(insertBatchPrefix)

	args := make([]any, 0, len(entries)*4) //nolint:mnd // Four columns per row
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?,?,?,?)")
		args = append(args, e.pointID, int(e.dataType), e.value, e.ts)
	}

	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

// classify marks failures that retrying cannot fix as permanent.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrTransientConflict),
		errors.Is(err, ErrPermanentStorage),
		errors.Is(err, ErrUnsupportedValueKind),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrPermanentStorage, err)
	}
}

// flushUnsaved retries buffered values. It stops at the first transient
// failure and puts the rest back. Only one flush runs at a time.
func (s *Store) flushUnsaved(ctx context.Context) {
	if s.unsaved.size() == 0 || !s.flushing.CompareAndSwap(false, true) {
		return
	}
	defer s.flushing.Store(false)

	pending := s.unsaved.takeAll()
	for i, pv := range pending {
		if _, err := s.persist(ctx, pv); err != nil {
			if errors.Is(err, ErrTransientConflict) || ctx.Err() != nil {
				s.unsaved.requeue(pending[i:])
				return
			}
			s.logger.Error("dropping unsaved point value",
				"point_id", pv.PointID,
				"ts", pv.Time,
				"error", err,
			)
		}
	}
	if len(pending) > 0 {
		s.logger.Info("unsaved point values recovered", "count", len(pending))
	}
}

// scheduleUnsavedFlush flushes the unsaved buffer in the background so
// InsertAsync never blocks on it.
func (s *Store) scheduleUnsavedFlush() {
	err := s.exec.Submit(unsavedFlushTaskName, func(ctx context.Context) {
		s.flushUnsaved(context.WithoutCancel(ctx))
	})
	if err != nil {
		s.logger.Debug("unsaved flush not scheduled", "error", err)
	}
}

// mirrorValue forwards a persisted value to the mirror, if any.
func (s *Store) mirrorValue(pv PointValue) {
	if s.mirror == nil || pv.Value == nil {
		return
	}
	s.mirror.WritePointValue(pv.PointID, pv.Value.DataType().String(), mirrorField(pv.Value), time.UnixMilli(pv.Time))
}

// mirrorBatch forwards a written batch to the mirror, if any.
func (s *Store) mirrorBatch(entries []writeBehindEntry) {
	if s.mirror == nil {
		return
	}
	for _, e := range entries {
		s.mirrorValue(e.pointValue())
	}
}

// mirrorField converts a value to a plain Go type for the mirror.
func mirrorField(v Value) any {
	switch tv := v.(type) {
	case NumericValue:
		return float64(tv)
	case BinaryValue:
		return bool(tv)
	case MultistateValue:
		return int64(tv)
	case AlphanumericValue:
		return string(tv)
	case ImageValue:
		return tv.BlobID
	default:
		return nil
	}
}
