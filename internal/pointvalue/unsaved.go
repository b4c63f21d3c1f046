package pointvalue

import "sync"

// defaultMaxUnsaved caps the unsaved buffer when no limit is configured.
const defaultMaxUnsaved = 10000

// unsavedBuffer holds point values whose synchronous insert ran out of
// retries. It lives in memory only; its contents are lost on restart.
type unsavedBuffer struct {
	mu      sync.Mutex
	values  []PointValue
	max     int
	dropped uint64
}

func newUnsavedBuffer(limit int) *unsavedBuffer {
	if limit <= 0 {
		limit = defaultMaxUnsaved
	}
	return &unsavedBuffer{max: limit}
}

// add appends pv, discarding the oldest entry when full.
// It reports whether an entry was discarded.
func (u *unsavedBuffer) add(pv PointValue) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.values = append(u.values, pv)
	unsavedValues.Inc()
	return u.trimLocked() > 0
}

// requeue puts values back ahead of anything buffered since they were taken.
func (u *unsavedBuffer) requeue(values []PointValue) {
	if len(values) == 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	u.values = append(append(make([]PointValue, 0, len(values)+len(u.values)), values...), u.values...)
	unsavedValues.Add(float64(len(values)))
	u.trimLocked()
}

// trimLocked drops the oldest entries beyond max. Caller holds u.mu.
func (u *unsavedBuffer) trimLocked() int {
	excess := len(u.values) - u.max
	if excess <= 0 {
		return 0
	}
	u.values = u.values[excess:]
	u.dropped += uint64(excess)
	unsavedValues.Sub(float64(excess))
	unsavedDroppedTotal.Add(float64(excess))
	return excess
}

// takeAll empties the buffer and returns its contents, oldest first.
func (u *unsavedBuffer) takeAll() []PointValue {
	u.mu.Lock()
	defer u.mu.Unlock()

	values := u.values
	u.values = nil
	unsavedValues.Sub(float64(len(values)))
	return values
}

// size returns the number of buffered values.
func (u *unsavedBuffer) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.values)
}

// droppedCount returns how many values were discarded because the
// buffer was full.
func (u *unsavedBuffer) droppedCount() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}
