package pointvalue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// selectPointValues is the base read joining value rows with their
// annotation rows. Column order matches scanPointValue.
const selectPointValues = `SELECT pv.id, pv.data_point_id, pv.data_type, pv.point_value,
	pva.text_point_value_short, pva.text_point_value_long, pv.ts, pva.source_message
	FROM point_values pv
	LEFT JOIN point_value_annotations pva ON pv.id = pva.point_value_id`

// RowFunc receives streamed point values. index counts every value
// delivered by the query, starting at 0. Returning ErrQueryCancelled
// stops the query early; any other error aborts it and is returned.
//
// On SQLite the callback must not call back into the store: the single
// connection is held until the stream ends.
type RowFunc func(pv PointValue, index int) error

// WideQueryCallback receives the result of a wide query.
type WideQueryCallback interface {
	// PreQuery receives the last value before the window, if any.
	PreQuery(pv PointValue) error
	// Row receives each value inside the window in time order.
	Row(pv PointValue, index int) error
	// PostQuery receives the first value at or after the window end, if any.
	PostQuery(pv PointValue) error
}

// TimeRange is the first and last timestamp stored for a set of points.
type TimeRange struct {
	Start int64
	End   int64
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPointValue reads one selectPointValues row.
func scanPointValue(sc rowScanner) (PointValue, error) {
	var (
		pv     PointValue
		row    Row
		dt     int
		source sql.NullString
	)
	if err := sc.Scan(&pv.ID, &pv.PointID, &dt, &row.Double, &row.Short, &row.Long, &pv.Time, &source); err != nil {
		return PointValue{}, err
	}
	row.DataType = DataType(dt)

	v, err := Decode(row)
	if err != nil {
		return PointValue{}, fmt.Errorf("point value %d: %w", pv.ID, err)
	}
	pv.Value = v

	if source.Valid {
		pv.Annotation = &Annotation{SourceMessage: source.String}
	}
	return pv, nil
}

// queryOne returns the single value selected by where, or nil.
func (s *Store) queryOne(ctx context.Context, where string, args ...any) (*PointValue, error) {
	pv, err := scanPointValue(s.db.QueryRowContext(ctx, selectPointValues+" "+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying point value: %w", err)
	}
	return &pv, nil
}

// FetchByID returns the value stored under row id, or nil.
func (s *Store) FetchByID(ctx context.Context, id int64) (*PointValue, error) {
	return s.queryOne(ctx, "WHERE pv.id = ?", id)
}

// Latest returns the most recent value of the point, or nil if it has none.
func (s *Store) Latest(ctx context.Context, pointID int) (*PointValue, error) {
	return s.queryOne(ctx, "WHERE pv.data_point_id = ? ORDER BY pv.ts DESC, pv.id DESC LIMIT 1", pointID)
}

// Before returns the latest value strictly before t, or nil.
func (s *Store) Before(ctx context.Context, pointID int, t int64) (*PointValue, error) {
	return s.queryOne(ctx, "WHERE pv.data_point_id = ? AND pv.ts < ? ORDER BY pv.ts DESC, pv.id DESC LIMIT 1", pointID, t)
}

// At returns a value stamped exactly t, or nil. With duplicate
// timestamps the most recently inserted row wins.
func (s *Store) At(ctx context.Context, pointID int, t int64) (*PointValue, error) {
	return s.queryOne(ctx, "WHERE pv.data_point_id = ? AND pv.ts = ? ORDER BY pv.id DESC LIMIT 1", pointID, t)
}

// After returns the earliest value at or after t, or nil.
func (s *Store) After(ctx context.Context, pointID int, t int64) (*PointValue, error) {
	return s.queryOne(ctx, "WHERE pv.data_point_id = ? AND pv.ts >= ? ORDER BY pv.ts ASC, pv.id ASC LIMIT 1", pointID, t)
}

// StreamRange streams values of the point with from <= ts < to in
// ascending time order. limit <= 0 means no limit.
func (s *Store) StreamRange(ctx context.Context, pointID int, from, to int64, limit int, fn RowFunc) error {
	query, args := withLimit(selectPointValues+" WHERE pv.data_point_id = ? AND pv.ts >= ? AND pv.ts < ? ORDER BY pv.ts ASC, pv.id ASC",
		[]any{pointID, from, to}, limit)
	index := 0
	return s.streamRows(ctx, query, args, &index, fn)
}

// Range returns values of the point with from <= ts < to in ascending
// time order. limit <= 0 means no limit.
func (s *Store) Range(ctx context.Context, pointID int, from, to int64, limit int) ([]PointValue, error) {
	var out []PointValue
	err := s.StreamRange(ctx, pointID, from, to, limit, collectInto(&out))
	return out, err
}

// Since returns every value of the point with ts >= since in ascending
// time order.
func (s *Store) Since(ctx context.Context, pointID int, since int64) ([]PointValue, error) {
	var out []PointValue
	index := 0
	err := s.streamRows(ctx,
		selectPointValues+" WHERE pv.data_point_id = ? AND pv.ts >= ? ORDER BY pv.ts ASC, pv.id ASC",
		[]any{pointID, since}, &index, collectInto(&out))
	return out, err
}

// LatestN returns up to limit of the most recent values, newest first.
// limit <= 0 returns nothing.
func (s *Store) LatestN(ctx context.Context, pointID int, limit int) ([]PointValue, error) {
	switch {
	case limit <= 0:
		return nil, nil
	case limit == 1:
		return single(s.Latest(ctx, pointID))
	}

	var out []PointValue
	index := 0
	err := s.streamRows(ctx,
		selectPointValues+" WHERE pv.data_point_id = ? ORDER BY pv.ts DESC, pv.id DESC LIMIT ?",
		[]any{pointID, limit}, &index, collectInto(&out))
	return out, err
}

// LatestNBefore returns up to limit values with ts < before, newest first.
// limit <= 0 returns nothing.
func (s *Store) LatestNBefore(ctx context.Context, pointID int, limit int, before int64) ([]PointValue, error) {
	switch {
	case limit <= 0:
		return nil, nil
	case limit == 1:
		return single(s.Before(ctx, pointID, before))
	}

	var out []PointValue
	index := 0
	err := s.streamRows(ctx,
		selectPointValues+" WHERE pv.data_point_id = ? AND pv.ts < ? ORDER BY pv.ts DESC, pv.id DESC LIMIT ?",
		[]any{pointID, before, limit}, &index, collectInto(&out))
	return out, err
}

// StreamLatest streams values with ts < before, newest first, for every
// point in pointIDs.
//
// With orderByID each point is queried on its own, in the order given,
// and limit applies per point. Otherwise one merged query is ordered by
// time across all points and limit applies to the combined result, so a
// busy point can crowd quieter ones out entirely. limit <= 0 means no
// limit.
func (s *Store) StreamLatest(ctx context.Context, pointIDs []int, before int64, orderByID bool, limit int, fn RowFunc) error {
	pointIDs = uniquePoints(pointIDs)
	if len(pointIDs) == 0 {
		return nil
	}

	index := 0
	if orderByID {
		for _, id := range pointIDs {
			query, args := withLimit(selectPointValues+" WHERE pv.data_point_id = ? AND pv.ts < ? ORDER BY pv.ts DESC, pv.id DESC",
				[]any{id, before}, limit)
			if err := s.streamRows(ctx, query, args, &index, fn); err != nil {
				return err
			}
		}
		return nil
	}

	in, args := inClause(pointIDs)
	query, args := withLimit(selectPointValues+" WHERE pv.data_point_id IN ("+in+") AND pv.ts < ? ORDER BY pv.ts DESC, pv.id DESC",
		append(args, before), limit)
	return s.streamRows(ctx, query, args, &index, fn)
}

// StreamBetween streams values with from <= ts < to in ascending time
// order for every point in pointIDs. orderByID and limit behave as for
// StreamLatest.
func (s *Store) StreamBetween(ctx context.Context, pointIDs []int, from, to int64, orderByID bool, limit int, fn RowFunc) error {
	pointIDs = uniquePoints(pointIDs)
	if len(pointIDs) == 0 {
		return nil
	}

	index := 0
	if orderByID {
		for _, id := range pointIDs {
			query, args := withLimit(selectPointValues+" WHERE pv.data_point_id = ? AND pv.ts >= ? AND pv.ts < ? ORDER BY pv.ts ASC, pv.id ASC",
				[]any{id, from, to}, limit)
			if err := s.streamRows(ctx, query, args, &index, fn); err != nil {
				return err
			}
		}
		return nil
	}

	in, args := inClause(pointIDs)
	query, args := withLimit(selectPointValues+" WHERE pv.data_point_id IN ("+in+") AND pv.ts >= ? AND pv.ts < ? ORDER BY pv.ts ASC, pv.id ASC",
		append(args, from, to), limit)
	return s.streamRows(ctx, query, args, &index, fn)
}

// WideQuery delivers the value before from, the values in [from, to)
// and the first value at or after to.
func (s *Store) WideQuery(ctx context.Context, pointID int, from, to int64, cb WideQueryCallback) error {
	pre, err := s.Before(ctx, pointID, from)
	if err != nil {
		return err
	}
	if pre != nil {
		if err := cb.PreQuery(*pre); err != nil {
			return s.callbackErr(err)
		}
	}

	if err := s.StreamRange(ctx, pointID, from, to, 0, cb.Row); err != nil {
		return err
	}

	post, err := s.After(ctx, pointID, to)
	if err != nil {
		return err
	}
	if post != nil {
		if err := cb.PostQuery(*post); err != nil {
			return s.callbackErr(err)
		}
	}
	return nil
}

// Count returns how many values the point has with from <= ts < to.
func (s *Store) Count(ctx context.Context, pointID int, from, to int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM point_values WHERE data_point_id = ? AND ts >= ? AND ts < ?",
		pointID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting point values: %w", err)
	}
	return n, nil
}

// InceptionDate returns the earliest timestamp of the point.
// ok is false when the point has no values.
func (s *Store) InceptionDate(ctx context.Context, pointID int) (ts int64, ok bool, err error) {
	return s.StartTime(ctx, []int{pointID})
}

// StartTime returns the earliest timestamp across pointIDs.
func (s *Store) StartTime(ctx context.Context, pointIDs []int) (ts int64, ok bool, err error) {
	return s.aggregateTime(ctx, "MIN", pointIDs)
}

// EndTime returns the latest timestamp across pointIDs.
func (s *Store) EndTime(ctx context.Context, pointIDs []int) (ts int64, ok bool, err error) {
	return s.aggregateTime(ctx, "MAX", pointIDs)
}

// StartAndEndTime returns the earliest and latest timestamps across
// pointIDs in one query.
func (s *Store) StartAndEndTime(ctx context.Context, pointIDs []int) (TimeRange, bool, error) {
	pointIDs = uniquePoints(pointIDs)
	if len(pointIDs) == 0 {
		return TimeRange{}, false, nil
	}

	in, args := inClause(pointIDs)
	var start, end sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(ts), MAX(ts) FROM point_values WHERE data_point_id IN ("+in+")", args...,
	).Scan(&start, &end)
	if err != nil {
		return TimeRange{}, false, fmt.Errorf("querying time range: %w", err)
	}
	if !start.Valid || !end.Valid {
		return TimeRange{}, false, nil
	}
	return TimeRange{Start: start.Int64, End: end.Int64}, true, nil
}

// aggregateTime runs MIN or MAX over ts for pointIDs.
func (s *Store) aggregateTime(ctx context.Context, fn string, pointIDs []int) (int64, bool, error) {
	pointIDs = uniquePoints(pointIDs)
	if len(pointIDs) == 0 {
		return 0, false, nil
	}

	in, args := inClause(pointIDs)
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT "+fn+"(ts) FROM point_values WHERE data_point_id IN ("+in+")", args...,
	).Scan(&ts)
	if err != nil {
		return 0, false, fmt.Errorf("querying %s timestamp: %w", strings.ToLower(fn), err)
	}
	return ts.Int64, ts.Valid, nil
}

// Images returns the stored image references of the point.
func (s *Store) Images(ctx context.Context, pointID int) ([]ImageValue, error) {
	var out []ImageValue
	index := 0
	err := s.streamRows(ctx,
		selectPointValues+" WHERE pv.data_point_id = ? AND pv.data_type = ? ORDER BY pv.ts ASC, pv.id ASC",
		[]any{pointID, int(DataTypeImage)}, &index,
		func(pv PointValue, _ int) error {
			if img, ok := pv.Value.(ImageValue); ok {
				out = append(out, img)
			}
			return nil
		})
	return out, err
}

// Image returns the image value stored under row id for the point along
// with its payload.
//
// Returns:
//   - ImageValue: The stored image reference
//   - []byte: The payload from the blob store
//   - error: ErrImageNotFound if the row is missing, belongs to another
//     point or is not an image; otherwise a read or blob store error
func (s *Store) Image(ctx context.Context, pointID int, id int64) (ImageValue, []byte, error) {
	pv, err := s.FetchByID(ctx, id)
	if err != nil {
		return ImageValue{}, nil, err
	}
	if pv == nil || pv.PointID != pointID {
		return ImageValue{}, nil, fmt.Errorf("%w: value %d of point %d", ErrImageNotFound, id, pointID)
	}
	img, ok := pv.Value.(ImageValue)
	if !ok {
		return ImageValue{}, nil, fmt.Errorf("%w: value %d is %s", ErrImageNotFound, id, pv.Value.DataType())
	}

	data, err := s.ImageData(ctx, img)
	if err != nil {
		return ImageValue{}, nil, err
	}
	return img, data, nil
}

// ImageData reads the payload of img from the blob store. An image that
// has not been saved yet returns its in-memory payload.
func (s *Store) ImageData(ctx context.Context, img ImageValue) ([]byte, error) {
	if !img.Saved() {
		return img.Data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: no blob store for image value", ErrPermanentStorage)
	}
	data, err := s.blobs.Load(img.BlobID, img.TypeCode)
	if err != nil {
		return nil, fmt.Errorf("loading image %d: %w", img.BlobID, err)
	}
	return data, nil
}

// streamRows runs query and hands each decoded row to fn. index is
// shared so multi-query reads number their rows continuously.
func (s *Store) streamRows(ctx context.Context, query string, args []any, index *int, fn RowFunc) error {
	if err := ctx.Err(); err != nil {
		return s.cancelled(err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.cancelled(ctxErr)
		}
		return fmt.Errorf("querying point values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		pv, err := scanPointValue(rows)
		if err != nil {
			return fmt.Errorf("scanning point value: %w", err)
		}
		if err := fn(pv, *index); err != nil {
			return s.callbackErr(err)
		}
		*index++

		if err := ctx.Err(); err != nil {
			return s.cancelled(err)
		}
	}

	if err := rows.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.cancelled(ctxErr)
		}
		return fmt.Errorf("reading point values: %w", err)
	}
	return nil
}

// callbackErr maps a callback's cancellation to ErrQueryCancelled and
// returns other errors unchanged.
func (s *Store) callbackErr(err error) error {
	if errors.Is(err, ErrQueryCancelled) {
		return s.cancelled(nil)
	}
	return err
}

// cancelled logs a cancelled query at debug level and returns
// ErrQueryCancelled, wrapping cause when there is one.
func (s *Store) cancelled(cause error) error {
	s.logger.Debug("point value query cancelled", "cause", cause)
	if cause == nil {
		return ErrQueryCancelled
	}
	return fmt.Errorf("%w: %w", ErrQueryCancelled, cause)
}

// withLimit appends a LIMIT clause when limit is positive.
func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return query + " LIMIT ?", append(args, limit)
}

// inClause returns "?, ?, ..." for ids and the matching arguments.
func inClause(ids []int) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders(len(ids)), args
}

// placeholders returns n comma separated ? markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// uniquePoints drops repeated ids, keeping first occurrences in order.
func uniquePoints(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// collectInto returns a RowFunc appending to out.
func collectInto(out *[]PointValue) RowFunc {
	return func(pv PointValue, _ int) error {
		*out = append(*out, pv)
		return nil
	}
}

// single adapts a single-row lookup to a slice result.
func single(pv *PointValue, err error) ([]PointValue, error) {
	if err != nil || pv == nil {
		return nil, err
	}
	return []PointValue{*pv}, nil
}
