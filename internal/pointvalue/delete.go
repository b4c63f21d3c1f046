package pointvalue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	// defaultChunkSize is the number of rows removed per delete statement.
	defaultChunkSize = 1000

	// orphanAnnotationChunk is the id-list size for orphaned annotation
	// cleanup.
	orphanAnnotationChunk = 1000
)

// Row filters for the chunked delete primitive. They apply to
// point_values without an alias.
const (
	whereID          = "id = ?"
	wherePointAt     = "data_point_id = ? AND ts = ?"
	wherePointBefore = "data_point_id = ? AND ts < ?"
	wherePointRange  = "data_point_id = ? AND ts >= ? AND ts < ?"
	wherePoint       = "data_point_id = ?"
	whereBefore      = "ts < ?"
	whereEverything  = "1 = 1"
	whereOrphaned    = "data_point_id NOT IN (SELECT id FROM data_points)"
)

// DeleteByID removes one value row and its annotation.
func (s *Store) DeleteByID(ctx context.Context, id int64) (int64, error) {
	return s.deleteValues(ctx, whereID, []any{id}, 0, 0)
}

// DeleteAt removes the point's values stamped exactly t.
func (s *Store) DeleteAt(ctx context.Context, pointID int, t int64) (int64, error) {
	return s.deleteValues(ctx, wherePointAt, []any{pointID, t}, 0, 0)
}

// DeleteBefore removes the point's values with ts < t.
func (s *Store) DeleteBefore(ctx context.Context, pointID int, t int64) (int64, error) {
	return s.deleteValues(ctx, wherePointBefore, []any{pointID, t}, 0, 0)
}

// DeleteBeforeWithoutCount is DeleteBefore reporting only whether
// anything was removed. It never asks the driver for affected rows.
func (s *Store) DeleteBeforeWithoutCount(ctx context.Context, pointID int, t int64) (bool, error) {
	return s.deleteValuesUncounted(ctx, wherePointBefore, []any{pointID, t}, 0, 0)
}

// DeleteBetween removes the point's values with from <= ts < to.
func (s *Store) DeleteBetween(ctx context.Context, pointID int, from, to int64) (int64, error) {
	return s.deleteValues(ctx, wherePointRange, []any{pointID, from, to}, 0, 0)
}

// DeleteAll removes every value of the point.
func (s *Store) DeleteAll(ctx context.Context, pointID int) (int64, error) {
	return s.deleteValues(ctx, wherePoint, []any{pointID}, 0, 0)
}

// DeleteAllWithoutCount is DeleteAll reporting only whether anything
// was removed. It never asks the driver for affected rows.
func (s *Store) DeleteAllWithoutCount(ctx context.Context, pointID int) (bool, error) {
	return s.deleteValuesUncounted(ctx, wherePoint, []any{pointID}, 0, 0)
}

// DeleteAllBefore removes the values of every point with ts < t.
func (s *Store) DeleteAllBefore(ctx context.Context, t int64) (int64, error) {
	return s.deleteValues(ctx, whereBefore, []any{t}, 0, 0)
}

// DeleteEverything removes all point values.
func (s *Store) DeleteEverything(ctx context.Context) (int64, error) {
	return s.deleteValues(ctx, whereEverything, nil, 0, 0)
}

// DeleteEverythingWithoutCount is DeleteEverything without the count.
func (s *Store) DeleteEverythingWithoutCount(ctx context.Context) error {
	_, err := s.deleteValuesUncounted(ctx, whereEverything, nil, 0, 0)
	return err
}

// DeleteOrphaned removes values whose point is no longer registered.
// It pauses between chunks and stops after the orphan row cap; run it
// again to continue.
func (s *Store) DeleteOrphaned(ctx context.Context) (int64, error) {
	return s.deleteValues(ctx, whereOrphaned, nil, s.opts.OrphanChunkWait, s.opts.OrphanMaxRows)
}

// DeleteOrphanedWithoutCount is DeleteOrphaned without the count. The
// orphan row cap applies to the rows selected per chunk.
func (s *Store) DeleteOrphanedWithoutCount(ctx context.Context) error {
	_, err := s.deleteValuesUncounted(ctx, whereOrphaned, nil, s.opts.OrphanChunkWait, s.opts.OrphanMaxRows)
	return err
}

// DeleteOrphanedAnnotations removes annotation rows whose value row is
// gone, in id-list chunks, until none remain.
func (s *Store) DeleteOrphanedAnnotations(ctx context.Context) (int64, error) {
	const selectOrphans = `SELECT pva.point_value_id FROM point_value_annotations pva
		LEFT JOIN point_values pv ON pva.point_value_id = pv.id
		WHERE pv.id IS NULL LIMIT ?`

	var total int64
	for {
		ids, err := withRetry(ctx, s.syncRetry, s.dialect.IsTransient, func(ctx context.Context) ([]int64, error) {
			return s.selectIDs(ctx, s.db.QueryContext, selectOrphans, orphanAnnotationChunk)
		})
		if err != nil {
			return total, fmt.Errorf("selecting orphaned annotations: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		in, args := idClause(ids)
		n, err := withRetry(ctx, s.syncRetry, s.dialect.IsTransient, func(ctx context.Context) (int64, error) {
			res, err := s.db.ExecContext(ctx, "DELETE FROM point_value_annotations WHERE point_value_id IN ("+in+")", args...)
			if err != nil {
				return 0, err
			}
			return res.RowsAffected()
		})
		if err != nil {
			return total, fmt.Errorf("deleting orphaned annotations: %w", err)
		}
		total += n

		if len(ids) < orphanAnnotationChunk {
			break
		}
	}

	if total > 0 {
		s.logger.Info("orphaned annotations deleted", "count", total)
	}
	return total, nil
}

// PurgePoint removes every value of the point together with its image
// payloads.
func (s *Store) PurgePoint(ctx context.Context, pointID int) (int64, error) {
	images, err := s.Images(ctx, pointID)
	if err != nil {
		return 0, fmt.Errorf("listing images: %w", err)
	}

	n, err := s.DeleteAll(ctx, pointID)
	if err != nil {
		return n, err
	}

	if s.blobs != nil {
		for _, img := range images {
			if err := s.blobs.Delete(img.BlobID, img.TypeCode); err != nil {
				s.logger.Warn("failed to delete image payload",
					"point_id", pointID,
					"blob_id", img.BlobID,
					"error", err,
				)
			}
		}
	}
	return n, nil
}

// deleteValues runs the chunked delete and then retries any unsaved
// values, which may have been waiting on locks the delete held.
func (s *Store) deleteValues(ctx context.Context, where string, args []any, wait time.Duration, maxRows int) (int64, error) {
	n, err := s.deleteChunked(ctx, where, args, wait, maxRows, true)
	if n > 0 {
		deletedRowsTotal.Add(float64(n))
	}
	if err != nil {
		return n, fmt.Errorf("deleting point values: %w", err)
	}
	s.flushUnsaved(ctx)
	return n, nil
}

// deleteValuesUncounted is deleteValues without RowsAffected. Chunks
// advance on the number of ids selected, and the result only reports
// whether any chunk selected rows. The deleted rows counter is not
// updated.
func (s *Store) deleteValuesUncounted(ctx context.Context, where string, args []any, wait time.Duration, maxRows int) (bool, error) {
	selected, err := s.deleteChunked(ctx, where, args, wait, maxRows, false)
	if err != nil {
		return selected > 0, fmt.Errorf("deleting point values: %w", err)
	}
	s.flushUnsaved(ctx)
	return selected > 0, nil
}

// deleteChunked removes rows matching where in chunks of ChunkSize
// until a chunk comes back short or maxRows (if positive) is reached.
// Each chunk deletes its annotation rows and value rows in one
// transaction under the sync retry policy. wait pauses between chunks.
// With counted false the total is the number of ids selected rather
// than rows affected.
func (s *Store) deleteChunked(ctx context.Context, where string, args []any, wait time.Duration, maxRows int, counted bool) (int64, error) {
	selectChunk := "SELECT id FROM point_values WHERE " + where + " LIMIT ?"

	var total int64
	for {
		chunk := s.opts.ChunkSize
		if maxRows > 0 {
			chunk = min(chunk, maxRows-int(total))
		}

		n, err := withRetry(ctx, s.syncRetry, s.dialect.IsTransient, func(ctx context.Context) (int64, error) {
			return s.deleteChunk(ctx, selectChunk, args, chunk, counted)
		})
		total += n
		if err != nil {
			return total, classify(err)
		}

		if n < int64(chunk) || (maxRows > 0 && total >= int64(maxRows)) {
			return total, nil
		}

		if wait > 0 {
			if err := sleepContext(ctx, wait); err != nil {
				return total, err
			}
		}
	}
}

// deleteChunk removes up to chunk rows selected by selectChunk. It
// returns the rows affected, or the ids selected when counted is false.
func (s *Store) deleteChunk(ctx context.Context, selectChunk string, args []any, chunk int, counted bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	queryTx := func(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
		return tx.QueryContext(ctx, s.dialect.Rebind(query), args...)
	}
	ids, err := s.selectIDs(ctx, queryTx, selectChunk, append(args[:len(args):len(args)], chunk)...)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	in, idArgs := idClause(ids)
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind("DELETE FROM point_value_annotations WHERE point_value_id IN ("+in+")"), idArgs...); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, s.dialect.Rebind("DELETE FROM point_values WHERE id IN ("+in+")"), idArgs...)
	if err != nil {
		return 0, err
	}
	n := int64(len(ids))
	if counted {
		if n, err = res.RowsAffected(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// queryFunc matches QueryContext on the database and on a transaction.
type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

// selectIDs collects the first column of query as int64 ids.
func (s *Store) selectIDs(ctx context.Context, query queryFunc, q string, args ...any) ([]int64, error) {
	rows, err := query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// idClause returns "?, ?, ..." for ids and the matching arguments.
func idClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders(len(ids)), args
}

