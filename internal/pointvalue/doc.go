// Package pointvalue stores and retrieves timestamped point values for
// the Gray Logic Historian.
//
// This package provides:
//   - A value codec mapping typed values to a numeric slot, a short or
//     long text slot and a source annotation
//   - Synchronous inserts with retry, read-back and an unsaved buffer
//     for values that could not be written
//   - A write-behind batcher that groups eligible values into multi-row
//     inserts on a bounded pool of writers
//   - Point, range and multi-point reads, including bookend queries that
//     synthesise values at the window edges
//   - Chunked deletes and purges
//
// Ordering:
//   - Reads of one point are ordered by timestamp, ties by row id
//   - Write-behind batches carry no ordering guarantee between calls;
//     use InsertSync where write order matters
//
// Usage:
//
//	store := pointvalue.New(db, blobs, exec, pointvalue.Options{})
//	store.SetLogger(log)
//	defer store.Close(ctx)
//
//	err := store.InsertAsync(ctx, pointvalue.PointValue{
//	    PointID: 7,
//	    Time:    time.Now().UnixMilli(),
//	    Value:   pointvalue.NumericValue(21.5),
//	})
package pointvalue
