package pointvalue

import (
	"context"
	"fmt"
	"strings"
)

// BookendCallback receives the result of a bookend query.
//
// index numbers every delivered value across all three methods. bookend
// is true for values re-stamped to a window edge and for placeholders;
// a placeholder has a nil Value.
type BookendCallback interface {
	FirstValue(pv PointValue, index int, bookend bool) error
	Row(pv PointValue, index int) error
	LastValue(pv PointValue, index int, bookend bool) error
}

// Bookend streams [from, to) for every point in pointIDs with synthetic
// values at both window edges, so sparse points chart without gaps.
//
// For each point FirstValue receives the value at from: the row stamped
// exactly from (bookend false), else the latest earlier row re-stamped to
// from, else a placeholder. Row then receives every value with
// from < ts < to in ascending time order. Finally LastValue receives the
// latest value seen for each point re-stamped to to, or a placeholder.
//
// limit caps real values, counting exact first values and rows; limit <= 0
// means no limit. With orderByID the points are handled one at a time in
// the order given and the limit applies per point. Otherwise rows are
// merged by time and the limit applies to the whole query.
func (s *Store) Bookend(ctx context.Context, pointIDs []int, from, to int64, orderByID bool, limit int, cb BookendCallback) error {
	pointIDs = uniquePoints(pointIDs)
	if len(pointIDs) == 0 {
		return nil
	}

	index := 0
	if !orderByID {
		return s.bookend(ctx, pointIDs, from, to, limit, &index, cb)
	}
	for _, id := range pointIDs {
		if err := s.bookend(ctx, []int{id}, from, to, limit, &index, cb); err != nil {
			return err
		}
	}
	return nil
}

// bookend runs one bookend pass over pointIDs.
func (s *Store) bookend(ctx context.Context, pointIDs []int, from, to int64, limit int, index *int, cb BookendCallback) error {
	firsts, err := s.firstValues(ctx, pointIDs, from)
	if err != nil {
		return err
	}

	latest := make(map[int]PointValue, len(pointIDs))
	realSamples := 0

	for _, id := range pointIDs {
		if err := ctx.Err(); err != nil {
			return s.cancelled(err)
		}

		pv, ok := firsts[id]
		switch {
		case !ok:
			err = cb.FirstValue(PointValue{PointID: id, Time: from}, *index, true)
		case pv.Time == from:
			latest[id] = pv
			realSamples++
			err = cb.FirstValue(pv, *index, false)
		default:
			latest[id] = pv
			err = cb.FirstValue(pv.withTime(from), *index, true)
		}
		if err != nil {
			return s.callbackErr(err)
		}
		*index++
	}

	if limit <= 0 || realSamples < limit {
		remaining := 0
		if limit > 0 {
			remaining = limit - realSamples
		}

		in, args := inClause(pointIDs)
		query, args := withLimit(selectPointValues+" WHERE pv.data_point_id IN ("+in+") AND pv.ts > ? AND pv.ts < ? ORDER BY pv.ts ASC, pv.id ASC",
			append(args, from, to), remaining)

		err := s.streamRows(ctx, query, args, index, func(pv PointValue, i int) error {
			latest[pv.PointID] = pv
			return cb.Row(pv, i)
		})
		if err != nil {
			return err
		}
	}

	for _, id := range pointIDs {
		if err := ctx.Err(); err != nil {
			return s.cancelled(err)
		}

		pv, ok := latest[id]
		if ok {
			pv = pv.withTime(to)
		} else {
			pv = PointValue{PointID: id, Time: to}
		}
		if err := cb.LastValue(pv, *index, true); err != nil {
			return s.callbackErr(err)
		}
		*index++
	}
	return nil
}

// firstValues returns, per point, the latest value with ts <= at.
// Several points are fetched with one UNION ALL of per-point lookups.
func (s *Store) firstValues(ctx context.Context, pointIDs []int, at int64) (map[int]PointValue, error) {
	const lookup = selectPointValues + " WHERE pv.data_point_id = ? AND pv.ts <= ? ORDER BY pv.ts DESC, pv.id DESC LIMIT 1"

	var (
		query string
		args  = make([]any, 0, len(pointIDs)*2) //nolint:mnd // Two arguments per lookup
	)
	if len(pointIDs) == 1 {
		query = lookup
		args = append(args, pointIDs[0], at)
	} else {
		parts := make([]string, len(pointIDs))
		for i, id := range pointIDs {
			parts[i] = fmt.Sprintf("SELECT * FROM (%s) AS f%d", lookup, i)
			args = append(args, id, at)
		}
		query = strings.Join(parts, " UNION ALL ")
	}

	out := make(map[int]PointValue, len(pointIDs))
	index := 0
	err := s.streamRows(ctx, query, args, &index, func(pv PointValue, _ int) error {
		out[pv.PointID] = pv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
