package api

import (
	"math"
	"net/http"

	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

// multiPointQuery holds the parameters shared by multi-point reads.
type multiPointQuery struct {
	ids       []int
	orderByID bool
	limit     int
}

func parseMultiPointQuery(r *http.Request) (multiPointQuery, error) {
	var q multiPointQuery
	var err error
	if q.ids, err = idsParam(r); err != nil {
		return q, err
	}
	if q.orderByID, err = boolParam(r, "order_by_id"); err != nil {
		return q, err
	}
	if q.limit, err = limitParam(r, "limit"); err != nil {
		return q, err
	}
	return q, nil
}

// collector gathers streamed rows for a JSON response.
type collector struct {
	values []pointValueResponse
}

func (c *collector) row(pv pointvalue.PointValue, _ int) error {
	c.values = append(c.values, toPointValueResponse(pv))
	return nil
}

// FirstValue implements pointvalue.BookendCallback.
func (c *collector) FirstValue(pv pointvalue.PointValue, _ int, bookend bool) error {
	c.add(pv, bookend)
	return nil
}

// Row implements pointvalue.BookendCallback.
func (c *collector) Row(pv pointvalue.PointValue, index int) error {
	return c.row(pv, index)
}

// LastValue implements pointvalue.BookendCallback.
func (c *collector) LastValue(pv pointvalue.PointValue, _ int, bookend bool) error {
	c.add(pv, bookend)
	return nil
}

func (c *collector) add(pv pointvalue.PointValue, bookend bool) {
	resp := toPointValueResponse(pv)
	resp.Bookend = bookend
	c.values = append(c.values, resp)
}

func (c *collector) write(w http.ResponseWriter) {
	values := c.values
	if values == nil {
		values = []pointValueResponse{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"values": values,
		"count":  len(values),
	})
}

// handleLatestValues returns values of several points with ts < before,
// newest first.
func (s *Server) handleLatestValues(w http.ResponseWriter, r *http.Request) {
	q, err := parseMultiPointQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	before, err := timeParam(r, "before", math.MaxInt64)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var c collector
	if err := s.store.StreamLatest(r.Context(), q.ids, before, q.orderByID, q.limit, c.row); err != nil {
		s.writeStoreError(w, r, "failed to read latest values", err)
		return
	}
	c.write(w)
}

// handleValuesBetween returns values of several points with
// from <= ts < to, oldest first.
func (s *Server) handleValuesBetween(w http.ResponseWriter, r *http.Request) {
	q, err := parseMultiPointQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, to, err := windowParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var c collector
	if err := s.store.StreamBetween(r.Context(), q.ids, from, to, q.orderByID, q.limit, c.row); err != nil {
		s.writeStoreError(w, r, "failed to read values", err)
		return
	}
	c.write(w)
}

// handleBookend returns a bookended window: a value at from for every
// point, the rows inside the window and a value at to for every point.
func (s *Server) handleBookend(w http.ResponseWriter, r *http.Request) {
	q, err := parseMultiPointQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, err := requiredTimeParam(r, "from")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	to, err := requiredTimeParam(r, "to")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if to < from {
		writeBadRequest(w, "to must not be before from")
		return
	}

	var c collector
	if err := s.store.Bookend(r.Context(), q.ids, from, to, q.orderByID, q.limit, &c); err != nil {
		s.writeStoreError(w, r, "failed to read bookend values", err)
		return
	}
	c.write(w)
}

// handleExtent returns the earliest and latest timestamps across points.
func (s *Server) handleExtent(w http.ResponseWriter, r *http.Request) {
	ids, err := idsParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	tr, ok, err := s.store.StartAndEndTime(r.Context(), ids)
	if err != nil {
		s.writeStoreError(w, r, "failed to read time extent", err)
		return
	}
	if !ok {
		writeNotFound(w, "points have no values")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start": tr.Start,
		"end":   tr.End,
	})
}
