package api

import (
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/filedata"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
)

// handleListPoints returns every registered point.
func (s *Server) handleListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.Points(r.Context())
	if err != nil {
		s.writeStoreError(w, r, "failed to list points", err)
		return
	}

	out := make([]pointResponse, len(points))
	for i, p := range points {
		out[i] = toPointResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": out,
		"count":  len(out),
	})
}

// handleGetPoint returns one registered point.
func (s *Server) handleGetPoint(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	p, err := s.store.GetPoint(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "failed to get point", err)
		return
	}
	if p == nil {
		writeNotFound(w, "point not found")
		return
	}
	writeJSON(w, http.StatusOK, toPointResponse(*p))
}

// handlePointLatest returns the latest value of a point, or with n the
// latest n values newest first. before limits both to ts < before.
func (s *Server) handlePointLatest(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	before, err := timeParam(r, "before", math.MaxInt64)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if r.URL.Query().Has("n") {
		n, err := limitParam(r, "n")
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		values, err := s.store.LatestNBefore(r.Context(), id, n, before)
		if err != nil {
			s.writeStoreError(w, r, "failed to read latest values", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"values": toPointValueResponses(values),
			"count":  len(values),
		})
		return
	}

	var pv *pointvalue.PointValue
	if before == math.MaxInt64 {
		pv, err = s.store.Latest(r.Context(), id)
	} else {
		pv, err = s.store.Before(r.Context(), id, before)
	}
	if err != nil {
		s.writeStoreError(w, r, "failed to read latest value", err)
		return
	}
	if pv == nil {
		writeNotFound(w, "point has no values")
		return
	}
	writeJSON(w, http.StatusOK, toPointValueResponse(*pv))
}

// handlePointRange returns values with from <= ts < to, oldest first.
func (s *Server) handlePointRange(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, to, err := windowParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	limit, err := limitParam(r, "limit")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	values, err := s.store.Range(r.Context(), id, from, to, limit)
	if err != nil {
		s.writeStoreError(w, r, "failed to read values", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"values": toPointValueResponses(values),
		"count":  len(values),
	})
}

// handlePointCount returns the number of values with from <= ts < to.
func (s *Server) handlePointCount(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, to, err := windowParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	n, err := s.store.Count(r.Context(), id, from, to)
	if err != nil {
		s.writeStoreError(w, r, "failed to count values", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

// handleDeletePointValues removes values with ts < before.
func (s *Server) handleDeletePointValues(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	before, err := requiredTimeParam(r, "before")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	n, err := s.store.DeleteBefore(r.Context(), id, before)
	if err != nil {
		s.writeStoreError(w, r, "failed to delete values", err)
		return
	}
	s.logger.Info("point values deleted via API", "point_id", id, "before", before, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// handlePurgePoint removes every value and image of a point and then the
// point itself.
func (s *Server) handlePurgePoint(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	n, err := s.store.PurgePoint(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "failed to purge point", err)
		return
	}
	if err := s.store.UnregisterPoint(r.Context(), id); err != nil {
		s.writeStoreError(w, r, "failed to unregister point", err)
		return
	}
	s.logger.Info("point purged via API", "point_id", id, "deleted", n)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// handlePointImage returns the payload of an image value of the point.
// The value is addressed by its row id.
func (s *Server) handlePointImage(w http.ResponseWriter, r *http.Request) {
	id, err := pointIDParam(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	raw := chi.URLParam(r, "valueID")
	valueID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || valueID <= 0 {
		writeBadRequest(w, "invalid value id "+strconv.Quote(raw))
		return
	}

	img, data, err := s.store.Image(r.Context(), id, valueID)
	switch {
	case errors.Is(err, pointvalue.ErrImageNotFound), errors.Is(err, filedata.ErrBlobNotFound):
		writeNotFound(w, "image not found")
		return
	case err != nil:
		s.writeStoreError(w, r, "failed to read image", err)
		return
	}

	contentType := mime.TypeByExtension("." + filedata.Extension(img.TypeCode))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // Best-effort write to response; connection may be closed
}
