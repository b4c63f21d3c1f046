package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	// defaultQueryLimit applies when a read has no limit parameter.
	defaultQueryLimit = 1000

	// maxQueryLimit caps the rows a single request may return.
	maxQueryLimit = 100000

	// maxPointIDs caps the ids in one multi-point request.
	maxPointIDs = 100

	// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
	maxQueryParamLen = 1024
)

// errMissingParam is wrapped by parsers when a required parameter is absent.
var errMissingParam = errors.New("parameter is required")

// pointIDParam parses the {id} route parameter.
func pointIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid point id %q", raw)
	}
	return id, nil
}

// queryParam returns a query parameter, rejecting oversized values.
func queryParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if len(v) > maxQueryParamLen {
		return "", fmt.Errorf("%s exceeds maximum length", name)
	}
	return v, nil
}

// timeParam parses an epoch millisecond parameter, returning def when absent.
func timeParam(r *http.Request, name string, def int64) (int64, error) {
	v, err := queryParam(r, name)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return def, nil
	}
	t, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s timestamp %q", name, v)
	}
	return t, nil
}

// requiredTimeParam is timeParam without a default.
func requiredTimeParam(r *http.Request, name string) (int64, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, fmt.Errorf("%s: %w", name, errMissingParam)
	}
	return timeParam(r, name, 0)
}

// limitParam parses a positive row limit no larger than maxQueryLimit.
func limitParam(r *http.Request, name string) (int, error) {
	v, err := queryParam(r, name)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return defaultQueryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if n > maxQueryLimit {
		return 0, fmt.Errorf("%s must not exceed %d", name, maxQueryLimit)
	}
	return n, nil
}

// boolParam parses an optional boolean parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	v, err := queryParam(r, name)
	if err != nil || v == "" {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, v)
	}
	return b, nil
}

// idsParam parses a comma-separated list of point ids.
func idsParam(r *http.Request) ([]int, error) {
	v, err := queryParam(r, "ids")
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, fmt.Errorf("ids: %w", errMissingParam)
	}
	parts := strings.Split(v, ",")
	if len(parts) > maxPointIDs {
		return nil, fmt.Errorf("ids must not list more than %d points", maxPointIDs)
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid point id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// windowParams parses from (default 0) and to (default open-ended).
func windowParams(r *http.Request) (from, to int64, err error) {
	if from, err = timeParam(r, "from", 0); err != nil {
		return 0, 0, err
	}
	if to, err = timeParam(r, "to", math.MaxInt64); err != nil {
		return 0, 0, err
	}
	if to < from {
		return 0, 0, errors.New("to must not be before from")
	}
	return from, to, nil
}
