package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"

	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/background"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/filedata"
	"github.com/nerrad567/gray-logic-historian/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-historian/internal/pointvalue"
	_ "github.com/nerrad567/gray-logic-historian/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// newTestStore opens a migrated SQLite point value store in a temporary directory.
func newTestStore(t *testing.T) *pointvalue.Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "historian.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close() //nolint:errcheck // Test cleanup
		t.Fatalf("Migrate() error = %v", err)
	}

	exec := background.New(4)
	store := pointvalue.New(db, filedata.New(afero.NewMemMapFs()), exec, pointvalue.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store.Close(ctx) //nolint:errcheck // Test cleanup
		exec.Close(ctx)  //nolint:errcheck // Test cleanup
		db.Close()       //nolint:errcheck // Test cleanup
	})
	return store
}

// testServer creates a Server over a real store. A non-empty secret
// enables bearer authentication.
func testServer(t *testing.T, secret string) (*Server, *pointvalue.Store) {
	t.Helper()

	store := newTestStore(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret},
		},
		Logger:  log,
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, store
}

// seed stores numeric values for pointID, using each timestamp as the value.
func seed(t *testing.T, store *pointvalue.Store, pointID int, timestamps ...int64) {
	t.Helper()
	for _, ts := range timestamps {
		if _, _, err := store.InsertSync(context.Background(), pointvalue.PointValue{
			PointID: pointID,
			Time:    ts,
			Value:   pointvalue.NumericValue(float64(ts)),
		}); err != nil {
			t.Fatalf("InsertSync(point %d, ts %d) error = %v", pointID, ts, err)
		}
	}
}

// do sends a request through the router and returns the recorder.
func do(t *testing.T, srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

type valuesBody struct {
	Values []pointValueResponse `json:"values"`
	Count  int                  `json:"count"`
}

func timestamps(values []pointValueResponse) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = v.TS
	}
	return out
}

func equalTimestamps(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func validToken(t *testing.T) string {
	t.Helper()
	return signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "dashboard",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.Default()
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without store should fail")
	}
	if _, err := New(Deps{Store: &pointvalue.Store{}}); err == nil {
		t.Error("New() without logger should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, "")

	w := do(t, srv, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	srv, _ := testServer(t, "")
	srv.health = func(context.Context) error { return errors.New("database unreachable") }

	w := do(t, srv, http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "unhealthy" || body["error"] != "database unreachable" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, "")

	t.Run("generated", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/health", nil)
		id := w.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("X-Request-ID = %q, want a UUID: %v", id, err)
		}
	})

	t.Run("preserves client id", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/health", http.Header{"X-Request-Id": []string{"abc-123"}})
		if id := w.Header().Get("X-Request-ID"); id != "abc-123" {
			t.Errorf("X-Request-ID = %q, want abc-123", id)
		}
	})
}

// hijackRecorder is a recorder that can be hijacked.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestStatusWriter_Hijack(t *testing.T) {
	var w http.ResponseWriter = &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := w.(http.Hijacker).Hijack(); !errors.Is(err, errHijackUnsupported) {
		t.Errorf("Hijack() on recorder error = %v, want errHijackUnsupported", err)
	}
	if _, ok := w.(http.Flusher); !ok {
		t.Error("statusWriter should implement http.Flusher")
	}

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	if _, _, err := sw.Hijack(); err != nil {
		t.Fatalf("Hijack() error = %v", err)
	}
	if !rec.hijacked {
		t.Error("Hijack() did not reach the underlying writer")
	}
	if sw.status != http.StatusSwitchingProtocols {
		t.Errorf("status = %d, want %d", sw.status, http.StatusSwitchingProtocols)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t, "")

	w := do(t, srv, http.MethodOptions, "/api/v1/values", http.Header{"Origin": []string{"http://dashboard.local"}})
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, DELETE, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	srv, _ := testServer(t, "")
	srv.cfg.CORS.AllowedOrigins = []string{"http://dashboard.local"}

	w := do(t, srv, http.MethodGet, "/api/v1/health", http.Header{"Origin": []string{"http://evil.example"}})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, "")

	w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestPoints_ListAndGet(t *testing.T) {
	srv, store := testServer(t, "")
	ctx := context.Background()

	for _, p := range []pointvalue.Point{
		{ID: 1, XID: "DP_1", Name: "Boiler flow", DataType: pointvalue.DataTypeNumeric},
		{ID: 2, XID: "DP_2", Name: "Pump", DataType: pointvalue.DataTypeBinary},
	} {
		if err := store.RegisterPoint(ctx, p); err != nil {
			t.Fatalf("RegisterPoint() error = %v", err)
		}
	}

	w := do(t, srv, http.MethodGet, "/api/v1/points/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", w.Code, w.Body.String())
	}
	var list struct {
		Points []pointResponse `json:"points"`
		Count  int             `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 2 || len(list.Points) != 2 {
		t.Fatalf("list = %+v, want 2 points", list)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/points/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	var p pointResponse
	decode(t, w, &p)
	want := pointResponse{ID: 2, XID: "DP_2", Name: "Pump", Type: "binary"}
	if p != want {
		t.Errorf("point = %+v, want %+v", p, want)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/points/9", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing point status = %d, want 404", w.Code)
	}
}

func TestPointLatest(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 200, 300)

	t.Run("latest", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/points/1/latest", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var pv pointValueResponse
		decode(t, w, &pv)
		if pv.TS != 300 || pv.Value != float64(300) || pv.Type != "numeric" {
			t.Errorf("latest = %+v, want ts 300", pv)
		}
	})

	t.Run("before", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/points/1/latest?before=300", nil)
		var pv pointValueResponse
		decode(t, w, &pv)
		if pv.TS != 200 {
			t.Errorf("before 300 = %+v, want ts 200", pv)
		}
	})

	t.Run("latest n", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/points/1/latest?n=2", nil)
		var body valuesBody
		decode(t, w, &body)
		if got := timestamps(body.Values); !equalTimestamps(got, []int64{300, 200}) {
			t.Errorf("latest 2 = %v, want [300 200]", got)
		}
	})

	t.Run("no values", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/v1/points/7/latest", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestPointRangeAndCount(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 200, 300, 400)

	w := do(t, srv, http.MethodGet, "/api/v1/points/1/values?from=200&to=400", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("range status = %d, body = %s", w.Code, w.Body.String())
	}
	var body valuesBody
	decode(t, w, &body)
	if got := timestamps(body.Values); !equalTimestamps(got, []int64{200, 300}) {
		t.Errorf("range = %v, want [200 300]", got)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/points/1/values?limit=1", nil)
	body = valuesBody{}
	decode(t, w, &body)
	if got := timestamps(body.Values); !equalTimestamps(got, []int64{100}) {
		t.Errorf("limited range = %v, want [100]", got)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/points/1/count?from=150", nil)
	var count struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &count)
	if count.Count != 3 {
		t.Errorf("count = %d, want 3", count.Count)
	}
}

func TestDeletePointValues(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 200, 300)

	if w := do(t, srv, http.MethodDelete, "/api/v1/points/1/values", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete without before status = %d, want 400", w.Code)
	}

	w := do(t, srv, http.MethodDelete, "/api/v1/points/1/values?before=300", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Deleted int64 `json:"deleted"`
	}
	decode(t, w, &body)
	if body.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", body.Deleted)
	}

	n, err := store.Count(context.Background(), 1, 0, 1<<62)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
}

func TestPurgePoint(t *testing.T) {
	srv, store := testServer(t, "")
	ctx := context.Background()
	if err := store.RegisterPoint(ctx, pointvalue.Point{ID: 1, DataType: pointvalue.DataTypeNumeric}); err != nil {
		t.Fatalf("RegisterPoint() error = %v", err)
	}
	seed(t, store, 1, 100, 200)
	seed(t, store, 2, 100)

	w := do(t, srv, http.MethodDelete, "/api/v1/points/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	p, err := store.GetPoint(ctx, 1)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if p != nil {
		t.Errorf("point 1 still registered: %+v", p)
	}
	latest, err := store.Latest(ctx, 2)
	if err != nil || latest == nil {
		t.Errorf("point 2 latest = %v, %v; want untouched", latest, err)
	}
}

func TestPointImage(t *testing.T) {
	srv, store := testServer(t, "")
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	stored, _, err := store.InsertSync(context.Background(), pointvalue.PointValue{
		PointID: 3,
		Time:    100,
		Value:   pointvalue.ImageValue{TypeCode: filedata.TypePNG, Data: payload},
	})
	if err != nil {
		t.Fatalf("InsertSync() error = %v", err)
	}
	seed(t, store, 3, 200)

	target := "/api/v1/points/3/images/" + strconv.FormatInt(stored.ID, 10)
	w := do(t, srv, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), payload) {
		t.Errorf("body = %x, want %x", w.Body.Bytes(), payload)
	}

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "other point", target: "/api/v1/points/4/images/" + strconv.FormatInt(stored.ID, 10), want: http.StatusNotFound},
		{name: "not an image", target: "/api/v1/points/3/images/" + strconv.FormatInt(stored.ID+1, 10), want: http.StatusNotFound},
		{name: "missing", target: "/api/v1/points/3/images/999", want: http.StatusNotFound},
		{name: "bad value id", target: "/api/v1/points/3/images/abc", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, srv, http.MethodGet, tt.target, nil); w.Code != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.target, w.Code, tt.want)
			}
		})
	}
}

func TestValues_MultiPoint(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 300)
	seed(t, store, 2, 200, 400)

	tests := []struct {
		name   string
		target string
		want   []int64
	}{
		{"between by time", "/api/v1/values?ids=1,2&from=100&to=400", []int64{100, 200, 300}},
		{"between by id", "/api/v1/values?ids=2,1&order_by_id=true", []int64{200, 400, 100, 300}},
		{"latest by time", "/api/v1/values/latest?ids=1,2&before=400", []int64{300, 200, 100}},
		{"latest limited", "/api/v1/values/latest?ids=1,2&limit=2", []int64{400, 300}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var body valuesBody
			decode(t, w, &body)
			if got := timestamps(body.Values); !equalTimestamps(got, tt.want) {
				t.Errorf("timestamps = %v, want %v", got, tt.want)
			}
			if body.Count != len(tt.want) {
				t.Errorf("count = %d, want %d", body.Count, len(tt.want))
			}
		})
	}
}

func TestValues_Bookend(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 200)
	seed(t, store, 2, 150)

	w := do(t, srv, http.MethodGet, "/api/v1/values/bookend?ids=1,2&from=120&to=250", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body valuesBody
	decode(t, w, &body)
	if body.Count != 6 {
		t.Fatalf("count = %d, want 6: %+v", body.Count, body.Values)
	}
	for _, i := range []int{0, 1, 4, 5} {
		if !body.Values[i].Bookend {
			t.Errorf("value %d = %+v, want bookend", i, body.Values[i])
		}
	}
	if got := timestamps(body.Values[2:4]); !equalTimestamps(got, []int64{150, 200}) {
		t.Errorf("rows = %v, want [150 200]", got)
	}
	for _, v := range body.Values[4:] {
		if v.TS != 250 {
			t.Errorf("last value ts = %d, want 250", v.TS)
		}
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/values/bookend?ids=1&from=120", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bookend without to status = %d, want 400", w.Code)
	}
}

func TestValues_Extent(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100, 300)
	seed(t, store, 2, 50)

	w := do(t, srv, http.MethodGet, "/api/v1/values/extent?ids=1,2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	}
	decode(t, w, &body)
	if body.Start != 50 || body.End != 300 {
		t.Errorf("extent = %+v, want 50..300", body)
	}

	if w := do(t, srv, http.MethodGet, "/api/v1/values/extent?ids=9", nil); w.Code != http.StatusNotFound {
		t.Errorf("empty extent status = %d, want 404", w.Code)
	}
}

func TestBadParams(t *testing.T) {
	srv, _ := testServer(t, "")

	targets := []string{
		"/api/v1/points/abc",
		"/api/v1/points/0/latest",
		"/api/v1/points/1/latest?n=0",
		"/api/v1/points/1/values?from=x",
		"/api/v1/points/1/values?from=300&to=200",
		"/api/v1/points/1/values?limit=100001",
		"/api/v1/values",
		"/api/v1/values?ids=1,x",
		"/api/v1/values?ids=1&order_by_id=maybe",
		"/api/v1/values/latest?ids=" + strings.Repeat("1,", maxPointIDs) + "1",
		"/api/v1/values/extent?ids=" + strings.Repeat("9", maxQueryParamLen+1),
	}

	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, target, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			var e Error
			decode(t, w, &e)
			if e.Code != ErrCodeBadRequest {
				t.Errorf("code = %q, want %q", e.Code, ErrCodeBadRequest)
			}
		})
	}
}

func TestStats(t *testing.T) {
	srv, store := testServer(t, "")
	seed(t, store, 1, 100)

	w := do(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var stats SystemStats
	decode(t, w, &stats)
	if stats.Version != "test" {
		t.Errorf("version = %q, want test", stats.Version)
	}
	if stats.Store.SyncInserts != 1 {
		t.Errorf("store sync inserts = %d, want 1", stats.Store.SyncInserts)
	}
	if stats.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines = 0")
	}
}

func TestAuth(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"missing token", nil, http.StatusUnauthorized},
		{"malformed header", http.Header{"Authorization": []string{"Token abc"}}, http.StatusUnauthorized},
		{"valid token", bearer(validToken(t)), http.StatusOK},
		{"expired token", bearer(signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "dashboard",
			"exp": time.Now().Add(-time.Minute).Unix(),
		})), http.StatusUnauthorized},
		{"no expiry", bearer(signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "dashboard",
		})), http.StatusUnauthorized},
		{"no subject", bearer(signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})), http.StatusUnauthorized},
		{"wrong algorithm", bearer(signToken(t, jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": "dashboard",
			"exp": time.Now().Add(time.Hour).Unix(),
		})), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, "/api/v1/points/", tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	t.Run("health stays open", func(t *testing.T) {
		if w := do(t, srv, http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	w := do(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", bearer(validToken(t)))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, w, &body)
	if body.Ticket == "" || body.ExpiresIn != int(ticketTTL.Seconds()) {
		t.Fatalf("ticket response = %+v", body)
	}

	if !srv.validateTicket(body.Ticket) {
		t.Error("first validation should succeed")
	}
	if srv.validateTicket(body.Ticket) {
		t.Error("second validation should fail")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv, _ := testServer(t, testSecret)

	srv.tickets.tickets["stale"] = time.Now().Add(-time.Second)
	srv.tickets.tickets["fresh"] = time.Now().Add(time.Minute)
	srv.cleanExpiredTickets()

	if _, ok := srv.tickets.tickets["stale"]; ok {
		t.Error("expired ticket not cleaned")
	}
	if !srv.validateTicket("fresh") {
		t.Error("fresh ticket should validate")
	}
}

// dialWS connects to the server's WebSocket endpoint.
func dialWS(t *testing.T, ts *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

// subscribe sends a subscribe message and waits for its response.
func subscribe(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe message: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_PointValueFeed(t *testing.T) {
	srv, store := testServer(t, "")
	store.SetMirror(srv.Hub())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws, resp, err := dialWS(t, ts, "")
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	defer ws.Close()

	subscribe(t, ws, PointChannel(7))

	seed(t, store, 8, 100)
	seed(t, store, 7, 200)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var event struct {
		Type      string          `json:"type"`
		EventType string          `json:"event_type"`
		Payload   pointValueEvent `json:"payload"`
	}
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != EventPointValue {
		t.Errorf("event = %+v", event)
	}
	want := pointValueEvent{PointID: 7, Type: "numeric", Value: float64(200), TS: 200}
	if event.Payload != want {
		t.Errorf("payload = %+v, want %+v", event.Payload, want)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _ := testServer(t, "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ws, _, err := dialWS(t, ts, "")
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p1" {
		t.Errorf("response = %+v, want pong p1", resp)
	}
}

func TestWebSocket_TicketRequired(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		name  string
		query string
	}{
		{"no ticket", ""},
		{"invalid ticket", "?ticket=invalid-ticket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := dialWS(t, ts, tt.query)
			if err == nil {
				t.Fatal("expected dial error")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("response = %v, want 401", resp)
			}
		})
	}

	t.Run("valid ticket", func(t *testing.T) {
		w := do(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", bearer(validToken(t)))
		var body struct {
			Ticket string `json:"ticket"`
		}
		decode(t, w, &body)

		ws, resp, err := dialWS(t, ts, "?ticket="+body.Ticket)
		if err != nil {
			t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
		}
		ws.Close()
	})
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())

	all := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{ChannelPointValues: {}}}
	one := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{PointChannel(3): {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{PointChannel(4): {}}}
	both := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{
		ChannelPointValues: {},
		PointChannel(3):    {},
	}}
	for _, c := range []*WSClient{all, one, other, both} {
		hub.Register(c)
	}
	if hub.ClientCount() != 4 {
		t.Fatalf("ClientCount() = %d, want 4", hub.ClientCount())
	}

	hub.WritePointValue(3, "binary", true, time.UnixMilli(1000))

	for name, c := range map[string]*WSClient{"all": all, "one": one, "both": both} {
		if len(c.send) != 1 {
			t.Errorf("%s received %d messages, want 1", name, len(c.send))
		}
	}
	if len(other.send) != 0 {
		t.Errorf("other received %d messages, want 0", len(other.send))
	}

	hub.Unregister(one)
	if hub.ClientCount() != 3 {
		t.Errorf("ClientCount() = %d, want 3", hub.ClientCount())
	}
}
