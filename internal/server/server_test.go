package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/domain"
	"traindispatcher/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t   *testing.T
	srv *Server
	st  *store.Store
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	st, err := store.Open(ctx, "", dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cfg := Config{Host: "127.0.0.1", Port: DefaultPort, DataDir: dir, CORSOrigins: []string{"*"}}
	return &harness{t: t, srv: New(ctx, cfg, st), st: st, dir: dir}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Train Dispatcher Backend is running!")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/readyz", nil).Code)

	w = h.do(http.MethodGet, "/versions.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backend_version")
}

func TestRequestIDEchoedOrMinted(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, strings.Repeat("x", 100))
	w = httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(headerRequestID), 36)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/dispatchers/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSOriginList(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://a.example/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://a.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://a.example", w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://b.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateListUpdateDelete(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/dispatchers/", map[string]any{"first_name": "Ada", "last_name": "Lovelace", "cell_number": "555"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Dispatcher](t, w)
	assert.NotZero(t, created.ID)

	// no trailing slash works without a redirect
	w = h.do(http.MethodGet, "/dispatchers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]domain.Dispatcher](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, created, list[0])

	w = h.do(http.MethodPut, "/dispatchers/"+itoa(created.ID)+"/", map[string]any{"cell_number": "777"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list = decode[[]domain.Dispatcher](t, h.do(http.MethodGet, "/dispatchers/", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "777", list[0].CellNumber)
	assert.Equal(t, "Ada", list[0].FirstName, "update merges onto the stored row")

	w = h.do(http.MethodDelete, "/dispatchers/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	list = decode[[]domain.Dispatcher](t, h.do(http.MethodGet, "/dispatchers/", nil))
	assert.Empty(t, list)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/dispatchers/"+itoa(created.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/dispatchers/"+itoa(created.ID), nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/dispatchers/abc", nil).Code)
}

func TestSchemaViolationsAre400(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		path string
		body string
	}{
		{"/dispatchers/", `{"first_name": "Ada"}`},
		{"/dispatchers/", `{not json`},
		{"/modules/", `{"name": "M", "number_of_endplates": "four"}`},
		{"/modules/", `{"name": "M", "number_of_endplates": 1099511627776}`},
		{"/modules/", `{"name": "M", "number_of_endplates": 65}`},
		{"/layouts/", `{"name": "Meet", "start_date": "June 1"}`},
		{"/layouts/", `{"name": "Meet", "start_date": "2025-06-02", "end_date": "2025-06-01"}`},
		{"/layouts/", `{"name": "Meet", "location_state": "ZZ"}`},
	}
	for _, c := range cases {
		w := h.do(http.MethodPost, c.path, c.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, c.body)
		assert.Contains(t, w.Body.String(), `"error"`, c.body)
	}
}

func TestLayoutKeyDefaultsToID(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/layouts/", map[string]any{"name": "Fall Meet", "location_state": "ks"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	l := decode[domain.Layout](t, w)
	assert.Equal(t, itoa(l.ID), l.Key)

	got, err := h.st.Layouts().Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.Key, got.Key)
	assert.Equal(t, "KS", got.LocationState)
}

func TestModuleDefaultsOneEndplate(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/modules/", map[string]any{"name": "  Yard A  ", "is_yard": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[domain.Module](t, w)
	assert.Equal(t, 1, m.NumberOfEndplates)
	assert.Equal(t, "Yard A", m.Name)
}

func TestEndplateRangeChecked(t *testing.T) {
	h := newHarness(t)
	m := decode[domain.Module](t, h.do(http.MethodPost, "/modules/", map[string]any{"name": "Junction", "number_of_endplates": 4}))

	w := h.do(http.MethodPost, "/module_endplates/", map[string]any{"module_id": m.ID, "endplate_number": 4})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = h.do(http.MethodPost, "/module_endplates/", map[string]any{"module_id": m.ID, "endplate_number": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "between 1 and 4")

	// a missing module is allowed and later reported as an orphan
	w = h.do(http.MethodPost, "/module_endplates/", map[string]any{"module_id": 999, "endplate_number": 2})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestLayoutScopedDistricts(t *testing.T) {
	h := newHarness(t)
	a := decode[domain.Layout](t, h.do(http.MethodPost, "/layouts/", map[string]any{"name": "A"}))
	b := decode[domain.Layout](t, h.do(http.MethodPost, "/layouts/", map[string]any{"name": "B"}))

	w := h.do(http.MethodPost, "/layouts/"+itoa(a.ID)+"/districts/", map[string]any{"name": "North", "layout_id": b.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[domain.District](t, w)
	assert.Equal(t, a.ID, domain.IDValue(d.LayoutID), "path id wins")

	_ = h.do(http.MethodPost, "/districts/", map[string]any{"name": "South", "layout_id": b.ID})

	got := decode[[]domain.District](t, h.do(http.MethodGet, "/layouts/"+itoa(a.ID)+"/districts", nil))
	require.Len(t, got, 1)
	assert.Equal(t, "North", got[0].Name)
}

func TestDeletingDispatcherListsOrphanDistrict(t *testing.T) {
	h := newHarness(t)
	disp := decode[domain.Dispatcher](t, h.do(http.MethodPost, "/dispatchers/", map[string]any{"first_name": "Ada", "last_name": "L"}))
	dist := decode[domain.District](t, h.do(http.MethodPost, "/districts/", map[string]any{"name": "North", "dispatcher_id": disp.ID}))

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/dispatchers/"+itoa(disp.ID)+"/", nil).Code)

	districts := decode[[]domain.District](t, h.do(http.MethodGet, "/districts/", nil))
	require.Len(t, districts, 1, "district must survive its dispatcher")

	w := h.do(http.MethodGet, "/admin/orphan-records/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orphans := decode[map[string][]store.Orphan](t, w)
	require.Len(t, orphans["districts"], 1)
	assert.Equal(t, dist.ID, orphans["districts"][0].ID)
	assert.Equal(t, "dispatcher_id", orphans["districts"][0].Field)

	w = h.do(http.MethodPost, "/admin/delete-orphans/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"districts":1`)

	last := decode[CheckResult](t, h.do(http.MethodGet, "/admin/last-orphan-check/", nil))
	assert.Zero(t, last.Total)
	assert.False(t, last.CheckedAt.IsZero())
}

func TestOrphanIntervalPersisted(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/admin/orphan-check-interval/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"minutes": 60}`, w.Body.String())

	w = h.do(http.MethodPut, "/admin/orphan-check-interval/", `{"minutes": 15}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v, ok, err := h.st.GetMeta(context.Background(), metaOrphanInterval)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "15", v)

	assert.Equal(t, 15*time.Minute, NewOrphanChecker(context.Background(), h.st).Interval())

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/admin/orphan-check-interval/", `{"minutes": -1}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/admin/orphan-check-interval/", `{}`).Code)
}

func TestOrphanCheckerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.srv.Orphans().Run(ctx)
		close(done)
	}()
	require.NoError(t, h.srv.Orphans().SetMinutes(ctx, 0))
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}

func TestStatusWithoutLogFile(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Logs          []string         `json:"logs"`
		ServiceCounts map[string]int64 `json:"service_counts"`
		IP            []string         `json:"ip"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{noLogMessage}, body.Logs)
	assert.Len(t, body.ServiceCounts, len(domain.Kinds))
	assert.NotNil(t, body.IP)
}

func TestStatusTailsLogFile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, LogFileName), []byte("one\ntwo\n"), 0o644))
	w := h.do(http.MethodGet, "/status/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"logs":["one","two"]`)
}

func TestExportImportOverHTTP(t *testing.T) {
	h := newHarness(t)
	_ = h.do(http.MethodPost, "/trains/", map[string]any{"name": "Z1", "status": "staged"})

	w := h.do(http.MethodGet, "/admin/export-db/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), exportFileName)
	snapshot := w.Body.Bytes()

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/admin/create-db/", nil).Code)
	assert.Empty(t, decode[[]domain.Train](t, h.do(http.MethodGet, "/trains/", nil)))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "dispatcher_db_export")
	require.NoError(t, err)
	_, err = fw.Write(snapshot)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/admin/import-db/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	trains := decode[[]domain.Train](t, h.do(http.MethodGet, "/trains/", nil))
	require.Len(t, trains, 1)
	assert.Equal(t, "Z1", trains[0].Name)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/admin/import-db/", nil).Code)
}

func TestSchemaAndDatabaseStatus(t *testing.T) {
	h := newHarness(t)
	sc := decode[store.Schema](t, h.do(http.MethodGet, "/schema", nil))
	assert.Len(t, sc.Tables, len(domain.Kinds))
	assert.NotEmpty(t, sc.Relationships)

	w := h.do(http.MethodGet, "/database/status/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"driver":"sqlite"`)
}

func TestRosterPDF(t *testing.T) {
	h := newHarness(t)
	l := decode[domain.Layout](t, h.do(http.MethodPost, "/layouts/", map[string]any{"name": "Spring Meet"}))
	_ = h.do(http.MethodPost, "/layouts/"+itoa(l.ID)+"/districts/", map[string]any{"name": "North"})

	w := h.do(http.MethodGet, "/layouts/"+itoa(l.ID)+"/roster.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/layouts/999/roster.pdf", nil).Code)
}

func TestConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BACKEND_HOST=10.0.0.5\nTD_CORS_ORIGINS=http://a,http://b\n"), 0o644))
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvHost, "")
	t.Setenv(EnvCORSOrigins, "")
	t.Setenv(EnvDatabaseURL, "")
	// godotenv only fills variables that are unset
	_ = os.Unsetenv(EnvHost)
	_ = os.Unsetenv(EnvCORSOrigins)

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.CORSOrigins)
	assert.Equal(t, filepath.Join(dir, LogFileName), cfg.LogFile())
	assert.Equal(t, "10.0.0.5:9100", cfg.Addr())

	t.Setenv(EnvPort, "nope")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
