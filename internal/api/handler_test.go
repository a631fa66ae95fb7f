package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/septivank/energy-measurements-api/internal/api"
	"github.com/septivank/energy-measurements-api/internal/config"
	"github.com/septivank/energy-measurements-api/internal/db"
	"github.com/septivank/energy-measurements-api/internal/importer"
	"github.com/septivank/energy-measurements-api/internal/query"
	"github.com/septivank/energy-measurements-api/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubQueryService struct {
	lastParams *query.Params
	page       *query.Page
	interval   *query.Interval
	latest     *db.Measurement
	err        error
}

func (s *stubQueryService) GetAllMeasurements(_ context.Context, params query.Params) (*query.Page, error) {
	s.lastParams = &params
	if s.err != nil {
		return nil, s.err
	}
	if s.page != nil {
		return s.page, nil
	}
	return &query.Page{ChartData: []query.ChartPoint{}}, nil
}

func (s *stubQueryService) GetTimeInterval(context.Context) (*query.Interval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.interval, nil
}

func (s *stubQueryService) GetLatest(context.Context) (*db.Measurement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.latest, nil
}

type stubImportService struct {
	result *importer.Result
	err    error
}

func (s *stubImportService) Import(context.Context) (*importer.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func testQueryConfig() config.QueryConfig {
	return config.QueryConfig{
		DefaultLimit:         50,
		MaxLimit:             100,
		DefaultBucketMinutes: 15,
		MinBucketMinutes:     15,
		MaxBucketMinutes:     180,
	}
}

func newTestRouter(queries *stubQueryService, imports *stubImportService, pinger *stubPinger) http.Handler {
	handler := api.NewHandler(queries, imports, pinger, testQueryConfig())
	return api.NewRouter(handler, zap.NewNop())
}

func TestGetAllMeasurements_ParamValidation(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing muid", "/api/v1/measurements", http.StatusBadRequest},
		{"valid defaults", "/api/v1/measurements?muid=m1", http.StatusOK},
		{"limit zero", "/api/v1/measurements?muid=m1&limit=0", http.StatusBadRequest},
		{"limit too large", "/api/v1/measurements?muid=m1&limit=101", http.StatusBadRequest},
		{"limit not a number", "/api/v1/measurements?muid=m1&limit=abc", http.StatusBadRequest},
		{"limit at max", "/api/v1/measurements?muid=m1&limit=100", http.StatusOK},
		{"cursor negative", "/api/v1/measurements?muid=m1&cursor=-1", http.StatusBadRequest},
		{"cursor ok", "/api/v1/measurements?muid=m1&cursor=42", http.StatusOK},
		{"bucket below min", "/api/v1/measurements?muid=m1&bucketMinutes=14", http.StatusBadRequest},
		{"bucket above max", "/api/v1/measurements?muid=m1&bucketMinutes=181", http.StatusBadRequest},
		{"bucket ok", "/api/v1/measurements?muid=m1&bucketMinutes=60", http.StatusOK},
		{"interval ok", "/api/v1/measurements?muid=m1&interval=daily", http.StatusOK},
		{"interval unknown", "/api/v1/measurements?muid=m1&interval=yearly", http.StatusBadRequest},
		{"interval with average", "/api/v1/measurements?muid=m1&interval=weekly&withAverage=true", http.StatusOK},
		{"withAverage not bool", "/api/v1/measurements?muid=m1&interval=weekly&withAverage=maybe", http.StatusBadRequest},
		{"both modes", "/api/v1/measurements?muid=m1&bucketMinutes=30&interval=daily", http.StatusBadRequest},
		{"bad start", "/api/v1/measurements?muid=m1&start=yesterday", http.StatusBadRequest},
		{"bad end", "/api/v1/measurements?muid=m1&end=tomorrow", http.StatusBadRequest},
		{"start after end", "/api/v1/measurements?muid=m1&start=2023-02-02T00:00:00Z&end=2023-02-01T00:00:00Z", http.StatusBadRequest},
		{"time range ok", "/api/v1/measurements?muid=m1&start=2023-02-01T00:00:00Z&end=2023-02-02T00:00:00Z", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubQueryService{}, &stubImportService{}, &stubPinger{})
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, "body: %s", w.Body.String())
		})
	}
}

func TestGetAllMeasurements_ParamsPassedThrough(t *testing.T) {
	queries := &stubQueryService{}
	router := newTestRouter(queries, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/measurements?muid=m1&limit=10&cursor=7&bucketMinutes=30", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, queries.lastParams)
	assert.Equal(t, "m1", queries.lastParams.Muid)
	assert.Equal(t, 10, queries.lastParams.Limit)
	assert.Equal(t, int64(7), queries.lastParams.Cursor)
	assert.Equal(t, 30*time.Minute, queries.lastParams.BucketWidth)
	assert.Empty(t, queries.lastParams.Granularity)
}

func TestGetAllMeasurements_DefaultBucketWidth(t *testing.T) {
	queries := &stubQueryService{}
	router := newTestRouter(queries, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements?muid=m1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, queries.lastParams)
	assert.Equal(t, 50, queries.lastParams.Limit)
	assert.Equal(t, 15*time.Minute, queries.lastParams.BucketWidth)
}

func TestGetTimeInterval_EmptyStore(t *testing.T) {
	queries := &stubQueryService{err: repository.ErrEmptyStore}
	router := newTestRouter(queries, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements/interval", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTimeInterval_OK(t *testing.T) {
	queries := &stubQueryService{interval: &query.Interval{Min: 1000, Max: 2000}}
	router := newTestRouter(queries, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements/interval", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var interval query.Interval
	require.NoError(t, json.NewDecoder(w.Body).Decode(&interval))
	assert.Equal(t, int64(1000), interval.Min)
	assert.Equal(t, int64(2000), interval.Max)
}

func TestGetLatest_NullOnEmptyStore(t *testing.T) {
	router := newTestRouter(&stubQueryService{}, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null\n", w.Body.String(), "an empty store serves a JSON null, not an error")
}

func TestGetLatest_Row(t *testing.T) {
	latest := &db.Measurement{
		ID:           3,
		Timestamp:    time.Date(2023, 2, 1, 1, 45, 0, 0, time.UTC),
		Muid:         "m1",
		MeterAddress: "0100011D00FF",
		Value:        decimal.RequireFromString("0.5"),
	}
	router := newTestRouter(&stubQueryService{latest: latest}, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements/latest", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got db.Measurement
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "m1", got.Muid)
}

func TestImport_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"already imported", importer.ErrAlreadyImported, http.StatusConflict},
		{"upstream failure", &importer.UpstreamError{URL: "http://dump", Reason: "status 500"}, http.StatusBadGateway},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&stubQueryService{}, &stubImportService{err: tt.err}, &stubPinger{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestImport_Success(t *testing.T) {
	imports := &stubImportService{result: &importer.Result{InsertedCount: 4}}
	router := newTestRouter(&stubQueryService{}, imports, &stubPinger{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result importer.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, int64(4), result.InsertedCount)
}

func TestRequestIDHeader(t *testing.T) {
	router := newTestRouter(&stubQueryService{}, &stubImportService{}, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// A caller-supplied id is echoed back.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestHealth_DatabaseDown(t *testing.T) {
	router := newTestRouter(&stubQueryService{}, &stubImportService{}, &stubPinger{err: errors.New("down")})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
