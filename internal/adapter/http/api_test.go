package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/tower-telemetry-etl/internal/adapter/http"
	"github.com/couchcryptid/tower-telemetry-etl/internal/analytics"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
	"github.com/couchcryptid/tower-telemetry-etl/internal/predict"
)

var base = time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC)

type fakeDataset struct {
	readings []domain.TowerReading
	err      error
}

func (f *fakeDataset) Snapshot(_ context.Context) ([]domain.TowerReading, error) {
	return f.readings, f.err
}

func (f *fakeDataset) Get(_ context.Context, id string) (domain.TowerReading, bool, error) {
	if f.err != nil {
		return domain.TowerReading{}, false, f.err
	}
	for _, r := range f.readings {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.TowerReading{}, false, nil
}

type fakeRuns struct {
	limit int
	runs  []domain.IngestRun
}

func (f *fakeRuns) Runs(_ context.Context, limit int) ([]domain.IngestRun, error) {
	f.limit = limit
	return f.runs, nil
}

func readings() []domain.TowerReading {
	return []domain.TowerReading{
		{ID: "r1", TowerID: "TWR1001", Operator: "EE", NetworkType: "5G", Timestamp: base,
			LatencySec: 0.2, DroppedCalls: 2, TotalCalls: 100, CallDropRate: 2, BandwidthBPS: 10e6, BandwidthMbps: 10},
		{ID: "r2", TowerID: "TWR1002", Operator: "O2", NetworkType: "4G", Timestamp: base.Add(time.Hour),
			LatencySec: 0.4, DroppedCalls: 8, TotalCalls: 100, CallDropRate: 8, BandwidthBPS: 30e6, BandwidthMbps: 30,
			Anomaly: domain.LabelAnomaly},
		{ID: "r3", TowerID: "TWR1003", Operator: "Vodafone", NetworkType: "LTE", Timestamp: base.Add(48 * time.Hour),
			LatencySec: 0.6, DroppedCalls: 4, TotalCalls: 50, CallDropRate: 8, BandwidthBPS: 20e6, BandwidthMbps: 20},
	}
}

type apiFixture struct {
	handler http.Handler
	metrics *observability.Metrics
	runs    *fakeRuns
}

func newAPI(t *testing.T, ds httpadapter.Dataset, predictor *predict.Predictor) apiFixture {
	t.Helper()
	if predictor == nil {
		m, err := predict.LoadModel(filepath.Join("..", "..", "..", "model", "tower_optimization_model.yaml"))
		require.NoError(t, err)
		predictor = predict.NewPredictorWithModel(m)
	}
	metrics := observability.NewMetricsForTesting()
	runs := &fakeRuns{runs: []domain.IngestRun{{ID: "run-1", Source: "sample.json", Read: 24}}}
	api := httpadapter.NewAPI(ds, predictor, runs, metrics, discardLogger())
	return apiFixture{handler: newTestServer(nil, api), metrics: metrics, runs: runs}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAPI_Readings_Filters(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"no filter", "", []string{"r1", "r2", "r3"}},
		{"operator", "?operator=EE", []string{"r1"}},
		{"repeated operator", "?operator=EE&operator=O2", []string{"r1", "r2"}},
		{"comma separated", "?network_type=4G,LTE", []string{"r2", "r3"}},
		{"date range", "?start=2025-08-22&end=2025-08-22", []string{"r1", "r2"}},
		{"rfc3339 start", "?start=2025-08-22T00:30:00Z", []string{"r2", "r3"}},
		{"no match", "?operator=Three", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.handler, http.MethodGet, "/api/v1/readings"+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)

			got := []string{}
			for _, r := range decode[[]domain.TowerReading](t, rec) {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("reading ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAPI_BadFilter(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	for _, q := range []string{"?start=yesterday", "?end=2025-13-01", "?start=2025-08-23&end=2025-08-22"} {
		rec := serve(f.handler, http.MethodGet, "/api/v1/kpis"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
	}
}

func TestAPI_DatasetError(t *testing.T) {
	f := newAPI(t, &fakeDataset{err: errors.New("disk gone")}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/trends")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestAPI_KPIs(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/kpis?operator=EE,O2")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[analytics.KPIs](t, rec)
	assert.Equal(t, 2, got.Readings)
	assert.Equal(t, 1, got.Anomalies)
	assert.Equal(t, 10, got.TotalDroppedCalls)
	assert.InDelta(t, 20.0, got.AvgBandwidthMbps, 1e-9)
	assert.InDelta(t, 0.3, got.AvgLatencySec, 1e-9)
}

func TestAPI_Options(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/options")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[analytics.FilterOptions](t, rec)
	assert.Equal(t, []string{"EE", "O2", "Vodafone"}, got.Operators)
	assert.Equal(t, []string{"5G", "4G", "LTE"}, got.NetworkTypes)
	assert.True(t, got.MinTime.Equal(base))
}

func TestAPI_Views(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	for _, path := range []string{
		"/api/v1/trends", "/api/v1/anomalies", "/api/v1/geo",
		"/api/v1/latency/hourly", "/api/v1/towers/map",
	} {
		rec := serve(f.handler, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}
}

func TestAPI_Underperforming(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/towers/underperforming?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]analytics.TowerSummary](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "TWR1002", got[0].TowerID)
	assert.Equal(t, "TWR1003", got[1].TowerID)

	rec = serve(f.handler, http.MethodGet, "/api/v1/towers/underperforming?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ReadingByID(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/readings/r2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TWR1002", decode[domain.TowerReading](t, rec).TowerID)

	rec = serve(f.handler, http.MethodGet, "/api/v1/readings/r9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ReadingFeatures(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/readings/r3/features")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[map[string]float64](t, rec)
	assert.Len(t, got, len(predict.FeatureColumns))
	assert.Equal(t, 0.6, got["latency_sec"])
	assert.Equal(t, 20.0, got["bandwidth_mbps"])
	assert.Equal(t, 50.0, got["total_calls"])
}

func TestAPI_PredictDefaults(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/predict/defaults")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ModelLoaded bool               `json:"model_loaded"`
		Features    []string           `json:"features"`
		Ranges      []predict.Range    `json:"ranges"`
		Defaults    map[string]float64 `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.ModelLoaded)
	assert.Equal(t, predict.FeatureColumns, got.Features)
	assert.Len(t, got.Ranges, len(predict.FeatureColumns))
	assert.Equal(t, 0.4, got.Defaults["latency_sec"])
}

func postPredict(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Predict(t *testing.T) {
	f := newAPI(t, &fakeDataset{readings: readings()}, nil)

	values := predict.FeaturesOf(readings()[0])
	body, err := json.Marshal(values)
	require.NoError(t, err)

	rec := postPredict(f.handler, string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[predict.Prediction](t, rec)
	assert.GreaterOrEqual(t, got.Probability, 0.0)
	assert.LessOrEqual(t, got.Probability, 1.0)
	assert.Contains(t, []string{predict.LabelNeedsOptimization, predict.LabelNoOptimization}, got.Label)

	outcome := "ok"
	if got.NeedsOptimization {
		outcome = "optimize"
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Predictions.WithLabelValues(outcome)))
}

func TestAPI_Predict_Errors(t *testing.T) {
	f := newAPI(t, &fakeDataset{}, nil)

	rec := postPredict(f.handler, `{"latency_sec": 0.3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "missing feature")

	rec = postPredict(f.handler, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	values := map[string]any{}
	for name, v := range predict.FeaturesOf(readings()[0]) {
		values[name] = v
	}
	values["latency_sec"] = nil
	body, err := json.Marshal(values)
	require.NoError(t, err)

	rec = postPredict(f.handler, string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "missing feature: latency_sec")

	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.Predictions.WithLabelValues("error")))
}

func TestAPI_Predict_ModelNotLoaded(t *testing.T) {
	predictor := predict.NewPredictor(filepath.Join(t.TempDir(), "missing.yaml"))
	f := newAPI(t, &fakeDataset{}, predictor)

	rec := postPredict(f.handler, `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(f.handler, http.MethodGet, "/api/v1/predict/defaults")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, false, got["model_loaded"])
	assert.NotEmpty(t, got["model_error"])
}

func TestAPI_Runs(t *testing.T) {
	f := newAPI(t, &fakeDataset{}, nil)

	rec := serve(f.handler, http.MethodGet, "/api/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]domain.IngestRun](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].ID)
	assert.Equal(t, 20, f.runs.limit)

	serve(f.handler, http.MethodGet, "/api/v1/runs?limit=10000")
	assert.Equal(t, 500, f.runs.limit)

	rec = serve(f.handler, http.MethodGet, "/api/v1/runs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
