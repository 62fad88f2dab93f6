package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/tower-telemetry-etl/internal/analytics"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
	"github.com/couchcryptid/tower-telemetry-etl/internal/predict"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
	maxPredictBody   = 64 << 10
)

// Dataset is the labelled reading set served to the dashboard.
type Dataset interface {
	Snapshot(ctx context.Context) ([]domain.TowerReading, error)
	Get(ctx context.Context, id string) (domain.TowerReading, bool, error)
}

// RunLister lists recent ingest runs.
type RunLister interface {
	Runs(ctx context.Context, limit int) ([]domain.IngestRun, error)
}

// API serves the dashboard's JSON endpoints under /api/v1.
type API struct {
	dataset   Dataset
	predictor *predict.Predictor
	runs      RunLister
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewAPI creates the dashboard API. runs may be nil, in which case
// /api/v1/runs is not mounted.
func NewAPI(dataset Dataset, predictor *predict.Predictor, runs RunLister, metrics *observability.Metrics, logger *slog.Logger) *API {
	return &API{
		dataset:   dataset,
		predictor: predictor,
		runs:      runs,
		metrics:   metrics,
		logger:    logger,
	}
}

// Register mounts the API routes.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/options", a.handleOptions)
	mux.HandleFunc("GET /api/v1/readings", a.filtered(func(rs []domain.TowerReading) any { return rs }))
	mux.HandleFunc("GET /api/v1/readings/{id}", a.handleReading)
	mux.HandleFunc("GET /api/v1/readings/{id}/features", a.handleReadingFeatures)
	mux.HandleFunc("GET /api/v1/kpis", a.filtered(func(rs []domain.TowerReading) any { return analytics.ComputeKPIs(rs) }))
	mux.HandleFunc("GET /api/v1/trends", a.filtered(func(rs []domain.TowerReading) any { return analytics.Trends(rs) }))
	mux.HandleFunc("GET /api/v1/anomalies", a.filtered(func(rs []domain.TowerReading) any { return analytics.AnomalyPoints(rs) }))
	mux.HandleFunc("GET /api/v1/geo", a.filtered(func(rs []domain.TowerReading) any { return analytics.GeoPoints(rs) }))
	mux.HandleFunc("GET /api/v1/latency/hourly", a.filtered(func(rs []domain.TowerReading) any { return analytics.HourlyLatency(rs) }))
	mux.HandleFunc("GET /api/v1/towers/map", a.filtered(func(rs []domain.TowerReading) any { return analytics.TowerMap(rs) }))
	mux.HandleFunc("GET /api/v1/towers/underperforming", a.handleUnderperforming)
	mux.HandleFunc("GET /api/v1/predict/defaults", a.handlePredictDefaults)
	mux.HandleFunc("POST /api/v1/predict", a.handlePredict)
	if a.runs != nil {
		mux.HandleFunc("GET /api/v1/runs", a.handleRuns)
	}
}

// filtered wraps a view over the filtered snapshot.
func (a *API) filtered(view func([]domain.TowerReading) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readings, ok := a.filteredReadings(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, view(readings))
	}
}

func (a *API) filteredReadings(w http.ResponseWriter, r *http.Request) ([]domain.TowerReading, bool) {
	f, err := ParseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	readings, err := a.dataset.Snapshot(r.Context())
	if err != nil {
		a.logger.Error("load dataset", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("dataset unavailable"))
		return nil, false
	}
	return f.Apply(readings), true
}

func (a *API) handleOptions(w http.ResponseWriter, r *http.Request) {
	readings, err := a.dataset.Snapshot(r.Context())
	if err != nil {
		a.logger.Error("load dataset", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("dataset unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, analytics.Options(readings))
}

func (a *API) handleUnderperforming(w http.ResponseWriter, r *http.Request) {
	n := analytics.DefaultTopTowers
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		n = v
	}
	readings, ok := a.filteredReadings(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, analytics.TopUnderperforming(readings, n))
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (domain.TowerReading, bool) {
	id := r.PathValue("id")
	reading, found, err := a.dataset.Get(r.Context(), id)
	if err != nil {
		a.logger.Error("load dataset", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("dataset unavailable"))
		return reading, false
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("reading %q not found", id))
		return reading, false
	}
	return reading, true
}

func (a *API) handleReading(w http.ResponseWriter, r *http.Request) {
	if reading, ok := a.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, reading)
	}
}

// handleReadingFeatures returns a reading's classifier inputs so the
// predictor form can be filled from a clicked chart point.
func (a *API) handleReadingFeatures(w http.ResponseWriter, r *http.Request) {
	if reading, ok := a.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, predict.FeaturesOf(reading))
	}
}

type defaultsResponse struct {
	ModelLoaded bool               `json:"model_loaded"`
	ModelError  string             `json:"model_error,omitempty"`
	Features    []string           `json:"features"`
	Ranges      []predict.Range    `json:"ranges"`
	Defaults    map[string]float64 `json:"defaults"`
}

func (a *API) handlePredictDefaults(w http.ResponseWriter, r *http.Request) {
	readings, err := a.dataset.Snapshot(r.Context())
	if err != nil {
		a.logger.Error("load dataset", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("dataset unavailable"))
		return
	}
	ranges := predict.FeatureRanges(readings)
	resp := defaultsResponse{
		Features: predict.FeatureColumns,
		Ranges:   ranges,
		Defaults: predict.Defaults(ranges),
	}
	loaded, loadErr := a.predictor.Loaded()
	resp.ModelLoaded = loaded
	if loadErr != nil {
		resp.ModelError = loadErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	values, err := decodeFeatures(http.MaxBytesReader(w, r.Body, maxPredictBody))
	if err != nil {
		a.metrics.Predictions.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := a.predictor.Predict(values)
	switch {
	case errors.Is(err, predict.ErrModelNotLoaded):
		a.metrics.Predictions.WithLabelValues("error").Inc()
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		a.metrics.Predictions.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, err)
		return
	}

	outcome := "ok"
	if p.NeedsOptimization {
		outcome = "optimize"
	}
	a.metrics.Predictions.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusOK, p)
}

// decodeFeatures reads a JSON object of feature values. A null value counts
// as a missing feature rather than zero.
func decodeFeatures(body io.Reader) (map[string]float64, error) {
	var raw map[string]*float64
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	values := make(map[string]float64, len(raw))
	for _, name := range slices.Sorted(maps.Keys(raw)) {
		v := raw[name]
		if v == nil {
			return nil, fmt.Errorf("%w: %s", predict.ErrMissingFeature, name)
		}
		values[name] = *v
	}
	return values, nil
}

func (a *API) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", s))
			return
		}
		limit = min(v, maxRunsLimit)
	}
	runs, err := a.runs.Runs(r.Context(), limit)
	if err != nil {
		a.logger.Error("list ingest runs", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("runs unavailable"))
		return
	}
	if runs == nil {
		runs = []domain.IngestRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// ParseFilter reads the dashboard filter from query parameters. operator and
// network_type may repeat or hold comma-separated values; start and end
// accept a date or an RFC 3339 timestamp.
func ParseFilter(r *http.Request) (analytics.Filter, error) {
	q := r.URL.Query()
	f := analytics.Filter{
		Operators:    splitValues(q["operator"]),
		NetworkTypes: splitValues(q["network_type"]),
	}

	var err error
	if f.Start, err = analytics.ParseBound(q.Get("start"), false); err != nil {
		return f, fmt.Errorf("start: %w", err)
	}
	if f.End, err = analytics.ParseBound(q.Get("end"), true); err != nil {
		return f, fmt.Errorf("end: %w", err)
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return f, fmt.Errorf("%w: end before start", analytics.ErrInvalidBound)
	}
	return f, nil
}

func splitValues(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
