// Package charts renders the dashboard pages as standalone go-echarts HTML.
package charts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	httpadapter "github.com/couchcryptid/tower-telemetry-etl/internal/adapter/http"
	"github.com/couchcryptid/tower-telemetry-etl/internal/analytics"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Snapshotter provides the labelled reading set.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]domain.TowerReading, error)
}

// Handler serves the chart pages. Every page accepts the same filter query
// parameters as the JSON API.
type Handler struct {
	dataset Snapshotter
	logger  *slog.Logger
}

// NewHandler creates a chart Handler reading from dataset.
func NewHandler(dataset Snapshotter, logger *slog.Logger) *Handler {
	return &Handler{dataset: dataset, logger: logger}
}

// Register mounts the chart routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /charts", h.page(dashboardPage))
	mux.HandleFunc("GET /charts/trends", h.page(func(rs []domain.TowerReading) render { return trendsChart(rs) }))
	mux.HandleFunc("GET /charts/anomalies", h.page(func(rs []domain.TowerReading) render { return anomalyChart(rs) }))
	mux.HandleFunc("GET /charts/geo", h.page(func(rs []domain.TowerReading) render { return geoChart(rs) }))
}

type render interface {
	Render(w io.Writer) error
}

func (h *Handler) page(build func([]domain.TowerReading) render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := httpadapter.ParseFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		readings, err := h.dataset.Snapshot(r.Context())
		if err != nil {
			h.logger.Error("load dataset", "error", err)
			http.Error(w, "dataset unavailable", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		if err := build(f.Apply(readings)).Render(&buf); err != nil {
			h.logger.Error("render chart", "path", r.URL.Path, "error", err)
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

func dashboardPage(readings []domain.TowerReading) render {
	page := components.NewPage()
	page.PageTitle = "Tower Telemetry"
	page.AddCharts(trendsChart(readings), anomalyChart(readings), geoChart(readings))
	return page
}

// trendsChart plots latency over time, one line per operator.
func trendsChart(readings []domain.TowerReading) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Latency Trends", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Latency by Operator", Subtitle: fmt.Sprintf("readings=%d", len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latency (s)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)

	for _, s := range analytics.Trends(readings) {
		data := make([]opts.LineData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.LineData{Name: p.TowerID, Value: []interface{}{p.Timestamp.UnixMilli(), p.LatencySec}}
		}
		line.AddSeries(s.Operator, data)
	}
	return line
}

// anomalyChart scatters latency against call drop rate with outliers in
// their own series.
func anomalyChart(readings []domain.TowerReading) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Anomalies", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Latency vs Call Drop Rate"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Latency (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Call drop rate (%)", NameLocation: "middle", NameGap: 35}),
	)

	var normal, outliers []opts.ScatterData
	for _, p := range analytics.AnomalyPoints(readings) {
		d := opts.ScatterData{
			Name:       fmt.Sprintf("%s %s %s", p.TowerID, p.Operator, p.NetworkType),
			Value:      []interface{}{p.LatencySec, p.CallDropRate},
			SymbolSize: bandwidthSymbol(p.BandwidthBPS),
		}
		if p.Label == domain.LabelAnomaly {
			outliers = append(outliers, d)
		} else {
			normal = append(normal, d)
		}
	}
	scatter.AddSeries(domain.LabelNormal, normal, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#26828e"}))
	scatter.AddSeries(domain.LabelAnomaly, outliers, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	return scatter
}

// geoChart places towers by longitude and latitude, coloured by latency.
func geoChart(readings []domain.TowerReading) *charts.Scatter {
	points := analytics.GeoPoints(readings)

	maxLatency := 0.0
	data := make([]opts.ScatterData, len(points))
	for i, p := range points {
		maxLatency = max(maxLatency, p.LatencySec)
		data[i] = opts.ScatterData{
			Name:       fmt.Sprintf("%s %s drop=%.2f%%", p.TowerID, p.Operator, p.CallDropRate),
			Value:      []interface{}{p.Lon, p.Lat, p.LatencySec},
			SymbolSize: usersSymbol(p.UsersConnected),
		}
	}
	if maxLatency == 0 {
		maxLatency = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tower Map", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tower Locations", Subtitle: "colour: latency, size: connected users"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", Min: "dataMin", Max: "dataMax"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", Min: "dataMin", Max: "dataMax"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxLatency),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("towers", data)
	return scatter
}

func bandwidthSymbol(bps float64) int {
	return clampSymbol(4 + int(bps/1e8))
}

func usersSymbol(users int) int {
	return clampSymbol(4 + users/50)
}

func clampSymbol(v int) int {
	return min(max(v, 4), 30)
}
