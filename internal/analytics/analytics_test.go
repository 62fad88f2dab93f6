package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tower-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/tower-telemetry-etl/internal/domain"
	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
)

var base = time.Date(2025, 8, 22, 0, 0, 0, 0, time.UTC)

func sample() []domain.TowerReading {
	return []domain.TowerReading{
		{ID: "r1", TowerID: "TWR1001", Operator: "EE", NetworkType: "5G", Timestamp: base,
			LatencySec: 0.2, DroppedCalls: 2, TotalCalls: 100, CallDropRate: 2, BandwidthBPS: 10e6,
			Location: domain.Geo{Lat: 51.5, Lon: -0.12}, UsersConnected: 100},
		{ID: "r2", TowerID: "TWR1002", Operator: "O2", NetworkType: "4G", Timestamp: base.Add(30 * time.Minute),
			LatencySec: 0.4, DroppedCalls: 8, TotalCalls: 100, CallDropRate: 8, BandwidthBPS: 30e6,
			Location: domain.Geo{Lat: 53.48, Lon: -2.24}, UsersConnected: 300, Anomaly: domain.LabelAnomaly},
		{ID: "r3", TowerID: "TWR1001", Operator: "EE", NetworkType: "LTE", Timestamp: base.Add(90 * time.Minute),
			LatencySec: 0.6, DroppedCalls: 4, TotalCalls: 50, CallDropRate: 8, BandwidthBPS: 20e6,
			Location: domain.Geo{Lat: 51.5, Lon: -0.12}, UsersConnected: 200},
		{ID: "r4", TowerID: "TWR1003", Operator: "EE", NetworkType: "5G", Timestamp: base.Add(24 * time.Hour),
			LatencySec: 0.8, DroppedCalls: 5, TotalCalls: 100, CallDropRate: 5, BandwidthBPS: 40e6,
			Location: domain.Geo{Lat: 55.95, Lon: -3.19}, UsersConnected: 50},
	}
}

func ids(readings []domain.TowerReading) []string {
	out := make([]string, len(readings))
	for i, r := range readings {
		out[i] = r.ID
	}
	return out
}

func TestFilter_Apply(t *testing.T) {
	readings := sample()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty filter keeps all", Filter{}, []string{"r1", "r2", "r3", "r4"}},
		{"operator", Filter{Operators: []string{"O2"}}, []string{"r2"}},
		{"network types", Filter{NetworkTypes: []string{"5G", "LTE"}}, []string{"r1", "r3", "r4"}},
		{"inclusive start", Filter{Start: base.Add(30 * time.Minute)}, []string{"r2", "r3", "r4"}},
		{"inclusive end", Filter{End: base.Add(90 * time.Minute)}, []string{"r1", "r2", "r3"}},
		{"combined", Filter{Operators: []string{"EE"}, NetworkTypes: []string{"5G"}, End: base.Add(time.Hour)}, []string{"r1"}},
		{"no match", Filter{Operators: []string{"Three"}}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(tc.filter.Apply(readings)))
		})
	}
}

func TestParseBound(t *testing.T) {
	start, err := ParseBound("2025-08-22", false)
	require.NoError(t, err)
	assert.Equal(t, base, start)

	end, err := ParseBound("2025-08-22", true)
	require.NoError(t, err)
	assert.Equal(t, base.Add(24*time.Hour-time.Nanosecond), end)

	exact, err := ParseBound("2025-08-22T10:00:00+01:00", true)
	require.NoError(t, err)
	assert.Equal(t, base.Add(9*time.Hour), exact)

	zero, err := ParseBound("  ", false)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseBound("22/08/2025", false)
	require.ErrorIs(t, err, ErrInvalidBound)
}

func TestFilter_DateOnlyEndCoversWholeDay(t *testing.T) {
	end, err := ParseBound("2025-08-22", true)
	require.NoError(t, err)

	got := Filter{End: end}.Apply(sample())
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(got))
}

func TestOptions(t *testing.T) {
	opts := Options(sample())

	assert.Equal(t, []string{"EE", "O2"}, opts.Operators)
	assert.Equal(t, []string{"5G", "4G", "LTE"}, opts.NetworkTypes)
	assert.Equal(t, base, opts.MinTime)
	assert.Equal(t, base.Add(24*time.Hour), opts.MaxTime)

	empty := Options(nil)
	assert.Empty(t, empty.Operators)
	assert.NotNil(t, empty.Operators)
	assert.True(t, empty.MinTime.IsZero())
}

func TestComputeKPIs(t *testing.T) {
	k := ComputeKPIs(sample())

	assert.InDelta(t, 0.5, k.AvgLatencySec, 1e-9)
	assert.Equal(t, 19, k.TotalDroppedCalls)
	assert.InDelta(t, 25.0, k.AvgBandwidthMbps, 1e-9)
	assert.InDelta(t, 5.75, k.AvgCallDropRate, 1e-9)
	assert.Equal(t, 4, k.Readings)
	assert.Equal(t, 1, k.Anomalies)
}

func TestComputeKPIs_Empty(t *testing.T) {
	assert.Equal(t, KPIs{}, ComputeKPIs(nil))
}

func TestTrends(t *testing.T) {
	readings := sample()
	// Out of order input still yields sorted series.
	readings[0], readings[2] = readings[2], readings[0]

	series := Trends(readings)
	require.Len(t, series, 2)
	assert.Equal(t, "EE", series[0].Operator)
	assert.Equal(t, "O2", series[1].Operator)

	ee := series[0].Points
	require.Len(t, ee, 3)
	assert.Equal(t, "r1", ee[0].ReadingID)
	assert.Equal(t, "r3", ee[1].ReadingID)
	assert.Equal(t, "r4", ee[2].ReadingID)
	assert.Equal(t, 10e6, ee[0].BandwidthBPS)
	assert.Equal(t, 2, ee[0].DroppedCalls)
}

func TestAnomalyPoints(t *testing.T) {
	points := AnomalyPoints(sample())
	require.Len(t, points, 4)

	assert.Equal(t, domain.LabelNormal, points[0].Label, "unlabelled readings show as normal")
	assert.Equal(t, domain.LabelAnomaly, points[1].Label)
	assert.Equal(t, 0.4, points[1].LatencySec)
	assert.Equal(t, 8.0, points[1].CallDropRate)
	assert.Equal(t, "O2", points[1].Operator)
}

func TestGeoPoints(t *testing.T) {
	points := GeoPoints(sample())
	require.Len(t, points, 4)

	want := GeoPoint{TowerID: "TWR1002", Operator: "O2", Lat: 53.48, Lon: -2.24, LatencySec: 0.4, UsersConnected: 300, CallDropRate: 8}
	if diff := cmp.Diff(want, points[1]); diff != "" {
		t.Errorf("geo point mismatch (-want +got):\n%s", diff)
	}
}

func TestTopUnderperforming(t *testing.T) {
	got := TopUnderperforming(sample(), 0)

	want := []TowerSummary{
		{TowerID: "TWR1002", AvgCallDropRate: 8, DroppedCalls: 8, TotalCalls: 100, Readings: 1},
		// TWR1001 and TWR1003 tie at 5; the tie is broken by tower ID.
		{TowerID: "TWR1001", AvgCallDropRate: 5, DroppedCalls: 6, TotalCalls: 150, Readings: 2},
		{TowerID: "TWR1003", AvgCallDropRate: 5, DroppedCalls: 5, TotalCalls: 100, Readings: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestTopUnderperforming_LimitAndRounding(t *testing.T) {
	readings := []domain.TowerReading{
		{TowerID: "A", CallDropRate: 1.0 / 3},
		{TowerID: "B", CallDropRate: 9},
		{TowerID: "C", CallDropRate: 4},
	}

	got := TopUnderperforming(readings, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].TowerID)
	assert.Equal(t, "C", got[1].TowerID)

	all := TopUnderperforming(readings, 10)
	assert.Equal(t, 0.33, all[2].AvgCallDropRate)
}

func TestHourlyLatency(t *testing.T) {
	got := HourlyLatency(sample())

	require.Len(t, got, 3)
	assert.Equal(t, base, got[0].Hour)
	assert.InDelta(t, 0.3, got[0].AvgLatencySec, 1e-9)
	assert.Equal(t, 2, got[0].Readings)
	assert.Equal(t, base.Add(time.Hour), got[1].Hour)
	assert.Equal(t, base.Add(24*time.Hour), got[2].Hour)
}

func TestTowerMap(t *testing.T) {
	got := TowerMap(sample())

	require.Len(t, got, 3)
	assert.Equal(t, TowerLocation{TowerID: "TWR1001", Lat: 51.5, Lon: -0.12, AvgCallDropRate: 5}, got[0])
	assert.Equal(t, "TWR1002", got[1].TowerID)
	assert.Equal(t, "TWR1003", got[2].TowerID)
}

// --- dataset ---

type fakeSource struct {
	readings []domain.TowerReading
	version  int64
	lists    int
	err      error
}

func (f *fakeSource) ListAll(_ context.Context) ([]domain.TowerReading, error) {
	f.lists++
	out := make([]domain.TowerReading, len(f.readings))
	copy(out, f.readings)
	return out, f.err
}

func (f *fakeSource) Version(_ context.Context) (int64, error) { return f.version, nil }

func newTestDataset(src ReadingSource) *Dataset {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDataset(src, anomaly.DefaultOptions(), logger, observability.NewMetricsForTesting())
}

func TestDataset_CachesUntilVersionChanges(t *testing.T) {
	src := &fakeSource{readings: sample(), version: 1}
	ds := newTestDataset(src)
	ctx := context.Background()

	first, err := ds.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, first, 4)
	for _, r := range first {
		assert.NotEmpty(t, r.Anomaly, "every reading is labelled")
	}

	_, err = ds.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.lists)

	src.readings = append(src.readings, domain.TowerReading{ID: "r5", TowerID: "TWR1004", Timestamp: base.Add(48 * time.Hour)})
	src.version = 2

	second, err := ds.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, second, 5)
	assert.Equal(t, 2, src.lists)
}

func TestDataset_Get(t *testing.T) {
	ds := newTestDataset(&fakeSource{readings: sample(), version: 1})
	ctx := context.Background()

	r, ok, err := ds.Get(ctx, "r3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "TWR1001", r.TowerID)

	_, ok, err = ds.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDataset_SourceError(t *testing.T) {
	ds := newTestDataset(&fakeSource{err: errors.New("disk gone"), version: 1})

	_, err := ds.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestDataset_Empty(t *testing.T) {
	ds := newTestDataset(&fakeSource{})

	readings, err := ds.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}
