//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tower-telemetry-etl/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	// Trafalgar Square
	result, err := c.ReverseGeocode(context.Background(), 51.508, -0.128)
	require.NoError(t, err)

	assert.Contains(t, result.FormattedAddress, "London")
	assert.NotEmpty(t, result.PlaceName)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestSmoke_ReverseGeocode_OpenSea(t *testing.T) {
	c := smokeClient(t)

	// Mid North Atlantic may or may not resolve; either way no error.
	_, err := c.ReverseGeocode(context.Background(), 45.0, -35.0)
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	r1, err := cached.ReverseGeocode(context.Background(), 53.4808, -2.2426)
	require.NoError(t, err)
	assert.Contains(t, r1.FormattedAddress, "Manchester")

	r2, err := cached.ReverseGeocode(context.Background(), 53.4808, -2.2426)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
