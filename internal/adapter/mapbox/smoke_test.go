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
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, testMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ForwardGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ForwardGeocode(context.Background(), "Downtown Los Angeles, California")
	require.NoError(t, err)
	require.True(t, result.Found())
	assert.InDelta(t, 34.04, result.Lat, 0.2)
	assert.InDelta(t, -118.25, result.Lon, 0.2)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := NewCachedGeocoder(smokeClient(t), 10, testMetrics())

	first, err := c.ForwardGeocode(context.Background(), "Santa Monica, California")
	require.NoError(t, err)
	second, err := c.ForwardGeocode(context.Background(), "santa monica, california")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
