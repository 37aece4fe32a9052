package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKMZeroForSamePoint(t *testing.T) {
	assert.Zero(t, DistanceKM(52.52, 13.405, 52.52, 13.405))
}

func TestDistanceKMKnownPairs(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantKM                 float64
		tolerance              float64
	}{
		{"berlin to potsdam", 52.5200, 13.4050, 52.3906, 13.0645, 27.3, 1.0},
		{"one degree latitude at equator", 0, 0, 1, 0, 111.2, 0.5},
		{"new york to los angeles", 40.7128, -74.0060, 34.0522, -118.2437, 3936, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKM(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			require.InDelta(t, tt.wantKM, got, tt.tolerance)
		})
	}
}

func TestDistanceKMSymmetry(t *testing.T) {
	a := DistanceKM(48.85, 2.35, 51.5, -0.12)
	b := DistanceKM(51.5, -0.12, 48.85, 2.35)
	assert.InDelta(t, a, b, 1e-9)
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(0, 0))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(90.01, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
}
