package spatial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jengzang/memorymap-backend-go/internal/models"
)

func TestHaversineDistance(t *testing.T) {
	// Paris to London
	d := HaversineDistance(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 343_500, d, 1_500)
	assert.Zero(t, HaversineDistance(10, 10, 10, 10))
}

func TestValidCoordinate(t *testing.T) {
	assert.True(t, ValidCoordinate(0, 0))
	assert.True(t, ValidCoordinate(-90, 180))
	assert.False(t, ValidCoordinate(90.5, 0))
	assert.False(t, ValidCoordinate(0, 181))
	assert.False(t, ValidCoordinate(math.NaN(), 0))
	assert.False(t, ValidCoordinate(0, math.Inf(-1)))
}

func TestWebMercatorRoundTrip(t *testing.T) {
	m := NewWebMercator(DefaultTileSize)
	for _, ll := range []models.LatLng{{Lat: 0, Lng: 0}, {Lat: 48.85, Lng: 2.35}, {Lat: -33.86, Lng: 151.2}, {Lat: 80, Lng: -179.9}} {
		for _, z := range []float64{0, 5, 17} {
			back := m.Unproject(m.Project(ll, z), z)
			assert.InDelta(t, ll.Lat, back.Lat, 1e-9)
			assert.InDelta(t, ll.Lng, back.Lng, 1e-9)
		}
	}

	origin := m.Project(models.LatLng{}, 0)
	assert.InDelta(t, 128, origin.X, 1e-9)
	assert.InDelta(t, 128, origin.Y, 1e-9)

	north := m.Project(models.LatLng{Lat: 10}, 3)
	south := m.Project(models.LatLng{Lat: -10}, 3)
	assert.Less(t, north.Y, south.Y, "screen y grows southwards")
}
