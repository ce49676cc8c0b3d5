package spatial

import (
	"math"

	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// Projection maps geographic coordinates to pixel space at a zoom level.
// Implementations must be a bijection for a fixed zoom.
type Projection interface {
	Project(ll models.LatLng, zoom float64) models.ScreenPoint
	Unproject(p models.ScreenPoint, zoom float64) models.LatLng
}

// DefaultTileSize matches the 256px raster tiles used by the 2D map
const DefaultTileSize = 256

// maxSin keeps the projection finite near the poles
const maxSin = 0.9999

// WebMercator is the spherical mercator used by slippy tile maps
type WebMercator struct {
	TileSize float64
}

// NewWebMercator returns a web mercator projection with the given tile size
func NewWebMercator(tileSize float64) WebMercator {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return WebMercator{TileSize: tileSize}
}

func (m WebMercator) scale(zoom float64) float64 {
	size := m.TileSize
	if size <= 0 {
		size = DefaultTileSize
	}
	return size * math.Exp2(zoom)
}

// Project converts lat/lng to world pixel coordinates at zoom
func (m WebMercator) Project(ll models.LatLng, zoom float64) models.ScreenPoint {
	s := m.scale(zoom)
	sin := math.Sin(ll.Lat * math.Pi / 180)
	sin = math.Max(math.Min(sin, maxSin), -maxSin)

	x := (ll.Lng + 180) / 360
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi

	return models.ScreenPoint{X: x * s, Y: y * s}
}

// Unproject converts world pixel coordinates at zoom back to lat/lng
func (m WebMercator) Unproject(p models.ScreenPoint, zoom float64) models.LatLng {
	s := m.scale(zoom)
	x := p.X / s
	y := p.Y / s

	lng := x*360 - 180
	y2 := (180 - y*360) * math.Pi / 180
	lat := 360*math.Atan(math.Exp(y2))/math.Pi - 90

	return models.LatLng{Lat: lat, Lng: lng}
}
