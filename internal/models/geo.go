package models

import "math"

// LatLng is a WGS84 coordinate in degrees
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Wrapped returns the coordinate with its longitude folded into [-180, 180]
func (ll LatLng) Wrapped() LatLng {
	return LatLng{Lat: ll.Lat, Lng: normalizeLng(ll.Lng)}
}

// ScreenPoint is a position in projected pixel space
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+o
func (p ScreenPoint) Add(o ScreenPoint) ScreenPoint {
	return ScreenPoint{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns p-o
func (p ScreenPoint) Sub(o ScreenPoint) ScreenPoint {
	return ScreenPoint{X: p.X - o.X, Y: p.Y - o.Y}
}

// Dist returns the euclidean distance between two screen points
func (p ScreenPoint) Dist(o ScreenPoint) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// BBox is a geographic bounding box in [west, south, east, north] order.
// West > East denotes a box crossing the antimeridian.
type BBox struct {
	West  float64 `json:"west" form:"west"`
	South float64 `json:"south" form:"south"`
	East  float64 `json:"east" form:"east"`
	North float64 `json:"north" form:"north"`
}

// WorldBBox covers the whole map
func WorldBBox() BBox {
	return BBox{West: -180, South: -90, East: 180, North: 90}
}

// Spans reports the longitude ranges covered by the box, splitting it at the
// antimeridian when needed. Bounds are inclusive.
func (b BBox) Spans() [][2]float64 {
	if b.East-b.West >= 360 {
		return [][2]float64{{-180, 180}}
	}
	west := normalizeLng(b.West)
	east := normalizeLng(b.East)
	if west > east {
		return [][2]float64{{west, 180}, {-180, east}}
	}
	return [][2]float64{{west, east}}
}

// Center returns the middle of the box, following the antimeridian when
// the box crosses it
func (b BBox) Center() LatLng {
	lat := (b.South + b.North) / 2
	if b.East-b.West >= 360 {
		return LatLng{Lat: lat, Lng: 0}
	}
	west := normalizeLng(b.West)
	east := normalizeLng(b.East)
	if west > east {
		east += 360
	}
	return LatLng{Lat: lat, Lng: normalizeLng((west + east) / 2)}
}

// Valid reports whether all four edges are finite and south <= north
func (b BBox) Valid() bool {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South <= b.North
}

func normalizeLng(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	return math.Mod(math.Mod(lng+180, 360)+360, 360) - 180
}
