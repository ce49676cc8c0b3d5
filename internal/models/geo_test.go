package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBBoxSpans(t *testing.T) {
	assert.Equal(t, [][2]float64{{-10, 10}}, BBox{West: -10, South: 0, East: 10, North: 1}.Spans())
	assert.Equal(t, [][2]float64{{170, 180}, {-180, -170}}, BBox{West: 170, South: 0, East: -170, North: 1}.Spans())
	assert.Equal(t, [][2]float64{{-180, 180}}, BBox{West: -200, South: 0, East: 200, North: 1}.Spans())
	assert.Equal(t, [][2]float64{{170, 180}, {-180, -170}}, BBox{West: 170, South: 0, East: 190, North: 1}.Spans(), "unwrapped east edge")
}

func TestBBoxCenter(t *testing.T) {
	assert.Equal(t, LatLng{Lat: 48.5, Lng: 2.5}, BBox{West: 2, South: 48, East: 3, North: 49}.Center())
	assert.Equal(t, LatLng{Lat: 0, Lng: 180}, BBox{West: 170, South: -1, East: -170, North: 1}.Center())
	assert.Equal(t, LatLng{Lat: 0, Lng: 0}, WorldBBox().Center())
}

func TestBBoxValid(t *testing.T) {
	assert.True(t, WorldBBox().Valid())
	assert.False(t, BBox{South: 10, North: 5}.Valid())
	assert.False(t, BBox{West: math.NaN()}.Valid())
	assert.False(t, BBox{East: math.Inf(1)}.Valid())
}

func TestClusterIDText(t *testing.T) {
	id := ClusterID(1<<40 | 17)
	b, err := id.MarshalText()
	assert.NoError(t, err)

	var back ClusterID
	assert.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, id, back)

	_, err = ParseClusterID("-1")
	assert.Error(t, err)
}

func TestItemCount(t *testing.T) {
	p := NewIndexedPoint(Note{ID: "a", Lat: 1, Lng: 2})
	assert.Equal(t, 1, Item{Point: &p}.Count())
	assert.Equal(t, LatLng{Lat: 1, Lng: 2}, Item{Point: &p}.Position())

	c := Cluster{PointCount: 7, Center: LatLng{Lat: 3, Lng: 4}}
	assert.Equal(t, 7, Item{Cluster: &c}.Count())
	assert.True(t, Item{Cluster: &c}.IsCluster())
}

func TestLatLngWrapped(t *testing.T) {
	assert.Equal(t, LatLng{Lat: 1, Lng: -179.5}, LatLng{Lat: 1, Lng: 180.5}.Wrapped())
	assert.Equal(t, LatLng{Lat: 1, Lng: 179.5}, LatLng{Lat: 1, Lng: -180.5}.Wrapped())
	assert.Equal(t, LatLng{Lat: 1, Lng: 180}, LatLng{Lat: 1, Lng: 180}.Wrapped())
}
