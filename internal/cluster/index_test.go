package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/spatial"
)

func note(id string, lat, lng float64) models.Note {
	return models.Note{ID: id, Lat: lat, Lng: lng, Color: "#ff8800", Content: "note " + id}
}

func randomNotes(n int, seed int64) []models.Note {
	rng := rand.New(rand.NewSource(seed))
	notes := make([]models.Note, n)
	for i := range notes {
		// dense patches plus a uniform background
		var lat, lng float64
		if i%3 == 0 {
			lat = rng.Float64()*140 - 70
			lng = rng.Float64()*360 - 180
		} else {
			lat = 22.5 + rng.NormFloat64()*0.5
			lng = 114 + rng.NormFloat64()*0.5
		}
		notes[i] = note(fmt.Sprintf("n%04d", i), lat, lng)
	}
	return notes
}

func newTestIndex(notes []models.Note) *Index {
	idx := NewIndex(DefaultOptions(), nil, nil)
	idx.Build(notes)
	return idx
}

// expand flattens query items into the note ids they represent
func expand(t *testing.T, idx *Index, items []models.Item) []string {
	t.Helper()
	var ids []string
	for _, it := range items {
		if it.Point != nil {
			ids = append(ids, it.Point.ID)
			continue
		}
		members, ok := idx.Members(it.Cluster.ID)
		require.True(t, ok, "cluster %s from query must resolve", it.Cluster.ID)
		require.Len(t, members, it.Cluster.PointCount)
		for _, m := range members {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func TestQueryThreeNotesAtZoomThree(t *testing.T) {
	idx := newTestIndex([]models.Note{
		note("a", 0, 0),
		note("b", 0.0001, 0.0001),
		note("c", 45, 45),
	})

	items := idx.Query(models.WorldBBox(), 3)
	require.Len(t, items, 2)

	var cluster *models.Cluster
	var single *models.IndexedPoint
	for _, it := range items {
		if it.IsCluster() {
			cluster = it.Cluster
		} else {
			single = it.Point
		}
	}
	require.NotNil(t, cluster)
	require.NotNil(t, single)

	assert.Equal(t, 2, cluster.PointCount)
	assert.InDelta(t, 0.00005, cluster.Center.Lat, 1e-6)
	assert.InDelta(t, 0.00005, cluster.Center.Lng, 1e-6)
	assert.Equal(t, "c", single.ID)
	assert.Equal(t, models.LatLng{Lat: 45, Lng: 45}, single.Position())

	members, ok := idx.Members(cluster.ID)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{members[0].ID, members[1].ID})
}

func TestEmptyBuild(t *testing.T) {
	idx := NewIndex(DefaultOptions(), nil, nil)

	assert.Empty(t, idx.Query(models.WorldBBox(), 5))
	_, ok := idx.ExpansionZoom(1)
	assert.False(t, ok)

	idx.Build(nil)
	for z := -1; z <= 20; z++ {
		items := idx.Query(models.WorldBBox(), z)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	}
	for _, id := range []models.ClusterID{0, 1, encodeID(idx.Generation(), 3, 0), math.MaxUint64} {
		_, ok := idx.ExpansionZoom(id)
		assert.False(t, ok)
		_, ok = idx.Members(id)
		assert.False(t, ok)
		_, ok = idx.Children(id)
		assert.False(t, ok)
	}
	assert.Equal(t, 0, idx.Len())
}

func TestQueryPartitionCoverage(t *testing.T) {
	notes := randomNotes(1500, 7)
	idx := newTestIndex(notes)

	boxes := []models.BBox{
		models.WorldBBox(),
		{West: 110, South: 20, East: 118, North: 25},
		{West: 113.9, South: 22.4, East: 114.1, North: 22.6},
		{West: -60, South: -30, East: 10, North: 45},
		{West: 150, South: -60, East: -150, North: 60},
	}

	for _, box := range boxes {
		for z := 0; z <= 18; z++ {
			items := idx.Query(box, z)
			ids := expand(t, idx, items)

			seen := make(map[string]int, len(ids))
			for _, id := range ids {
				seen[id]++
			}
			for id, n := range seen {
				assert.Equal(t, 1, n, "note %s repeated at zoom %d in %+v", id, z, box)
			}
			for _, n := range notes {
				if inBox(box, n.Lat, n.Lng) {
					assert.Equal(t, 1, seen[n.ID], "note %s missing at zoom %d in %+v", n.ID, z, box)
				}
			}
		}
	}
}

func TestQueryIsDeterministic(t *testing.T) {
	notes := randomNotes(800, 11)
	a := newTestIndex(notes)
	b := newTestIndex(notes)

	box := models.BBox{West: 100, South: 10, East: 130, North: 35}
	for z := 0; z <= 18; z++ {
		first := a.Query(box, z)
		if diff := cmp.Diff(first, b.Query(box, z)); diff != "" {
			t.Fatalf("zoom %d differs between identical builds (-a +b):\n%s", z, diff)
		}
		if diff := cmp.Diff(first, a.Query(box, z)); diff != "" {
			t.Fatalf("zoom %d differs between repeated queries (-first +second):\n%s", z, diff)
		}
	}
}

func TestExpansionZoomIsMonotonic(t *testing.T) {
	idx := newTestIndex(randomNotes(600, 3))

	var walk func(id models.ClusterID, parentExpansion int)
	walk = func(id models.ClusterID, parentExpansion int) {
		exp, ok := idx.ExpansionZoom(id)
		require.True(t, ok)
		assert.Greater(t, exp, parentExpansion)

		children, ok := idx.Children(id)
		require.True(t, ok)
		assert.GreaterOrEqual(t, len(children), 2, "a cluster splits when zoomed to its expansion zoom")

		total := 0
		for _, c := range children {
			total += c.Count()
			if c.IsCluster() {
				walk(c.Cluster.ID, exp)
			}
		}
		cl, ok := idx.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, cl.PointCount, total)
	}

	for _, it := range idx.Query(models.WorldBBox(), 0) {
		if it.IsCluster() {
			walk(it.Cluster.ID, -1)
		}
	}
}

func TestMembersAreIndependentOfViewport(t *testing.T) {
	idx := newTestIndex([]models.Note{
		note("west", 0, -1),
		note("east", 0, 1),
	})

	items := idx.Query(models.BBox{West: -0.5, South: -0.5, East: 0.5, North: 0.5}, 0)
	require.Len(t, items, 1)
	require.True(t, items[0].IsCluster())

	members, ok := idx.Members(items[0].Cluster.ID)
	require.True(t, ok)
	assert.Len(t, members, 2)
}

func TestStaleIDAfterRebuild(t *testing.T) {
	notes := []models.Note{note("a", 10, 10), note("b", 10.001, 10.001)}
	idx := newTestIndex(notes)

	items := idx.Query(models.WorldBBox(), 5)
	require.Len(t, items, 1)
	id := items[0].Cluster.ID
	gen := idx.Generation()

	idx.Build(notes)
	assert.NotEqual(t, gen, idx.Generation())

	_, ok := idx.Members(id)
	assert.False(t, ok)
	_, ok = idx.ExpansionZoom(id)
	assert.False(t, ok)

	fresh := idx.Query(models.WorldBBox(), 5)
	require.Len(t, fresh, 1)
	assert.NotEqual(t, id, fresh[0].Cluster.ID)
}

func TestInvalidCoordinatesAreSkipped(t *testing.T) {
	idx := newTestIndex([]models.Note{
		note("ok", 1, 1),
		note("nan", math.NaN(), 1),
		note("inf", 1, math.Inf(1)),
		note("lat", 91, 0),
		note("lng", 0, -180.5),
	})

	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 4, idx.Skipped())

	items := idx.Query(models.WorldBBox(), 10)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Point.ID)
}

func TestQueryAcrossAntimeridian(t *testing.T) {
	idx := newTestIndex([]models.Note{
		note("east", 0, 179.5),
		note("west", 0, -179.5),
		note("middle", 0, 0),
	})

	got := expand(t, idx, idx.Query(models.BBox{West: 179, South: -1, East: -179, North: 1}, 18))
	assert.ElementsMatch(t, []string{"east", "west"}, got)

	got = expand(t, idx, idx.Query(models.BBox{West: -179, South: -1, East: 179, North: 1}, 18))
	assert.Equal(t, []string{"middle"}, got)

	got = expand(t, idx, idx.Query(models.BBox{West: 179, South: -1, East: 181, North: 1}, 18))
	assert.ElementsMatch(t, []string{"east", "west"}, got)
}

func TestQueryZoomLimits(t *testing.T) {
	idx := newTestIndex([]models.Note{note("a", 0, 0), note("b", 0, 0.00001)})

	above := idx.Query(models.WorldBBox(), 25)
	require.Len(t, above, 2)
	for _, it := range above {
		assert.False(t, it.IsCluster())
	}

	assert.Equal(t, idx.Query(models.WorldBBox(), 0), idx.Query(models.WorldBBox(), -4))
	clustered := idx.Query(models.WorldBBox(), 17)
	require.Len(t, clustered, 1)
	assert.True(t, clustered[0].IsCluster())
}

func TestQueryRejectsInvalidBBox(t *testing.T) {
	idx := newTestIndex([]models.Note{note("a", 0, 0)})
	assert.Empty(t, idx.Query(models.BBox{West: 0, South: 10, East: 1, North: -10}, 3))
	assert.Empty(t, idx.Query(models.BBox{West: math.NaN(), South: -1, East: 1, North: 1}, 3))
}

func TestClusterLocality(t *testing.T) {
	notes := randomNotes(1000, 5)
	idx := newTestIndex(notes)
	proj := idx.Projection()
	radius := idx.Options().RadiusPx

	for z := 0; z <= idx.Options().MaxZoom; z++ {
		zoom := float64(z)
		for _, it := range idx.Query(models.WorldBBox(), z) {
			if !it.IsCluster() {
				continue
			}
			center := proj.Project(it.Cluster.Center, zoom)
			members, ok := idx.Members(it.Cluster.ID)
			require.True(t, ok)
			for _, m := range members {
				d := proj.Project(m.Position(), zoom).Dist(center)
				assert.LessOrEqual(t, d, radius+1e-6, "note %s in cluster %s at zoom %d", m.ID, it.Cluster.ID, z)
			}
		}
	}
}

func TestHeavySideDoesNotDragMembersAway(t *testing.T) {
	proj := spatial.NewWebMercator(spatial.DefaultTileSize)
	origin := proj.Project(models.LatLng{}, 17)
	at := func(dx float64) models.LatLng {
		return proj.Unproject(origin.Add(models.ScreenPoint{X: dx}), 17)
	}

	east := at(59)
	west := at(-59)
	notes := []models.Note{note("seed", 0, 0), note("east", east.Lat, east.Lng)}
	for i := 0; i < 10; i++ {
		notes = append(notes, note(fmt.Sprintf("w%d", i), west.Lat, west.Lng))
	}
	idx := newTestIndex(notes)
	radius := idx.Options().RadiusPx

	items := idx.Query(models.WorldBBox(), 17)
	require.Len(t, items, 2)

	var single, group models.Item
	for _, it := range items {
		if it.IsCluster() {
			group = it
		} else {
			single = it
		}
	}
	require.NotNil(t, single.Point)
	assert.Equal(t, "east", single.Point.ID)
	require.NotNil(t, group.Cluster)
	assert.Equal(t, 11, group.Count())

	center := proj.Project(group.Cluster.Center, 17)
	members, ok := idx.Members(group.Cluster.ID)
	require.True(t, ok)
	for _, m := range members {
		assert.LessOrEqual(t, proj.Project(m.Position(), 17).Dist(center), radius, m.ID)
	}
	assert.Len(t, expand(t, idx, items), len(notes))
}

func TestIDsDoNotCrossIndexes(t *testing.T) {
	notes := randomNotes(200, 3)
	a := newTestIndex(notes)
	b := newTestIndex(notes)
	require.NotEqual(t, a.Generation(), b.Generation())

	for _, it := range a.Query(models.WorldBBox(), 3) {
		if !it.IsCluster() {
			continue
		}
		_, ok := b.Lookup(it.Cluster.ID)
		assert.False(t, ok)
		_, ok = b.Members(it.Cluster.ID)
		assert.False(t, ok)
	}
}

// inBox is an independent oracle for bbox membership, antimeridian included
func inBox(b models.BBox, lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.East-b.West >= 360 {
		return true
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}

func TestIDRoundTrip(t *testing.T) {
	id := encodeID(0xabcdef, 17, 123456789)
	gen, zoom, i := decodeID(id)
	assert.Equal(t, uint32(0xabcdef), gen)
	assert.Equal(t, 17, zoom)
	assert.Equal(t, 123456789, i)
}

func TestConcurrentQueriesDuringBuild(t *testing.T) {
	notes := randomNotes(300, 9)
	idx := newTestIndex(notes)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			idx.Build(notes)
		}
	}()
	for i := 0; i < 50; i++ {
		total := 0
		for _, it := range idx.Query(models.WorldBBox(), 4) {
			total += it.Count()
		}
		assert.Equal(t, len(notes), total)
	}
	<-done
}

func TestPointLookup(t *testing.T) {
	idx := newTestIndex([]models.Note{note("a", 1, 2), note("bad", 100, 0), note("a", 3, 4)})

	p, ok := idx.Point("a")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Lat)

	_, ok = idx.Point("bad")
	assert.False(t, ok)
	_, ok = idx.Point("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, idx.Len())
}
