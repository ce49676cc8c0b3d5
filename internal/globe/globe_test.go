package globe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

func newOverview(notes []models.Note) *Overview {
	cfg := DefaultConfig()
	o := New(cfg, 4, cluster.NewIndex(cfg.ClusterOptions(), nil, nil))
	o.Build(notes)
	return o
}

func TestTierFor(t *testing.T) {
	cases := map[int]Tier{
		1:    TierSingle,
		2:    TierSmall,
		10:   TierSmall,
		11:   TierMedium,
		100:  TierMedium,
		101:  TierLarge,
		1000: TierLarge,
		1001: TierHuge,
	}
	for count, want := range cases {
		assert.Equal(t, want, TierFor(count), "count %d", count)
	}
}

func TestMarkersCoverEveryNote(t *testing.T) {
	var notes []models.Note
	for i := 0; i < 30; i++ {
		notes = append(notes, models.Note{ID: fmt.Sprintf("tokyo%d", i), Lat: 35.68 + float64(i)*0.01, Lng: 139.69})
	}
	notes = append(notes, models.Note{ID: "lima", Lat: -12.05, Lng: -77.04})
	o := newOverview(notes)

	markers := o.Markers()
	require.Len(t, markers, 2)

	total := 0
	for _, m := range markers {
		total += m.Count()
		if m.IsCluster() {
			assert.Equal(t, TierMedium, m.Tier)
		} else {
			assert.Equal(t, TierSingle, m.Tier)
			assert.Equal(t, "lima", m.Point.ID)
		}
	}
	assert.Equal(t, len(notes), total)
}

func TestActivateCluster(t *testing.T) {
	o := newOverview([]models.Note{
		{ID: "a", Lat: 51.5, Lng: -0.12},
		{ID: "b", Lat: 51.6, Lng: -0.1},
	})
	markers := o.Markers()
	require.Len(t, markers, 1)
	require.True(t, markers[0].IsCluster())

	focus, ok := o.ActivateCluster(markers[0].Cluster.ID)
	require.True(t, ok)
	exp, _ := o.Index().ExpansionZoom(markers[0].Cluster.ID)
	assert.Equal(t, max(exp, 4), focus.Zoom)
	assert.GreaterOrEqual(t, focus.Zoom, 4)
	assert.Equal(t, markers[0].Cluster.Center, focus.Center)
	assert.Empty(t, focus.NoteID)

	_, ok = o.ActivateCluster(12345)
	assert.False(t, ok)
}

func TestActivateNote(t *testing.T) {
	o := newOverview([]models.Note{{ID: "x", Lat: -33.86, Lng: 151.2}})

	focus, ok := o.ActivateNote("x")
	require.True(t, ok)
	assert.Equal(t, 18, focus.Zoom)
	assert.Equal(t, "x", focus.NoteID)
	assert.Equal(t, models.LatLng{Lat: -33.86, Lng: 151.2}, focus.Center)

	_, ok = o.ActivateNote("y")
	assert.False(t, ok)
}
