package globe

import (
	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/models"
)

// Config tunes the globe overview index
type Config struct {
	RadiusPx     float64 `koanf:"radius_px"`
	MaxZoom      int     `koanf:"max_zoom"`
	OverviewZoom int     `koanf:"overview_zoom"`
	NoteZoom     int     `koanf:"note_zoom"` // flat zoom used when a single note is picked on the globe
}

// DefaultConfig returns the globe overview settings
func DefaultConfig() Config {
	return Config{
		RadiusPx:     40,
		MaxZoom:      10,
		OverviewZoom: 2,
		NoteZoom:     18,
	}
}

// Tier is the density class of a globe marker
type Tier int

const (
	TierSingle Tier = iota
	TierSmall
	TierMedium
	TierLarge
	TierHuge
)

// TierFor classifies a marker by the number of notes it stands for
func TierFor(count int) Tier {
	switch {
	case count <= 1:
		return TierSingle
	case count > 1000:
		return TierHuge
	case count > 100:
		return TierLarge
	case count > 10:
		return TierMedium
	default:
		return TierSmall
	}
}

// Marker is one entry of the globe overview
type Marker struct {
	models.Item
	Tier Tier `json:"tier"`
}

// Focus asks the flat map to show a location
type Focus struct {
	Center models.LatLng `json:"center"`
	Zoom   int           `json:"zoom"`
	NoteID string        `json:"noteId,omitempty"` // note to select once the map is shown
}

// Overview is the coarse clustering shown on the globe
type Overview struct {
	cfg       Config
	flatFloor int
	index     *cluster.Index
}

// New creates an empty overview. flatFloor is the zoom below which the flat
// map hands over to the globe; focus requests never land under it.
func New(cfg Config, flatFloor int, index *cluster.Index) *Overview {
	return &Overview{cfg: cfg, flatFloor: flatFloor, index: index}
}

// ClusterOptions returns the index options matching cfg
func (c Config) ClusterOptions() cluster.Options {
	opts := cluster.DefaultOptions()
	opts.RadiusPx = c.RadiusPx
	opts.MaxZoom = c.MaxZoom
	return opts
}

// Index returns the underlying index
func (o *Overview) Index() *cluster.Index {
	return o.index
}

// Build replaces the notes behind the overview
func (o *Overview) Build(notes []models.Note) {
	o.index.Build(notes)
}

// Markers returns the whole-world overview
func (o *Overview) Markers() []Marker {
	items := o.index.Query(models.WorldBBox(), o.cfg.OverviewZoom)
	out := make([]Marker, len(items))
	for i, it := range items {
		out[i] = Marker{Item: it, Tier: TierFor(it.Count())}
	}
	return out
}

// ActivateCluster maps a globe cluster click to a flat map focus
func (o *Overview) ActivateCluster(id models.ClusterID) (Focus, bool) {
	cl, ok := o.index.Lookup(id)
	if !ok {
		return Focus{}, false
	}
	exp, ok := o.index.ExpansionZoom(id)
	if !ok {
		return Focus{}, false
	}
	return Focus{Center: cl.Center, Zoom: max(exp, o.flatFloor)}, true
}

// ActivateNote maps a globe note click to a flat map focus and selection
func (o *Overview) ActivateNote(noteID string) (Focus, bool) {
	p, ok := o.index.Point(noteID)
	if !ok {
		return Focus{}, false
	}
	return Focus{Center: p.Position(), Zoom: o.cfg.NoteZoom, NoteID: p.ID}, true
}
