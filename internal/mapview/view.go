package mapview

import (
	"sync"
	"time"

	"github.com/jengzang/memorymap-backend-go/internal/cluster"
	"github.com/jengzang/memorymap-backend-go/internal/disclosure"
	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/metrics"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/viewport"
)

// RenderSet is everything the renderer needs to draw one map view
type RenderSet struct {
	ViewID     string            `json:"viewId"`
	Version    uint64            `json:"version"`
	Generation uint32            `json:"generation"`
	BBox       models.BBox       `json:"bbox"`
	Zoom       int               `json:"zoom"`
	Mode       viewport.Mode     `json:"mode"`
	Switch     *viewport.Mode    `json:"switch,omitempty"`
	Items      []models.Item     `json:"items"`
	Disclosure *disclosure.State `json:"disclosure,omitempty"`
}

// View is one client's map: a viewport bridge and a disclosure controller
// over the shared index. All methods are safe for concurrent use.
type View struct {
	id    string
	index *cluster.Index
	log   *logger.Logger
	m     *metrics.Metrics

	mu         sync.Mutex
	bridge     *viewport.Bridge
	ctl        *disclosure.Controller
	generation uint32
	version    uint64
	pending    *viewport.Mode
	lastAccess time.Time
	subs       map[int]chan RenderSet
	nextSub    int
}

// NewView creates a view over index
func NewView(id string, index *cluster.Index, dcfg disclosure.Config, vcfg viewport.Config, m *metrics.Metrics, log *logger.Logger) *View {
	log = logger.OrNop(log).With("view", id)
	ctl := disclosure.New(dcfg, index, index.Projection(), log)
	return &View{
		id:         id,
		index:      index,
		log:        log,
		m:          m,
		bridge:     viewport.New(vcfg, index, ctl, log),
		ctl:        ctl,
		generation: index.Generation(),
		lastAccess: time.Now(),
		subs:       make(map[int]chan RenderSet),
	}
}

// ID returns the view id
func (v *View) ID() string {
	return v.id
}

// LastAccess returns when the view was last used
func (v *View) LastAccess() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastAccess
}

func (v *View) touch() {
	v.lastAccess = time.Now()
}

// Settle re-queries the viewport and publishes the new render set
func (v *View) Settle(bbox models.BBox, zoom int) RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	v.syncGeneration()
	f := v.bridge.OnViewportSettled(bbox, zoom)
	if f.Switch != nil {
		v.pending = f.Switch
	}
	v.m.RecordSettle()
	return v.publish()
}

// ActivateCluster handles a click on a cluster glyph. The viewport centre is
// taken from the last settled frame.
func (v *View) ActivateCluster(id models.ClusterID, zoom int) (disclosure.Outcome, RenderSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	v.syncGeneration()
	cl, ok := v.index.Lookup(id)
	if !ok {
		cl = models.Cluster{ID: id}
	}

	center := cl.Center
	if last, settled := v.bridge.Last(); settled {
		center = last.BBox.Center()
	}
	centerPx := v.index.Projection().Project(center, float64(zoom))

	out := v.ctl.OnClusterActivate(cl, zoom, centerPx)
	v.m.RecordActivation(out.Action.String())
	return out, v.publish()
}

// ActivatePoint handles a click on an individual note, clustered or disclosed
func (v *View) ActivatePoint(noteID string) (disclosure.Outcome, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	if st := v.ctl.State(); st != nil && v.generation == v.index.Generation() {
		for _, m := range st.Members {
			if m.ID == noteID {
				v.m.RecordActivation(disclosure.ActionSelect.String())
				return v.ctl.OnPointActivate(m), true
			}
		}
	}
	p, ok := v.index.Point(noteID)
	if !ok {
		return disclosure.Outcome{Action: disclosure.ActionNone}, false
	}
	v.m.RecordActivation(disclosure.ActionSelect.String())
	return v.ctl.OnPointActivate(p), true
}

// ZoomStart tears the disclosure down at the start of a zoom gesture
func (v *View) ZoomStart() RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	if v.bridge.OnZoomStart() {
		v.m.RecordTeardown("zoom_start")
	}
	return v.publish()
}

// BackgroundClick tears the disclosure down after a click on empty map
func (v *View) BackgroundClick() RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	if v.bridge.OnBackgroundClick() {
		v.m.RecordTeardown("background_click")
	}
	return v.publish()
}

// RequestFocus forces flat mode for a focus, search or selection
func (v *View) RequestFocus() RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()

	if v.bridge.RequestFocus() {
		m := viewport.ModeFlat
		v.pending = &m
	}
	return v.publish()
}

// Invalidate drops state tied to an older build and republishes the last
// frame against the current one
func (v *View) Invalidate() RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.syncGeneration()
	v.bridge.Refresh()
	return v.publish()
}

// Current returns the render set without changing anything
func (v *View) Current() RenderSet {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touch()
	return v.render()
}

// syncGeneration tears down a disclosure made against a superseded build
func (v *View) syncGeneration() {
	gen := v.index.Generation()
	if gen == v.generation {
		return
	}
	if v.ctl.Teardown() {
		v.m.RecordTeardown("rebuild")
		v.log.Debug("disclosure invalidated by rebuild", "generation", gen)
	}
	v.generation = gen
}

// render builds the render set; the caller holds v.mu
func (v *View) render() RenderSet {
	rs := RenderSet{
		ViewID:     v.id,
		Version:    v.version,
		Generation: v.generation,
		Mode:       v.bridge.Mode(),
		Disclosure: v.ctl.State(),
		Items:      []models.Item{},
	}
	last, ok := v.bridge.Last()
	if !ok {
		return rs
	}
	rs.BBox = last.BBox
	rs.Zoom = last.Zoom
	for _, it := range last.Items {
		if it.Cluster != nil && v.ctl.IsSuppressed(it.Cluster.ID) {
			continue
		}
		rs.Items = append(rs.Items, it)
	}
	return rs
}

// publish bumps the version and fans the render set out; the caller holds v.mu
func (v *View) publish() RenderSet {
	v.version++
	rs := v.render()
	rs.Switch = v.pending
	v.pending = nil

	for _, ch := range v.subs {
		select {
		case ch <- rs:
		default:
			// Drop the stale set the subscriber has not read yet
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- rs:
			default:
			}
		}
	}
	return rs
}

// Subscribe returns a channel receiving every published render set. Slow
// subscribers only see the latest one. Call cancel to unsubscribe.
func (v *View) Subscribe() (<-chan RenderSet, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextSub
	v.nextSub++
	ch := make(chan RenderSet, 1)
	v.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(ch)
			}
		})
	}
}

// closeSubscribers ends every subscription when the view is dropped
func (v *View) closeSubscribers() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}
