package cluster

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jengzang/memorymap-backend-go/internal/logger"
	"github.com/jengzang/memorymap-backend-go/internal/models"
	"github.com/jengzang/memorymap-backend-go/internal/spatial"
)

// Cluster id layout: | generation (24) | zoom (5) | record index (35) |
const (
	idIndexBits = 35
	idZoomBits  = 5
	idGenBits   = 24

	idIndexMask = 1<<idIndexBits - 1
	idZoomMask  = 1<<idZoomBits - 1
	idGenMask   = 1<<idGenBits - 1
)

func encodeID(gen uint32, zoom int, idx int) models.ClusterID {
	return models.ClusterID(uint64(gen&idGenMask)<<(idIndexBits+idZoomBits) |
		uint64(zoom&idZoomMask)<<idIndexBits |
		uint64(idx)&idIndexMask)
}

func decodeID(id models.ClusterID) (gen uint32, zoom int, idx int) {
	v := uint64(id)
	return uint32(v >> (idIndexBits + idZoomBits) & idGenMask),
		int(v >> idIndexBits & idZoomMask),
		int(v & idIndexMask)
}

// node is one entry of a zoom level: a single point or a cluster
type node struct {
	center  models.LatLng
	count   int
	leaf    int32 // index into snapshot.points, -1 for clusters
	cluster int32 // index into snapshot.clusters, -1 for single points
	parent  int32 // index of the owning node one zoom level out, -1 at MinZoom
}

type level struct {
	nodes []node
	geo   *kdTree // over (lng, lat) for viewport range queries
}

// record describes a cluster at the zoom where it was formed
type record struct {
	id       models.ClusterID
	zoom     int
	center   models.LatLng
	count    int
	children []int32 // node indices in level zoom+1
}

// snapshot is one immutable index build
type snapshot struct {
	generation uint32
	points     []models.IndexedPoint
	levels     []level // levels[z-MinZoom] for z in [MinZoom, MaxZoom+1]
	clusters   []record
	byID       map[string]int32
	skipped    int
}

// Index is a zoom-aware hierarchical clustering index over notes.
// Build swaps the whole index atomically; readers never see a partial build.
type Index struct {
	opts Options
	proj spatial.Projection
	log  *logger.Logger

	buildMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// generations is shared by every index in the process, so an id issued by
// one index never resolves against another
var generations atomic.Uint32

func nextGeneration() uint32 {
	for {
		gen := generations.Add(1) & idGenMask
		if gen != 0 {
			return gen
		}
	}
}

// NewIndex creates an empty index. A nil projection means web mercator.
func NewIndex(opts Options, proj spatial.Projection, log *logger.Logger) *Index {
	if proj == nil {
		proj = spatial.NewWebMercator(spatial.DefaultTileSize)
	}
	idx := &Index{
		opts: opts.normalized(),
		proj: proj,
		log:  logger.OrNop(log).Named("cluster"),
	}
	idx.current.Store(&snapshot{})
	return idx
}

// Options returns the effective options
func (x *Index) Options() Options {
	return x.opts
}

// Projection returns the projection clustering is evaluated in
func (x *Index) Projection() spatial.Projection {
	return x.proj
}

// Generation returns the id of the current build; 0 before the first build
func (x *Index) Generation() uint32 {
	return x.current.Load().generation
}

// Len returns the number of indexed points
func (x *Index) Len() int {
	return len(x.current.Load().points)
}

// Skipped returns how many notes the last build rejected for bad coordinates
func (x *Index) Skipped() int {
	return x.current.Load().skipped
}

// Build replaces the index with the given notes.
// Note ids are expected to be unique; duplicates are indexed as separate points.
func (x *Index) Build(notes []models.Note) {
	start := time.Now()

	x.buildMu.Lock()
	defer x.buildMu.Unlock()

	gen := nextGeneration()
	snap := x.build(gen, notes)
	x.current.Store(snap)

	x.log.Debug("index built",
		"generation", snap.generation,
		"points", len(snap.points),
		"clusters", len(snap.clusters),
		"skipped", snap.skipped,
		"took", time.Since(start))
}

func (x *Index) build(gen uint32, notes []models.Note) *snapshot {
	snap := &snapshot{generation: gen}

	snap.points = make([]models.IndexedPoint, 0, len(notes))
	snap.byID = make(map[string]int32, len(notes))
	for _, n := range notes {
		if !spatial.ValidCoordinate(n.Lat, n.Lng) {
			snap.skipped++
			x.log.Warn("skipping note with invalid coordinates", "id", n.ID, "lat", n.Lat, "lng", n.Lng)
			continue
		}
		if _, dup := snap.byID[n.ID]; !dup {
			snap.byID[n.ID] = int32(len(snap.points))
		}
		snap.points = append(snap.points, models.NewIndexedPoint(n))
	}

	minZ, maxZ := x.opts.MinZoom, x.opts.MaxZoom
	snap.levels = make([]level, maxZ+2-minZ)

	leaves := make([]node, len(snap.points))
	for i, p := range snap.points {
		leaves[i] = node{
			center:  p.Position(),
			count:   1,
			leaf:    int32(i),
			cluster: -1,
			parent:  -1,
		}
	}
	snap.levels[maxZ+1-minZ] = newLevel(leaves, x.opts.NodeSize)

	under := make([][]int32, len(leaves))
	for i := range under {
		under[i] = []int32{int32(i)}
	}
	for z := maxZ; z >= minZ; z-- {
		finer := &snap.levels[z+1-minZ]
		snap.levels[z-minZ], under = x.clusterLevel(snap, finer, under, z)
	}

	return snap
}

// clusterLevel merges the nodes of the finer level into the nodes of zoom z.
// leaves[i] lists the points under finer node i; the returned slice does the
// same for the new level.
func (x *Index) clusterLevel(snap *snapshot, finer *level, leaves [][]int32, z int) (level, [][]int32) {
	zoom := float64(z)
	src := finer.nodes
	radius := x.opts.RadiusPx

	pos := make([]models.ScreenPoint, len(src))
	for i := range src {
		pos[i] = x.proj.Project(src[i].center, zoom)
	}
	tree := newKDTree(len(src), func(i int) (float64, float64) {
		return pos[i].X, pos[i].Y
	}, x.opts.NodeSize)

	leafPos := make([]models.ScreenPoint, len(snap.points))
	for i := range snap.points {
		leafPos[i] = x.proj.Project(snap.points[i].Position(), zoom)
	}

	assigned := make([]bool, len(src))
	out := make([]node, 0, len(src))
	outLeaves := make([][]int32, 0, len(src))

	for i := range src {
		if assigned[i] {
			continue
		}
		assigned[i] = true

		members := []int32{int32(i)}
		for _, j := range tree.Within(pos[i].X, pos[i].Y, radius) {
			if !assigned[j] {
				members = append(members, j)
			}
		}
		members, centroid, count := x.settle(members, src, pos, leaves, leafPos)

		parent := int32(len(out))
		if len(members) == 1 {
			carried := src[i]
			carried.parent = -1
			out = append(out, carried)
			outLeaves = append(outLeaves, leaves[i])
			src[i].parent = parent
			continue
		}

		center := x.proj.Unproject(centroid, zoom)
		ci := len(snap.clusters)
		snap.clusters = append(snap.clusters, record{
			id:       encodeID(snap.generation, z, ci),
			zoom:     z,
			center:   center,
			count:    count,
			children: members,
		})
		out = append(out, node{
			center:  center,
			count:   count,
			leaf:    -1,
			cluster: int32(ci),
			parent:  -1,
		})

		var under []int32
		for _, m := range members {
			assigned[m] = true
			src[m].parent = parent
			under = append(under, leaves[m]...)
		}
		outLeaves = append(outLeaves, under)
	}

	return newLevel(out, x.opts.NodeSize), outLeaves
}

// settle shrinks a candidate group around members[0] until every point under
// it lies within the radius of the group's weighted centroid. Members that
// break the bound are dropped all at once; when only the seed's own points
// break it, the member farthest from the seed goes. A lone seed always
// satisfies the bound, since its points were within the radius one zoom in.
func (x *Index) settle(members []int32, src []node, pos []models.ScreenPoint, leaves [][]int32, leafPos []models.ScreenPoint) ([]int32, models.ScreenPoint, int) {
	radius := x.opts.RadiusPx
	seed := members[0]

	for {
		var wx, wy float64
		count := 0
		for _, m := range members {
			c := src[m].count
			count += c
			wx += pos[m].X * float64(c)
			wy += pos[m].Y * float64(c)
		}
		centroid := models.ScreenPoint{X: wx / float64(count), Y: wy / float64(count)}
		if len(members) == 1 {
			return members, centroid, count
		}

		within := func(m int32) bool {
			for _, l := range leaves[m] {
				if leafPos[l].Dist(centroid) > radius {
					return false
				}
			}
			return true
		}

		kept := members[:1:1]
		for _, m := range members[1:] {
			if within(m) {
				kept = append(kept, m)
			}
		}
		switch {
		case len(kept) < len(members):
			members = kept
		case !within(seed):
			far := 1
			for k := 2; k < len(members); k++ {
				if pos[members[k]].Dist(pos[seed]) > pos[members[far]].Dist(pos[seed]) {
					far = k
				}
			}
			members = append(members[:far:far], members[far+1:]...)
		default:
			return members, centroid, count
		}
	}
}

func newLevel(nodes []node, nodeSize int) level {
	return level{
		nodes: nodes,
		geo: newKDTree(len(nodes), func(i int) (float64, float64) {
			return nodes[i].center.Lng, nodes[i].center.Lat
		}, nodeSize),
	}
}

// limitZoom maps a requested zoom onto a stored level
func (x *Index) limitZoom(zoom int) int {
	if zoom < x.opts.MinZoom {
		return x.opts.MinZoom
	}
	if zoom > x.opts.MaxZoom+1 {
		return x.opts.MaxZoom + 1
	}
	return zoom
}

// Query returns the clusters and single points visible in bbox at zoom.
// Every indexed point inside bbox is represented exactly once; clusters whose
// centre lies in bbox are included even when all their members lie outside.
func (x *Index) Query(bbox models.BBox, zoom int) []models.Item {
	snap := x.current.Load()
	items := []models.Item{}
	if len(snap.points) == 0 || !bbox.Valid() {
		return items
	}

	z := x.limitZoom(zoom)
	minZ := x.opts.MinZoom
	lvl := &snap.levels[z-minZ]
	leafZoom := x.opts.MaxZoom + 1
	leaves := &snap.levels[leafZoom-minZ]

	selected := make([]bool, len(lvl.nodes))
	south := math.Max(bbox.South, -90)
	north := math.Min(bbox.North, 90)

	for _, span := range bbox.Spans() {
		for _, i := range lvl.geo.Range(span[0], south, span[1], north) {
			selected[i] = true
		}
		if z == leafZoom {
			continue
		}
		for _, leaf := range leaves.geo.Range(span[0], south, span[1], north) {
			i := leaf
			for l := leafZoom; l > z; l-- {
				i = snap.levels[l-minZ].nodes[i].parent
			}
			selected[i] = true
		}
	}

	for i, ok := range selected {
		if ok {
			items = append(items, snap.item(&lvl.nodes[i]))
		}
	}
	return items
}

func (s *snapshot) item(n *node) models.Item {
	if n.cluster >= 0 {
		rec := &s.clusters[n.cluster]
		return models.Item{Cluster: &models.Cluster{
			ID:         rec.id,
			Center:     rec.center,
			PointCount: rec.count,
		}}
	}
	p := s.points[n.leaf]
	return models.Item{Point: &p}
}

// lookup resolves a cluster id against the snapshot, rejecting stale ids
func (s *snapshot) lookup(id models.ClusterID) (*record, bool) {
	gen, zoom, idx := decodeID(id)
	if gen != s.generation || s.generation == 0 {
		return nil, false
	}
	if idx < 0 || idx >= len(s.clusters) {
		return nil, false
	}
	rec := &s.clusters[idx]
	if rec.zoom != zoom || rec.id != id {
		return nil, false
	}
	return rec, true
}

func (s *snapshot) levelAt(zoom, minZoom int) *level {
	return &s.levels[zoom-minZoom]
}

// Lookup returns the cluster for id in the current build
func (x *Index) Lookup(id models.ClusterID) (models.Cluster, bool) {
	rec, ok := x.current.Load().lookup(id)
	if !ok {
		return models.Cluster{}, false
	}
	return models.Cluster{ID: rec.id, Center: rec.center, PointCount: rec.count}, true
}

// Point returns the indexed point for a note id. With duplicate ids the
// first occurrence wins.
func (x *Index) Point(id string) (models.IndexedPoint, bool) {
	snap := x.current.Load()
	i, ok := snap.byID[id]
	if !ok {
		return models.IndexedPoint{}, false
	}
	return snap.points[i], true
}

// Members returns every point inside the cluster, whatever the viewport.
// It reports false for ids that do not belong to the current build.
func (x *Index) Members(id models.ClusterID) ([]models.IndexedPoint, bool) {
	snap := x.current.Load()
	rec, ok := snap.lookup(id)
	if !ok {
		return nil, false
	}
	out := make([]models.IndexedPoint, 0, rec.count)
	return snap.appendLeaves(out, rec, x.opts.MinZoom), true
}

func (s *snapshot) appendLeaves(out []models.IndexedPoint, rec *record, minZoom int) []models.IndexedPoint {
	finer := s.levelAt(rec.zoom+1, minZoom)
	for _, c := range rec.children {
		n := &finer.nodes[c]
		if n.leaf >= 0 {
			out = append(out, s.points[n.leaf])
			continue
		}
		out = s.appendLeaves(out, &s.clusters[n.cluster], minZoom)
	}
	return out
}

// Children returns the items the cluster splits into one zoom level in
func (x *Index) Children(id models.ClusterID) ([]models.Item, bool) {
	snap := x.current.Load()
	rec, ok := snap.lookup(id)
	if !ok {
		return nil, false
	}
	finer := snap.levelAt(rec.zoom+1, x.opts.MinZoom)
	out := make([]models.Item, 0, len(rec.children))
	for _, c := range rec.children {
		out = append(out, snap.item(&finer.nodes[c]))
	}
	return out, true
}

// ExpansionZoom returns the lowest zoom at which the cluster's members stop
// clustering together. A cluster formed at zoom z always has at least two
// children at z+1, so this is one past its formation zoom.
func (x *Index) ExpansionZoom(id models.ClusterID) (int, bool) {
	rec, ok := x.current.Load().lookup(id)
	if !ok {
		return 0, false
	}
	return rec.zoom + 1, true
}
