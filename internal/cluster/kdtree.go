package cluster

import (
	"sort"
)

// kdTree is a static 2D index over a fixed set of points.
// Points are stored flat; buckets of at most nodeSize points are left unsorted.
type kdTree struct {
	ids      []int32
	coords   []float64 // x0, y0, x1, y1, ...
	nodeSize int
}

func newKDTree(n int, at func(i int) (x, y float64), nodeSize int) *kdTree {
	if nodeSize <= 0 {
		nodeSize = 64
	}
	t := &kdTree{
		ids:      make([]int32, n),
		coords:   make([]float64, 2*n),
		nodeSize: nodeSize,
	}
	for i := 0; i < n; i++ {
		x, y := at(i)
		t.ids[i] = int32(i)
		t.coords[2*i] = x
		t.coords[2*i+1] = y
	}
	if n > 0 {
		t.buildNodes(0, n-1, 0)
	}
	return t
}

func (t *kdTree) buildNodes(left, right, axis int) {
	if right-left <= t.nodeSize {
		return
	}
	median := (left + right) / 2
	sort.Sort(axisSorter{t: t, off: left, n: right - left + 1, axis: axis})
	t.buildNodes(left, median-1, 1-axis)
	t.buildNodes(median+1, right, 1-axis)
}

// axisSorter orders a sub-range by one axis, breaking ties by id so the
// layout is a pure function of the input.
type axisSorter struct {
	t    *kdTree
	off  int
	n    int
	axis int
}

func (s axisSorter) Len() int { return s.n }

func (s axisSorter) Less(i, j int) bool {
	a := s.t.coords[2*(s.off+i)+s.axis]
	b := s.t.coords[2*(s.off+j)+s.axis]
	if a != b {
		return a < b
	}
	return s.t.ids[s.off+i] < s.t.ids[s.off+j]
}

func (s axisSorter) Swap(i, j int) {
	i, j = s.off+i, s.off+j
	s.t.ids[i], s.t.ids[j] = s.t.ids[j], s.t.ids[i]
	s.t.coords[2*i], s.t.coords[2*j] = s.t.coords[2*j], s.t.coords[2*i]
	s.t.coords[2*i+1], s.t.coords[2*j+1] = s.t.coords[2*j+1], s.t.coords[2*i+1]
}

type kdFrame struct {
	left, right, axis int
}

// Range returns the ids of points inside the inclusive box, ascending
func (t *kdTree) Range(minX, minY, maxX, maxY float64) []int32 {
	var result []int32
	if len(t.ids) == 0 {
		return result
	}

	stack := []kdFrame{{0, len(t.ids) - 1, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.right-f.left <= t.nodeSize {
			for i := f.left; i <= f.right; i++ {
				x, y := t.coords[2*i], t.coords[2*i+1]
				if x >= minX && x <= maxX && y >= minY && y <= maxY {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (f.left + f.right) / 2
		x, y := t.coords[2*m], t.coords[2*m+1]
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, t.ids[m])
		}

		v := x
		lo, hi := minX, maxX
		if f.axis == 1 {
			v, lo, hi = y, minY, maxY
		}
		if lo <= v {
			stack = append(stack, kdFrame{f.left, m - 1, 1 - f.axis})
		}
		if hi >= v {
			stack = append(stack, kdFrame{m + 1, f.right, 1 - f.axis})
		}
	}

	sortIDs(result)
	return result
}

// Within returns the ids of points at most r away from (qx, qy), ascending
func (t *kdTree) Within(qx, qy, r float64) []int32 {
	var result []int32
	if len(t.ids) == 0 {
		return result
	}
	r2 := r * r

	stack := []kdFrame{{0, len(t.ids) - 1, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.right-f.left <= t.nodeSize {
			for i := f.left; i <= f.right; i++ {
				if sqDist(t.coords[2*i], t.coords[2*i+1], qx, qy) <= r2 {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (f.left + f.right) / 2
		x, y := t.coords[2*m], t.coords[2*m+1]
		if sqDist(x, y, qx, qy) <= r2 {
			result = append(result, t.ids[m])
		}

		v, q := x, qx
		if f.axis == 1 {
			v, q = y, qy
		}
		if q-r <= v {
			stack = append(stack, kdFrame{f.left, m - 1, 1 - f.axis})
		}
		if q+r >= v {
			stack = append(stack, kdFrame{m + 1, f.right, 1 - f.axis})
		}
	}

	sortIDs(result)
	return result
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}

func sortIDs(ids []int32) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
