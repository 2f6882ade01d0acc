package meshkernel

import (
	"math"
	"sync"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// weldScale is the vertex welding step relative to the model extent.
const weldScale = 1e-9

// body is a welded triangle mesh with its edge incidence.
type body struct {
	verts []v3.Vec
	tris  [][3]uint32
	edges map[edgeKey][]int // edge -> incident triangles
}

type edgeKey [2]uint32

func makeEdgeKey(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

func (b *body) triEdges(t int) [3]edgeKey {
	tri := b.tris[t]
	return [3]edgeKey{
		makeEdgeKey(tri[0], tri[1]),
		makeEdgeKey(tri[1], tri[2]),
		makeEdgeKey(tri[2], tri[0]),
	}
}

// component is a set of triangles connected through shared edges.
type component struct {
	tris   []int
	closed bool
}

// shape is the kernel.Shape handle.
type shape struct {
	mu         sync.Mutex
	owner      *Kernel
	body       *body
	components []component
	bbox       sdf.Box3
	closed     bool
}

// Compile-time interface checks.
var _ kernel.Shape = (*shape)(nil)
var _ kernel.SubShape = (*subShape)(nil)

func (s *shape) BoundingBox() (min, max [3]float64) {
	return boxCorners(s.bbox)
}

// Close releases the mesh. Closing twice is a no-op.
func (s *shape) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.body = nil
	s.components = nil
	if s.owner != nil {
		s.owner.open.Add(-1)
	}
	return nil
}

// snapshot returns the mesh data of an open handle. The data is immutable
// once built, so callers may walk it after the lock is released even if the
// handle is closed meanwhile.
func (s *shape) snapshot() (*body, []component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, false
	}
	return s.body, s.components, true
}

func allTris(b *body) []int {
	out := make([]int, len(b.tris))
	for i := range out {
		out[i] = i
	}
	return out
}

// subShape is a solid, shell or face: a triangle subset of its owner.
type subShape struct {
	owner *shape
	kind  kernel.ShapeKind
	tris  []int
}

func (ss *subShape) Kind() kernel.ShapeKind { return ss.kind }

// BoundingBox is zero once the owning shape is closed.
func (ss *subShape) BoundingBox() (min, max [3]float64) {
	b, _, ok := ss.owner.snapshot()
	if !ok {
		return min, max
	}
	return boxCorners(ss.box(b))
}

func (ss *subShape) box(b *body) sdf.Box3 {
	box := emptyBox()
	for _, t := range ss.tris {
		for _, vi := range b.tris[t] {
			box = includePoint(box, b.verts[vi])
		}
	}
	return box
}

func (ss *subShape) dimensions(b *body) [3]float64 {
	return boxDimensions(ss.box(b))
}

// buildShape welds the meshes into one body and splits it into components.
func buildShape(meshes []*kernel.Mesh) *shape {
	raw := emptyBox()
	for _, m := range meshes {
		for i := 0; i < m.VertexCount(); i++ {
			p := m.Vertex(uint32(i))
			raw = includePoint(raw, v3.Vec{X: p[0], Y: p[1], Z: p[2]})
		}
	}

	step := weldScale
	if extent := raw.Max.Sub(raw.Min).Length(); !math.IsInf(extent, 0) && extent > 1 {
		step = extent * weldScale
	}

	b := &body{edges: make(map[edgeKey][]int)}
	index := make(map[[3]int64]uint32)
	weld := func(p [3]float64) uint32 {
		key := [3]int64{
			int64(math.Round(p[0] / step)),
			int64(math.Round(p[1] / step)),
			int64(math.Round(p[2] / step)),
		}
		if id, ok := index[key]; ok {
			return id
		}
		id := uint32(len(b.verts))
		index[key] = id
		b.verts = append(b.verts, v3.Vec{X: p[0], Y: p[1], Z: p[2]})
		return id
	}

	for _, m := range meshes {
		for t := 0; t < m.TriangleCount(); t++ {
			corners := m.Triangle(t)
			tri := [3]uint32{weld(corners[0]), weld(corners[1]), weld(corners[2])}
			// Drop triangles that collapsed during welding.
			if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
				continue
			}
			b.tris = append(b.tris, tri)
		}
	}
	for t := range b.tris {
		for _, e := range b.triEdges(t) {
			b.edges[e] = append(b.edges[e], t)
		}
	}

	s := &shape{body: b, bbox: emptyBox()}
	for _, v := range b.verts {
		s.bbox = includePoint(s.bbox, v)
	}
	s.components = splitComponents(b)
	return s
}

// splitComponents groups triangles connected through shared edges, ordered
// by the first triangle of each group.
func splitComponents(b *body) []component {
	parent := make([]int, len(b.tris))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, tris := range b.edges {
		for _, t := range tris[1:] {
			ra, rb := find(tris[0]), find(t)
			if ra == rb {
				continue
			}
			if ra < rb {
				parent[rb] = ra
			} else {
				parent[ra] = rb
			}
		}
	}

	order := make(map[int]int)
	var comps []component
	for t := range b.tris {
		r := find(t)
		idx, ok := order[r]
		if !ok {
			idx = len(comps)
			order[r] = idx
			comps = append(comps, component{})
		}
		comps[idx].tris = append(comps[idx].tris, t)
	}

	for i := range comps {
		comps[i].closed = isClosed(b, comps[i].tris)
	}
	return comps
}

// isClosed reports whether every edge of the triangle set is shared by
// exactly two triangles of the set.
func isClosed(b *body, tris []int) bool {
	in := make(map[int]bool, len(tris))
	for _, t := range tris {
		in[t] = true
	}
	for _, t := range tris {
		for _, e := range b.triEdges(t) {
			n := 0
			for _, o := range b.edges[e] {
				if in[o] {
					n++
				}
			}
			if n != 2 {
				return false
			}
		}
	}
	return len(tris) > 0
}

// ---------------------------------------------------------------------------
// Box helpers over sdf.Box3
// ---------------------------------------------------------------------------

func emptyBox() sdf.Box3 {
	inf := math.Inf(1)
	return sdf.Box3{
		Min: v3.Vec{X: inf, Y: inf, Z: inf},
		Max: v3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

func includePoint(b sdf.Box3, p v3.Vec) sdf.Box3 {
	return sdf.Box3{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

func boxCorners(b sdf.Box3) (min, max [3]float64) {
	if b.Min.X > b.Max.X {
		return min, max
	}
	return [3]float64{b.Min.X, b.Min.Y, b.Min.Z}, [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
}

func boxDimensions(b sdf.Box3) [3]float64 {
	if b.Min.X > b.Max.X {
		return [3]float64{}
	}
	size := b.Max.Sub(b.Min)
	return [3]float64{size.X, size.Y, size.Z}
}

func extendBox(a, b sdf.Box3) sdf.Box3 {
	return sdf.Box3{Min: a.Min.Min(b.Min), Max: a.Max.Max(b.Max)}
}
