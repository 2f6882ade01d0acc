package meshkernel

import (
	"sort"

	"github.com/chazu/cadgrade/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

const (
	// coplanarCos is the minimum normal dot product for two triangles to
	// belong to the same planar face.
	coplanarCos = 1 - 1e-6

	// collinearCos is the minimum direction dot product for two feature
	// segments to continue the same edge through a shared vertex.
	collinearCos = 1 - 1e-6
)

func triNormal(b *body, t int) v3.Vec {
	tri := b.tris[t]
	p0, p1, p2 := b.verts[tri[0]], b.verts[tri[1]], b.verts[tri[2]]
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	l := n.Length()
	if l == 0 {
		return n
	}
	return n.MulScalar(1 / l)
}

// segmentPatches splits the triangle set into maximal coplanar patches of
// triangles adjacent through manifold edges. Patches are ordered by their
// first triangle.
func segmentPatches(b *body, tris []int) [][]int {
	in := make(map[int]bool, len(tris))
	for _, t := range tris {
		in[t] = true
	}
	scale := 1.0
	if l := boxDiagonal(b, tris); l > 1 {
		scale = l
	}
	planeTol := 1e-6 * scale

	assigned := make(map[int]bool, len(tris))
	var patches [][]int
	for _, seed := range tris {
		if assigned[seed] {
			continue
		}
		n0 := triNormal(b, seed)
		p0 := b.verts[b.tris[seed][0]]

		patch := []int{seed}
		assigned[seed] = true
		queue := []int{seed}
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			for _, e := range b.triEdges(t) {
				adj := incidentIn(b, e, in)
				if len(adj) != 2 {
					continue
				}
				for _, o := range adj {
					if o == t || assigned[o] {
						continue
					}
					if !coplanar(b, o, n0, p0, planeTol) {
						continue
					}
					assigned[o] = true
					patch = append(patch, o)
					queue = append(queue, o)
				}
			}
		}
		sort.Ints(patch)
		patches = append(patches, patch)
	}
	return patches
}

func coplanar(b *body, t int, n0, p0 v3.Vec, tol float64) bool {
	if triNormal(b, t).Dot(n0) < coplanarCos {
		return false
	}
	for _, vi := range b.tris[t] {
		d := b.verts[vi].Sub(p0).Dot(n0)
		if d > tol || d < -tol {
			return false
		}
	}
	return true
}

func incidentIn(b *body, e edgeKey, in map[int]bool) []int {
	var out []int
	for _, t := range b.edges[e] {
		if in[t] {
			out = append(out, t)
		}
	}
	return out
}

func boxDiagonal(b *body, tris []int) float64 {
	box := emptyBox()
	for _, t := range tris {
		for _, vi := range b.tris[t] {
			box = includePoint(box, b.verts[vi])
		}
	}
	if box.Min.X > box.Max.X {
		return 0
	}
	return box.Max.Sub(box.Min).Length()
}

// featureLabel identifies the pair of faces a feature segment separates.
// Boundary segments use -1 for the missing side; non-manifold segments use
// -2.
type featureLabel [2]int

type featureSeg struct {
	e     edgeKey
	label featureLabel
}

// countTopology derives B-rep style counts from the triangle set:
// faces are coplanar patches, edges are maximal chains of feature segments
// that keep the same face pair and direction, vertices are the chain ends
// plus one per chain that closes on itself without an end.
func countTopology(b *body, tris []int) kernel.Topology {
	patches := segmentPatches(b, tris)
	patchOf := make(map[int]int, len(tris))
	for i, p := range patches {
		for _, t := range p {
			patchOf[t] = i
		}
	}
	in := make(map[int]bool, len(tris))
	for _, t := range tris {
		in[t] = true
	}

	// Collect feature segments.
	seen := make(map[edgeKey]bool)
	var segs []featureSeg
	for _, t := range tris {
		for _, e := range b.triEdges(t) {
			if seen[e] {
				continue
			}
			seen[e] = true
			adj := incidentIn(b, e, in)
			switch {
			case len(adj) == 1:
				segs = append(segs, featureSeg{e, featureLabel{patchOf[adj[0]], -1}})
			case len(adj) > 2:
				segs = append(segs, featureSeg{e, featureLabel{-2, -2}})
			default:
				pa, pb := patchOf[adj[0]], patchOf[adj[1]]
				if pa == pb {
					continue
				}
				if pa > pb {
					pa, pb = pb, pa
				}
				segs = append(segs, featureSeg{e, featureLabel{pa, pb}})
			}
		}
	}

	incident := make(map[uint32][]int)
	for i, s := range segs {
		incident[s.e[0]] = append(incident[s.e[0]], i)
		incident[s.e[1]] = append(incident[s.e[1]], i)
	}

	isCorner := func(v uint32) bool {
		inc := incident[v]
		if len(inc) != 2 {
			return true
		}
		a, c := segs[inc[0]], segs[inc[1]]
		if a.label != c.label {
			return true
		}
		da := direction(b, a.e, v)
		dc := direction(b, c.e, v)
		// Continuing straight means the two outgoing directions are opposite.
		return -da.Dot(dc) < collinearCos
	}

	// Walk chains from corners in a stable vertex order.
	verts := make([]uint32, 0, len(incident))
	for v := range incident {
		verts = append(verts, v)
	}
	sort.Slice(verts, func(i, j int) bool { return verts[i] < verts[j] })

	visited := make([]bool, len(segs))
	var topo kernel.Topology
	topo.Faces = len(patches)

	walk := func(start uint32, first int) {
		visited[first] = true
		cur := other(segs[first].e, start)
		for !isCorner(cur) {
			next := -1
			for _, si := range incident[cur] {
				if !visited[si] {
					next = si
					break
				}
			}
			if next < 0 {
				return
			}
			visited[next] = true
			cur = other(segs[next].e, cur)
		}
	}

	for _, v := range verts {
		if !isCorner(v) {
			continue
		}
		topo.Vertices++
		for _, si := range incident[v] {
			if visited[si] {
				continue
			}
			topo.Edges++
			walk(v, si)
		}
	}
	// Remaining segments form closed loops with no corner.
	for si := range segs {
		if visited[si] {
			continue
		}
		topo.Edges++
		topo.Vertices++
		walk(segs[si].e[0], si)
	}
	return topo
}

func other(e edgeKey, v uint32) uint32 {
	if e[0] == v {
		return e[1]
	}
	return e[0]
}

// direction returns the unit vector from v along segment e.
func direction(b *body, e edgeKey, v uint32) v3.Vec {
	d := b.verts[other(e, v)].Sub(b.verts[v])
	l := d.Length()
	if l == 0 {
		return d
	}
	return d.MulScalar(1 / l)
}
