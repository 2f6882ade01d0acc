package meshkernel

import "github.com/chazu/cadgrade/pkg/kernel"

// BoxMesh returns an axis-aligned box between min and max as 12 outward
// facing triangles.
func BoxMesh(min, max [3]float64) *kernel.Mesh {
	p := func(i, j, k int) [3]float64 {
		pick := func(axis, s int) float64 {
			if s == 0 {
				return min[axis]
			}
			return max[axis]
		}
		return [3]float64{pick(0, i), pick(1, j), pick(2, k)}
	}
	quads := [6][4][3]float64{
		{p(0, 0, 0), p(0, 1, 0), p(1, 1, 0), p(1, 0, 0)}, // -Z
		{p(0, 0, 1), p(1, 0, 1), p(1, 1, 1), p(0, 1, 1)}, // +Z
		{p(0, 0, 0), p(1, 0, 0), p(1, 0, 1), p(0, 0, 1)}, // -Y
		{p(0, 1, 0), p(0, 1, 1), p(1, 1, 1), p(1, 1, 0)}, // +Y
		{p(0, 0, 0), p(0, 0, 1), p(0, 1, 1), p(0, 1, 0)}, // -X
		{p(1, 0, 0), p(1, 1, 0), p(1, 1, 1), p(1, 0, 1)}, // +X
	}
	m := &kernel.Mesh{}
	for _, q := range quads {
		m.AddTriangle(q[0], q[1], q[2])
		m.AddTriangle(q[0], q[2], q[3])
	}
	return m
}
