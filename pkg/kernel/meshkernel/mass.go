package meshkernel

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// moments accumulates zeroth, first and second moments of a uniform
// density region, expressed relative to origin.
type moments struct {
	origin v3.Vec
	mass   float64       // volume or area
	first  v3.Vec        // integral of position
	second [3][3]float64 // integral of position outer product
}

func (m *moments) centerOfMass() [3]float64 {
	if m.mass == 0 {
		return [3]float64{m.origin.X, m.origin.Y, m.origin.Z}
	}
	c := m.first.MulScalar(1 / m.mass).Add(m.origin)
	return [3]float64{c.X, c.Y, c.Z}
}

// inertia returns the inertia tensor about the center of mass.
func (m *moments) inertia() [3][3]float64 {
	var c [3][3]float64
	if m.mass == 0 {
		return c
	}
	com := m.first.MulScalar(1 / m.mass)
	cv := [3]float64{com.X, com.Y, com.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = m.second[i][j] - m.mass*cv[i]*cv[j]
		}
	}
	tr := c[0][0] + c[1][1] + c[2][2]
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = -c[i][j]
			if i == j {
				out[i][j] += tr
			}
		}
	}
	return out
}

func addOuter(dst *[3][3]float64, v v3.Vec, scale float64) {
	a := [3]float64{v.X, v.Y, v.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dst[i][j] += scale * a[i] * a[j]
		}
	}
}

func centroidOrigin(b *body, tris []int) v3.Vec {
	box := emptyBox()
	for _, t := range tris {
		for _, vi := range b.tris[t] {
			box = includePoint(box, b.verts[vi])
		}
	}
	if box.Min.X > box.Max.X {
		return v3.Vec{}
	}
	return box.Min.Add(box.Max).MulScalar(0.5)
}

// volumeMoments integrates over the region enclosed by a closed triangle
// set using signed tetrahedra against the bounding box center. Inward
// facing meshes are flipped so the volume is positive.
func volumeMoments(b *body, tris []int) moments {
	o := centroidOrigin(b, tris)
	m := moments{origin: o}
	for _, t := range tris {
		tri := b.tris[t]
		p0 := b.verts[tri[0]].Sub(o)
		p1 := b.verts[tri[1]].Sub(o)
		p2 := b.verts[tri[2]].Sub(o)
		det := p0.Dot(p1.Cross(p2))
		s := p0.Add(p1).Add(p2)

		m.mass += det / 6
		m.first = m.first.Add(s.MulScalar(det / 24))
		w := det / 120
		addOuter(&m.second, p0, w)
		addOuter(&m.second, p1, w)
		addOuter(&m.second, p2, w)
		addOuter(&m.second, s, w)
	}
	if m.mass < 0 {
		m.mass = -m.mass
		m.first = m.first.MulScalar(-1)
		for i := range m.second {
			for j := range m.second[i] {
				m.second[i][j] = -m.second[i][j]
			}
		}
	}
	return m
}

// surfaceMoments integrates over the triangle surface with unit areal
// density.
func surfaceMoments(b *body, tris []int) moments {
	o := centroidOrigin(b, tris)
	m := moments{origin: o}
	for _, t := range tris {
		tri := b.tris[t]
		p0 := b.verts[tri[0]].Sub(o)
		p1 := b.verts[tri[1]].Sub(o)
		p2 := b.verts[tri[2]].Sub(o)
		area := p1.Sub(p0).Cross(p2.Sub(p0)).Length() / 2
		s := p0.Add(p1).Add(p2)

		m.mass += area
		m.first = m.first.Add(s.MulScalar(area / 3))
		w := area / 12
		addOuter(&m.second, p0, w)
		addOuter(&m.second, p1, w)
		addOuter(&m.second, p2, w)
		addOuter(&m.second, s, w)
	}
	return m
}
