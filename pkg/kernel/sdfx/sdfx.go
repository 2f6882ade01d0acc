// Package sdfx implements kernel.Modeler with the github.com/deadsy/sdfx
// signed-distance-field CAD library. It is used to author reference models
// from scripts; solids are meshed with marching cubes.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Modeler = (*Modeler)(nil)

// DefaultMeshCells is the marching cubes resolution along the longest axis.
const DefaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// Modeler implements kernel.Modeler using sdfx.
type Modeler struct {
	cells int
}

// Option configures a Modeler.
type Option func(*Modeler)

// WithMeshCells sets the marching cubes resolution. Values below 8 are
// raised to 8.
func WithMeshCells(n int) Option {
	return func(m *Modeler) {
		m.cells = max(n, 8)
	}
}

// New returns a new Modeler.
func New(opts ...Option) *Modeler {
	m := &Modeler{cells: DefaultMeshCells}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// unwrap extracts the underlying sdf.SDF3 from a kernel.Solid.
func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box creates a box with the given dimensions and its minimum corner at the
// origin, so that (translate (box ...) x y z) puts the corner at (x, y, z).
// sdf.Box3D centers the box at the origin, so we translate by half-dimensions.
func (m *Modeler) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Box3D: %v", err))
	}
	t := sdf.Translate3d(v3.Vec{X: x / 2, Y: y / 2, Z: z / 2})
	return wrap(sdf.Transform3D(s, t))
}

// Cylinder creates a cylinder along Z centered on the origin.
// The segments parameter is ignored since SDF represents smooth surfaces.
func (m *Modeler) Cylinder(height, radius float64, segments int) kernel.Solid {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	return wrap(s)
}

// Union returns the union of two solids.
func (m *Modeler) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Difference returns the difference a - b.
func (m *Modeler) Difference(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Difference3D(unwrap(a), unwrap(b)))
}

// Intersection returns the intersection of two solids.
func (m *Modeler) Intersection(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Intersect3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (m *Modeler) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	t := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), t))
}

// Rotate rotates a solid by Euler angles (degrees) around X, Y, Z axes.
func (m *Modeler) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	xRad := x * math.Pi / 180.0
	yRad := y * math.Pi / 180.0
	zRad := z * math.Pi / 180.0

	r := sdf.RotateZ(zRad).Mul(sdf.RotateY(yRad)).Mul(sdf.RotateX(xRad))
	return wrap(sdf.Transform3D(unwrap(s), r))
}

// ToMesh converts a solid to a triangle mesh using marching cubes. The
// triangles do not share vertices; the mesh kernel welds them on read.
func (m *Modeler) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	renderer := render.NewMarchingCubesUniform(m.cells)
	triangles := render.ToTriangles(unwrap(s), renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("sdfx: solid produced no triangles")
	}

	mesh := &kernel.Mesh{
		Vertices: make([]float64, 0, len(triangles)*9),
		Indices:  make([]uint32, 0, len(triangles)*3),
	}
	for _, tri := range triangles {
		mesh.AddTriangle(
			[3]float64{tri[0].X, tri[0].Y, tri[0].Z},
			[3]float64{tri[1].X, tri[1].Y, tri[1].Z},
			[3]float64{tri[2].X, tri[2].Y, tri[2].Z},
		)
	}
	return mesh, nil
}
