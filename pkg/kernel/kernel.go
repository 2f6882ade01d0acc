// Package kernel defines the capability sets the grading engine needs from
// a geometry backend. A 3D kernel opens exchange files into shape handles
// and computes aggregate properties; a 2D kernel opens drawings into typed
// entities and builds boundary edges from them. Any library that conforms
// can be substituted without touching the scoring code.
package kernel

import "context"

// ShapeKind identifies a level of the solid/shell/face hierarchy.
type ShapeKind int

const (
	KindSolid ShapeKind = iota
	KindShell
	KindFace
)

func (k ShapeKind) String() string {
	switch k {
	case KindSolid:
		return "solid"
	case KindShell:
		return "shell"
	case KindFace:
		return "face"
	}
	return "unknown"
}

// Bounded is anything with an axis-aligned bounding box.
type Bounded interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Shape is a handle to a model opened by a ShapeKernel. The handle owns
// kernel resources and must be closed by the caller that opened it.
type Shape interface {
	Bounded
	Close() error
}

// SubShape is a solid, shell or face enumerated from a Shape. It is only
// valid while its parent Shape is open.
type SubShape interface {
	Bounded
	Kind() ShapeKind
}

// Topology counts the unique faces, edges and vertices of a shape.
type Topology struct {
	Faces    int `json:"faces"`
	Edges    int `json:"edges"`
	Vertices int `json:"vertices"`
}

// Diff returns |Δfaces| + |Δedges| + |Δvertices|.
func (t Topology) Diff(o Topology) int {
	return absInt(t.Faces-o.Faces) + absInt(t.Edges-o.Edges) + absInt(t.Vertices-o.Vertices)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SolidProperties are the aggregate properties of one closed solid.
type SolidProperties struct {
	Volume           float64
	CenterOfMass     [3]float64
	Dimensions       [3]float64
	Topology         Topology
	PrincipalMoments [3]float64 // absolute eigenvalues of the inertia matrix
}

// ShellProperties are the aggregate properties of one or more shells.
type ShellProperties struct {
	SurfaceArea      float64
	CenterOfMass     [3]float64
	Dimensions       [3]float64
	Topology         Topology
	PrincipalMoments [3]float64
	// Aggregated is set when several shells were summed. PrincipalMoments
	// then holds the summed area three times and carries no physical meaning.
	Aggregated bool
}

// Capabilities describes how a kernel may be driven.
type Capabilities struct {
	// ConcurrentSafe reports whether independent handles may be used from
	// different goroutines at the same time. Process-global kernels report
	// false and must be driven from a single worker.
	ConcurrentSafe bool
}

// ShapeKernel is the 3D capability set.
type ShapeKernel interface {
	// ReadShape opens a model file. It fails with ErrFileRead when the file
	// is missing or cannot be parsed.
	ReadShape(ctx context.Context, path string) (Shape, error)

	// Enumerate lists the sub-shapes of the given kind in the kernel's
	// native traversal order.
	Enumerate(s Shape, kind ShapeKind) []SubShape

	// SolidProperties computes volume properties of a solid.
	SolidProperties(solid SubShape) (SolidProperties, error)

	// ShellProperties computes surface properties of a single shell or face,
	// or the additive aggregate of several shells.
	ShellProperties(shells ...SubShape) (ShellProperties, error)

	Capabilities() Capabilities
}
