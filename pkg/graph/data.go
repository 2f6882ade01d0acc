package graph

import "fmt"

// Vec3 is a 3D vector in millimetres or degrees.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool {
	return v == Vec3{}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g %g %g)", v.X, v.Y, v.Z)
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// BoxData is a rectangular solid with its minimum corner at the origin.
type BoxData struct {
	Size Vec3 `json:"size"`
}

func (BoxData) nodeData() {}

// CylinderData is a cylinder along Z centred on the origin.
type CylinderData struct {
	Height   float64 `json:"height"`
	Radius   float64 `json:"radius"`
	Segments int     `json:"segments,omitempty"`
}

func (CylinderData) nodeData() {}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

// BoolOp enumerates constructive solid geometry operations.
type BoolOp int

const (
	OpUnion BoolOp = iota
	OpDifference
	OpIntersection
)

func (op BoolOp) String() string {
	switch op {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// BooleanData combines its children left to right: for a difference, every
// child after the first is subtracted from the first.
type BooleanData struct {
	Op BoolOp `json:"op"`
}

func (BooleanData) nodeData() {}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// TransformData moves its single child. Rotation is applied before
// translation.
type TransformData struct {
	Translation *Vec3 `json:"translation,omitempty"`
	Rotation    *Vec3 `json:"rotation,omitempty"` // Euler angles in degrees
}

func (TransformData) nodeData() {}

// ---------------------------------------------------------------------------
// Component
// ---------------------------------------------------------------------------

// ComponentData marks a named solid of the authored reference.
type ComponentData struct {
	Description string `json:"description,omitempty"`
}

func (ComponentData) nodeData() {}
