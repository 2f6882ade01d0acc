package kernel

import (
	"context"
	"math"
)

// EntityType is a drawing entity type name as it appears in the file.
type EntityType string

const (
	EntityLine       EntityType = "LINE"
	EntityCircle     EntityType = "CIRCLE"
	EntityArc        EntityType = "ARC"
	EntityPolyline   EntityType = "POLYLINE"
	EntityLwPolyline EntityType = "LWPOLYLINE"
	EntityDimension  EntityType = "DIMENSION"
	EntityText       EntityType = "TEXT"
	EntityMText      EntityType = "MTEXT"
)

// CountedTypes are the entity types tallied for every drawing, in report order.
var CountedTypes = []EntityType{
	EntityLine, EntityCircle, EntityArc, EntityPolyline,
	EntityLwPolyline, EntityDimension, EntityText, EntityMText,
}

// EntityCounts maps each counted type to its number of occurrences.
type EntityCounts map[EntityType]int

// NewEntityCounts returns a table with every counted type set to zero.
func NewEntityCounts() EntityCounts {
	c := make(EntityCounts, len(CountedTypes))
	for _, t := range CountedTypes {
		c[t] = 0
	}
	return c
}

// Line is a straight segment.
type Line struct {
	Start [3]float64 `json:"start"`
	End   [3]float64 `json:"end"`
}

// Circle is a full circle in the XY plane.
type Circle struct {
	Center [3]float64 `json:"center"`
	Radius float64    `json:"radius"`
}

// Arc is a counter-clockwise circular arc, angles in degrees.
type Arc struct {
	Center     [3]float64 `json:"center"`
	Radius     float64    `json:"radius"`
	StartAngle float64    `json:"startAngle"`
	EndAngle   float64    `json:"endAngle"`
}

// FullTurn reports whether the arc closes on itself, as when the start and
// end angles are equal.
func (a Arc) FullTurn() bool {
	d := math.Abs(math.Mod(a.EndAngle-a.StartAngle, 360))
	return d < 1e-9 || 360-d < 1e-9
}

// ThreePoints returns the start, middle and end points of the arc. An end
// angle at or below the start wraps by a full turn.
func (a Arc) ThreePoints() (start, mid, end [3]float64) {
	s, e := a.StartAngle, a.EndAngle
	for e <= s {
		e += 360
	}
	at := func(deg float64) [3]float64 {
		rad := deg * math.Pi / 180
		return [3]float64{
			a.Center[0] + a.Radius*math.Cos(rad),
			a.Center[1] + a.Radius*math.Sin(rad),
			a.Center[2],
		}
	}
	return at(s), at((s + e) / 2), at(e)
}

// Polyline is an ordered vertex sequence (POLYLINE or LWPOLYLINE).
type Polyline struct {
	Vertices [][3]float64 `json:"vertices"`
	Closed   bool         `json:"closed"`
}

// Entities holds the geometric entities of a drawing grouped by type.
type Entities struct {
	Lines     []Line     `json:"lines"`
	Circles   []Circle   `json:"circles"`
	Arcs      []Arc      `json:"arcs"`
	Polylines []Polyline `json:"polylines"`
}

// Len returns the total number of geometric entities.
func (e Entities) Len() int {
	return len(e.Lines) + len(e.Circles) + len(e.Arcs) + len(e.Polylines)
}

// Drawing is an opened 2D drawing. It must be closed by its opener.
type Drawing interface {
	Counts() EntityCounts
	Entities() Entities
	Close() error
}

// Edge is a boundary-representation edge or wire built from an entity.
type Edge interface {
	Bounded
	// Segments is the number of elementary curves in the edge (1 for lines,
	// circles and arcs, one per span for wires).
	Segments() int
}

// EdgeBuilder constructs edges from raw entity parameters.
type EdgeBuilder interface {
	MakeSegment(a, b [3]float64) (Edge, error)
	MakeCircle(center [3]float64, radius float64) (Edge, error)
	MakeArcThreePoints(start, mid, end [3]float64) (Edge, error)
	MakeWire(points [][3]float64) (Edge, error)
}

// DrawingKernel is the 2D capability set.
type DrawingKernel interface {
	EdgeBuilder

	// Open parses a drawing. It fails with ErrFileRead when the file is
	// missing and ErrFormat when its content cannot be parsed.
	Open(ctx context.Context, path string) (Drawing, error)
}
