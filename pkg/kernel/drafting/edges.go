package drafting

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/cadgrade/pkg/kernel"
)

var (
	errDegenerate = errors.New("drafting: degenerate geometry")
	errCollinear  = errors.New("drafting: arc points are collinear")
)

// edge is a constructed curve reduced to what matching needs: its
// axis-aligned bounds and the number of elementary curves.
type edge struct {
	min, max [3]float64
	segs     int
}

var _ kernel.Edge = edge{}

func (e edge) BoundingBox() (min, max [3]float64) { return e.min, e.max }
func (e edge) Segments() int                      { return e.segs }

func (e *edge) include(p [3]float64) {
	for i := range p {
		e.min[i] = math.Min(e.min[i], p[i])
		e.max[i] = math.Max(e.max[i], p[i])
	}
}

func newEdge(p [3]float64, segs int) edge {
	return edge{min: p, max: p, segs: segs}
}

// MakeSegment builds a straight edge. Zero-length segments are rejected.
func (k *Kernel) MakeSegment(a, b [3]float64) (kernel.Edge, error) {
	if a == b {
		return nil, fmt.Errorf("%w: zero-length segment at %v", errDegenerate, a)
	}
	e := newEdge(a, 1)
	e.include(b)
	return e, nil
}

// MakeCircle builds a full circle in the XY plane.
func (k *Kernel) MakeCircle(center [3]float64, radius float64) (kernel.Edge, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: circle radius %v", errDegenerate, radius)
	}
	e := newEdge([3]float64{center[0] - radius, center[1] - radius, center[2]}, 1)
	e.include([3]float64{center[0] + radius, center[1] + radius, center[2]})
	return e, nil
}

// MakeArcThreePoints builds the circular arc that starts at start, passes
// through mid and ends at end, in the XY plane of start.
func (k *Kernel) MakeArcThreePoints(start, mid, end [3]float64) (kernel.Edge, error) {
	ax, ay := start[0], start[1]
	bx, by := mid[0], mid[1]
	cx, cy := end[0], end[1]
	d := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	scale := math.Max(1, math.Max(math.Hypot(bx-ax, by-ay), math.Hypot(cx-ax, cy-ay)))
	if math.Abs(d) <= 1e-12*scale*scale {
		return nil, errCollinear
	}
	a2, b2, c2 := ax*ax+ay*ay, bx*bx+by*by, cx*cx+cy*cy
	ox := (a2*(by-cy) + b2*(cy-ay) + c2*(ay-by)) / d
	oy := (a2*(cx-bx) + b2*(ax-cx) + c2*(bx-ax)) / d
	r := math.Hypot(ax-ox, ay-oy)

	a0 := math.Atan2(ay-oy, ax-ox)
	am := normAngle(math.Atan2(by-oy, bx-ox) - a0)
	a1 := normAngle(math.Atan2(cy-oy, cx-ox) - a0)

	// Express the arc as a counter-clockwise sweep from its first angle.
	from, sweep := a0, a1
	if am > a1 {
		from, sweep = a0+a1, 2*math.Pi-a1
	}

	e := newEdge(start, 1)
	e.include(end)
	for q := 0; q < 4; q++ {
		theta := float64(q) * math.Pi / 2
		if normAngle(theta-from) <= sweep {
			e.include([3]float64{ox + r*math.Cos(theta), oy + r*math.Sin(theta), start[2]})
		}
	}
	return e, nil
}

// MakeWire chains straight spans through the points. Repeated points are
// skipped; a wire needs at least one span.
func (k *Kernel) MakeWire(points [][3]float64) (kernel.Edge, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: wire needs 2 points, got %d", errDegenerate, len(points))
	}
	e := newEdge(points[0], 0)
	for i := 1; i < len(points); i++ {
		if points[i] == points[i-1] {
			continue
		}
		e.include(points[i])
		e.segs++
	}
	if e.segs == 0 {
		return nil, fmt.Errorf("%w: wire has no spans", errDegenerate)
	}
	return e, nil
}

func normAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
