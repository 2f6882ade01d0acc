package compare

import (
	"context"
	"math"

	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/dhconnelly/rtreego"
	"github.com/samber/lo"
)

// rectPad keeps R-tree rectangles of flat edges (horizontal or vertical
// lines) non-degenerate.
const rectPad = 1e-9

// CountTable is the per-type entity count diagnostic of a drawing
// comparison. It does not affect the score.
type CountTable struct {
	Reference kernel.EntityCounts        `json:"reference"`
	Submitted kernel.EntityCounts        `json:"submitted"`
	Matches   map[kernel.EntityType]bool `json:"matches"`
}

// DrawingComparisonResult is the outcome of a drawing comparison.
type DrawingComparisonResult struct {
	MatchedShapes  int        `json:"matchedShapes"`
	TotalReference int        `json:"totalReference"`
	TotalSubmitted int        `json:"totalSubmitted"`
	Score          float64    `json:"score"`
	EntityCounts   CountTable `json:"entityCounts"`
	Tolerance      float64    `json:"tolerance"`

	// Entities whose edge could not be built are left out of the totals.
	SkippedReference int `json:"skippedReference,omitempty"`
	SkippedSubmitted int `json:"skippedSubmitted,omitempty"`
}

// AllMatched reports whether every reference shape found a match.
func (r DrawingComparisonResult) AllMatched() bool {
	return r.TotalReference > 0 && r.MatchedShapes == r.TotalReference
}

// Analyze opens a drawing and returns its per-type counts and entities.
func Analyze(ctx context.Context, k kernel.DrawingKernel, path string) (kernel.EntityCounts, kernel.Entities, error) {
	d, err := k.Open(ctx, path)
	if err != nil {
		return nil, kernel.Entities{}, err
	}
	defer d.Close()
	return d.Counts(), d.Entities(), nil
}

// BuildEdges converts every entity to an edge: lines to segments, circles
// to full circles, arcs through their start, middle and end points (a full
// turn becomes a circle), and
// polylines to wires. It returns the edges and the number of entities that
// could not be built.
func BuildEdges(b kernel.EdgeBuilder, ents kernel.Entities) ([]kernel.Edge, int) {
	var (
		edges   []kernel.Edge
		skipped int
	)
	add := func(e kernel.Edge, err error) {
		if err != nil {
			skipped++
			return
		}
		edges = append(edges, e)
	}
	for _, l := range ents.Lines {
		add(b.MakeSegment(l.Start, l.End))
	}
	for _, c := range ents.Circles {
		add(b.MakeCircle(c.Center, c.Radius))
	}
	for _, a := range ents.Arcs {
		if a.FullTurn() {
			add(b.MakeCircle(a.Center, a.Radius))
			continue
		}
		s, m, e := a.ThreePoints()
		add(b.MakeArcThreePoints(s, m, e))
	}
	for _, p := range ents.Polylines {
		if len(p.Vertices) < 2 {
			skipped++
			continue
		}
		add(b.MakeWire(p.Vertices))
	}
	return edges, skipped
}

// indexedEdge is an edge stored in the R-tree.
type indexedEdge struct {
	edge kernel.Edge
	rect rtreego.Rect
}

func (e *indexedEdge) Bounds() rtreego.Rect { return e.rect }

func edgeRect(e kernel.Edge, grow float64) (rtreego.Rect, error) {
	min, max := e.BoundingBox()
	origin := rtreego.Point{min[0] - grow - rectPad, min[1] - grow - rectPad}
	lengths := []float64{
		max[0] - min[0] + 2*(grow+rectPad),
		max[1] - min[1] + 2*(grow+rectPad),
	}
	return rtreego.NewRect(origin, lengths)
}

// edgesMatch reports whether two edges have the same number of curves and
// bounding boxes whose XY corners agree within tol.
func edgesMatch(a, b kernel.Edge, tol float64) bool {
	if a.Segments() != b.Segments() {
		return false
	}
	amin, amax := a.BoundingBox()
	bmin, bmax := b.BoundingBox()
	for i := 0; i < 2; i++ {
		if math.Abs(amin[i]-bmin[i]) > tol || math.Abs(amax[i]-bmax[i]) > tol {
			return false
		}
	}
	return true
}

// CompareDrawing matches every reference edge against the submitted
// edges. A submitted edge may satisfy any number of reference edges.
func CompareDrawing(b kernel.EdgeBuilder, sub, ref kernel.Drawing, tol float64) DrawingComparisonResult {
	subEdges, subSkipped := BuildEdges(b, sub.Entities())
	refEdges, refSkipped := BuildEdges(b, ref.Entities())

	res := DrawingComparisonResult{
		TotalReference:   len(refEdges),
		TotalSubmitted:   len(subEdges),
		Tolerance:        tol,
		SkippedReference: refSkipped,
		SkippedSubmitted: subSkipped,
	}

	tree := rtreego.NewTree(2, 25, 50)
	for _, e := range subEdges {
		r, err := edgeRect(e, 0)
		if err != nil {
			continue
		}
		tree.Insert(&indexedEdge{edge: e, rect: r})
	}

	for _, re := range refEdges {
		query, err := edgeRect(re, tol)
		if err != nil {
			continue
		}
		candidates := lo.Map(tree.SearchIntersect(query), func(s rtreego.Spatial, _ int) *indexedEdge {
			return s.(*indexedEdge)
		})
		if lo.ContainsBy(candidates, func(c *indexedEdge) bool { return edgesMatch(re, c.edge, tol) }) {
			res.MatchedShapes++
		}
	}

	res.Score = invariant.Round(100*float64(res.MatchedShapes)/float64(max(res.TotalReference, 1)), 2)
	res.EntityCounts = countTable(sub.Counts(), ref.Counts())
	return res
}

func countTable(sub, ref kernel.EntityCounts) CountTable {
	t := CountTable{
		Reference: kernel.NewEntityCounts(),
		Submitted: kernel.NewEntityCounts(),
		Matches:   make(map[kernel.EntityType]bool, len(kernel.CountedTypes)),
	}
	for _, typ := range kernel.CountedTypes {
		t.Reference[typ] = ref[typ]
		t.Submitted[typ] = sub[typ]
		t.Matches[typ] = ref[typ] == sub[typ]
	}
	return t
}
