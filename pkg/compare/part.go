// Package compare scores a submitted part, assembly or drawing against a
// reference under a tolerance.
//
// All scoring is relative to the reference, so Compare(a, b) and
// Compare(b, a) generally differ.
package compare

import (
	"fmt"
	"math"

	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/samber/lo"
)

const (
	// shellToleranceFactor widens the tolerance for surface area.
	shellToleranceFactor = 1.5
	// topologyBonusLimit is the largest summed topology difference that
	// still earns the area bonus.
	topologyBonusLimit = 6
	topologyBonus      = 1.1
)

// Feature is one scored aspect of a comparison. OK is nil when the feature
// does not apply and is left out of the global score.
type Feature struct {
	OK      *bool     `json:"ok" jsonschema:"nullable"`
	Score   float64   `json:"score"`
	Message string    `json:"message"`
	Axes    []float64 `json:"axes,omitempty"`

	raw float64
}

// Applicable reports whether the feature counts toward the global score.
func (f Feature) Applicable() bool { return f.OK != nil }

// ComparisonResult is the outcome of a single part comparison.
type ComparisonResult struct {
	Dimensions       Feature `json:"dimensions"`
	Measure          Feature `json:"measure"`
	MeasureName      string  `json:"measureName"`
	Topology         Feature `json:"topology"`
	PrincipalMoments Feature `json:"principalMoments"`
	GlobalScore      float64 `json:"globalScore"`
	Success          bool    `json:"success"`
	Tolerance        float64 `json:"tolerance"`
}

// Pct scores s against r: 100 for equality, falling linearly with the
// relative error and floored at 0.
func Pct(s, r float64) float64 {
	return 100 - math.Min(100, 100*math.Abs(s-r)/math.Max(math.Abs(r), 1e-6))
}

// Within reports whether s is within tol of r, relative to |r| but never
// tighter than absolute tol.
func Within(s, r, tol float64) bool {
	return math.Abs(s-r) <= tol*math.Max(math.Abs(r), 1)
}

// PassMark is the global score a part needs to pass at the tolerance.
func PassMark(tol float64) float64 {
	switch {
	case tol >= 5e-2:
		return 70
	case tol >= 1e-2:
		return 75
	default:
		return 80
	}
}

func boolPtr(b bool) *bool { return &b }

// ComparePart compares submitted invariants against the reference.
func ComparePart(sub, ref invariant.PartInvariants, tol float64) ComparisonResult {
	res := ComparisonResult{Tolerance: tol}

	res.Dimensions = compareDimensions(sub, ref, tol)
	res.MeasureName, res.Measure = compareMeasure(sub, ref, tol)
	res.Topology = compareTopology(sub, ref)
	res.PrincipalMoments = compareMoments(sub, ref, tol)

	features := lo.Filter([]Feature{res.Dimensions, res.Measure, res.Topology, res.PrincipalMoments},
		func(f Feature, _ int) bool { return f.Applicable() })
	total := lo.SumBy(features, func(f Feature) float64 { return f.raw })
	res.GlobalScore = invariant.Round(total/float64(len(features)), 1)
	res.Success = res.GlobalScore >= PassMark(tol)
	return res
}

func compareDimensions(sub, ref invariant.PartInvariants, tol float64) Feature {
	f := Feature{Axes: make([]float64, 3)}
	ok := true
	var sum float64
	for i := 0; i < 3; i++ {
		f.Axes[i] = Pct(sub.Dimensions[i], ref.Dimensions[i])
		sum += f.Axes[i]
		ok = ok && Within(sub.Dimensions[i], ref.Dimensions[i], tol)
	}
	f.raw = sum / 3
	f.Score = f.raw
	f.OK = boolPtr(ok)
	if ok {
		f.Message = "dimensions match"
	} else {
		f.Message = fmt.Sprintf("dimensions differ: submitted %v, reference %v", sub.Dimensions, ref.Dimensions)
	}
	return f
}

func compareMeasure(sub, ref invariant.PartInvariants, tol float64) (string, Feature) {
	subSolid, refSolid := sub.Kind == invariant.KindSolid, ref.Kind == invariant.KindSolid

	switch {
	case subSolid && refSolid:
		s, r := deref(sub.Volume), deref(ref.Volume)
		f := Feature{OK: boolPtr(Within(s, r, tol)), raw: Pct(s, r)}
		f.Score = f.raw
		f.Message = measureMessage("volume", *f.OK, s, r)
		return "volume", f

	case subSolid != refSolid:
		return "surfaceArea", Feature{
			OK:      boolPtr(false),
			Message: fmt.Sprintf("kind mismatch: submitted %s, reference %s", sub.Kind, ref.Kind),
		}

	default:
		s, r := deref(sub.SurfaceArea), deref(ref.SurfaceArea)
		f := Feature{OK: boolPtr(Within(s, r, tol*shellToleranceFactor)), raw: Pct(s, r)}
		if sub.Topology.Diff(ref.Topology) <= topologyBonusLimit {
			f.raw = math.Min(100, f.raw*topologyBonus)
		}
		f.Score = invariant.Round(f.raw, 1)
		f.Message = measureMessage("surface area", *f.OK, s, r)
		return "surfaceArea", f
	}
}

func measureMessage(name string, ok bool, s, r float64) string {
	if ok {
		return name + " matches"
	}
	return fmt.Sprintf("%s differs: submitted %g, reference %g", name, s, r)
}

func compareTopology(sub, ref invariant.PartInvariants) Feature {
	if sub.Topology == ref.Topology {
		return Feature{OK: boolPtr(true), Score: 100, raw: 100, Message: "topology matches"}
	}
	return Feature{
		OK: boolPtr(false),
		Message: fmt.Sprintf("topology differs: submitted %d/%d/%d, reference %d/%d/%d faces/edges/vertices",
			sub.Topology.Faces, sub.Topology.Edges, sub.Topology.Vertices,
			ref.Topology.Faces, ref.Topology.Edges, ref.Topology.Vertices),
	}
}

func compareMoments(sub, ref invariant.PartInvariants, tol float64) Feature {
	if sub.DegenerateMoments || ref.DegenerateMoments {
		return Feature{Message: "not applicable: aggregated shells carry no principal moments"}
	}
	if sub.Kind != invariant.KindSolid || ref.Kind != invariant.KindSolid {
		return Feature{Message: "not applicable: principal moments are compared for solids only"}
	}
	ok := true
	for i := 0; i < 3; i++ {
		ok = ok && Within(sub.PrincipalMoments[i], ref.PrincipalMoments[i], tol)
	}
	if ok {
		return Feature{OK: boolPtr(true), Score: 100, raw: 100, Message: "principal moments match"}
	}
	return Feature{
		OK:      boolPtr(false),
		Message: fmt.Sprintf("principal moments differ: submitted %v, reference %v", sub.PrincipalMoments, ref.PrincipalMoments),
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
