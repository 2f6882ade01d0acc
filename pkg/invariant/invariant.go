// Package invariant reduces a shape to the fixed set of aggregate
// geometric invariants that grading compares.
package invariant

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/cadgrade/pkg/kernel"
)

// ErrNoGeometry is returned when a shape holds no solid, shell or face.
var ErrNoGeometry = errors.New("no geometry")

// Kind classifies the geometry the invariants were taken from.
type Kind string

const (
	KindSolid   Kind = "solid"
	KindShell   Kind = "shell"
	KindSurface Kind = "surface"
)

// PartInvariants describes one part. Exactly one of Volume (solids) and
// SurfaceArea (shells and surfaces) is set.
type PartInvariants struct {
	Kind             Kind            `json:"kind"`
	Dimensions       [3]float64      `json:"dimensions"`
	Volume           *float64        `json:"volume,omitempty"`
	SurfaceArea      *float64        `json:"surfaceArea,omitempty"`
	CenterOfMass     [3]float64      `json:"centerOfMass"`
	Topology         kernel.Topology `json:"topology"`
	PrincipalMoments [3]float64      `json:"principalMoments"`

	// DegenerateMoments marks the placeholder moment triple produced when
	// several shells are aggregated.
	DegenerateMoments bool `json:"degenerateMoments,omitempty"`
}

// Validate checks the volume/area exclusivity for the kind.
func (p PartInvariants) Validate() error {
	switch p.Kind {
	case KindSolid:
		if p.Volume == nil || p.SurfaceArea != nil {
			return fmt.Errorf("invariant: solid must carry volume only")
		}
	case KindShell, KindSurface:
		if p.SurfaceArea == nil || p.Volume != nil {
			return fmt.Errorf("invariant: %s must carry surface area only", p.Kind)
		}
	default:
		return fmt.Errorf("invariant: unknown kind %q", p.Kind)
	}
	return nil
}

// Extract computes the invariants of a shape. The first applicable branch
// wins: the first solid, then the shells (one or aggregated), then the
// first face. Values are rounded to 3 decimals.
func Extract(k kernel.ShapeKernel, s kernel.Shape) (PartInvariants, error) {
	if solids := k.Enumerate(s, kernel.KindSolid); len(solids) > 0 {
		inv, err := solidInvariants(k, solids[0])
		if err != nil {
			return PartInvariants{}, fmt.Errorf("invariant: %w", err)
		}
		return inv, nil
	}

	if shells := k.Enumerate(s, kernel.KindShell); len(shells) > 0 {
		props, err := k.ShellProperties(shells...)
		if err != nil {
			return PartInvariants{}, fmt.Errorf("invariant: shell properties: %w", err)
		}
		kind := KindShell
		if len(shells) == 1 && props.Topology.Faces <= 1 {
			kind = KindSurface
		}
		return shellInvariants(props, kind), nil
	}

	if faces := k.Enumerate(s, kernel.KindFace); len(faces) > 0 {
		props, err := k.ShellProperties(faces[0])
		if err != nil {
			return PartInvariants{}, fmt.Errorf("invariant: face properties: %w", err)
		}
		return shellInvariants(props, KindSurface), nil
	}

	return PartInvariants{}, ErrNoGeometry
}

// ExtractComponents returns the invariants of every solid in enumeration
// order.
func ExtractComponents(k kernel.ShapeKernel, s kernel.Shape) ([]PartInvariants, error) {
	solids := k.Enumerate(s, kernel.KindSolid)
	out := make([]PartInvariants, 0, len(solids))
	for i, solid := range solids {
		inv, err := solidInvariants(k, solid)
		if err != nil {
			return nil, fmt.Errorf("invariant: component %d: %w", i, err)
		}
		out = append(out, inv)
	}
	return out, nil
}

func solidInvariants(k kernel.ShapeKernel, solid kernel.SubShape) (PartInvariants, error) {
	props, err := k.SolidProperties(solid)
	if err != nil {
		return PartInvariants{}, fmt.Errorf("solid properties: %w", err)
	}
	vol := Round(props.Volume, 3)
	return PartInvariants{
		Kind:             KindSolid,
		Dimensions:       round3(props.Dimensions),
		Volume:           &vol,
		CenterOfMass:     round3(props.CenterOfMass),
		Topology:         props.Topology,
		PrincipalMoments: round3(props.PrincipalMoments),
	}, nil
}

func shellInvariants(props kernel.ShellProperties, kind Kind) PartInvariants {
	area := Round(props.SurfaceArea, 3)
	return PartInvariants{
		Kind:              kind,
		Dimensions:        round3(props.Dimensions),
		SurfaceArea:       &area,
		CenterOfMass:      round3(props.CenterOfMass),
		Topology:          props.Topology,
		PrincipalMoments:  round3(props.PrincipalMoments),
		DegenerateMoments: props.Aggregated,
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func round3(v [3]float64) [3]float64 {
	return [3]float64{Round(v[0], 3), Round(v[1], 3), Round(v[2], 3)}
}
