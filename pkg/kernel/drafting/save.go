package drafting

import (
	"fmt"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/yofu/dxf"
)

// Save writes the entities to a new DXF file. Polylines are written as
// LWPOLYLINE in the XY plane.
func Save(path string, ents kernel.Entities) error {
	d := dxf.NewDrawing()
	for _, l := range ents.Lines {
		if _, err := d.Line(l.Start[0], l.Start[1], l.Start[2], l.End[0], l.End[1], l.End[2]); err != nil {
			return fmt.Errorf("drafting: line: %w", err)
		}
	}
	for _, c := range ents.Circles {
		if _, err := d.Circle(c.Center[0], c.Center[1], c.Center[2], c.Radius); err != nil {
			return fmt.Errorf("drafting: circle: %w", err)
		}
	}
	for _, a := range ents.Arcs {
		if _, err := d.Arc(a.Center[0], a.Center[1], a.Center[2], a.Radius, a.StartAngle, a.EndAngle); err != nil {
			return fmt.Errorf("drafting: arc: %w", err)
		}
	}
	for _, p := range ents.Polylines {
		verts := make([][]float64, len(p.Vertices))
		for i, v := range p.Vertices {
			verts[i] = []float64{v[0], v[1]}
		}
		if _, err := d.LwPolyline(p.Closed, verts...); err != nil {
			return fmt.Errorf("drafting: polyline: %w", err)
		}
	}
	if err := d.SaveAs(path); err != nil {
		return fmt.Errorf("drafting: save %s: %w", path, err)
	}
	return nil
}
