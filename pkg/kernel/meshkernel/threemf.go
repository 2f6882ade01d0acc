package meshkernel

import (
	"fmt"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/hpinc/go3mf"
)

// maxComponentDepth bounds component references to catch cycles.
const maxComponentDepth = 16

func read3MF(path string) ([]*kernel.Mesh, error) {
	r, err := go3mf.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var model go3mf.Model
	if err := r.Decode(&model); err != nil {
		return nil, err
	}
	return modelMeshes(&model)
}

// modelMeshes flattens the build items of a 3MF model into world space
// meshes, one per item. A model without build items yields each mesh
// object untransformed.
func modelMeshes(model *go3mf.Model) ([]*kernel.Mesh, error) {
	objects := make(map[uint32]*go3mf.Object, len(model.Resources.Objects))
	for _, o := range model.Resources.Objects {
		objects[o.ID] = o
	}

	var out []*kernel.Mesh
	if len(model.Build.Items) == 0 {
		for _, o := range model.Resources.Objects {
			if o.Mesh == nil {
				continue
			}
			m := &kernel.Mesh{Name: o.Name}
			if err := appendObject(m, objects, o, go3mf.Identity(), 0); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	} else {
		for _, item := range model.Build.Items {
			o, ok := objects[item.ObjectID]
			if !ok {
				return nil, fmt.Errorf("3mf: build item references unknown object %d", item.ObjectID)
			}
			m := &kernel.Mesh{Name: o.Name}
			if err := appendObject(m, objects, o, transform(item.Transform), 0); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
	}

	var total int
	for _, m := range out {
		total += m.TriangleCount()
	}
	if total == 0 {
		return nil, fmt.Errorf("3mf: model has no triangles")
	}
	return out, nil
}

func appendObject(m *kernel.Mesh, objects map[uint32]*go3mf.Object, o *go3mf.Object, xf go3mf.Matrix, depth int) error {
	if depth > maxComponentDepth {
		return fmt.Errorf("3mf: component nesting deeper than %d", maxComponentDepth)
	}
	if o.Mesh != nil {
		verts := o.Mesh.Vertices.Vertex
		for _, tri := range o.Mesh.Triangles.Triangle {
			if int(tri.V1) >= len(verts) || int(tri.V2) >= len(verts) || int(tri.V3) >= len(verts) {
				return fmt.Errorf("3mf: object %d: triangle index out of range", o.ID)
			}
			m.AddTriangle(point(xf, verts[tri.V1]), point(xf, verts[tri.V2]), point(xf, verts[tri.V3]))
		}
	}
	if o.Components != nil {
		for _, c := range o.Components.Component {
			child, ok := objects[c.ObjectID]
			if !ok {
				return fmt.Errorf("3mf: component references unknown object %d", c.ObjectID)
			}
			if err := appendObject(m, objects, child, xf.Mul(transform(c.Transform)), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// transform treats the zero matrix of an absent transform attribute as the
// identity.
func transform(m go3mf.Matrix) go3mf.Matrix {
	if m == (go3mf.Matrix{}) {
		return go3mf.Identity()
	}
	return m
}

func point(xf go3mf.Matrix, p go3mf.Point3D) [3]float64 {
	q := xf.Mul3D(p)
	return [3]float64{float64(q[0]), float64(q[1]), float64(q[2])}
}
