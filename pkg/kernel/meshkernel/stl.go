package meshkernel

import (
	"errors"
	"fmt"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

var errEmptySTL = errors.New("stl: no facets")

func readSTLFile(path string) ([]*kernel.Mesh, error) {
	m, err := LoadSTL(path)
	if err != nil {
		return nil, err
	}
	return []*kernel.Mesh{m}, nil
}

// LoadSTL reads a binary or ASCII STL file into one mesh. Solids are not
// kept apart; the kernel recovers them from connectivity.
func LoadSTL(path string) (m *kernel.Mesh, err error) {
	// The ASCII loader indexes past the end when the vertex count is not a
	// multiple of three.
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("stl: malformed facets: %v", r)
		}
	}()

	tris, err := render.LoadSTL(path)
	if err != nil {
		return nil, fmt.Errorf("stl: %w", err)
	}
	m = &kernel.Mesh{}
	for _, t := range tris {
		m.AddTriangle(fromVec(t[0]), fromVec(t[1]), fromVec(t[2]))
	}
	if m.IsEmpty() {
		return nil, errEmptySTL
	}
	return m, nil
}

// SaveSTL writes the meshes as one binary STL file. Facet normals come from
// the winding.
func SaveSTL(path string, meshes ...*kernel.Mesh) error {
	var tris []*sdf.Triangle3
	for _, m := range meshes {
		for t := 0; t < m.TriangleCount(); t++ {
			c := m.Triangle(t)
			tris = append(tris, &sdf.Triangle3{toVec(c[0]), toVec(c[1]), toVec(c[2])})
		}
	}
	if err := render.SaveSTL(path, tris); err != nil {
		return fmt.Errorf("stl: %w", err)
	}
	return nil
}

func toVec(p [3]float64) v3.Vec {
	return v3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

func fromVec(v v3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
