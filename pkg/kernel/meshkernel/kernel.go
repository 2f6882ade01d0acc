// Package meshkernel implements kernel.ShapeKernel over triangle meshes read
// from STL and 3MF exchange files.
//
// A mesh has no explicit B-rep, so the solid/shell/face hierarchy is
// recovered from connectivity: welded triangles sharing edges form
// components, a component whose every edge is shared by exactly two
// triangles is a solid, every component is a shell, and maximal coplanar
// patches of adjacent triangles are faces. Curved surfaces therefore count
// one face per facet of their tessellation.
package meshkernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/chazu/cadgrade/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.ShapeKernel = (*Kernel)(nil)

var errClosed = errors.New("meshkernel: shape is closed")

// Kernel implements kernel.ShapeKernel for STL and 3MF files. Handles are
// independent, so a single Kernel may be shared between goroutines.
type Kernel struct {
	open atomic.Int64
}

// New returns a new Kernel.
func New() *Kernel {
	return &Kernel{}
}

// Capabilities reports that independent handles may be used concurrently.
func (k *Kernel) Capabilities() kernel.Capabilities {
	return kernel.Capabilities{ConcurrentSafe: true}
}

// OpenHandles returns the number of shapes opened and not yet closed.
func (k *Kernel) OpenHandles() int64 {
	return k.open.Load()
}

// ReadShape opens an STL or 3MF file. The format is chosen by extension;
// unknown extensions are sniffed as STL.
func (k *Kernel) ReadShape(ctx context.Context, path string) (kernel.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kernel.ErrFileRead, path, err)
	}

	var (
		meshes []*kernel.Mesh
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".3mf":
		meshes, err = read3MF(path)
	default:
		meshes, err = readSTLFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kernel.ErrFileRead, path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return k.FromMeshes(meshes...), nil
}

// FromMeshes builds a shape handle from in-memory meshes. The handle counts
// as open until closed.
func (k *Kernel) FromMeshes(meshes ...*kernel.Mesh) kernel.Shape {
	s := buildShape(meshes)
	s.owner = k
	k.open.Add(1)
	return s
}

// Enumerate lists solids, shells or faces in traversal order: components
// are ordered by their first triangle in the file, faces by their first
// triangle within the shape.
func (k *Kernel) Enumerate(s kernel.Shape, kind kernel.ShapeKind) []kernel.SubShape {
	sh, ok := s.(*shape)
	if !ok {
		return nil
	}
	b, components, ok := sh.snapshot()
	if !ok {
		return nil
	}

	var out []kernel.SubShape
	switch kind {
	case kernel.KindSolid:
		for _, c := range components {
			if c.closed {
				out = append(out, &subShape{owner: sh, kind: kernel.KindSolid, tris: c.tris})
			}
		}
	case kernel.KindShell:
		for _, c := range components {
			out = append(out, &subShape{owner: sh, kind: kernel.KindShell, tris: c.tris})
		}
	case kernel.KindFace:
		for _, p := range segmentPatches(b, allTris(b)) {
			out = append(out, &subShape{owner: sh, kind: kernel.KindFace, tris: p})
		}
	}
	return out
}

// SolidProperties computes volume properties of a solid.
func (k *Kernel) SolidProperties(solid kernel.SubShape) (kernel.SolidProperties, error) {
	ss, b, err := asSubShape(solid)
	if err != nil {
		return kernel.SolidProperties{}, err
	}

	m := volumeMoments(b, ss.tris)
	if m.mass <= 0 {
		return kernel.SolidProperties{}, fmt.Errorf("meshkernel: solid encloses no volume")
	}
	inertia := m.inertia()
	eig := symmetricEigenvalues(inertia)

	return kernel.SolidProperties{
		Volume:           m.mass,
		CenterOfMass:     m.centerOfMass(),
		Dimensions:       ss.dimensions(b),
		Topology:         countTopology(b, ss.tris),
		PrincipalMoments: sortedMagnitudes(eig),
	}, nil
}

// ShellProperties computes surface properties. A single shell reads its
// moments off the inertia diagonal; several shells are summed and carry the
// summed area as a placeholder moment triple.
func (k *Kernel) ShellProperties(shells ...kernel.SubShape) (kernel.ShellProperties, error) {
	if len(shells) == 0 {
		return kernel.ShellProperties{}, fmt.Errorf("meshkernel: no shells given")
	}

	subs := make([]*subShape, 0, len(shells))
	bodies := make([]*body, 0, len(shells))
	for _, s := range shells {
		ss, b, err := asSubShape(s)
		if err != nil {
			return kernel.ShellProperties{}, err
		}
		subs = append(subs, ss)
		bodies = append(bodies, b)
	}

	if len(subs) == 1 {
		ss, b := subs[0], bodies[0]
		m := surfaceMoments(b, ss.tris)
		inertia := m.inertia()
		return kernel.ShellProperties{
			SurfaceArea:      m.mass,
			CenterOfMass:     m.centerOfMass(),
			Dimensions:       ss.dimensions(b),
			Topology:         countTopology(b, ss.tris),
			PrincipalMoments: [3]float64{inertia[0][0], inertia[1][1], inertia[2][2]},
		}, nil
	}

	var (
		total    kernel.ShellProperties
		weighted [3]float64
		box      = emptyBox()
	)
	for i, ss := range subs {
		b := bodies[i]
		m := surfaceMoments(b, ss.tris)
		com := m.centerOfMass()
		for j := range weighted {
			weighted[j] += com[j] * m.mass
		}
		total.SurfaceArea += m.mass
		topo := countTopology(b, ss.tris)
		total.Topology.Faces += topo.Faces
		total.Topology.Edges += topo.Edges
		total.Topology.Vertices += topo.Vertices
		box = extendBox(box, ss.box(b))
	}
	if total.SurfaceArea > 0 {
		for i := range weighted {
			total.CenterOfMass[i] = weighted[i] / total.SurfaceArea
		}
	}
	total.Dimensions = boxDimensions(box)
	total.PrincipalMoments = [3]float64{total.SurfaceArea, total.SurfaceArea, total.SurfaceArea}
	total.Aggregated = true
	return total, nil
}

// asSubShape also returns the owner's mesh data, taken under its lock.
func asSubShape(s kernel.SubShape) (*subShape, *body, error) {
	ss, ok := s.(*subShape)
	if !ok {
		return nil, nil, fmt.Errorf("meshkernel: foreign sub-shape %T", s)
	}
	b, _, ok := ss.owner.snapshot()
	if !ok {
		return nil, nil, errClosed
	}
	return ss, b, nil
}
