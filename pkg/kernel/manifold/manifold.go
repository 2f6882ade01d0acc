//go:build manifold

// Package manifold implements kernel.Modeler on the Manifold library
// (https://github.com/elalish/manifold). Booleans are exact mesh
// operations, so authored references keep sharp edges and planar faces.
//
// The Manifold C library (manifoldc) must be installed. Build with
// -tags=manifold.
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"errors"
	"runtime"
	"unsafe"

	"github.com/chazu/cadgrade/pkg/kernel"
)

// Compile-time interface checks.
var _ kernel.Modeler = (*Modeler)(nil)
var _ kernel.Solid = (*solid)(nil)

var errEmpty = errors.New("manifold: solid has no triangles")

// solid wraps a C ManifoldManifold pointer.
type solid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *solid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min = [3]float64{
		float64(C.manifold_box_min_x(bbox)),
		float64(C.manifold_box_min_y(bbox)),
		float64(C.manifold_box_min_z(bbox)),
	}
	max = [3]float64{
		float64(C.manifold_box_max_x(bbox)),
		float64(C.manifold_box_max_y(bbox)),
		float64(C.manifold_box_max_z(bbox)),
	}
	return min, max
}

// newSolid wraps ptr; the C object is freed by a finalizer.
func newSolid(ptr *C.ManifoldManifold) *solid {
	s := &solid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *solid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

func unwrap(s kernel.Solid) *C.ManifoldManifold {
	return s.(*solid).ptr
}

// Modeler implements kernel.Modeler with Manifold.
type Modeler struct{}

// New returns a Modeler.
func New() (kernel.Modeler, error) {
	return &Modeler{}, nil
}

// Box creates an axis-aligned box with its minimum corner at the origin.
func (m *Modeler) Box(x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_cube(alloc, C.double(x), C.double(y), C.double(z), C.int(0)))
}

// Cylinder creates a cylinder along Z centered at the origin.
func (m *Modeler) Cylinder(height, radius float64, segments int) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius),
		C.double(radius),
		C.int(segments),
		C.int(1),
	)
	return newSolid(ptr)
}

func (m *Modeler) Union(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_union(alloc, unwrap(a), unwrap(b)))
}

func (m *Modeler) Difference(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_difference(alloc, unwrap(a), unwrap(b)))
}

func (m *Modeler) Intersection(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_intersection(alloc, unwrap(a), unwrap(b)))
}

func (m *Modeler) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_translate(alloc, unwrap(s), C.double(x), C.double(y), C.double(z)))
}

// Rotate applies Euler angles in degrees about X, then Y, then Z.
func (m *Modeler) Rotate(s kernel.Solid, x, y, z float64) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_rotate(alloc, unwrap(s), C.double(x), C.double(y), C.double(z)))
}

// ToMesh extracts the triangles of the solid. MeshGL interleaves vertex
// properties; only the leading position triple is kept.
func (m *Modeler) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, unwrap(s))
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return nil, errEmpty
	}
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	props := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties((*C.float)(unsafe.Pointer(&props[0])), meshGL)

	tris := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts((*C.uint32_t)(unsafe.Pointer(&tris[0])), meshGL)

	mesh := &kernel.Mesh{
		Vertices: make([]float64, 0, numVert*3),
		Indices:  tris,
	}
	for i := 0; i < numVert; i++ {
		p := props[i*numProp : i*numProp+3]
		mesh.Vertices = append(mesh.Vertices, float64(p[0]), float64(p[1]), float64(p[2]))
	}
	return mesh, nil
}
