package meshkernel

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/cadgrade/pkg/kernel"
)

const eps = 1e-6

func near(a, b float64) bool {
	return math.Abs(a-b) <= eps*math.Max(1, math.Abs(b))
}

func writeSTL(t *testing.T, name string, meshes ...*kernel.Mesh) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := SaveSTL(path, meshes...); err != nil {
		t.Fatalf("SaveSTL: %v", err)
	}
	return path
}

// openBox is a 1x1x1 box without its +Z face.
func openBox() *kernel.Mesh {
	full := BoxMesh([3]float64{}, [3]float64{1, 1, 1})
	m := &kernel.Mesh{}
	for i := 0; i < full.TriangleCount(); i++ {
		if i == 2 || i == 3 {
			continue
		}
		tri := full.Triangle(i)
		m.AddTriangle(tri[0], tri[1], tri[2])
	}
	return m
}

func TestSolidPropertiesBox(t *testing.T) {
	k := New()
	s := k.FromMeshes(BoxMesh([3]float64{1, 1, 1}, [3]float64{3, 4, 5}))
	defer s.Close()

	solids := k.Enumerate(s, kernel.KindSolid)
	if len(solids) != 1 {
		t.Fatalf("solids = %d, want 1", len(solids))
	}
	props, err := k.SolidProperties(solids[0])
	if err != nil {
		t.Fatalf("SolidProperties: %v", err)
	}
	if !near(props.Volume, 24) {
		t.Errorf("Volume = %v, want 24", props.Volume)
	}
	if want := [3]float64{2, 2.5, 3}; props.CenterOfMass != want {
		for i := range want {
			if !near(props.CenterOfMass[i], want[i]) {
				t.Errorf("CenterOfMass = %v, want %v", props.CenterOfMass, want)
				break
			}
		}
	}
	if props.Dimensions != [3]float64{2, 3, 4} {
		t.Errorf("Dimensions = %v, want [2 3 4]", props.Dimensions)
	}
	if want := (kernel.Topology{Faces: 6, Edges: 12, Vertices: 8}); props.Topology != want {
		t.Errorf("Topology = %+v, want %+v", props.Topology, want)
	}
	wantMoments := [3]float64{50, 40, 26}
	for i := range wantMoments {
		if !near(props.PrincipalMoments[i], wantMoments[i]) {
			t.Errorf("PrincipalMoments = %v, want %v", props.PrincipalMoments, wantMoments)
			break
		}
	}
}

func TestSolidPropertiesInvertedWinding(t *testing.T) {
	box := BoxMesh([3]float64{}, [3]float64{2, 2, 2})
	flipped := &kernel.Mesh{}
	for i := 0; i < box.TriangleCount(); i++ {
		tri := box.Triangle(i)
		flipped.AddTriangle(tri[0], tri[2], tri[1])
	}
	k := New()
	s := k.FromMeshes(flipped)
	defer s.Close()

	props, err := k.SolidProperties(k.Enumerate(s, kernel.KindSolid)[0])
	if err != nil {
		t.Fatalf("SolidProperties: %v", err)
	}
	if !near(props.Volume, 8) {
		t.Errorf("Volume = %v, want 8", props.Volume)
	}
}

func TestShellPropertiesOpenBox(t *testing.T) {
	k := New()
	s := k.FromMeshes(openBox())
	defer s.Close()

	if got := k.Enumerate(s, kernel.KindSolid); len(got) != 0 {
		t.Fatalf("solids = %d, want 0", len(got))
	}
	shells := k.Enumerate(s, kernel.KindShell)
	if len(shells) != 1 {
		t.Fatalf("shells = %d, want 1", len(shells))
	}
	props, err := k.ShellProperties(shells...)
	if err != nil {
		t.Fatalf("ShellProperties: %v", err)
	}
	if !near(props.SurfaceArea, 5) {
		t.Errorf("SurfaceArea = %v, want 5", props.SurfaceArea)
	}
	if want := (kernel.Topology{Faces: 5, Edges: 12, Vertices: 8}); props.Topology != want {
		t.Errorf("Topology = %+v, want %+v", props.Topology, want)
	}
	if props.Aggregated {
		t.Error("Aggregated = true for a single shell")
	}
	if got := k.Enumerate(s, kernel.KindFace); len(got) != 5 {
		t.Errorf("faces = %d, want 5", len(got))
	}
}

func TestShellPropertiesAggregated(t *testing.T) {
	k := New()
	a := openBox()
	b := BoxMesh([3]float64{5, 0, 0}, [3]float64{6, 1, 1})
	s := k.FromMeshes(a, b)
	defer s.Close()

	shells := k.Enumerate(s, kernel.KindShell)
	if len(shells) != 2 {
		t.Fatalf("shells = %d, want 2", len(shells))
	}
	props, err := k.ShellProperties(shells...)
	if err != nil {
		t.Fatalf("ShellProperties: %v", err)
	}
	if !props.Aggregated {
		t.Error("Aggregated = false, want true")
	}
	if !near(props.SurfaceArea, 11) {
		t.Errorf("SurfaceArea = %v, want 11", props.SurfaceArea)
	}
	if props.PrincipalMoments != [3]float64{props.SurfaceArea, props.SurfaceArea, props.SurfaceArea} {
		t.Errorf("PrincipalMoments = %v, want area triple", props.PrincipalMoments)
	}
	if want := (kernel.Topology{Faces: 11, Edges: 24, Vertices: 16}); props.Topology != want {
		t.Errorf("Topology = %+v, want %+v", props.Topology, want)
	}
	if !near(props.Dimensions[0], 6) {
		t.Errorf("Dimensions = %v, want x extent 6", props.Dimensions)
	}
}

func TestEnumerateOrder(t *testing.T) {
	k := New()
	first := BoxMesh([3]float64{10, 0, 0}, [3]float64{11, 1, 1})
	second := BoxMesh([3]float64{0, 0, 0}, [3]float64{2, 2, 2})
	s := k.FromMeshes(first, second)
	defer s.Close()

	solids := k.Enumerate(s, kernel.KindSolid)
	if len(solids) != 2 {
		t.Fatalf("solids = %d, want 2", len(solids))
	}
	min, _ := solids[0].BoundingBox()
	if min[0] != 10 {
		t.Errorf("first solid min x = %v, want 10 (file order)", min[0])
	}
}

func TestReadShapeSTL(t *testing.T) {
	k := New()
	path := writeSTL(t, "box.stl", BoxMesh([3]float64{}, [3]float64{10, 20, 30}))

	s, err := k.ReadShape(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadShape: %v", err)
	}
	if k.OpenHandles() != 1 {
		t.Errorf("OpenHandles = %d, want 1", k.OpenHandles())
	}
	min, max := s.BoundingBox()
	if min != [3]float64{0, 0, 0} || max != [3]float64{10, 20, 30} {
		t.Errorf("BoundingBox = %v %v", min, max)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if k.OpenHandles() != 0 {
		t.Errorf("OpenHandles after Close = %d, want 0", k.OpenHandles())
	}
	if got := k.Enumerate(s, kernel.KindSolid); got != nil {
		t.Errorf("Enumerate on closed shape = %v, want nil", got)
	}
}

func TestReadShapeASCII(t *testing.T) {
	src := `solid tri
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid tri
`
	path := filepath.Join(t.TempDir(), "tri.stl")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadSTL(path)
	if err != nil {
		t.Fatalf("LoadSTL: %v", err)
	}
	if m.TriangleCount() != 1 {
		t.Errorf("TriangleCount = %d, want 1", m.TriangleCount())
	}
	if got := m.Triangle(0)[1]; got != [3]float64{1, 0, 0} {
		t.Errorf("second vertex = %v, want [1 0 0]", got)
	}
}

func TestSaveLoadSTL(t *testing.T) {
	path := writeSTL(t, "pair.stl",
		BoxMesh([3]float64{}, [3]float64{1, 2, 3}),
		BoxMesh([3]float64{5, 0, 0}, [3]float64{6, 1, 1}))
	m, err := LoadSTL(path)
	if err != nil {
		t.Fatalf("LoadSTL: %v", err)
	}
	if m.TriangleCount() != 24 {
		t.Errorf("TriangleCount = %d, want 24", m.TriangleCount())
	}
	if got := m.Triangle(0); got != BoxMesh([3]float64{}, [3]float64{1, 2, 3}).Triangle(0) {
		t.Errorf("first triangle = %v, want the box's first triangle", got)
	}
}

func TestReadShapeErrors(t *testing.T) {
	k := New()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	garbage := write("garbage.stl", "not a mesh at all")
	noFacets := write("empty.stl", "solid empty\n"+strings.Repeat("  this line says nothing about facets\n", 4)+"endsolid empty\n")
	shortFacet := write("short.stl", `solid short
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
    endloop
  endfacet
endsolid short
`+strings.Repeat(" ", 64))

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.stl")},
		{"garbage", garbage},
		{"no facets", noFacets},
		{"facet with two vertices", shortFacet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.ReadShape(context.Background(), tt.path)
			if !errors.Is(err, kernel.ErrFileRead) {
				t.Fatalf("err = %v, want ErrFileRead", err)
			}
		})
	}
	if k.OpenHandles() != 0 {
		t.Errorf("OpenHandles = %d after failed reads, want 0", k.OpenHandles())
	}
}

func TestReadShapeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ReadShape(ctx, "whatever.stl")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClosedShapeProperties(t *testing.T) {
	k := New()
	s := k.FromMeshes(BoxMesh([3]float64{}, [3]float64{1, 1, 1}))
	solids := k.Enumerate(s, kernel.KindSolid)
	s.Close()
	if _, err := k.SolidProperties(solids[0]); !errors.Is(err, errClosed) {
		t.Fatalf("err = %v, want errClosed", err)
	}
}

func TestSortedMagnitudes(t *testing.T) {
	got := sortedMagnitudes([3]float64{-1, 5, 3})
	if got != [3]float64{5, 3, 1} {
		t.Errorf("sortedMagnitudes = %v, want [5 3 1]", got)
	}
}

func TestSymmetricEigenvalues(t *testing.T) {
	// Eigenvalues of [[2,1,0],[1,2,0],[0,0,5]] are 1, 3 and 5.
	m := [3][3]float64{{2, 1, 0}, {1, 2, 0}, {0, 0, 5}}
	got := sortedMagnitudes(symmetricEigenvalues(m))
	want := [3]float64{5, 3, 1}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("eigenvalues = %v, want %v", got, want)
		}
	}
}

func TestCloseDuringWalk(t *testing.T) {
	k := New()
	for range 50 {
		s := k.FromMeshes(BoxMesh([3]float64{}, [3]float64{1, 2, 3}), BoxMesh([3]float64{5, 0, 0}, [3]float64{6, 1, 1}))
		solids := k.Enumerate(s, kernel.KindSolid)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for _, kind := range []kernel.ShapeKind{kernel.KindFace, kernel.KindShell, kernel.KindSolid} {
				k.Enumerate(s, kind)
			}
		}()
		go func() {
			defer wg.Done()
			for _, solid := range solids {
				if _, err := k.SolidProperties(solid); err != nil && !errors.Is(err, errClosed) {
					t.Errorf("SolidProperties: %v", err)
				}
				solid.BoundingBox()
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
		wg.Wait()
	}
	if k.OpenHandles() != 0 {
		t.Errorf("OpenHandles = %d, want 0", k.OpenHandles())
	}
}
