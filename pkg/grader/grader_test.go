package grader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/chazu/cadgrade/pkg/kernel/drafting"
	"github.com/chazu/cadgrade/pkg/kernel/meshkernel"
	"github.com/chazu/cadgrade/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x, y, z float64) *kernel.Mesh {
	return meshkernel.BoxMesh([3]float64{}, [3]float64{x, y, z})
}

func boxAt(min [3]float64, size float64) *kernel.Mesh {
	return meshkernel.BoxMesh(min, [3]float64{min[0] + size, min[1] + size, min[2] + size})
}

func writeSTL(t *testing.T, name string, meshes ...*kernel.Mesh) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, meshkernel.SaveSTL(path, meshes...))
	return path
}

func plate() kernel.Entities {
	return kernel.Entities{
		Lines: []kernel.Line{
			{Start: [3]float64{0, 0, 0}, End: [3]float64{100, 0, 0}},
			{Start: [3]float64{100, 0, 0}, End: [3]float64{100, 50, 0}},
			{Start: [3]float64{100, 50, 0}, End: [3]float64{0, 50, 0}},
			{Start: [3]float64{0, 50, 0}, End: [3]float64{0, 0, 0}},
		},
		Circles: []kernel.Circle{{Center: [3]float64{25, 25, 0}, Radius: 5}},
	}
}

func writeDXF(t *testing.T, name string, ents kernel.Entities) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, drafting.Save(path, ents))
	return path
}

func newTestGrader(opts ...Option) (*Grader, *meshkernel.Kernel) {
	k := meshkernel.New()
	return New(append([]Option{WithShapeKernel(k)}, opts...)...), k
}

func TestComparePartIdentical(t *testing.T) {
	g, k := newTestGrader()
	ref := writeSTL(t, "ref.stl", box(10, 20, 5))
	sub := writeSTL(t, "sub.stl", box(10, 20, 5))

	out := g.Compare(context.Background(), Request{SubmittedPath: sub, ReferencePath: ref})
	require.Nil(t, out.Failure)
	require.NotNil(t, out.Part)
	assert.Equal(t, ModePart, out.Mode)
	assert.Equal(t, 100.0, out.Part.GlobalScore)
	assert.Equal(t, DefaultTolerance, out.Part.Tolerance)
	assert.True(t, out.Success())
	assert.Zero(t, k.OpenHandles())
}

func TestComparePartScaled(t *testing.T) {
	g, _ := newTestGrader()
	ref := writeSTL(t, "ref.stl", box(10, 20, 5))
	sub := writeSTL(t, "sub.stl", box(10.05, 20, 5))

	out := g.Compare(context.Background(), Request{SubmittedPath: sub, ReferencePath: ref, Tolerance: 1e-3})
	require.NotNil(t, out.Part)
	assert.False(t, *out.Part.Dimensions.OK)
	assert.InDelta(t, 99.5, out.Part.Dimensions.Axes[0], 1e-6)
	assert.Less(t, out.Part.GlobalScore, 100.0)
	assert.True(t, out.Success())
}

func TestCompareAssemblyAuto(t *testing.T) {
	g, k := newTestGrader()
	parts := []*kernel.Mesh{boxAt([3]float64{0, 0, 0}, 2), boxAt([3]float64{10, 0, 0}, 3)}
	ref := writeSTL(t, "ref.stl", parts...)
	sub := writeSTL(t, "sub.stl", parts...)

	out := g.Compare(context.Background(), Request{SubmittedPath: sub, ReferencePath: ref, Mode: ModeAuto})
	require.Nil(t, out.Failure)
	require.NotNil(t, out.Assembly)
	assert.Equal(t, ModeAssembly, out.Mode)
	assert.Equal(t, 2, out.Assembly.NumComponentsReference)
	assert.Equal(t, 100.0, out.Assembly.GlobalScore)
	assert.True(t, out.Success())
	assert.Zero(t, k.OpenHandles())
}

func TestCompareStrictMode(t *testing.T) {
	single := writeSTL(t, "single.stl", box(2, 2, 2))
	pair := writeSTL(t, "pair.stl", boxAt([3]float64{0, 0, 0}, 2), boxAt([3]float64{10, 0, 0}, 2))

	tests := []struct {
		name     string
		strict   bool
		sub, ref string
		mode     Mode
		want     FailureKind
	}{
		{"assembly expected", true, single, pair, ModeAuto, FailModeMismatch},
		{"part expected", true, pair, single, ModeAuto, FailModeMismatch},
		{"explicit assembly", true, single, single, ModeAssembly, FailModeMismatch},
		{"lenient", false, single, pair, ModeAuto, ""},
		{"lenient, submission is an assembly", false, pair, single, ModeAuto, ""},
		{"lenient, explicit part", false, pair, single, ModePart, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, k := newTestGrader(WithStrict(tt.strict))
			out := g.Compare(context.Background(), Request{SubmittedPath: tt.sub, ReferencePath: tt.ref, Mode: tt.mode})
			if tt.want == "" {
				require.Nil(t, out.Failure)
				require.NotNil(t, out.Assembly)
				assert.Nil(t, out.Part)
				assert.Equal(t, ModeAssembly, out.Mode)
				assert.False(t, out.Assembly.NumComponents.OK)
				assert.False(t, out.Success())
			} else {
				require.NotNil(t, out.Failure)
				assert.Equal(t, tt.want, out.Failure.Error)
				assert.False(t, out.Failure.Success)
				assert.False(t, out.Failure.Retryable)
			}
			assert.Zero(t, k.OpenHandles())
		})
	}
}

func TestCompareFileErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeSTL(t, "good.stl", box(1, 1, 1))
	garbage := filepath.Join(dir, "garbage.stl")
	require.NoError(t, os.WriteFile(garbage, []byte("not a mesh"), 0o644))

	tests := []struct {
		name     string
		sub, ref string
		want     FailureKind
	}{
		{"missing submission", filepath.Join(dir, "missing.stl"), good, FailFileRead},
		{"missing reference", good, filepath.Join(dir, "missing.stl"), FailFileRead},
		{"garbage", garbage, good, FailFileRead},
		{"empty path", "", good, FailInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, k := newTestGrader()
			out := g.Compare(context.Background(), Request{SubmittedPath: tt.sub, ReferencePath: tt.ref})
			require.NotNil(t, out.Failure)
			assert.Equal(t, tt.want, out.Failure.Error)
			assert.NotEmpty(t, out.Failure.Message)
			assert.Nil(t, out.Part)
			assert.Zero(t, k.OpenHandles(), "the handle that did open is released")
		})
	}
}

func TestCompareDrawing(t *testing.T) {
	g, _ := newTestGrader()
	ref := writeDXF(t, "ref.dxf", plate())

	t.Run("self", func(t *testing.T) {
		out := g.Compare(context.Background(), Request{SubmittedPath: ref, ReferencePath: ref})
		require.Nil(t, out.Failure)
		require.NotNil(t, out.Drawing)
		assert.Equal(t, ModeDrawing, out.Mode)
		assert.Equal(t, 100.0, out.Drawing.Score)
		assert.True(t, out.Success())
	})

	t.Run("partial", func(t *testing.T) {
		ents := plate()
		ents.Circles = nil
		sub := writeDXF(t, "sub.dxf", ents)
		out := g.Compare(context.Background(), Request{SubmittedPath: sub, ReferencePath: ref})
		require.NotNil(t, out.Drawing)
		assert.Equal(t, 4, out.Drawing.MatchedShapes)
		assert.Equal(t, 80.0, out.Drawing.Score)
		assert.False(t, out.Success())
	})

	t.Run("garbage", func(t *testing.T) {
		sub := filepath.Join(t.TempDir(), "bad.dxf")
		require.NoError(t, os.WriteFile(sub, []byte("this is not a drawing\n"), 0o644))
		out := g.Compare(context.Background(), Request{SubmittedPath: sub, ReferencePath: ref})
		require.NotNil(t, out.Failure)
		assert.Equal(t, FailFormat, out.Failure.Error)
	})
}

// emptyKernel opens every path as a shape with no geometry.
type emptyKernel struct {
	*meshkernel.Kernel
}

func (k emptyKernel) ReadShape(ctx context.Context, path string) (kernel.Shape, error) {
	return k.FromMeshes(), nil
}

// panicKernel panics while reading.
type panicKernel struct {
	*meshkernel.Kernel
}

func (k panicKernel) ReadShape(ctx context.Context, path string) (kernel.Shape, error) {
	panic("kernel exploded")
}

func TestCompareKernelFailures(t *testing.T) {
	t.Run("no geometry", func(t *testing.T) {
		k := emptyKernel{meshkernel.New()}
		g := New(WithShapeKernel(k))
		out := g.Compare(context.Background(), Request{SubmittedPath: "a.stl", ReferencePath: "b.stl"})
		require.NotNil(t, out.Failure)
		assert.Equal(t, FailNoGeometry, out.Failure.Error)
		assert.True(t, out.Failure.ManualReview)
		assert.Zero(t, k.OpenHandles())
	})

	t.Run("panic", func(t *testing.T) {
		g := New(WithShapeKernel(panicKernel{meshkernel.New()}))
		out := g.Compare(context.Background(), Request{SubmittedPath: "a.stl", ReferencePath: "b.stl"})
		require.NotNil(t, out.Failure)
		assert.Equal(t, FailKernel, out.Failure.Error)
		assert.Contains(t, out.Failure.Message, "kernel exploded")
		assert.True(t, out.Failure.ManualReview)
	})
}

func TestCompareCanceled(t *testing.T) {
	g, k := newTestGrader()
	path := writeSTL(t, "a.stl", box(1, 1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := g.Compare(ctx, Request{SubmittedPath: path, ReferencePath: path})
	require.NotNil(t, out.Failure)
	assert.Equal(t, FailTimeout, out.Failure.Error)
	assert.True(t, out.Failure.Retryable)
	assert.Zero(t, k.OpenHandles())
}

func TestCompareMetrics(t *testing.T) {
	m := metrics.NewNop()
	g, _ := newTestGrader(WithMetrics(m))
	path := writeSTL(t, "a.stl", box(1, 1, 1))

	g.Compare(context.Background(), Request{SubmittedPath: path, ReferencePath: path})
	g.Compare(context.Background(), Request{SubmittedPath: path, ReferencePath: filepath.Join(t.TempDir(), "x.stl")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComparisonsTotal.WithLabelValues("part", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ComparisonsTotal.WithLabelValues("auto", string(FailFileRead))))
}
