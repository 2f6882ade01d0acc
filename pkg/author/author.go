// Package author turns reference-model scripts into meshes: the script is
// evaluated into a scene graph, which is tessellated by a Modeler and
// written out as STL for grading.
package author

import (
	"fmt"
	"os"

	"github.com/chazu/cadgrade/pkg/engine"
	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/chazu/cadgrade/pkg/kernel/meshkernel"
	"github.com/chazu/cadgrade/pkg/kernel/sdfx"
	"github.com/chazu/cadgrade/pkg/tessellate"
	"go.uber.org/zap"
)

// Problem is a script error with its position when known.
type Problem struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// Part summarizes one authored component.
type Part struct {
	Name      string `json:"name"`
	Triangles int    `json:"triangles"`
}

// Result is the outcome of building a script. Errors is empty on success.
type Result struct {
	Meshes []*kernel.Mesh `json:"-"`
	Parts  []Part         `json:"parts"`
	Errors []Problem      `json:"errors"`
}

// OK reports whether the build produced meshes without errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Author owns an engine and a modeler.
type Author struct {
	engine  *engine.Engine
	modeler kernel.Modeler
	logger  *zap.Logger
}

// Option configures an Author.
type Option func(*Author)

// WithModeler replaces the default sdfx modeler.
func WithModeler(m kernel.Modeler) Option {
	return func(a *Author) { a.modeler = m }
}

// WithMeshCells sets the sdfx marching cubes resolution. It has no effect
// together with WithModeler.
func WithMeshCells(n int) Option {
	return func(a *Author) {
		if _, ok := a.modeler.(*sdfx.Modeler); ok {
			a.modeler = sdfx.New(sdfx.WithMeshCells(n))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Author) { a.logger = l }
}

// New returns an Author. The default modeler is sdfx.
func New(opts ...Option) *Author {
	a := &Author{
		engine:  engine.NewEngine(),
		modeler: sdfx.New(),
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Build evaluates source and tessellates every component.
func (a *Author) Build(source string) Result {
	result := Result{
		Parts:  []Part{},
		Errors: []Problem{},
	}

	g, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.logger.Error("evaluate failed", zap.Error(err))
		result.Errors = append(result.Errors, Problem{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, Problem{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}
	if len(g.Components()) == 0 {
		result.Errors = append(result.Errors, Problem{Message: "script declares no component"})
		return result
	}

	meshes, err := tessellate.Tessellate(g, a.modeler)
	if err != nil {
		a.logger.Error("tessellate failed", zap.Error(err))
		result.Errors = append(result.Errors, Problem{Message: "tessellation failed: " + err.Error()})
		return result
	}

	result.Meshes = meshes
	for _, m := range meshes {
		result.Parts = append(result.Parts, Part{Name: m.Name, Triangles: m.TriangleCount()})
	}
	a.logger.Info("reference built", zap.Int("components", len(meshes)))
	return result
}

// SaveSTL writes the built meshes as one STL file. Each component stays a
// separate solid.
func (r Result) SaveSTL(path string) error {
	if !r.OK() {
		return fmt.Errorf("author: cannot save a failed build")
	}
	return meshkernel.SaveSTL(path, r.Meshes...)
}

// BuildFile reads a script, builds it and writes the STL to out.
func (a *Author) BuildFile(in, out string) (Result, error) {
	src, err := os.ReadFile(in)
	if err != nil {
		return Result{}, fmt.Errorf("author: read %s: %w", in, err)
	}
	res := a.Build(string(src))
	if !res.OK() {
		return res, fmt.Errorf("author: %s: %s", in, res.Errors[0].Message)
	}
	if err := res.SaveSTL(out); err != nil {
		return res, fmt.Errorf("author: write %s: %w", out, err)
	}
	return res, nil
}
