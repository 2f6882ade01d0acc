// Package grader is the orchestration boundary: it resolves the grading
// mode, opens and releases kernel handles, runs the matching comparator and
// turns every error into a serializable outcome.
package grader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/cadgrade/pkg/compare"
	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/chazu/cadgrade/pkg/kernel/drafting"
	"github.com/chazu/cadgrade/pkg/kernel/meshkernel"
	"github.com/chazu/cadgrade/pkg/metrics"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTolerance applies when a request leaves Tolerance at zero.
const DefaultTolerance = 1e-3

var validate = validator.New(validator.WithRequiredStructEnabled())

type jobIDKey struct{}

// WithJobID tags ctx with a job id that appears in grader logs.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

func jobID(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}

// Grader compares submissions against references.
type Grader struct {
	shapes   kernel.ShapeKernel
	drawings kernel.DrawingKernel
	logger   *zap.Logger
	metrics  *metrics.Metrics
	strict   bool
}

// Option configures a Grader.
type Option func(*Grader)

// WithShapeKernel replaces the default STL/3MF kernel.
func WithShapeKernel(k kernel.ShapeKernel) Option {
	return func(g *Grader) { g.shapes = k }
}

// WithDrawingKernel replaces the default DXF kernel.
func WithDrawingKernel(k kernel.DrawingKernel) Option {
	return func(g *Grader) { g.drawings = k }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Grader) { g.logger = l }
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Grader) { g.metrics = m }
}

// WithStrict turns the part/assembly mismatch check on or off.
func WithStrict(strict bool) Option {
	return func(g *Grader) { g.strict = strict }
}

// New returns a Grader. Strict mode is on by default.
func New(opts ...Option) *Grader {
	g := &Grader{strict: true}
	for _, o := range opts {
		o(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.metrics == nil {
		g.metrics = metrics.NewNop()
	}
	if g.shapes == nil {
		g.shapes = meshkernel.New()
	}
	if g.drawings == nil {
		g.drawings = drafting.New(g.logger)
	}
	return g
}

// ConcurrentSafe reports whether Compare may run on several goroutines.
func (g *Grader) ConcurrentSafe() bool {
	return g.shapes.Capabilities().ConcurrentSafe
}

// Compare grades one request. It never returns an error: failures are
// reported in the outcome.
func (g *Grader) Compare(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	if req.Tolerance == 0 {
		req.Tolerance = DefaultTolerance
	}
	if req.Mode == "" {
		req.Mode = ModeAuto
	}
	mode := req.Mode

	log := g.logger.With(
		zap.String("job_id", jobID(ctx)),
		zap.String("submitted", req.SubmittedPath),
		zap.String("reference", req.ReferencePath),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("kernel panic", zap.Any("panic", r))
			out = Fail(mode, panicError(r))
		}
		g.observe(log, out, time.Since(start))
	}()

	if err := validate.Struct(req); err != nil {
		return Fail(mode, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	if mode == ModeDrawing || (mode == ModeAuto && isDrawing(req.SubmittedPath) && isDrawing(req.ReferencePath)) {
		mode = ModeDrawing
		res, err := g.compareDrawing(ctx, req)
		if err != nil {
			return Fail(mode, err)
		}
		return Outcome{Mode: mode, Drawing: &res}
	}

	sub, ref, err := g.loadShapes(ctx, req.SubmittedPath, req.ReferencePath)
	if err != nil {
		return Fail(mode, err)
	}
	defer sub.Close()
	defer ref.Close()

	mode = g.resolve(mode, ref)
	if err := g.checkStrict(mode, sub); err != nil {
		return Fail(mode, err)
	}
	mode = g.promote(mode, sub, ref)

	switch mode {
	case ModeAssembly:
		res, err := g.compareAssembly(ctx, sub, ref, req.Tolerance)
		if err != nil {
			return Fail(mode, err)
		}
		return Outcome{Mode: mode, Assembly: &res}
	default:
		res, err := g.comparePart(ctx, sub, ref, req.Tolerance)
		if err != nil {
			return Fail(mode, err)
		}
		return Outcome{Mode: mode, Part: &res}
	}
}

func isDrawing(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".dxf")
}

// resolve picks part or assembly for auto mode from the reference solid
// count.
func (g *Grader) resolve(mode Mode, ref kernel.Shape) Mode {
	if mode != ModeAuto {
		return mode
	}
	if len(g.shapes.Enumerate(ref, kernel.KindSolid)) > 1 {
		return ModeAssembly
	}
	return ModePart
}

func (g *Grader) checkStrict(mode Mode, sub kernel.Shape) error {
	if !g.strict {
		return nil
	}
	n := len(g.shapes.Enumerate(sub, kernel.KindSolid))
	switch {
	case mode == ModeAssembly && n <= 1:
		return fmt.Errorf("%w: assembly expected, submission holds %d solid(s)", ErrModeMismatch, n)
	case mode == ModePart && n > 1:
		return fmt.Errorf("%w: part expected, submission holds %d solids", ErrModeMismatch, n)
	}
	return nil
}

// promote sends a lenient part comparison down the assembly path when
// either side holds several solids, so the count mismatch is scored.
func (g *Grader) promote(mode Mode, sub, ref kernel.Shape) Mode {
	if g.strict || mode != ModePart {
		return mode
	}
	if len(g.shapes.Enumerate(sub, kernel.KindSolid)) > 1 || len(g.shapes.Enumerate(ref, kernel.KindSolid)) > 1 {
		return ModeAssembly
	}
	return mode
}

// loadShapes opens both models, concurrently when the kernel allows it.
// On error every handle that did open is closed before returning.
func (g *Grader) loadShapes(ctx context.Context, subPath, refPath string) (sub, ref kernel.Shape, err error) {
	eg, ctx := errgroup.WithContext(ctx)
	if !g.ConcurrentSafe() {
		eg.SetLimit(1)
	}
	eg.Go(recovered(func() (err error) {
		sub, err = g.shapes.ReadShape(ctx, subPath)
		return err
	}))
	eg.Go(recovered(func() (err error) {
		ref, err = g.shapes.ReadShape(ctx, refPath)
		return err
	}))
	if err := eg.Wait(); err != nil {
		closeAll(sub, ref)
		return nil, nil, err
	}
	return sub, ref, nil
}

// comparePart and compareAssembly check ctx between extractions so an
// abandoned comparison stops at the next step.
func (g *Grader) comparePart(ctx context.Context, sub, ref kernel.Shape, tol float64) (compare.ComparisonResult, error) {
	if err := ctx.Err(); err != nil {
		return compare.ComparisonResult{}, err
	}
	refInv, err := invariant.Extract(g.shapes, ref)
	if err != nil {
		return compare.ComparisonResult{}, fmt.Errorf("grader: reference: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return compare.ComparisonResult{}, err
	}
	subInv, err := invariant.Extract(g.shapes, sub)
	if err != nil {
		return compare.ComparisonResult{}, fmt.Errorf("grader: submission: %w", err)
	}
	return compare.ComparePart(subInv, refInv, tol), nil
}

func (g *Grader) compareAssembly(ctx context.Context, sub, ref kernel.Shape, tol float64) (compare.AssemblyComparisonResult, error) {
	if err := ctx.Err(); err != nil {
		return compare.AssemblyComparisonResult{}, err
	}
	refParts, err := invariant.ExtractComponents(g.shapes, ref)
	if err != nil {
		return compare.AssemblyComparisonResult{}, fmt.Errorf("grader: reference: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return compare.AssemblyComparisonResult{}, err
	}
	subParts, err := invariant.ExtractComponents(g.shapes, sub)
	if err != nil {
		return compare.AssemblyComparisonResult{}, fmt.Errorf("grader: submission: %w", err)
	}
	return compare.CompareAssembly(subParts, refParts, tol), nil
}

func (g *Grader) compareDrawing(ctx context.Context, req Request) (compare.DrawingComparisonResult, error) {
	var sub, ref kernel.Drawing
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(recovered(func() (err error) {
		sub, err = g.drawings.Open(ectx, req.SubmittedPath)
		return err
	}))
	eg.Go(recovered(func() (err error) {
		ref, err = g.drawings.Open(ectx, req.ReferencePath)
		return err
	}))
	err := eg.Wait()
	defer closeAll(sub, ref)
	if err != nil {
		return compare.DrawingComparisonResult{}, err
	}
	return compare.CompareDrawing(g.drawings, sub, ref, req.Tolerance), nil
}

func (g *Grader) observe(log *zap.Logger, out Outcome, d time.Duration) {
	score, scored := out.Score()
	g.metrics.ObserveComparison(string(out.Mode), out.label(), d, score, scored)

	fields := []zap.Field{
		zap.String("mode", string(out.Mode)),
		zap.Duration("duration", d),
	}
	if out.Failure != nil {
		log.Warn("comparison failed", append(fields,
			zap.String("error", string(out.Failure.Error)),
			zap.String("message", out.Failure.Message),
		)...)
		return
	}
	log.Info("comparison finished", append(fields,
		zap.Float64("score", score),
		zap.Bool("success", out.Success()),
	)...)
}

// recovered turns a panic inside fn into an error so it surfaces through
// the errgroup instead of crashing the process.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return fn()
	}
}

type closer interface {
	Close() error
}

func closeAll[T closer](handles ...T) {
	for _, h := range handles {
		if any(h) != nil {
			h.Close()
		}
	}
}
