package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/chazu/cadgrade/pkg/author"
	"github.com/chazu/cadgrade/pkg/compare"
	"github.com/chazu/cadgrade/pkg/engine"
	"github.com/chazu/cadgrade/pkg/grader"
	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/chazu/cadgrade/pkg/kernel/drafting"
	"github.com/chazu/cadgrade/pkg/kernel/manifold"
	"github.com/chazu/cadgrade/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (e *env) newGrader(m *metrics.Metrics) *grader.Grader {
	return grader.New(
		grader.WithLogger(e.logger),
		grader.WithMetrics(m),
		grader.WithStrict(e.cfg.Strict),
	)
}

func (e *env) newFolder() *grader.Folder {
	eng := engine.NewEngine()
	return grader.NewFolder(eng, e.cfg.Grading.Policy, e.cfg.Grading.PassMark)
}

func (e *env) compare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	var (
		submitted = fs.String("submitted", "", "Submitted model or drawing.")
		reference = fs.String("reference", "", "Reference model or drawing.")
		mode      = fs.String("mode", e.cfg.Mode, "auto|part|assembly|drawing.")
		tol       = fs.Float64("tol", e.cfg.Tolerance, "Relative tolerance.")
		questions = fs.String("questions", "", "Quiz questions JSON (optional).")
		answers   = fs.String("answers", "", "Quiz answers JSON (optional).")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *submitted == "" || *reference == "" {
		return fmt.Errorf("compare: -submitted and -reference are required")
	}

	quiz, err := e.loadQuiz(*questions, *answers)
	if err != nil {
		return err
	}

	g := e.newGrader(metrics.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()
	out := g.Compare(ctx, grader.Request{
		SubmittedPath: *submitted,
		ReferencePath: *reference,
		Tolerance:     *tol,
		Mode:          grader.Mode(*mode),
	})

	grade, err := e.newFolder().Fold(out, quiz)
	if err != nil {
		return err
	}
	return e.printJSON(grader.Report{Outcome: out, Grade: &grade})
}

func (e *env) loadQuiz(questionsPath, answersPath string) (grader.QuizResult, error) {
	if questionsPath == "" {
		return grader.QuizResult{}, nil
	}
	var qs []grader.Question
	if err := readJSON(questionsPath, &qs); err != nil {
		return grader.QuizResult{}, fmt.Errorf("questions: %w", err)
	}
	var ans grader.Answers
	if answersPath != "" {
		if err := readJSON(answersPath, &ans); err != nil {
			return grader.QuizResult{}, fmt.Errorf("answers: %w", err)
		}
	}
	return grader.QuizScore(qs, ans, e.cfg.Grading.QuizPoints), nil
}

func (e *env) batch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	var (
		reference  = fs.String("reference", "", "Reference model or drawing.")
		pattern    = fs.String("glob", "", "Submissions, as a doublestar pattern.")
		mode       = fs.String("mode", e.cfg.Mode, "auto|part|assembly|drawing.")
		tol        = fs.Float64("tol", e.cfg.Tolerance, "Relative tolerance.")
		metricsOut = fs.String("metrics-out", "", "Write Prometheus metrics to this textfile when done.")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *reference == "" || *pattern == "" {
		return fmt.Errorf("batch: -reference and -glob are required")
	}

	paths, err := doublestar.FilepathGlob(*pattern)
	if err != nil {
		return fmt.Errorf("batch: glob %q: %w", *pattern, err)
	}
	sort.Strings(paths)
	e.logger.Info("batch started", zap.Int("submissions", len(paths)), zap.String("reference", *reference))

	reg := prometheus.NewRegistry()
	pool := grader.NewPool(e.newGrader(metrics.New(reg)), grader.PoolConfig{
		Workers:   e.cfg.Workers,
		QueueSize: e.cfg.QueueSize,
		Timeout:   e.cfg.Timeout,
	})
	folder := e.newFolder()

	var (
		mu  sync.Mutex
		enc = json.NewEncoder(e.stdout)
	)
	// At most QueueSize jobs are in flight, so Submit never reports a full
	// queue here.
	var eg errgroup.Group
	eg.SetLimit(e.cfg.QueueSize)
	for _, path := range paths {
		eg.Go(func() error {
			res := pool.Grade(context.Background(), grader.Request{
				SubmittedPath: path,
				ReferencePath: *reference,
				Tolerance:     *tol,
				Mode:          grader.Mode(*mode),
			})
			grade, err := folder.Fold(res.Outcome, grader.QuizResult{})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return enc.Encode(grader.Report{JobID: res.JobID, Outcome: res.Outcome, Grade: &grade})
		})
	}
	err = eg.Wait()
	pool.Close()
	if err != nil {
		return err
	}

	if *metricsOut != "" {
		if err := prometheus.WriteToTextfile(*metricsOut, reg); err != nil {
			return fmt.Errorf("batch: metrics: %w", err)
		}
	}
	return nil
}

func (e *env) author(args []string) error {
	fs := flag.NewFlagSet("author", flag.ContinueOnError)
	var (
		in      = fs.String("in", "", "Reference-model script.")
		out     = fs.String("out", "", "STL output.")
		modeler = fs.String("modeler", e.cfg.Modeler, "sdfx|manifold.")
		cells   = fs.Int("cells", e.cfg.MeshCells, "Marching cubes resolution (sdfx only).")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("author: -in and -out are required")
	}

	opts := []author.Option{author.WithLogger(e.logger), author.WithMeshCells(*cells)}
	switch *modeler {
	case "sdfx":
	case "manifold":
		m, err := manifold.New()
		if err != nil {
			return err
		}
		opts = append(opts, author.WithModeler(m))
	default:
		return fmt.Errorf("author: unknown modeler: %s", *modeler)
	}

	res, err := author.New(opts...).BuildFile(*in, *out)
	if err != nil {
		if len(res.Errors) > 0 {
			_ = e.printJSON(res)
		}
		return err
	}
	return e.printJSON(res)
}

// analysis is the output of the analyze command.
type analysis struct {
	Path     string              `json:"path"`
	Counts   kernel.EntityCounts `json:"counts"`
	Entities int                 `json:"entities"`
}

func (e *env) analyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	in := fs.String("in", "", "DXF drawing.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("analyze: -in is required")
	}
	counts, ents, err := compare.Analyze(context.Background(), drafting.New(e.logger), *in)
	if err != nil {
		return err
	}
	return e.printJSON(analysis{Path: *in, Counts: counts, Entities: ents.Len()})
}

func (e *env) schema() error {
	raw, err := grader.Schema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, string(raw))
	return err
}
