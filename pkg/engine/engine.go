// Package engine provides the Lisp evaluation engine for cadgrade. It wraps
// zygomys in a sandboxed environment and serves two purposes: evaluating
// reference authoring scripts into a scene graph, and evaluating grade
// policy formulas over named numeric inputs.
package engine

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/cadgrade/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// evaluation creates a fresh sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// evalResult is the internal type used to pass evaluation results through channels.
type evalResult struct {
	graph  *graph.SceneGraph
	errors []EvalError
	err    error
}

// Evaluate takes an authoring script and produces a new SceneGraph.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
// A call that finishes after a newer call has started is reported as
// superseded.
//
// Return semantics:
//   - On success: returns graph + nil errors + nil error
//   - On parse/eval failure: returns nil graph + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*graph.SceneGraph, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		g, evalErrs, err := e.evaluate(source)
		ch <- evalResult{graph: g, errors: evalErrs, err: err}
	}()

	res, err := waitWithTimeout(ch, e.timeout)
	if err != nil {
		return nil, nil, err
	}
	if !e.isCurrent(gen) {
		return nil, nil, errSuperseded
	}
	return res.graph, res.errors, res.err
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*graph.SceneGraph, []EvalError, error) {
	// Empty source is a valid program that produces an empty graph.
	if strings.TrimSpace(source) == "" {
		return graph.New(), nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	g := graph.New()
	registerBuiltins(env, g)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return g, nil, nil
}

// identPattern restricts policy variable names to plain identifiers.
var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// EvaluatePolicy evaluates a numeric formula with vars bound as globals and
// returns the value of its last expression. The clamp and round helpers are
// available to the formula. Unlike Evaluate, concurrent policy evaluations
// never supersede each other.
func (e *Engine) EvaluatePolicy(policy string, vars map[string]float64) (float64, error) {
	if strings.TrimSpace(policy) == "" {
		return 0, fmt.Errorf("engine: empty policy")
	}

	var prelude strings.Builder
	for name, v := range vars {
		if !identPattern.MatchString(name) {
			return 0, fmt.Errorf("engine: invalid policy variable %q", name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("engine: policy variable %s is not finite", name)
		}
		fmt.Fprintf(&prelude, "(def %s %s)\n", name, floatLiteral(v))
	}

	type policyResult struct {
		v   float64
		err error
	}
	ch := make(chan policyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- policyResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		v, err := evalPolicy(prelude.String() + preprocessSource(policy))
		ch <- policyResult{v: v, err: err}
	}()

	res, err := waitWithTimeout(ch, e.timeout)
	if err != nil {
		return 0, err
	}
	return res.v, res.err
}

func evalPolicy(source string) (float64, error) {
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerPolicyBuiltins(env)

	if err := env.LoadString(source); err != nil {
		return 0, fmt.Errorf("engine: policy: %w", parseZygomysError(err)[0])
	}
	out, err := env.Run()
	if err != nil {
		return 0, fmt.Errorf("engine: policy: %w", parseZygomysError(err)[0])
	}
	v, err := toFloat64(out)
	if err != nil {
		return 0, fmt.Errorf("engine: policy result: %w", err)
	}
	return v, nil
}

// floatLiteral formats v so that zygomys reads it back as a float.
func floatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}
	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
