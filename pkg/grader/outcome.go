package grader

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/cadgrade/pkg/compare"
	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/chazu/cadgrade/pkg/kernel"
)

var (
	// ErrQueueFull is returned by Pool.Submit when no queue slot is free.
	ErrQueueFull = errors.New("grader: queue full")
	// ErrTimeout marks a job that did not finish within its timeout.
	ErrTimeout = errors.New("grader: timeout")
	// ErrModeMismatch marks a submission whose solid count contradicts the
	// resolved mode.
	ErrModeMismatch = errors.New("grader: mode mismatch")
	// ErrInvalidRequest marks a request that fails validation.
	ErrInvalidRequest = errors.New("grader: invalid request")

	errKernelPanic = errors.New("grader: kernel panic")
)

// Mode selects the comparator.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModePart     Mode = "part"
	ModeAssembly Mode = "assembly"
	ModeDrawing  Mode = "drawing"
)

// Request is one grading call.
type Request struct {
	SubmittedPath string  `json:"submittedPath" validate:"required"`
	ReferencePath string  `json:"referencePath" validate:"required"`
	Tolerance     float64 `json:"tolerance" validate:"gte=0,lt=1"`
	Mode          Mode    `json:"mode" validate:"omitempty,oneof=auto part assembly drawing"`
}

// FailureKind names the class of a failed comparison.
type FailureKind string

const (
	FailFileRead     FailureKind = "FileReadError"
	FailFormat       FailureKind = "FormatError"
	FailNoGeometry   FailureKind = "NoGeometryError"
	FailModeMismatch FailureKind = "ModeMismatch"
	FailTimeout      FailureKind = "Timeout"
	FailQueueFull    FailureKind = "QueueFull"
	FailKernel       FailureKind = "KernelError"
	FailInvalid      FailureKind = "InvalidRequest"
)

// Failure is the serializable form of an error. Success is always false.
type Failure struct {
	Success      bool        `json:"success"`
	Error        FailureKind `json:"error"`
	Message      string      `json:"message"`
	Retryable    bool        `json:"retryable"`
	ManualReview bool        `json:"manualReview"`
}

// Outcome holds exactly one of the comparison results or a failure.
type Outcome struct {
	Mode     Mode                              `json:"mode"`
	Part     *compare.ComparisonResult         `json:"part,omitempty"`
	Assembly *compare.AssemblyComparisonResult `json:"assembly,omitempty"`
	Drawing  *compare.DrawingComparisonResult  `json:"drawing,omitempty"`
	Failure  *Failure                          `json:"failure,omitempty"`
}

// Success reports whether the comparison ran and passed.
func (o Outcome) Success() bool {
	switch {
	case o.Part != nil:
		return o.Part.Success
	case o.Assembly != nil:
		return o.Assembly.Success
	case o.Drawing != nil:
		return o.Drawing.AllMatched()
	}
	return false
}

// Score returns the comparison score on a 0-100 scale. ok is false for
// failures.
func (o Outcome) Score() (score float64, ok bool) {
	switch {
	case o.Part != nil:
		return o.Part.GlobalScore, true
	case o.Assembly != nil:
		return o.Assembly.GlobalScore, true
	case o.Drawing != nil:
		return o.Drawing.Score, true
	}
	return 0, false
}

// label is the outcome label used in metrics.
func (o Outcome) label() string {
	if o.Failure != nil {
		return string(o.Failure.Error)
	}
	if o.Success() {
		return "pass"
	}
	return "fail"
}

// Fail converts err into a failure outcome for mode.
func Fail(mode Mode, err error) Outcome {
	if mode == "" {
		mode = ModeAuto
	}
	return Outcome{Mode: mode, Failure: classify(err)}
}

func classify(err error) *Failure {
	f := &Failure{Message: err.Error()}
	switch {
	case errors.Is(err, ErrQueueFull):
		f.Error, f.Retryable = FailQueueFull, true
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		f.Error, f.Retryable = FailTimeout, true
	case errors.Is(err, ErrModeMismatch):
		f.Error = FailModeMismatch
	case errors.Is(err, ErrInvalidRequest):
		f.Error = FailInvalid
	case errors.Is(err, invariant.ErrNoGeometry):
		f.Error, f.ManualReview = FailNoGeometry, true
	case errors.Is(err, kernel.ErrFileRead):
		f.Error = FailFileRead
	case errors.Is(err, kernel.ErrFormat):
		f.Error = FailFormat
	default:
		f.Error, f.ManualReview = FailKernel, true
	}
	return f
}

func panicError(v any) error {
	return fmt.Errorf("%w: %v", errKernelPanic, v)
}
