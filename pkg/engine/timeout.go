package engine

import (
	"errors"
	"fmt"
	"time"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when an evaluation exceeds its time limit.
	ErrTimeout = errors.New("engine: evaluation timed out")

	errSuperseded = errors.New("engine: evaluation superseded by newer request")
)

// waitWithTimeout waits for a result from ch, but returns ErrTimeout if
// none arrives within timeout.
//
// On timeout, the goroutine may still be running; ch must be buffered so
// that its late send does not block forever.
func waitWithTimeout[T any](ch <-chan T, timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		var zero T
		return zero, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}
