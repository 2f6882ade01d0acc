//go:build !manifold

// Package manifold implements kernel.Modeler on the Manifold library.
// Without the manifold build tag this stub is compiled and New fails.
package manifold

import (
	"errors"

	"github.com/chazu/cadgrade/pkg/kernel"
)

// ErrUnavailable is returned by New when built without -tags=manifold.
var ErrUnavailable = errors.New("manifold modeler not available: build with -tags=manifold")

// New returns ErrUnavailable.
func New() (kernel.Modeler, error) {
	return nil, ErrUnavailable
}
