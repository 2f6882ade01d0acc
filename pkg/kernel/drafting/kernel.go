// Package drafting implements kernel.DrawingKernel for ASCII DXF files.
//
// Entity counts always come from a direct scan of the group-code stream, so
// types the structured reader does not model (DIMENSION, MTEXT) are still
// counted. Geometry is read with github.com/yofu/dxf; files it rejects fall
// back to geometry taken from the same scan.
package drafting

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/chazu/cadgrade/pkg/kernel"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"
	"go.uber.org/zap"
)

// Compile-time interface check.
var _ kernel.DrawingKernel = (*Kernel)(nil)

// Kernel opens DXF drawings and builds edges from their entities.
type Kernel struct {
	logger *zap.Logger
	open   atomic.Int64
}

// New returns a Kernel. A nil logger discards output.
func New(logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{logger: logger}
}

// OpenHandles returns the number of drawings opened and not yet closed.
func (k *Kernel) OpenHandles() int64 {
	return k.open.Load()
}

// Open parses the drawing at path.
func (k *Kernel) Open(ctx context.Context, path string) (kernel.Drawing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kernel.ErrFileRead, path, err)
	}
	raw, err := scanEntities(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kernel.ErrFormat, path, err)
	}

	ents, err := readStructured(path)
	if err != nil {
		k.logger.Debug("structured DXF read failed, using group scan",
			zap.String("path", path), zap.Error(err))
		ents = rawGeometry(raw)
	}

	k.open.Add(1)
	return &drawing{owner: k, counts: countEntities(raw), ents: ents}, nil
}

// readStructured reads geometry through the yofu DXF parser. The parser
// panics on some malformed input, which is reported as an error.
func readStructured(path string) (ents kernel.Entities, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dxf parser panic: %v", r)
		}
	}()

	d, err := dxf.Open(path)
	if err != nil {
		return ents, err
	}
	for _, e := range d.Entities() {
		switch v := e.(type) {
		case *entity.Line:
			ents.Lines = append(ents.Lines, kernel.Line{Start: vec3(v.Start), End: vec3(v.End)})
		case *entity.Circle:
			ents.Circles = append(ents.Circles, kernel.Circle{Center: vec3(v.Center), Radius: v.Radius})
		case *entity.Arc:
			a := kernel.Arc{Center: vec3(v.Center), Radius: v.Radius}
			if len(v.Angle) == 2 {
				a.StartAngle, a.EndAngle = v.Angle[0], v.Angle[1]
			}
			ents.Arcs = append(ents.Arcs, a)
		case *entity.LwPolyline:
			pl := kernel.Polyline{Closed: v.Closed}
			for _, p := range v.Vertices {
				q := vec3(p)
				q[2] = 0
				pl.Vertices = append(pl.Vertices, q)
			}
			ents.Polylines = append(ents.Polylines, pl)
		case *entity.Polyline:
			pl := kernel.Polyline{Closed: v.Flag&1 == 1}
			for _, vx := range v.Vertices {
				pl.Vertices = append(pl.Vertices, vec3(vx.Coord))
			}
			ents.Polylines = append(ents.Polylines, pl)
		}
	}
	return ents, nil
}

func vec3(p []float64) [3]float64 {
	var out [3]float64
	copy(out[:], p)
	return out
}

// drawing is the kernel.Drawing handle.
type drawing struct {
	owner  *Kernel
	counts kernel.EntityCounts
	ents   kernel.Entities

	once sync.Once
}

func (d *drawing) Counts() kernel.EntityCounts { return d.counts }
func (d *drawing) Entities() kernel.Entities   { return d.ents }

// Close releases the drawing. Closing twice is a no-op.
func (d *drawing) Close() error {
	d.once.Do(func() {
		d.owner.open.Add(-1)
	})
	return nil
}
