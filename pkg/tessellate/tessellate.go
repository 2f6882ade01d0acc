// Package tessellate walks a scene graph and produces triangle meshes using
// a kernel.Modeler. One mesh is produced per component, in declaration
// order, named after the component.
package tessellate

import (
	"errors"
	"fmt"

	"github.com/chazu/cadgrade/pkg/graph"
	"github.com/chazu/cadgrade/pkg/kernel"
)

// ErrInvalidScene is returned when the scene graph fails validation.
var ErrInvalidScene = errors.New("tessellate: invalid scene")

// builder turns scene nodes into modeler solids. Shared subtrees are built
// once.
type builder struct {
	g     *graph.SceneGraph
	m     kernel.Modeler
	built map[graph.NodeID]kernel.Solid
}

// Tessellate validates the scene and meshes every component. The
// tessellator is read-only and never mutates the graph.
func Tessellate(g *graph.SceneGraph, m kernel.Modeler) ([]*kernel.Mesh, error) {
	if g == nil {
		return nil, nil
	}
	if errs := graph.Errors(graph.Validate(g)); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, errs[0])
	}

	b := &builder{g: g, m: m, built: make(map[graph.NodeID]kernel.Solid)}
	meshes := make([]*kernel.Mesh, 0, len(g.Roots))
	for _, comp := range g.Components() {
		solid, err := b.solid(comp)
		if err != nil {
			return nil, fmt.Errorf("tessellate: component %q: %w", comp.Name, err)
		}
		mesh, err := m.ToMesh(solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for component %q: %w", comp.Name, err)
		}
		mesh.Name = comp.Name
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// solid returns the solid a node evaluates to.
func (b *builder) solid(n *graph.Node) (kernel.Solid, error) {
	if s, ok := b.built[n.ID]; ok {
		return s, nil
	}

	var (
		s   kernel.Solid
		err error
	)
	switch n.Kind {
	case graph.NodePrimitive:
		s, err = b.primitive(n)
	case graph.NodeBoolean:
		s, err = b.boolean(n)
	case graph.NodeTransform:
		s, err = b.transform(n)
	case graph.NodeComponent:
		s, err = b.only(n)
	default:
		err = fmt.Errorf("unknown node kind: %v", n.Kind)
	}
	if err != nil {
		return nil, err
	}
	b.built[n.ID] = s
	return s, nil
}

func (b *builder) primitive(n *graph.Node) (kernel.Solid, error) {
	switch d := n.Data.(type) {
	case graph.BoxData:
		return b.m.Box(d.Size.X, d.Size.Y, d.Size.Z), nil
	case graph.CylinderData:
		return b.m.Cylinder(d.Height, d.Radius, d.Segments), nil
	}
	return nil, fmt.Errorf("primitive node %s has unsupported data type %T", n.ID.Short(), n.Data)
}

// boolean folds the operands left to right.
func (b *builder) boolean(n *graph.Node) (kernel.Solid, error) {
	d, ok := n.Data.(graph.BooleanData)
	if !ok {
		return nil, fmt.Errorf("boolean node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	children := b.g.Children(n)
	acc, err := b.solid(children[0])
	if err != nil {
		return nil, err
	}
	for _, c := range children[1:] {
		next, err := b.solid(c)
		if err != nil {
			return nil, err
		}
		switch d.Op {
		case graph.OpUnion:
			acc = b.m.Union(acc, next)
		case graph.OpDifference:
			acc = b.m.Difference(acc, next)
		case graph.OpIntersection:
			acc = b.m.Intersection(acc, next)
		default:
			return nil, fmt.Errorf("boolean node %s has unknown op %v", n.ID.Short(), d.Op)
		}
	}
	return acc, nil
}

// transform applies rotation first, then translation.
func (b *builder) transform(n *graph.Node) (kernel.Solid, error) {
	td, ok := n.Data.(graph.TransformData)
	if !ok {
		return nil, fmt.Errorf("transform node %s has unexpected data type %T", n.ID.Short(), n.Data)
	}
	s, err := b.only(n)
	if err != nil {
		return nil, err
	}
	if r := td.Rotation; r != nil && !r.IsZero() {
		s = b.m.Rotate(s, r.X, r.Y, r.Z)
	}
	if t := td.Translation; t != nil && !t.IsZero() {
		s = b.m.Translate(s, t.X, t.Y, t.Z)
	}
	return s, nil
}

func (b *builder) only(n *graph.Node) (kernel.Solid, error) {
	children := b.g.Children(n)
	if len(children) != 1 {
		return nil, fmt.Errorf("%s node %s needs exactly 1 child, got %d", n.Kind, n.ID.Short(), len(children))
	}
	return b.solid(children[0])
}
