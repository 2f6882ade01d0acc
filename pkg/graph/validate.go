package graph

import (
	"fmt"
	"sort"
)

// ValidationSeverity indicates whether a validation finding blocks
// tessellation or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks tessellation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if graph-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// Validate runs all structural checks on the scene graph. An empty slice
// means the graph is valid. It never mutates the graph.
func Validate(g *SceneGraph) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateDAG(g)...)
	errs = append(errs, validateReferences(g)...)
	errs = append(errs, validateNames(g)...)
	errs = append(errs, validateRoots(g)...)
	errs = append(errs, validateNodes(g)...)
	return errs
}

// Errors filters findings down to the blocking ones.
func Errors(findings []ValidationError) []ValidationError {
	var errs []ValidationError
	for _, f := range findings {
		if f.Severity == SeverityError {
			errs = append(errs, f)
		}
	}
	return errs
}

// sortedIDs returns node IDs in a stable order so findings are reproducible.
func sortedIDs(g *SceneGraph) []NodeID {
	ids := make([]NodeID, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// validateDAG checks for cycles using DFS with 3-color marking.
// White (0) = unvisited, gray (1) = in current DFS path, black (2) = fully explored.
func validateDAG(g *SceneGraph) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int)
	var errs []ValidationError

	var visit func(id NodeID) bool // returns true if cycle found
	visit = func(id NodeID) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("cycle detected: node %s is part of a cycle", id.Short()),
				Severity: SeverityError,
			})
			return true
		}

		color[id] = gray
		node, ok := g.Nodes[id]
		if !ok {
			// Dangling reference; handled by validateReferences.
			color[id] = black
			return false
		}
		for _, childID := range node.Children {
			if visit(childID) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range sortedIDs(g) {
		if color[id] == white && visit(id) {
			break
		}
	}
	return errs
}

// validateReferences checks that every child ID points to an existing node.
func validateReferences(g *SceneGraph) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedIDs(g) {
		node := g.Nodes[id]
		for _, childID := range node.Children {
			if _, ok := g.Nodes[childID]; !ok {
				errs = append(errs, ValidationError{
					NodeID:   node.ID,
					Message:  fmt.Sprintf("child reference %s does not exist", childID.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateNames checks that no two nodes share a name.
func validateNames(g *SceneGraph) []ValidationError {
	var errs []ValidationError
	count := make(map[string]int)
	for _, node := range g.Nodes {
		if node.Name != "" {
			count[node.Name]++
		}
	}
	names := make([]string, 0, len(count))
	for name := range count {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if count[name] > 1 {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("duplicate name %q assigned to %d nodes", name, count[name]),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateRoots checks that roots exist and are components, and warns about
// nodes unreachable from any root.
func validateRoots(g *SceneGraph) []ValidationError {
	var errs []ValidationError

	reachable := make(map[NodeID]bool)
	var queue []NodeID
	for _, rid := range g.Roots {
		n, ok := g.Nodes[rid]
		if !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("root reference %s does not exist", rid.Short()),
				Severity: SeverityError,
			})
			continue
		}
		if n.Kind != NodeComponent {
			errs = append(errs, ValidationError{
				NodeID:   rid,
				Message:  fmt.Sprintf("root is %s, not component", n.Kind),
				Severity: SeverityError,
			})
		}
		if !reachable[rid] {
			reachable[rid] = true
			queue = append(queue, rid)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node := g.Nodes[current]
		if node == nil {
			continue
		}
		for _, childID := range node.Children {
			if !reachable[childID] {
				reachable[childID] = true
				queue = append(queue, childID)
			}
		}
	}

	for _, id := range sortedIDs(g) {
		if reachable[id] {
			continue
		}
		node := g.Nodes[id]
		name := node.Name
		if name == "" {
			name = id.Short()
		}
		errs = append(errs, ValidationError{
			NodeID:   id,
			Message:  fmt.Sprintf("node %q is not part of any component (orphan)", name),
			Severity: SeverityWarning,
		})
	}
	return errs
}

// validateNodes checks each node's payload and child count against its kind.
func validateNodes(g *SceneGraph) []ValidationError {
	var errs []ValidationError
	fail := func(n *Node, format string, args ...any) {
		errs = append(errs, ValidationError{
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	for _, id := range sortedIDs(g) {
		n := g.Nodes[id]
		switch n.Kind {
		case NodePrimitive:
			if len(n.Children) != 0 {
				fail(n, "primitive has %d children", len(n.Children))
			}
			switch d := n.Data.(type) {
			case BoxData:
				if d.Size.X <= 0 || d.Size.Y <= 0 || d.Size.Z <= 0 {
					fail(n, "box size %s must be positive", d.Size)
				}
			case CylinderData:
				if d.Height <= 0 || d.Radius <= 0 {
					fail(n, "cylinder height %g and radius %g must be positive", d.Height, d.Radius)
				}
			default:
				fail(n, "primitive has unexpected data %T", n.Data)
			}
		case NodeBoolean:
			if _, ok := n.Data.(BooleanData); !ok {
				fail(n, "boolean has unexpected data %T", n.Data)
			}
			if len(n.Children) < 2 {
				fail(n, "boolean needs at least 2 operands, got %d", len(n.Children))
			}
		case NodeTransform:
			if _, ok := n.Data.(TransformData); !ok {
				fail(n, "transform has unexpected data %T", n.Data)
			}
			if len(n.Children) != 1 {
				fail(n, "transform needs exactly 1 child, got %d", len(n.Children))
			}
		case NodeComponent:
			if n.Name == "" {
				fail(n, "component has no name")
			}
			if len(n.Children) != 1 {
				fail(n, "component needs exactly 1 body, got %d", len(n.Children))
			}
		default:
			fail(n, "unknown node kind %v", n.Kind)
		}
	}
	return errs
}
