package graph

import "fmt"

// SceneGraph is the data structure produced by evaluating an authoring
// script. It is never mutated after evaluation returns.
type SceneGraph struct {
	Nodes     map[NodeID]*Node  `json:"nodes"`
	Roots     []NodeID          `json:"roots"`
	NameIndex map[string]NodeID `json:"name_index"`

	seq int
}

// New creates an empty SceneGraph.
func New() *SceneGraph {
	return &SceneGraph{
		Nodes:     make(map[NodeID]*Node),
		NameIndex: make(map[string]NodeID),
	}
}

// NextID returns a fresh ID for an anonymous node of the given kind.
func (g *SceneGraph) NextID(kind NodeKind) NodeID {
	g.seq++
	return NewNodeID(fmt.Sprintf("%s/%d", kind, g.seq))
}

// AddNode adds a node to the graph. It does not check for duplicates.
func (g *SceneGraph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
	if n.Name != "" {
		g.NameIndex[n.Name] = n.ID
	}
}

// AddRoot registers a node ID as a root of the graph.
func (g *SceneGraph) AddRoot(id NodeID) {
	g.Roots = append(g.Roots, id)
}

// Lookup returns the node with the given user-assigned name, or nil.
func (g *SceneGraph) Lookup(name string) *Node {
	id, ok := g.NameIndex[name]
	if !ok {
		return nil
	}
	return g.Nodes[id]
}

// Get returns the node with the given ID, or nil.
func (g *SceneGraph) Get(id NodeID) *Node {
	return g.Nodes[id]
}

// Components returns the root nodes in declaration order.
func (g *SceneGraph) Components() []*Node {
	comps := make([]*Node, 0, len(g.Roots))
	for _, id := range g.Roots {
		if n := g.Nodes[id]; n != nil {
			comps = append(comps, n)
		}
	}
	return comps
}

// Children returns the child nodes of the given node.
func (g *SceneGraph) Children(n *Node) []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c := g.Nodes[cid]; c != nil {
			children = append(children, c)
		}
	}
	return children
}

// NodeCount returns the total number of nodes.
func (g *SceneGraph) NodeCount() int {
	return len(g.Nodes)
}
