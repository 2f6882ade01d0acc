package graph

import (
	"crypto/sha256"
	"encoding/hex"
)

// NodeID identifies a node within a scene graph.
type NodeID string

// ZeroID is the empty node ID.
const ZeroID NodeID = ""

// NewNodeID derives a stable ID from a node path such as "component/base"
// or "box/3".
func NewNodeID(path string) NodeID {
	sum := sha256.Sum256([]byte(path))
	return NodeID(hex.EncodeToString(sum[:]))
}

// Short returns an abbreviated form for messages.
func (id NodeID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsZero reports whether the ID is unset.
func (id NodeID) IsZero() bool { return id == ZeroID }

// NodeKind enumerates the types of nodes in the scene graph.
type NodeKind int

const (
	NodePrimitive NodeKind = iota // box, cylinder
	NodeBoolean                   // union, difference, intersection
	NodeTransform                 // translate, rotate
	NodeComponent                 // named top-level solid
)

func (k NodeKind) String() string {
	switch k {
	case NodePrimitive:
		return "primitive"
	case NodeBoolean:
		return "boolean"
	case NodeTransform:
		return "transform"
	case NodeComponent:
		return "component"
	default:
		return "unknown"
	}
}

// Node is the fundamental element of the scene graph.
type Node struct {
	ID       NodeID   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Children []NodeID `json:"children,omitempty"`
	Data     NodeData `json:"data"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}
