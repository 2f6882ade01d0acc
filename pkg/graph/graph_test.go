package graph

import "testing"

// plate builds: component "plate" = difference(box 10x10x2, translate(cylinder)).
func plate(g *SceneGraph) NodeID {
	box := &Node{ID: g.NextID(NodePrimitive), Kind: NodePrimitive, Data: BoxData{Size: Vec3{10, 10, 2}}}
	cyl := &Node{ID: g.NextID(NodePrimitive), Kind: NodePrimitive, Data: CylinderData{Height: 4, Radius: 1}}
	at := Vec3{5, 5, 1}
	move := &Node{ID: g.NextID(NodeTransform), Kind: NodeTransform, Children: []NodeID{cyl.ID}, Data: TransformData{Translation: &at}}
	diff := &Node{ID: g.NextID(NodeBoolean), Kind: NodeBoolean, Children: []NodeID{box.ID, move.ID}, Data: BooleanData{Op: OpDifference}}
	comp := &Node{ID: NewNodeID("component/plate"), Kind: NodeComponent, Name: "plate", Children: []NodeID{diff.ID}, Data: ComponentData{}}
	for _, n := range []*Node{box, cyl, move, diff, comp} {
		g.AddNode(n)
	}
	g.AddRoot(comp.ID)
	return comp.ID
}

func TestNewSceneGraph(t *testing.T) {
	g := New()
	if g.Nodes == nil {
		t.Fatal("Nodes map should be initialized")
	}
	if g.NameIndex == nil {
		t.Fatal("NameIndex map should be initialized")
	}
	if g.NodeCount() != 0 {
		t.Errorf("empty graph should have 0 nodes, got %d", g.NodeCount())
	}
}

func TestAddNodeAndLookup(t *testing.T) {
	g := New()
	id := plate(g)

	if g.NodeCount() != 5 {
		t.Errorf("node count = %d, want 5", g.NodeCount())
	}
	found := g.Lookup("plate")
	if found == nil || found.ID != id {
		t.Fatal("Lookup('plate') returned the wrong node")
	}
	if g.Lookup("nonexistent") != nil {
		t.Error("Lookup should return nil for missing name")
	}
	comps := g.Components()
	if len(comps) != 1 || comps[0].Name != "plate" {
		t.Errorf("components = %v, want [plate]", comps)
	}
	body := g.Children(found)
	if len(body) != 1 || body[0].Kind != NodeBoolean {
		t.Fatalf("component body = %v, want one boolean", body)
	}
}

func TestNextIDUnique(t *testing.T) {
	g := New()
	seen := make(map[NodeID]bool)
	for i := 0; i < 100; i++ {
		id := g.NextID(NodePrimitive)
		if seen[id] {
			t.Fatalf("duplicate id %s at %d", id.Short(), i)
		}
		seen[id] = true
	}
	if NewNodeID("a") != NewNodeID("a") {
		t.Error("NewNodeID should be deterministic")
	}
	if len(NewNodeID("a").Short()) != 8 {
		t.Error("Short should abbreviate to 8 characters")
	}
}

func TestNodeKindString(t *testing.T) {
	tests := []struct {
		kind NodeKind
		want string
	}{
		{NodePrimitive, "primitive"},
		{NodeBoolean, "boolean"},
		{NodeTransform, "transform"},
		{NodeComponent, "component"},
		{NodeKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("NodeKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
	if OpDifference.String() != "difference" {
		t.Errorf("OpDifference.String() = %q", OpDifference.String())
	}
}
