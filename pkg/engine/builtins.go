package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/cadgrade/pkg/graph"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: wall-thickness -> wall_thickness
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNodeRef wraps a graph.NodeID so it can be passed between builtins.
type sexpNodeRef struct {
	id   graph.NodeID
	kind graph.NodeKind
	name string // human-readable name for error messages
}

func (n *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	if n.name != "" {
		return fmt.Sprintf("(%s %q)", n.kind, n.name)
	}
	return fmt.Sprintf("(%s %s)", n.kind, n.id.Short())
}
func (n *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a graph.Vec3.
type sexpVec3 struct {
	vec graph.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toNodeRef extracts a node reference.
func toNodeRef(s zygo.Sexp) (*sexpNodeRef, error) {
	if ref, ok := s.(*sexpNodeRef); ok {
		return ref, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Vec3 from a sexpVec3.
func toVec3(s zygo.Sexp) (graph.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return graph.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// positiveKW reads a required positive number from a keyword argument.
func positiveKW(pa kwArgs, fn, key string) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing :%s", fn, key)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, key, err)
	}
	if !(f > 0) {
		return 0, fmt.Errorf("%s: %s must be positive, got %g", fn, key, f)
	}
	return f, nil
}

// vectorArg reads a vector either from :key (vec3 ...) or from three
// positional numbers after the first positional argument.
func vectorArg(pa kwArgs, fn, key string) (graph.Vec3, error) {
	if v, ok := pa.kw[key]; ok {
		vec, err := toVec3(v)
		if err != nil {
			return graph.Vec3{}, fmt.Errorf("%s: %s: %w", fn, key, err)
		}
		return vec, nil
	}
	rest := pa.positional[1:]
	if len(rest) == 1 {
		if vec, err := toVec3(rest[0]); err == nil {
			return vec, nil
		}
	}
	if len(rest) != 3 {
		return graph.Vec3{}, fmt.Errorf("%s: expected :%s (vec3 x y z) or three numbers", fn, key)
	}
	var xyz [3]float64
	for i, s := range rest {
		f, err := toFloat64(s)
		if err != nil {
			return graph.Vec3{}, fmt.Errorf("%s: component %d: %w", fn, i, err)
		}
		xyz[i] = f
	}
	return graph.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// ---------------------------------------------------------------------------
// Authoring builtins
// ---------------------------------------------------------------------------

// registerBuiltins installs the reference authoring builtins into a zygomys
// environment. The builtins populate g during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, g *graph.SceneGraph) {
	add := func(kind graph.NodeKind, data graph.NodeData, children ...graph.NodeID) *sexpNodeRef {
		n := &graph.Node{ID: g.NextID(kind), Kind: kind, Children: children, Data: data}
		g.AddNode(n)
		return &sexpNodeRef{id: n.ID, kind: kind}
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: graph.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box 100 50 20) or (box :size (vec3 100 50 20))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var size graph.Vec3
		if v, ok := pa.kw["size"]; ok {
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
			}
			size = vec
		} else {
			if len(pa.positional) != 3 {
				return zygo.SexpNull, fmt.Errorf("box requires 3 dimensions or :size, got %d arguments", len(pa.positional))
			}
			dims := make([]float64, 3)
			for i, a := range pa.positional {
				f, err := toFloat64(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("box: dimension %d: %w", i, err)
				}
				dims[i] = f
			}
			size = graph.Vec3{X: dims[0], Y: dims[1], Z: dims[2]}
		}
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return zygo.SexpNull, fmt.Errorf("box: size %s must be positive", size)
		}
		return add(graph.NodePrimitive, graph.BoxData{Size: size}), nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 40 :radius 5 :segments 32)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, err := positiveKW(pa, "cylinder", "height")
		if err != nil {
			return zygo.SexpNull, err
		}
		r, err := positiveKW(pa, "cylinder", "radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		cd := graph.CylinderData{Height: h, Radius: r}
		if v, ok := pa.kw["segments"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cylinder: segments: %w", err)
			}
			cd.Segments = int(f)
		}
		return add(graph.NodePrimitive, cd), nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...), (difference a b ...), (intersection a b ...)
	// -----------------------------------------------------------------------
	for _, op := range []graph.BoolOp{graph.OpUnion, graph.OpDifference, graph.OpIntersection} {
		env.AddFunction(op.String(), func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least 2 solids, got %d", name, len(args))
			}
			children := make([]graph.NodeID, len(args))
			for i, a := range args {
				ref, err := toNodeRef(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", name, i, err)
				}
				children[i] = ref.id
			}
			return add(graph.NodeBoolean, graph.BooleanData{Op: op}, children...), nil
		})
	}

	// -----------------------------------------------------------------------
	// (translate solid :by (vec3 10 0 0)) or (translate solid 10 0 0)
	// (rotate solid :by (vec3 0 0 90))    or (rotate solid 0 0 90)
	// -----------------------------------------------------------------------
	transform := func(fn string, build func(v graph.Vec3) graph.TransformData) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(args)
			if len(pa.positional) < 1 {
				return zygo.SexpNull, fmt.Errorf("%s requires a solid as first argument", fn)
			}
			ref, err := toNodeRef(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			vec, err := vectorArg(pa, fn, "by")
			if err != nil {
				return zygo.SexpNull, err
			}
			return add(graph.NodeTransform, build(vec), ref.id), nil
		})
	}
	transform("translate", func(v graph.Vec3) graph.TransformData { return graph.TransformData{Translation: &v} })
	transform("rotate", func(v graph.Vec3) graph.TransformData { return graph.TransformData{Rotation: &v} })

	// -----------------------------------------------------------------------
	// (component "bracket" solid)
	// -----------------------------------------------------------------------
	env.AddFunction("component", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("component requires a name and a solid")
		}
		compName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("component: name: %w", err)
		}
		if compName == "" {
			return zygo.SexpNull, fmt.Errorf("component: name must not be empty")
		}
		if g.Lookup(compName) != nil {
			return zygo.SexpNull, fmt.Errorf("component: duplicate name %q", compName)
		}
		body, err := toNodeRef(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("component %q: %w", compName, err)
		}

		id := graph.NewNodeID("component/" + compName)
		g.AddNode(&graph.Node{
			ID:       id,
			Kind:     graph.NodeComponent,
			Name:     compName,
			Children: []graph.NodeID{body.id},
			Data:     graph.ComponentData{},
		})
		g.AddRoot(id)
		return &sexpNodeRef{id: id, kind: graph.NodeComponent, name: compName}, nil
	})
}

// ---------------------------------------------------------------------------
// Policy builtins
// ---------------------------------------------------------------------------

// registerPolicyBuiltins installs the numeric helpers available to grade
// policies.
func registerPolicyBuiltins(env *zygo.Zlisp) {
	// (clamp x lo hi)
	env.AddFunction("clamp", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("clamp requires 3 arguments, got %d", len(args))
		}
		var v [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("clamp: argument %d: %w", i, err)
			}
			v[i] = f
		}
		if v[1] > v[2] {
			return zygo.SexpNull, fmt.Errorf("clamp: lower bound %g above upper bound %g", v[1], v[2])
		}
		return &zygo.SexpFloat{Val: math.Min(math.Max(v[0], v[1]), v[2])}, nil
	})

	// (round x decimals)
	env.AddFunction("round", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("round requires 2 arguments, got %d", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("round: %w", err)
		}
		d, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("round: decimals: %w", err)
		}
		p := math.Pow(10, math.Trunc(d))
		return &zygo.SexpFloat{Val: math.Round(x*p) / p}, nil
	})
}
