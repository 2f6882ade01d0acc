package compare

import (
	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/samber/lo"
)

// assemblyPassMark is the global score an assembly needs to pass.
const assemblyPassMark = 80

// Pairing decides which submitted component is compared with which
// reference component. Each pair is {submittedIndex, referenceIndex}.
type Pairing func(sub, ref []invariant.PartInvariants) [][2]int

// PositionalPairing pairs components by enumeration order and leaves the
// tail of the longer list unpaired.
func PositionalPairing(sub, ref []invariant.PartInvariants) [][2]int {
	n := min(len(sub), len(ref))
	pairs := make([][2]int, n)
	for i := range pairs {
		pairs[i] = [2]int{i, i}
	}
	return pairs
}

// ComponentCount reports how many components each side holds.
type ComponentCount struct {
	Submitted int    `json:"submitted"`
	Reference int    `json:"reference"`
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
}

// ComponentMatch is the per-pair outcome of an assembly comparison.
type ComponentMatch struct {
	Index           int        `json:"index"`
	VolumeOK        bool       `json:"volumeOk"`
	VolumeScore     float64    `json:"volumeScore"`
	CenterOfMassOK  bool       `json:"centerOfMassOk"`
	CenterOfMassSub [3]float64 `json:"centerOfMassSub"`
	CenterOfMassRef [3]float64 `json:"centerOfMassRef"`
	TopologyMatch   bool       `json:"topologyMatch"`
}

// Passed reports whether every check of the pair passed.
func (m ComponentMatch) Passed() bool {
	return m.VolumeOK && m.CenterOfMassOK && m.TopologyMatch
}

// AssemblyComparisonResult is the outcome of an assembly comparison.
type AssemblyComparisonResult struct {
	NumComponentsSubmitted int              `json:"numComponentsSubmitted"`
	NumComponentsReference int              `json:"numComponentsReference"`
	NumComponents          ComponentCount   `json:"numComponents"`
	ComponentsMatch        []ComponentMatch `json:"componentsMatch"`
	GlobalScore            float64          `json:"globalScore"`
	Success                bool             `json:"success"`
	Tolerance              float64          `json:"tolerance"`
}

// AssemblyOption configures CompareAssembly.
type AssemblyOption func(*assemblyConfig)

type assemblyConfig struct {
	pairing Pairing
}

// WithPairing replaces the default positional pairing.
func WithPairing(p Pairing) AssemblyOption {
	return func(c *assemblyConfig) { c.pairing = p }
}

// CompareAssembly compares per-component invariants of two assemblies.
// Success requires a global score of at least 80 and equal component
// counts.
func CompareAssembly(sub, ref []invariant.PartInvariants, tol float64, opts ...AssemblyOption) AssemblyComparisonResult {
	cfg := assemblyConfig{pairing: PositionalPairing}
	for _, o := range opts {
		o(&cfg)
	}

	res := AssemblyComparisonResult{
		NumComponentsSubmitted: len(sub),
		NumComponentsReference: len(ref),
		Tolerance:              tol,
		ComponentsMatch:        []ComponentMatch{},
	}
	res.NumComponents = ComponentCount{
		Submitted: len(sub),
		Reference: len(ref),
		OK:        len(sub) == len(ref),
		Message:   "component count matches",
	}
	if !res.NumComponents.OK {
		res.NumComponents.Message = "component count differs"
	}

	for i, p := range cfg.pairing(sub, ref) {
		s, r := sub[p[0]], ref[p[1]]
		sv, rv := deref(s.Volume), deref(r.Volume)
		comOK := lo.EveryBy([]int{0, 1, 2}, func(axis int) bool {
			return Within(s.CenterOfMass[axis], r.CenterOfMass[axis], tol)
		})
		res.ComponentsMatch = append(res.ComponentsMatch, ComponentMatch{
			Index:           i,
			VolumeOK:        Within(sv, rv, tol),
			VolumeScore:     invariant.Round(Pct(sv, rv), 1),
			CenterOfMassOK:  comOK,
			CenterOfMassSub: s.CenterOfMass,
			CenterOfMassRef: r.CenterOfMass,
			TopologyMatch:   s.Topology == r.Topology,
		})
	}

	nOK := lo.CountBy(res.ComponentsMatch, ComponentMatch.Passed)
	res.GlobalScore = invariant.Round(100*float64(nOK)/float64(max(len(res.ComponentsMatch), 1)), 1)
	res.Success = res.GlobalScore >= assemblyPassMark && res.NumComponents.OK
	return res
}
