package compare

import (
	"testing"

	"github.com/chazu/cadgrade/pkg/invariant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func component(volume float64, com [3]float64) invariant.PartInvariants {
	p := solid([3]float64{1, 1, 1}, volume, boxTopo, [3]float64{1, 1, 1})
	p.CenterOfMass = com
	return p
}

func TestCompareAssemblyIdentical(t *testing.T) {
	parts := []invariant.PartInvariants{
		component(10, [3]float64{0, 0, 0}),
		component(20, [3]float64{5, 0, 0}),
	}
	res := CompareAssembly(parts, parts, 1e-3)

	assert.Equal(t, 2, res.NumComponentsSubmitted)
	assert.Equal(t, 2, res.NumComponentsReference)
	assert.True(t, res.NumComponents.OK)
	require.Len(t, res.ComponentsMatch, 2)
	for i, m := range res.ComponentsMatch {
		assert.Equal(t, i, m.Index)
		assert.True(t, m.Passed())
		assert.Equal(t, 100.0, m.VolumeScore)
	}
	assert.Equal(t, 100.0, res.GlobalScore)
	assert.True(t, res.Success)
}

func TestCompareAssemblyCountMismatch(t *testing.T) {
	ref := []invariant.PartInvariants{
		component(10, [3]float64{0, 0, 0}),
		component(20, [3]float64{5, 0, 0}),
		component(30, [3]float64{9, 0, 0}),
	}
	sub := ref[:2]

	res := CompareAssembly(sub, ref, 1e-3)
	assert.False(t, res.NumComponents.OK)
	assert.Len(t, res.ComponentsMatch, 2, "unpaired reference components are not scored")
	assert.Equal(t, 100.0, res.GlobalScore)
	assert.False(t, res.Success, "count mismatch fails regardless of pair scores")
}

func TestCompareAssemblyPositional(t *testing.T) {
	a := component(10, [3]float64{0, 0, 0})
	b := component(20, [3]float64{5, 0, 0})
	ref := []invariant.PartInvariants{a, b}
	sub := []invariant.PartInvariants{b, a}

	res := CompareAssembly(sub, ref, 1e-3)
	assert.Equal(t, 0.0, res.GlobalScore, "swapped order is scored positionally")
	assert.False(t, res.Success)
	assert.Equal(t, 0.0, res.ComponentsMatch[0].VolumeScore)
	assert.Equal(t, 50.0, res.ComponentsMatch[1].VolumeScore)
	assert.Equal(t, [3]float64{5, 0, 0}, res.ComponentsMatch[0].CenterOfMassSub)
	assert.Equal(t, [3]float64{0, 0, 0}, res.ComponentsMatch[0].CenterOfMassRef)

	swap := func(_, _ []invariant.PartInvariants) [][2]int {
		return [][2]int{{0, 1}, {1, 0}}
	}
	res = CompareAssembly(sub, ref, 1e-3, WithPairing(swap))
	assert.Equal(t, 100.0, res.GlobalScore)
	assert.True(t, res.Success)
}

func TestCompareAssemblyPartialMatch(t *testing.T) {
	ref := []invariant.PartInvariants{
		component(10, [3]float64{0, 0, 0}),
		component(20, [3]float64{5, 0, 0}),
		component(30, [3]float64{9, 0, 0}),
	}
	sub := []invariant.PartInvariants{
		ref[0],
		ref[1],
		component(30, [3]float64{9.5, 0, 0}),
	}
	res := CompareAssembly(sub, ref, 1e-3)
	assert.False(t, res.ComponentsMatch[2].CenterOfMassOK)
	assert.True(t, res.ComponentsMatch[2].VolumeOK)
	assert.Equal(t, 66.7, res.GlobalScore)
	assert.False(t, res.Success)
}

func TestCompareAssemblyEmpty(t *testing.T) {
	res := CompareAssembly(nil, nil, 1e-3)
	assert.Zero(t, res.GlobalScore)
	assert.False(t, res.Success)
	assert.NotNil(t, res.ComponentsMatch)
}
