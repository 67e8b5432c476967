package LR2D

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/lrspline/utils"
)

func assertSameFunction(t *testing.T, b *BasisFunction, parts []*stagedFunction) {
	for _, u := range utils.LinSpace(0.05, 2.95, 11) {
		for _, v := range utils.LinSpace(0.05, 2.95, 7) {
			var sum float64
			for _, sf := range parts {
				sum += sf.b.Evaluate(u, v)
			}
			assert.InDeltaf(t, b.Evaluate(u, v), sum, 1.e-14, "(%g,%g)", u, v)
		}
	}
}

func TestSplitOnce(t *testing.T) {
	b := quadraticBump(t)
	b.ID = 7
	m := b.Mesh()
	ix, isNew, err := m.InsertLine(XFixed, 1.5)
	require.NoError(t, err)
	require.True(t, isNew)
	assert.Equal(t, 2, ix)
	b.shiftIndices(XFixed, ix)
	assert.Equal(t, utils.Index{0, 1, 3, 4}, b.KvecU)

	// a line without multiplicity does not cut anything
	_, _, split := needsSplit(m, b)
	assert.False(t, split)
	require.NoError(t, m.SetMult(XFixed, ix, 0, 3, 1))
	d, at, split := needsSplit(m, b)
	require.True(t, split)
	assert.Equal(t, XFixed, d)
	assert.Equal(t, ix, at)

	c1, c2 := splitOnce(newStaged(b), XFixed, ix)
	assert.Equal(t, utils.Index{0, 1, 2, 3}, c1.b.KvecU)
	assert.Equal(t, utils.Index{1, 2, 3, 4}, c2.b.KvecU)
	assert.Equal(t, b.KvecV, c1.b.KvecV)
	for _, c := range []*stagedFunction{c1, c2} {
		assert.InDelta(t, 0.75, c.b.Gamma, 1.e-15)
		assert.InDeltaSlice(t, []float64{0.75, 0.75, 0.75}, c.b.CoefTimesGamma, 1.e-15)
		assert.InDelta(t, 0.75, c.from[7], 1.e-15)
		assert.Equal(t, BasisID(0), c.b.ID)
		_, _, split = needsSplit(m, c.b)
		assert.False(t, split)
	}
	// the parent is untouched
	assert.Equal(t, 1., b.Gamma)
	assertSameFunction(t, b, []*stagedFunction{c1, c2})
}

func TestNeedsSplitPartialLine(t *testing.T) {
	b := quadraticBump(t)
	m := b.Mesh()
	ix, _, err := m.InsertLine(YFixed, 1.5)
	require.NoError(t, err)
	b.shiftIndices(YFixed, ix)
	// the segment stops short of the support
	require.NoError(t, m.SetMult(YFixed, ix, 0, 2, 1))
	_, _, split := needsSplit(m, b)
	assert.False(t, split)
	require.NoError(t, m.SetMult(YFixed, ix, 0, 3, 1))
	d, _, split := needsSplit(m, b)
	assert.True(t, split)
	assert.Equal(t, YFixed, d)
}

func TestIterativelySplit(t *testing.T) {
	m := newTestMesh(t, []float64{0, 1, 1.5, 2, 2.5, 3}, []float64{0, 1, 2, 3})
	b, err := NewBasisFunction(m, utils.Index{0, 1, 3, 5}, utils.Index{0, 1, 2, 3}, []float64{2}, 1)
	require.NoError(t, err)
	b.ID = 3

	items := iterativelySplit(m, []*stagedFunction{newStaged(b)})
	require.Len(t, items, 3)
	var (
		gammas = make(map[string]float64)
		total  float64
	)
	for _, sf := range items {
		gammas[sf.b.knotKey()] = sf.b.Gamma
		total += sf.from[3]
		assert.InDelta(t, 2*sf.b.Gamma, sf.b.CoefTimesGamma[0], 1.e-15)
	}
	assert.InDelta(t, 0.75, gammas["[0 1 1.5 2]|[0 1 2 3]"], 1.e-15)
	assert.InDelta(t, 0.75, gammas["[1 1.5 2 2.5]|[0 1 2 3]"], 1.e-15)
	assert.InDelta(t, 0.25, gammas["[1.5 2 2.5 3]|[0 1 2 3]"], 1.e-15)
	assert.InDelta(t, 1.75, total, 1.e-15)
	assertSameFunction(t, b, items)

	// nothing to do on a function that holds every line
	c, err := NewBasisFunction(m, utils.Index{0, 1, 2, 3}, utils.Index{0, 1, 2, 3}, []float64{1}, 1)
	require.NoError(t, err)
	items = iterativelySplit(m, []*stagedFunction{newStaged(c)})
	require.Len(t, items, 1)
	assert.Same(t, c, items[0].b)
}

func TestStagedSetMerge(t *testing.T) {
	var (
		m  = newTestMesh(t, []float64{0, 1, 2, 3}, []float64{0, 1, 2, 3})
		ss = newStagedSet()
	)
	mk := func(id BasisID, gamma float64, ku utils.Index) *stagedFunction {
		b, err := NewBasisFunction(m, ku, utils.Index{0, 1, 2, 3}, []float64{gamma, 2 * gamma}, gamma)
		require.NoError(t, err)
		b.ID = id
		return newStaged(b)
	}
	ss.add(mk(1, 0.25, utils.Index{0, 1, 2, 3}))
	ss.add(mk(2, 0.5, utils.Index{0, 0, 1, 2}))
	ss.add(mk(3, 0.5, utils.Index{0, 1, 2, 3}))
	l := ss.list()
	require.Len(t, l, 2)
	assert.Equal(t, BasisID(1), l[0].b.ID)
	assert.InDelta(t, 0.75, l[0].b.Gamma, 1.e-15)
	assert.InDeltaSlice(t, []float64{0.75, 1.5}, l[0].b.CoefTimesGamma, 1.e-15)
	assert.Equal(t, map[BasisID]float64{1: 0.25, 3: 0.5}, l[0].from)
	assert.Equal(t, map[BasisID]float64{2: 0.5}, l[1].from)
}

func TestRefinementResultTransfer(t *testing.T) {
	r := &RefinementResult{}
	assert.False(t, r.Changed())
	assert.Nil(t, r.ApplyTransfer([]float64{1}))

	W := utils.NewDOK(3, 2)
	W.AddAt(0, 0, 1)
	W.AddAt(1, 0, 0.5)
	W.AddAt(1, 1, 0.5)
	W.AddAt(2, 1, 1)
	r.Parents = []BasisID{1, 2}
	r.Children = []BasisID{3, 4, 5}
	r.Transfer = W.ToCSR()
	assert.True(t, r.Changed())
	assert.InDeltaSlice(t, []float64{2, 3, 4}, r.ApplyTransfer([]float64{2, 4}), 1.e-15)
}
