package LR2D

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMesh2D(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 0, 1, 2, 2, 3, 3, 3}, []float64{0, 0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumDistinctKnots(XFixed))
	assert.Equal(t, 2, m.NumDistinctKnots(YFixed))
	if diff := cmp.Diff([]float64{0, 1, 2, 3}, m.KnotValues(XFixed)); diff != "" {
		t.Errorf("u knots (-want +got):\n%s", diff)
	}
	// multiplicities follow the knot vector on every interval of the other direction
	for i, mu := range []int{3, 1, 2, 3} {
		assert.Equal(t, mu, m.Mult(XFixed, i, 0))
		assert.True(t, m.IsFullLine(XFixed, i))
	}
	assert.Equal(t, 2, m.Mult(YFixed, 0, 2))
	assert.Equal(t, 0., m.MinParam(XFixed))
	assert.Equal(t, 3., m.MaxParam(XFixed))

	val, err := m.KnotValue(XFixed, 2)
	assert.NoError(t, err)
	assert.Equal(t, 2., val)
	_, err = m.KnotValue(XFixed, 4)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = m.KnotValue(YFixed, -1)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = NewMesh2D([]float64{0, 1, 0.5}, []float64{0, 1})
	assert.True(t, errors.Is(err, ErrInvalidKnotVector))
	_, err = NewMesh2D([]float64{0, math.NaN(), 1}, []float64{0, 1})
	assert.True(t, errors.Is(err, ErrInvalidKnotVector))
	_, err = NewMesh2D([]float64{1, 1, 1}, []float64{0, 1})
	assert.True(t, errors.Is(err, ErrInvalidKnotVector))
	_, err = NewMesh2D(nil, []float64{0, 1})
	assert.True(t, errors.Is(err, ErrInvalidKnotVector))
}

func TestMeshInsertLine(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 1, 2, 2}, []float64{0, 0, 1, 3, 3})
	require.NoError(t, err)
	ix, isNew, err := m.InsertLine(XFixed, 0.5)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 1, ix)
	assert.Equal(t, []float64{0, 0.5, 1, 2}, m.KnotValues(XFixed))
	// the new line is absent until a multiplicity is set
	for j := 0; j < 2; j++ {
		assert.Equal(t, 0, m.Mult(XFixed, 1, j))
	}
	assert.False(t, m.IsFullLine(XFixed, 1))
	// perpendicular lines keep their multiplicity over both halves of the cut interval
	for j := range []int{0, 1, 2} {
		assert.Equal(t, m.Mult(YFixed, j, 0), m.Mult(YFixed, j, 1))
	}
	assert.Len(t, m.mults[YFixed][0], 3)

	// existing knots within tolerance are found, not duplicated
	ix, isNew, err = m.InsertLine(XFixed, 1+1.e-14)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 2, ix)

	_, _, err = m.InsertLine(YFixed, 3.5)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	require.NoError(t, m.SetMult(XFixed, 1, 0, 1, 1))
	assert.Equal(t, 1, m.Mult(XFixed, 1, 0))
	assert.Equal(t, 0, m.Mult(XFixed, 1, 1))
	assert.Equal(t, 0, m.Nu(XFixed, 1, 0, 2))
	assert.Equal(t, 1, m.Nu(XFixed, 1, 0, 1))
	assert.Equal(t, 1, m.LargestMultInLine(XFixed, 1))

	require.NoError(t, m.IncrementMult(XFixed, 1, 0, 2, 2, 2))
	assert.Equal(t, 2, m.Mult(XFixed, 1, 0))
	assert.Equal(t, 2, m.Mult(XFixed, 1, 1))
	assert.True(t, m.IsFullLine(XFixed, 1))

	assert.True(t, errors.Is(m.SetMult(XFixed, 9, 0, 1, 1), ErrOutOfRange))
	assert.True(t, errors.Is(m.SetMult(XFixed, 1, 1, 1, 1), ErrOutOfRange))
}

func TestMeshLocateInterval(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 1, 2, 2}, []float64{0, 0, 1, 2, 2})
	require.NoError(t, err)
	// a partial line at u=0.5 over v in [0,1]
	ix, _, err := m.InsertLine(XFixed, 0.5)
	require.NoError(t, err)
	require.NoError(t, m.SetMult(XFixed, ix, 0, 1, 1))

	type tc struct {
		u, v  float64
		atEnd bool
		want  int
	}
	for _, c := range []tc{
		{0.7, 0.5, false, 1},
		{0.7, 1.5, false, 0}, // the partial line is absent above v=1
		{0.5, 0.5, false, 1},
		{0.2, 0.5, false, 0},
		{1.0, 1.5, false, 2},
		{2.0, 1.5, true, 2},
		{1.0, 1.5, true, 0},
	} {
		got, err := m.LocateInterval(XFixed, c.u, c.v, c.atEnd)
		assert.NoError(t, err)
		assert.Equalf(t, c.want, got, "u=%g v=%g atEnd=%v", c.u, c.v, c.atEnd)
	}
	_, err = m.LocateInterval(XFixed, 2.5, 0.5, false)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = m.LocateInterval(XFixed, 0.5, -1, false)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestMeshUniformity(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 1, 2, 3, 3}, []float64{0, 0.5, 2})
	require.NoError(t, err)
	assert.True(t, m.IsUniform(XFixed))
	assert.False(t, m.IsUniform(YFixed))
	assert.True(t, m.AllMeshlinesUniform(XFixed))

	ix, _, err := m.InsertLine(XFixed, 1.5)
	require.NoError(t, err)
	require.NoError(t, m.SetMult(XFixed, ix, 0, 1, 2))
	assert.False(t, m.IsUniform(XFixed))
	assert.False(t, m.AllMeshlinesUniform(XFixed))
	mults := m.SetUniformMeshlines(XFixed)
	assert.Equal(t, []int{2, 1, 2, 1, 2}, []int(mults))
	assert.True(t, m.AllMeshlinesUniform(XFixed))
}

func TestMeshReverseSwapClone(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 1, 4, 4}, []float64{0, 0, 2, 3, 3})
	require.NoError(t, err)
	ix, _, err := m.InsertLine(XFixed, 3)
	require.NoError(t, err)
	require.NoError(t, m.SetMult(XFixed, ix, 0, 1, 1))

	c := m.Clone()
	c.Reverse(XFixed)
	assert.Equal(t, []float64{0, 1, 3, 4}, c.KnotValues(XFixed))
	// the partial line at u=3 is now at u=1
	assert.Equal(t, 1, c.Mult(XFixed, 1, 0))
	assert.Equal(t, 0, c.Mult(XFixed, 1, 1))
	assert.Equal(t, 1, c.Mult(XFixed, 2, 1))
	// the original is untouched
	assert.Equal(t, []float64{0, 1, 3, 4}, m.KnotValues(XFixed))
	assert.Equal(t, 0, m.Mult(XFixed, 2, 1))

	c.Reverse(XFixed)
	assert.Empty(t, cmp.Diff(m.mults, c.mults))

	c.Swap()
	assert.Equal(t, m.KnotValues(XFixed), c.KnotValues(YFixed))
	assert.Equal(t, m.Mult(XFixed, 2, 1), c.Mult(YFixed, 2, 1))
}

func TestMeshWriteRead(t *testing.T) {
	m, err := NewMesh2D([]float64{0, 0, 0.1, 1.0 / 3, 1, 1}, []float64{-1, -1, 0, 0, 2})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	r, err := ReadMesh2D(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.knots, r.knots)
	assert.Equal(t, m.mults, r.mults)
}
