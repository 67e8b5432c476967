package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAffineMap(t *testing.T) {
	f := AffineMap(2, 6)
	assert.Equal(t, 0., f(2))
	assert.Equal(t, 1., f(6))
	assert.Equal(t, 0.25, f(3))
	assert.Equal(t, -0.5, f(0))
}

func TestLinSpace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, LinSpace(0, 1, 5))
	assert.Equal(t, []float64{3}, LinSpace(3, 4, 1))
	x := LinSpace(0.1, 0.7, 7)
	assert.Equal(t, 0.7, x[6])
	assert.True(t, NearlyEqual(1, 1+1.e-13, KNOTTOL))
	assert.False(t, NearlyEqual(1, 1+1.e-11, KNOTTOL))
}

func TestIsNan(t *testing.T) {
	assert.False(t, IsNan(1.))
	assert.True(t, IsNan(math.NaN()))
	assert.True(t, IsNan([]float64{1, math.NaN()}))
	assert.False(t, IsNan([]float64{1, 2}))
	assert.True(t, IsNan([][]float64{{1}, {2, math.NaN()}}))
	assert.False(t, IsNan("NaN"))
	assert.Contains(t, GetMemUsage(), "Alloc =")
}
