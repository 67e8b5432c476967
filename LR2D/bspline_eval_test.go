package LR2D

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/lrspline/utils"
)

func TestBSplineValue(t *testing.T) {
	var (
		kvals = []float64{0, 1, 2, 3}
		kix   = []int{0, 1, 2, 3}
	)
	// the uniform quadratic B-spline
	for _, c := range [][2]float64{
		{-0.5, 0}, {0, 0}, {0.5, 0.125}, {1, 0.5}, {1.5, 0.75}, {2, 0.5}, {2.5, 0.125}, {3, 0}, {3.5, 0},
	} {
		assert.InDeltaf(t, c[1], bsplineValue(2, c[0], kix, kvals, false), 1.e-14, "t=%g", c[0])
	}
	// degree zero is the indicator of the half open interval
	assert.Equal(t, 1., bsplineValue(0, 0, []int{0, 1}, kvals, false))
	assert.Equal(t, 0., bsplineValue(0, 1, []int{0, 1}, kvals, false))
	assert.Equal(t, 1., bsplineValue(0, 1, []int{0, 1}, kvals, true))
	// repeated end knot: t^2 on [0,1], closed at the domain end only
	assert.InDelta(t, 0.25, bsplineValue(2, 0.5, []int{0, 1, 1, 1}, kvals, false), 1.e-14)
	assert.Equal(t, 0., bsplineValue(2, 1, []int{0, 1, 1, 1}, kvals, false))
	assert.InDelta(t, 1., bsplineValue(2, 1, []int{0, 1, 1, 1}, kvals, true), 1.e-14)
	assert.Panics(t, func() { bsplineValue(MaxDegree+1, 0.5, kix, kvals, false) })
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	var (
		kvals = []float64{0, 0.5, 1.25, 2, 3}
		// full knot vector 0 0 0 0 0.5 1.25 1.25 2 3 3 3 3 as indices
		full = []int{0, 0, 0, 0, 1, 2, 2, 3, 4, 4, 4, 4}
		deg  = 3
	)
	for _, x := range utils.LinSpace(0, 3, 31) {
		var (
			sum   float64
			atEnd = x == 3
		)
		for i := 0; i+deg+1 < len(full); i++ {
			sum += bsplineValue(deg, x, full[i:i+deg+2], kvals, atEnd)
		}
		assert.InDeltaf(t, 1., sum, 1.e-13, "x=%g", x)
	}
}

func TestBSplineDerivatives(t *testing.T) {
	var (
		kvals = []float64{0, 1, 2, 3}
		kix   = []int{0, 1, 2, 3}
	)
	// middle piece (-2t^2+6t-3)/2
	assert.InDelta(t, 0., bsplineDerivative(2, 1.5, kix, kvals, false, 1), 1.e-14)
	assert.InDelta(t, -2., bsplineDerivative(2, 1.5, kix, kvals, false, 2), 1.e-14)
	assert.InDelta(t, 0.5, bsplineDerivative(2, 0.5, kix, kvals, false, 1), 1.e-14)
	assert.InDelta(t, -0.5, bsplineDerivative(2, 2.5, kix, kvals, false, 1), 1.e-14)
	assert.Equal(t, 0., bsplineDerivative(2, 1.5, kix, kvals, false, 3))
	assert.Equal(t, 0., bsplineDerivative(0, 0.5, []int{0, 1}, kvals, false, 1))

	// cubic with a double knot, against central differences
	var (
		kv2  = []float64{0, 0.4, 1, 1.7, 2.5}
		kix2 = []int{0, 1, 1, 3, 4}
		h    = 1.e-5
	)
	for _, x := range []float64{0.1, 0.3, 0.55, 0.8, 1.2, 1.9, 2.3} {
		var (
			out [MaxBatchDerivOrder + 1]float64
		)
		bsplineDerivs(3, x, kix2, kv2, false, 3, out[:])
		assert.InDelta(t, bsplineValue(3, x, kix2, kv2, false), out[0], 1.e-15)
		for der := 1; der <= 3; der++ {
			fd := (bsplineDerivative(3, x+h, kix2, kv2, false, der-1) -
				bsplineDerivative(3, x-h, kix2, kv2, false, der-1)) / (2 * h)
			assert.InDeltaf(t, fd, out[der], 1.e-4*(1+abs(fd)), "x=%g der=%d", x, der)
		}
	}
}

func TestBSplineBlossom(t *testing.T) {
	var (
		kvals = []float64{0, 1, 2, 3, 4.5}
		kix   = []int{0, 1, 2, 3, 4}
		xs    [MaxDegree + 1]float64
	)
	// on the diagonal the blossom is the value
	for _, x := range []float64{1.2, 1.5, 1.9} {
		for l := 1; l <= 3; l++ {
			xs[l] = x
		}
		assert.InDelta(t, bsplineValue(3, x, kix, kvals, false), bsplineBlossom(3, 1, kix, kvals, &xs), 1.e-14)
	}
	// symmetric in its arguments
	xs[1], xs[2], xs[3] = 1.1, 1.6, 1.3
	b1 := bsplineBlossom(3, 1, kix, kvals, &xs)
	xs[1], xs[2], xs[3] = 1.6, 1.3, 1.1
	assert.InDelta(t, b1, bsplineBlossom(3, 1, kix, kvals, &xs), 1.e-14)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
