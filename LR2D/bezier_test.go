package LR2D

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/combin"
)

// bernsteinValue evaluates a tensor Bernstein polynomial on the unit square
func bernsteinValue(coefs []float64, degU, degV int, s, r float64) (val float64) {
	for j := 0; j <= degV; j++ {
		bv := float64(combin.Binomial(degV, j)) * math.Pow(r, float64(j)) * math.Pow(1-r, float64(degV-j))
		for i := 0; i <= degU; i++ {
			bu := float64(combin.Binomial(degU, i)) * math.Pow(s, float64(i)) * math.Pow(1-s, float64(degU-i))
			val += coefs[j*(degU+1)+i] * bu * bv
		}
	}
	return
}

func TestBernsteinCoefficients(t *testing.T) {
	b := quadraticBump(t)
	b.Gamma = 2
	coefs, err := b.BernsteinCoefficients(1, 2, 1, 2)
	require.NoError(t, err)
	// the middle piece has Bernstein coefficients 1/2, 1, 1/2
	uni := []float64{0.5, 1, 0.5}
	for j := range uni {
		for i := range uni {
			assert.InDelta(t, 2*uni[i]*uni[j], coefs[j*3+i], 1.e-14)
		}
	}
	for _, p := range [][2]float64{{1.2, 1.7}, {1.5, 1.5}, {1.9, 1.05}} {
		assert.InDelta(t, b.Evaluate(p[0], p[1]), bernsteinValue(coefs, 2, 2, p[0]-1, p[1]-1), 1.e-14)
	}

	// a sub-rectangle of an element
	coefs, err = b.BernsteinCoefficients(0.25, 0.75, 2.5, 3)
	require.NoError(t, err)
	assert.InDelta(t, b.Evaluate(0.5, 2.6), bernsteinValue(coefs, 2, 2, 0.5, 0.2), 1.e-14)

	// outside the support the function is zero
	coefs, err = b.BernsteinCoefficients(3, 4, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 9), coefs)

	_, err = b.BernsteinCoefficients(0.5, 1.5, 1, 2)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = b.BernsteinCoefficients(1, 1, 1, 2)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestBezierPatchReproducesSpace(t *testing.T) {
	s := tensorSpace(t, 2, 3, 4, 1)
	for _, e := range s.Elements() {
		ids, coefs, err := s.BezierPatch(e.ID)
		require.NoError(t, err)
		require.Len(t, coefs, len(ids))
		for _, p := range [][2]float64{{0.3, 0.6}, {0.8, 0.1}} {
			var (
				u   = e.Umin() + p[0]*(e.Umax()-e.Umin())
				v   = e.Vmin() + p[1]*(e.Vmax()-e.Vmin())
				sum float64
			)
			for k, id := range ids {
				b, err := s.Basis(id)
				require.NoError(t, err)
				sum += b.Coefficient()[0] * bernsteinValue(coefs[k], 2, 3, p[0], p[1])
			}
			pt, err := s.Point(u, v)
			require.NoError(t, err)
			assert.InDelta(t, pt[0], sum, 1.e-12)
		}
	}
	_, _, err := s.BezierPatch(-1)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}
