package LR2D

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRationalDerivatives(t *testing.T) {
	// f = u*v/(1+u) at (1,2), numerator partials then the weight partials
	hom := [][]float64{
		{2, 2}, // (0,0)
		{2, 1}, // (1,0)
		{1, 0}, // (0,1)
		{0, 0}, // (2,0)
		{1, 0}, // (1,1)
		{0, 0}, // (0,2)
	}
	ders, err := RationalDerivatives(hom, 2)
	require.NoError(t, err)
	want := []float64{1, 0.5, 0.5, -0.5, 0.25, 0}
	for k, w := range want {
		require.Len(t, ders[k], 1)
		assert.InDeltaf(t, w, ders[k][0], 1.e-15, "partial %d", k)
	}

	ders, err = RationalDerivatives(hom, 1)
	require.NoError(t, err)
	assert.Len(t, ders, 3)

	_, err = RationalDerivatives(hom[:3], 2)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = RationalDerivatives([][]float64{{1, 0}}, 0)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = RationalDerivatives([][]float64{{1}}, 0)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}
