package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSparseDOK(t *testing.T) {
	W := NewDOK(3, 2)
	W.AddAt(0, 0, 1)
	W.AddAt(1, 0, 0.25)
	W.AddAt(1, 0, 0.25)
	W.AddAt(1, 1, 0.5)
	W.AddAt(2, 1, 1)
	assert.Equal(t, 0.5, W.At(1, 0))
	assert.Panics(t, func() { W.AddAt(3, 0, 1) })

	W.SetReadOnly("W")
	assert.Panics(t, func() { W.AddAt(0, 0, 1) })

	C := W.ToCSR()
	nr, nc := C.Dims()
	assert.Equal(t, 3, nr)
	assert.Equal(t, 2, nc)
	assert.Equal(t, 4, C.NNZ())
	assert.Equal(t, []float64{2, 3, 4}, C.MulVec([]float64{2, 4}))
	assert.Panics(t, func() { C.MulVec([]float64{1}) })

	// both satisfy mat.Matrix
	var (
		x   = mat.NewDense(2, 1, []float64{2, 4})
		res mat.Dense
	)
	res.Mul(C, x)
	assert.Equal(t, []float64{2, 3, 4}, res.RawMatrix().Data)
	res.Reset()
	res.Mul(W.T(), mat.NewDense(3, 1, []float64{1, 1, 1}))
	assert.Equal(t, []float64{1.5, 1.5}, res.RawMatrix().Data)
	assert.Equal(t, 1., C.T().At(1, 2))
}
