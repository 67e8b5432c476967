package LR2D

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"
)

// RationalDerivatives converts summed homogeneous partials into partials of the
// rational function. hom is in triangular order (see EvalDerivativesUpTo), each
// entry the numerator followed by the weight term. The result has the same
// ordering with the weight dropped.
func RationalDerivatives(hom [][]float64, order int) (ders [][]float64, err error) {
	if order < 0 || numDerivs(order) > len(hom) {
		return nil, fmt.Errorf("order %d needs %d partials, have %d: %w",
			order, numDerivs(order), len(hom), ErrOutOfRange)
	}
	var (
		width = len(hom[0])
		dim   = width - 1
		w     = func(k, l int) float64 { return hom[derivIndex(k, l)][dim] }
	)
	if dim < 1 {
		return nil, fmt.Errorf("homogeneous point of width %d: %w", width, ErrOutOfRange)
	}
	if w(0, 0) == 0 {
		return nil, fmt.Errorf("zero denominator: %w", ErrOutOfRange)
	}
	ders = make([][]float64, numDerivs(order))
	for k := 0; k <= order; k++ {
		for l := 0; l <= order-k; l++ {
			v := append([]float64(nil), hom[derivIndex(k, l)][:dim]...)
			for j := 1; j <= l; j++ {
				floats.AddScaled(v, -float64(combin.Binomial(l, j))*w(0, j), ders[derivIndex(k, l-j)])
			}
			for i := 1; i <= k; i++ {
				ci := float64(combin.Binomial(k, i))
				floats.AddScaled(v, -ci*w(i, 0), ders[derivIndex(k-i, l)])
				for j := 1; j <= l; j++ {
					floats.AddScaled(v, -ci*float64(combin.Binomial(l, j))*w(i, j), ders[derivIndex(k-i, l-j)])
				}
			}
			floats.Scale(1/w(0, 0), v)
			ders[derivIndex(k, l)] = v
		}
	}
	return
}
