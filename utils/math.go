package utils

import (
	"math"
)

// AffineMap returns the map taking [a,b] onto [0,1]
func AffineMap(a, b float64) func(x float64) float64 {
	scale := 1. / (b - a)
	return func(x float64) float64 {
		return (x - a) * scale
	}
}

// NearlyEqual compares two values with an absolute tolerance
func NearlyEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// LinSpace returns N points evenly spaced over [a,b]
func LinSpace(a, b float64, N int) (x []float64) {
	x = make([]float64, N)
	if N == 1 {
		x[0] = a
		return
	}
	inc := (b - a) / float64(N-1)
	for i := range x {
		x[i] = a + float64(i)*inc
	}
	x[N-1] = b
	return
}
