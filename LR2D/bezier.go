package LR2D

import (
	"fmt"

	"github.com/notargets/lrspline/utils"
)

// BernsteinCoefficients returns the Gamma-scaled coefficients of this function
// in the tensor Bernstein basis of the unit square, where the square is the
// affine image of [u0,u1]x[v0,v1]. Coefficients are ordered with the u index
// running fastest. The rectangle may not cross an interior local knot.
func (b *BasisFunction) BernsteinCoefficients(u0, u1, v0, v1 float64) (coefs []float64, err error) {
	var (
		cu, cv []float64
	)
	if cu, err = b.bernstein1D(XFixed, u0, u1); err != nil {
		return
	}
	if cv, err = b.bernstein1D(YFixed, v0, v1); err != nil {
		return
	}
	coefs = make([]float64, len(cu)*len(cv))
	for j, bv := range cv {
		for i, bu := range cu {
			coefs[j*len(cu)+i] = b.Gamma * bu * bv
		}
	}
	return
}

func (b *BasisFunction) bernstein1D(d Direction2D, a, c float64) (coefs []float64, err error) {
	var (
		deg   = b.Degree(d)
		kv    = b.Kvec(d)
		kvals = b.mesh.knots[d]
		tol   = b.mesh.KnotTol
	)
	if !(a < c) {
		return nil, fmt.Errorf("%s interval [%g,%g] is empty: %w", d, a, c, ErrOutOfRange)
	}
	coefs = make([]float64, deg+1)
	// outside the support the polynomial piece is zero
	if c <= b.Min(d)+tol || a >= b.Max(d)-tol {
		return coefs, nil
	}
	nz := -1
	for k := 0; k <= deg; k++ {
		lo, hi := kvals[kv[k]], kvals[kv[k+1]]
		if lo < hi && a >= lo-tol && a < hi {
			nz = k
			break
		}
	}
	if nz < 0 || c > kvals[kv[nz+1]]+tol {
		return nil, fmt.Errorf("%s interval [%g,%g] crosses an interior knot of %v: %w",
			d, a, c, kv, ErrOutOfRange)
	}
	// map the local knots so that [a,c] becomes [0,1]
	var (
		toUnit = utils.AffineMap(a, c)
		local  = make([]float64, deg+2)
		lix    = utils.NewRange(0, deg+1)
		xs     [MaxDegree + 1]float64
	)
	for k, ix := range kv {
		local[k] = toUnit(kvals[ix])
	}
	for k := 0; k <= deg; k++ {
		// blossom(0^(deg-k), 1^k)
		for l := 1; l <= deg; l++ {
			xs[l] = 0
			if l > deg-k {
				xs[l] = 1
			}
		}
		coefs[k] = bsplineBlossom(deg, nz, lix, local, &xs)
	}
	return
}
