package LR2D

import (
	"fmt"
)

// Univariate evaluation of a single B-spline given by its local knot indices
// kix (deg+2 of them) into the distinct knot values kvals. All scratch space is
// on the stack and sized by MaxDegree, so these are safe for concurrent use.

// ladder runs the triangular Cox-de Boor accumulation starting from the degree
// zero function of local interval nz. Level d uses the argument xs[d]; with all
// arguments equal this is the value of the B-spline, with distinct arguments it
// is the blossom of its polynomial piece on interval nz.
func ladder(deg, nz int, kix []int, kvals []float64, xs *[MaxDegree + 1]float64) float64 {
	var (
		tmp [MaxDegree + 2]float64
	)
	tmp[nz] = 1
	for d := 1; d <= deg; d++ {
		var (
			t      = xs[d]
			lbound = max(0, nz-d)
			ubound = min(nz, deg-d)
		)
		for i := lbound; i <= ubound; i++ {
			var (
				kI     = kvals[kix[i]]
				kIp1   = kvals[kix[i+1]]
				kIpd   = kvals[kix[i+d]]
				kIpdp1 = kvals[kix[i+d+1]]
				alpha  float64
				beta   float64
			)
			if kIpd != kI {
				alpha = (t - kI) / (kIpd - kI)
			}
			if kIpdp1 != kIp1 {
				beta = (kIpdp1 - t) / (kIpdp1 - kIp1)
			}
			tmp[i] = alpha*tmp[i] + beta*tmp[i+1]
		}
	}
	return tmp[0]
}

func checkDegree(deg int) {
	if deg < 0 || deg > MaxDegree {
		panic(fmt.Sprintf("degree %d outside [0,%d]", deg, MaxDegree))
	}
}

// nonzeroInterval finds the local interval holding t, half open on the right
// unless atEnd. The caller guarantees t is inside the support.
func nonzeroInterval(deg int, t float64, kix []int, kvals []float64, atEnd bool) (nz int) {
	if atEnd {
		for kvals[kix[nz+1]] < t {
			nz++
		}
	} else {
		for kvals[kix[nz+1]] <= t {
			nz++
		}
	}
	if nz > deg {
		panic(fmt.Sprintf("inconsistent local knot vector, interval %d for degree %d", nz, deg))
	}
	return
}

// bsplineValue evaluates one univariate B-spline. The upper end of the support
// is included only when atEnd is set.
func bsplineValue(deg int, t float64, kix []int, kvals []float64, atEnd bool) float64 {
	checkDegree(deg)
	var (
		k0 = kvals[kix[0]]
		kl = kvals[kix[deg+1]]
	)
	if t < k0 || t > kl || (t == kl && !atEnd) || k0 == kl {
		return 0
	}
	var xs [MaxDegree + 1]float64
	for d := 1; d <= deg; d++ {
		xs[d] = t
	}
	return ladder(deg, nonzeroInterval(deg, t, kix, kvals, atEnd), kix, kvals, &xs)
}

// bsplineDerivative evaluates the der'th derivative of one univariate B-spline.
// The derivative is written as a combination of the der+1 B-splines of degree
// deg-der spanning consecutive sub-windows of the local knots; the combination
// coefficients are built one order at a time in a fixed table.
func bsplineDerivative(deg int, t float64, kix []int, kvals []float64, atEnd bool, der int) float64 {
	checkDegree(deg)
	switch {
	case der == 0:
		return bsplineValue(deg, t, kix, kvals, atEnd)
	case der > deg:
		return 0
	}
	var (
		c [MaxDegree + 2]float64
	)
	c[0] = 1
	for k := 0; k < der; k++ {
		q := float64(deg - k)
		// c[0..k] multiply B-splines of degree deg-k on windows kix[j:j+deg-k+2]
		for j := k + 1; j >= 0; j-- {
			var (
				hi, lo float64
				span   = kvals[kix[j+deg-k]] - kvals[kix[j]]
			)
			if j <= k {
				hi = c[j]
			}
			if j >= 1 {
				lo = c[j-1]
			}
			c[j] = 0
			if span > 0 {
				c[j] = (hi - lo) * q / span
			}
		}
	}
	var (
		sum    float64
		subDeg = deg - der
	)
	for j := 0; j <= der; j++ {
		if c[j] != 0 {
			sum += c[j] * bsplineValue(subDeg, t, kix[j:j+subDeg+2], kvals, atEnd)
		}
	}
	return sum
}

// bsplineDerivs fills out[0..n] with the value and derivatives up to order n
func bsplineDerivs(deg int, t float64, kix []int, kvals []float64, atEnd bool, n int, out []float64) {
	for der := 0; der <= n; der++ {
		out[der] = bsplineDerivative(deg, t, kix, kvals, atEnd, der)
	}
}

// bsplineBlossom evaluates the blossom of the polynomial piece of one B-spline
// on local interval nz at the arguments xs[1..deg]
func bsplineBlossom(deg, nz int, kix []int, kvals []float64, xs *[MaxDegree + 1]float64) float64 {
	checkDegree(deg)
	return ladder(deg, nz, kix, kvals, xs)
}
