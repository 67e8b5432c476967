package LR2D

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/lrspline/utils"
)

// BasisFunction is one LR B-spline: a tensor product of two univariate
// B-splines whose knots are picked out of the mesh by local index vectors.
// The stored coefficient is pre-multiplied by Gamma, the scaling that makes the
// set of Gamma-scaled functions a partition of unity.
type BasisFunction struct {
	ID             BasisID
	KvecU, KvecV   utils.Index
	CoefTimesGamma []float64
	Gamma          float64
	Weight         float64
	Rational       bool
	CoefFixed      int // 0 = free, non zero = owned by an outside fitting step
	mesh           *Mesh2D
	support        map[ElementID]struct{}
}

// NewBasisFunction takes ownership of the index vectors and coefficient
func NewBasisFunction(mesh *Mesh2D, kvecU, kvecV utils.Index, coefTimesGamma []float64,
	gamma float64) (b *BasisFunction, err error) {
	b = &BasisFunction{
		KvecU:          kvecU,
		KvecV:          kvecV,
		CoefTimesGamma: coefTimesGamma,
		Gamma:          gamma,
		Weight:         1,
		mesh:           mesh,
		support:        make(map[ElementID]struct{}),
	}
	if err = b.check(); err != nil {
		return nil, err
	}
	return
}

func (b *BasisFunction) check() error {
	for d := XFixed; d <= YFixed; d++ {
		kv := b.Kvec(d)
		if len(kv) < 2 || len(kv)-2 > MaxDegree {
			return fmt.Errorf("%s local knot vector of length %d: %w", d, len(kv), ErrDegreeExceeded)
		}
		if !kv.IsNonDecreasing() {
			return fmt.Errorf("%s local knot vector %v: %w", d, kv, ErrInvalidKnotVector)
		}
		if kv[0] < 0 || kv[len(kv)-1] >= b.mesh.NumDistinctKnots(d) {
			return fmt.Errorf("%s local knot vector %v: %w", d, kv, ErrOutOfRange)
		}
		// a knot may appear at most deg+1 times, i.e. the support is never empty
		if kv[0] == kv[len(kv)-1] {
			return fmt.Errorf("%s local knot vector %v has empty support: %w", d, kv, ErrInvalidKnotVector)
		}
	}
	if b.Gamma <= 0 {
		return fmt.Errorf("gamma %g must be positive: %w", b.Gamma, ErrInvalidKnotVector)
	}
	return nil
}

// Copy returns a detached duplicate without element adjacency
func (b *BasisFunction) Copy() (c *BasisFunction) {
	c = &BasisFunction{
		ID:             b.ID,
		KvecU:          b.KvecU.Copy(),
		KvecV:          b.KvecV.Copy(),
		CoefTimesGamma: append([]float64(nil), b.CoefTimesGamma...),
		Gamma:          b.Gamma,
		Weight:         b.Weight,
		Rational:       b.Rational,
		CoefFixed:      b.CoefFixed,
		mesh:           b.mesh,
		support:        make(map[ElementID]struct{}),
	}
	return
}

func (b *BasisFunction) Kvec(d Direction2D) utils.Index {
	if d == XFixed {
		return b.KvecU
	}
	return b.KvecV
}

func (b *BasisFunction) setKvec(d Direction2D, kv utils.Index) {
	if d == XFixed {
		b.KvecU = kv
	} else {
		b.KvecV = kv
	}
}

func (b *BasisFunction) Degree(d Direction2D) int { return len(b.Kvec(d)) - 2 }
func (b *BasisFunction) Dimension() int           { return len(b.CoefTimesGamma) }
func (b *BasisFunction) Mesh() *Mesh2D            { return b.mesh }

func (b *BasisFunction) Min(d Direction2D) float64 {
	return b.mesh.knots[d][b.Kvec(d)[0]]
}

func (b *BasisFunction) Max(d Direction2D) float64 {
	kv := b.Kvec(d)
	return b.mesh.knots[d][kv[len(kv)-1]]
}

// Coefficient returns the unscaled coefficient, CoefTimesGamma/Gamma
func (b *BasisFunction) Coefficient() (coef []float64) {
	coef = append([]float64(nil), b.CoefTimesGamma...)
	floats.Scale(1/b.Gamma, coef)
	return
}

// SetCoefficient stores coef scaled by Gamma
func (b *BasisFunction) SetCoefficient(coef []float64) {
	b.CoefTimesGamma = append(b.CoefTimesGamma[:0], coef...)
	floats.Scale(b.Gamma, b.CoefTimesGamma)
}

// Greville is the mean of the interior local knots of direction d
func (b *BasisFunction) Greville(d Direction2D) (g float64) {
	var (
		kv  = b.Kvec(d)
		deg = b.Degree(d)
	)
	if deg == 0 {
		return 0.5 * (b.Min(d) + b.Max(d))
	}
	for _, ix := range kv[1 : deg+1] {
		g += b.mesh.knots[d][ix]
	}
	return g / float64(deg)
}

// weightedGamma is Weight*Gamma, the denominator scaling of a rational function
func (b *BasisFunction) weightedGamma() float64 {
	if b.Rational {
		return b.Weight * b.Gamma
	}
	return b.Gamma
}

func (b *BasisFunction) atEnd(d Direction2D, t float64) bool {
	return t >= b.mesh.MaxParam(d)
}

// EvalBasisFunction is the raw tensor product of univariate B-spline
// derivatives, without Gamma
func (b *BasisFunction) EvalBasisFunction(u, v float64, derU, derV int, atEndU, atEndV bool) float64 {
	bu := bsplineDerivative(b.Degree(XFixed), u, b.KvecU, b.mesh.knots[XFixed], atEndU, derU)
	if bu == 0 {
		return 0
	}
	return bu * bsplineDerivative(b.Degree(YFixed), v, b.KvecV, b.mesh.knots[YFixed], atEndV, derV)
}

// Evaluate returns the Gamma-scaled value at (u,v). The upper support boundary
// is included only where it is the end of the domain.
func (b *BasisFunction) Evaluate(u, v float64) float64 {
	return b.Gamma * b.EvalBasisFunction(u, v, 0, 0, b.atEnd(XFixed, u), b.atEnd(YFixed, v))
}

// EvaluateDerivative returns the Gamma-scaled (orderU,orderV) partial derivative
func (b *BasisFunction) EvaluateDerivative(u, v float64, orderU, orderV int,
	atEndU, atEndV bool) (float64, error) {
	if orderU < 0 || orderV < 0 || orderU > MaxDegree || orderV > MaxDegree {
		return 0, fmt.Errorf("derivative order (%d,%d), valid [0,%d]: %w",
			orderU, orderV, MaxDegree, ErrDegreeExceeded)
	}
	return b.Gamma * b.EvalBasisFunction(u, v, orderU, orderV, atEndU, atEndV), nil
}

// EvalDerivativesUpTo returns this function's contribution to all partials of
// total order <= maxOrder, in the order (0,0),(1,0),(0,1),(2,0),(1,1),(0,2),...
// Non rational functions give CoefTimesGamma times the partial. Rational
// functions give homogeneous vectors: Weight*CoefTimesGamma*partial followed by
// the denominator term Weight*Gamma*partial; sum them over all functions and
// pass the result to RationalDerivatives. maxOrder is clamped to
// MaxBatchDerivOrder.
func (b *BasisFunction) EvalDerivativesUpTo(u, v float64, maxOrder int, atEndU, atEndV bool) (res [][]float64) {
	var (
		order  = clampOrder(maxOrder)
		du, dv [MaxBatchDerivOrder + 1]float64
		dim    = b.Dimension()
		width  = dim
	)
	if b.Rational {
		width = dim + 1
	}
	bsplineDerivs(b.Degree(XFixed), u, b.KvecU, b.mesh.knots[XFixed], atEndU, order, du[:])
	bsplineDerivs(b.Degree(YFixed), v, b.KvecV, b.mesh.knots[YFixed], atEndV, order, dv[:])
	res = make([][]float64, numDerivs(order))
	for n := 0; n <= order; n++ {
		for j := 0; j <= n; j++ {
			var (
				val = du[n-j] * dv[j]
				out = make([]float64, width)
			)
			if b.Rational {
				val *= b.Weight
				out[dim] = val * b.Gamma
			}
			floats.AddScaled(out[:dim], val, b.CoefTimesGamma)
			res[derivIndex(n-j, j)] = out
		}
	}
	return
}

// EvalBasisGridDer evaluates the Gamma-scaled function and its partials up to
// nmbDer (clamped to MaxBatchDerivOrder) on the grid parU x parV. The result
// holds numDerivs(nmbDer) values per point, points ordered with u running fastest.
func (b *BasisFunction) EvalBasisGridDer(nmbDer int, parU, parV []float64) (derivs []float64) {
	var (
		order = clampOrder(nmbDer)
		nd    = numDerivs(order)
		du    = b.univariateTable(XFixed, order, parU)
		dv    = b.univariateTable(YFixed, order, parV)
	)
	derivs = make([]float64, len(parU)*len(parV)*nd)
	for j := range parV {
		for i := range parU {
			b.tensorDerivs(order, du[i], dv[j], derivs[(j*len(parU)+i)*nd:])
		}
	}
	return
}

// EvalBasisLineDer is EvalBasisGridDer along the line where the direction d
// parameter is fixed and the other parameter runs through par
func (b *BasisFunction) EvalBasisLineDer(nmbDer int, d Direction2D, fixed float64, par []float64) (derivs []float64) {
	var (
		order = clampOrder(nmbDer)
		nd    = numDerivs(order)
		fix   = b.univariateTable(d, order, []float64{fixed})[0]
		run   = b.univariateTable(d.Flip(), order, par)
	)
	derivs = make([]float64, len(par)*nd)
	for i := range par {
		if d == XFixed {
			b.tensorDerivs(order, fix, run[i], derivs[i*nd:])
		} else {
			b.tensorDerivs(order, run[i], fix, derivs[i*nd:])
		}
	}
	return
}

func (b *BasisFunction) univariateTable(d Direction2D, order int, par []float64) (tab [][MaxBatchDerivOrder + 1]float64) {
	var (
		deg   = b.Degree(d)
		kv    = b.Kvec(d)
		kvals = b.mesh.knots[d]
	)
	tab = make([][MaxBatchDerivOrder + 1]float64, len(par))
	for i, t := range par {
		bsplineDerivs(deg, t, kv, kvals, b.atEnd(d, t), order, tab[i][:])
	}
	return
}

func (b *BasisFunction) tensorDerivs(order int, du, dv [MaxBatchDerivOrder + 1]float64, out []float64) {
	for n := 0; n <= order; n++ {
		for j := 0; j <= n; j++ {
			out[derivIndex(n-j, j)] = b.Gamma * du[n-j] * dv[j]
		}
	}
}

// AddSupport records that element e overlaps this function. It reports false
// if e was already present.
func (b *BasisFunction) AddSupport(e ElementID) bool {
	if _, present := b.support[e]; present {
		return false
	}
	b.support[e] = struct{}{}
	return true
}

func (b *BasisFunction) RemoveSupport(e ElementID) {
	delete(b.support, e)
}

func (b *BasisFunction) HasSupport(e ElementID) bool {
	_, present := b.support[e]
	return present
}

func (b *BasisFunction) NumSupportElements() int { return len(b.support) }

// SupportElements lists the overlapping elements in increasing handle order
func (b *BasisFunction) SupportElements() (ids []ElementID) {
	ids = make([]ElementID, 0, len(b.support))
	for e := range b.support {
		ids = append(ids, e)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return
}

// OverlapsRect is the strict overlap test against a parameter rectangle
func (b *BasisFunction) OverlapsRect(umin, umax, vmin, vmax float64) bool {
	return b.Min(XFixed) < umax && umin < b.Max(XFixed) &&
		b.Min(YFixed) < vmax && vmin < b.Max(YFixed)
}

// ReverseParameterDirection mirrors the local indices of direction d. It is
// applied together with Mesh2D.Reverse, which keeps the number of knots.
func (b *BasisFunction) ReverseParameterDirection(d Direction2D) {
	var (
		kv   = b.Kvec(d)
		last = b.mesh.NumDistinctKnots(d) - 1
	)
	kv.Reverse()
	for i := range kv {
		kv[i] = last - kv[i]
	}
}

// SwapParameterDirections exchanges the u and v local knot vectors
func (b *BasisFunction) SwapParameterDirections() {
	b.KvecU, b.KvecV = b.KvecV, b.KvecU
}

func (b *BasisFunction) shiftIndices(d Direction2D, from int) {
	b.Kvec(d).ShiftFrom(from, 1)
}

// Less orders by u knots, v knots, scaled coefficient and then gamma
func (b *BasisFunction) Less(o *BasisFunction) bool {
	if c := b.KvecU.Compare(o.KvecU); c != 0 {
		return c < 0
	}
	if c := b.KvecV.Compare(o.KvecV); c != 0 {
		return c < 0
	}
	for i := 0; i < len(b.CoefTimesGamma) && i < len(o.CoefTimesGamma); i++ {
		if b.CoefTimesGamma[i] != o.CoefTimesGamma[i] {
			return b.CoefTimesGamma[i] < o.CoefTimesGamma[i]
		}
	}
	if len(b.CoefTimesGamma) != len(o.CoefTimesGamma) {
		return len(b.CoefTimesGamma) < len(o.CoefTimesGamma)
	}
	return b.Gamma < o.Gamma
}

// Equal compares knot vectors only. Refinement can briefly hold two functions
// with equal knots and different coefficients; they are the same function.
func (b *BasisFunction) Equal(o *BasisFunction) bool {
	return b.KvecU.Compare(o.KvecU) == 0 && b.KvecV.Compare(o.KvecV) == 0
}

// knotKey identifies a function by its knot values, which unlike the indices
// survive line insertions
func (b *BasisFunction) knotKey() string {
	return knotKey(b.mesh, b.KvecU, b.KvecV)
}

func knotKey(m *Mesh2D, ku, kv utils.Index) string {
	var (
		vu = make([]float64, len(ku))
		vv = make([]float64, len(kv))
	)
	for i, ix := range ku {
		vu[i] = m.knots[XFixed][ix]
	}
	for i, ix := range kv {
		vv[i] = m.knots[YFixed][ix]
	}
	return fmt.Sprintf("%v|%v", vu, vv)
}

func (b *BasisFunction) String() string {
	return fmt.Sprintf("B[%d] u%v v%v gamma=%g coef*gamma=%v", b.ID, b.KvecU, b.KvecV,
		b.Gamma, b.CoefTimesGamma)
}
