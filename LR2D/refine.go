package LR2D

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/lrspline/utils"
)

// Refinement2D describes one knot line segment. The line has constant parameter
// Kval in direction D and runs from Start to End in the other direction.
// Multiplicity is the multiplicity the line must have over the segment after
// insertion; parts of the line already at or above it are left alone.
type Refinement2D struct {
	Kval         float64
	Start, End   float64
	D            Direction2D
	Multiplicity int
}

func (r Refinement2D) String() string {
	return fmt.Sprintf("%s line %g over [%g,%g] mult %d", r.D, r.Kval, r.Start, r.End, r.Multiplicity)
}

// RefinementResult reports one knot line insertion.
// Transfer relates the functions before and after: with P the Gamma-scaled
// parents and C the Gamma-scaled children,
//
//	P[p] = sum_c Transfer[c][p] * C[c]
//
// Rows follow Children and columns follow Parents. A function that only had
// its Gamma raised by a merge appears in Modified and in both lists. In a
// rational space the functions are scaled by Weight*Gamma instead.
type RefinementResult struct {
	State             RefinementState
	Ref               Refinement2D
	KnotIndex         int
	StartIx, EndIx    int
	NewLine           bool
	Removed, Added    []BasisID
	Modified          []BasisID
	Parents, Children []BasisID
	Transfer          utils.CSR
}

// Changed is false when the insertion was already present
func (r *RefinementResult) Changed() bool {
	return len(r.Parents) != 0
}

// ApplyTransfer maps coefficients given on the Parents (in the Gamma-scaled
// basis, i.e. BasisFunction.Coefficient values) to the Children
func (r *RefinementResult) ApplyTransfer(parentCoefs []float64) []float64 {
	if !r.Changed() {
		return nil
	}
	return r.Transfer.MulVec(parentCoefs)
}

// stagedFunction is a function under construction on a cloned mesh. from holds,
// per original function, the part of this function's weighted Gamma
// (Weight*Gamma for rational functions) that came from it.
type stagedFunction struct {
	b    *BasisFunction
	from map[BasisID]float64
}

func newStaged(b *BasisFunction) *stagedFunction {
	return &stagedFunction{
		b:    b,
		from: map[BasisID]float64{b.ID: b.weightedGamma()},
	}
}

func (sf *stagedFunction) scaled(alpha float64, d Direction2D, kv utils.Index) (c *stagedFunction) {
	c = &stagedFunction{
		b:    sf.b.Copy(),
		from: make(map[BasisID]float64, len(sf.from)),
	}
	c.b.ID = 0
	c.b.setKvec(d, kv)
	c.b.Gamma *= alpha
	floats.Scale(alpha, c.b.CoefTimesGamma)
	for id, g := range sf.from {
		c.from[id] = alpha * g
	}
	return
}

// absorb adds o, which has the same knots, into sf. Rational functions add
// their homogeneous terms Weight*CoefTimesGamma and Weight*Gamma.
func (sf *stagedFunction) absorb(o *stagedFunction) {
	b, ob := sf.b, o.b
	if b.Rational {
		var (
			gamma = b.Gamma + ob.Gamma
			w     = (b.Weight*b.Gamma + ob.Weight*ob.Gamma) / gamma
		)
		floats.Scale(b.Weight, b.CoefTimesGamma)
		floats.AddScaled(b.CoefTimesGamma, ob.Weight, ob.CoefTimesGamma)
		floats.Scale(1/w, b.CoefTimesGamma)
		b.Gamma, b.Weight = gamma, w
	} else {
		b.Gamma += ob.Gamma
		floats.Add(b.CoefTimesGamma, ob.CoefTimesGamma)
	}
	for id, g := range o.from {
		sf.from[id] += g
	}
}

// splitOnce inserts knot ix into the direction d local knot vector, giving
// B = alpha1*B1 + alpha2*B2 with B1 on the first deg+2 and B2 on the last deg+2
// knots of the extended vector
func splitOnce(sf *stagedFunction, d Direction2D, ix int) (c1, c2 *stagedFunction) {
	var (
		kv     = sf.b.Kvec(d)
		p      = len(kv) - 2
		kvals  = sf.b.mesh.knots[d]
		pos    = sort.SearchInts(kv, ix+1)
		ext    = kv.Insert(pos, ix)
		k      = kvals[ix]
		t0, t1 = kvals[kv[0]], kvals[kv[1]]
		tp     = kvals[kv[p]]
		tp1    = kvals[kv[p+1]]
		alpha1 = 1.
		alpha2 = 1.
	)
	if k < tp {
		alpha1 = (k - t0) / (tp - t0)
	}
	if k > t1 {
		alpha2 = (tp1 - k) / (tp1 - t1)
	}
	c1 = sf.scaled(alpha1, d, ext[:p+2].Copy())
	c2 = sf.scaled(alpha2, d, ext[1:].Copy())
	return
}

// needsSplit finds a meshline that crosses the whole support of b with a higher
// multiplicity than b's local knot vector holds
func needsSplit(m *Mesh2D, b *BasisFunction) (d Direction2D, ix int, split bool) {
	for d = XFixed; d <= YFixed; d++ {
		var (
			kv = b.Kvec(d)
			ko = b.Kvec(d.Flip())
		)
		for ix = kv[0] + 1; ix < kv[len(kv)-1]; ix++ {
			if m.Nu(d, ix, ko[0], ko[len(ko)-1]) > kv.Count(ix) {
				return d, ix, true
			}
		}
	}
	return 0, 0, false
}

// stagedSet merges functions with equal knot vectors, keeping insertion order
type stagedSet struct {
	byKey map[string]*stagedFunction
	order []string
}

func newStagedSet() *stagedSet {
	return &stagedSet{byKey: make(map[string]*stagedFunction)}
}

func (ss *stagedSet) add(sf *stagedFunction) {
	key := sf.b.knotKey()
	if prev, present := ss.byKey[key]; present {
		prev.absorb(sf)
		return
	}
	ss.byKey[key] = sf
	ss.order = append(ss.order, key)
}

func (ss *stagedSet) list() (l []*stagedFunction) {
	l = make([]*stagedFunction, len(ss.order))
	for i, key := range ss.order {
		l[i] = ss.byKey[key]
	}
	return
}

// iterativelySplit splits the staged functions against mesh m until none is
// crossed by a line it does not hold. The functions must live on m.
func iterativelySplit(m *Mesh2D, items []*stagedFunction) []*stagedFunction {
	var (
		done    = newStagedSet()
		pending = items
	)
	for len(pending) > 0 {
		next := newStagedSet()
		for _, sf := range pending {
			d, ix, split := needsSplit(m, sf.b)
			if !split {
				done.add(sf)
				continue
			}
			c1, c2 := splitOnce(sf, d, ix)
			next.add(c1)
			next.add(c2)
		}
		pending = next.list()
	}
	return done.list()
}

// tensorSplit brings every function in fns onto the full tensor mesh: all lines
// of m are raised to their largest multiplicity and the functions are split
// against the result. fns must live on m.
func tensorSplit(m *Mesh2D, fns []*BasisFunction) []*stagedFunction {
	m.SetUniformMeshlines(XFixed)
	m.SetUniformMeshlines(YFixed)
	items := make([]*stagedFunction, len(fns))
	for i, b := range fns {
		items[i] = newStaged(b)
	}
	return iterativelySplit(m, items)
}

// requiredKnots compares an external full knot vector for direction d with
// the full-length lines of m. It returns the distinct values needing a higher
// multiplicity, the multiplicity they need and what the mesh has now.
func requiredKnots(m *Mesh2D, d Direction2D, knots []float64, maxMult int) (vals []float64,
	required, current utils.Index, err error) {
	var (
		ext    []float64
		mults  []int
		nOther = m.NumDistinctKnots(d.Flip()) - 1
	)
	if ext, mults, _, err = distinctKnots(knots, m.KnotTol); err != nil {
		return
	}
	if !utils.NearlyEqual(ext[0], m.MinParam(d), m.KnotTol) ||
		!utils.NearlyEqual(ext[len(ext)-1], m.MaxParam(d), m.KnotTol) {
		err = fmt.Errorf("%s knot vector spans [%g,%g], domain is [%g,%g]: %w", d,
			ext[0], ext[len(ext)-1], m.MinParam(d), m.MaxParam(d), ErrOutOfRange)
		return
	}
	var (
		have = utils.NewIndex(len(ext))
		need = utils.Index(mults)
	)
	for i, val := range ext {
		if need[i] > maxMult {
			err = fmt.Errorf("%s knot %g with multiplicity %d, maximum %d: %w",
				d, val, need[i], maxMult, ErrInvalidKnotVector)
			return
		}
		if ix, found := m.KnotIndex(d, val); found {
			have[i] = m.Nu(d, ix, 0, nOther)
		}
	}
	for _, i := range have.FindVec(utils.Less, need) {
		// the domain boundary is never refined
		if i == 0 || i == len(ext)-1 {
			continue
		}
		vals = append(vals, ext[i])
		required = append(required, need[i])
		current = append(current, have[i])
	}
	return
}
