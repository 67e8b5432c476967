package LR2D

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/lrspline/utils"
)

// Space is an LR B-spline space: the mesh, the basis functions and the elements,
// with the element/function adjacency kept symmetric. A Space has a single
// writer; evaluation may run concurrently when no refinement is in progress.
type Space struct {
	mesh     *Mesh2D
	degree   [2]int
	dim      int
	rational bool

	basis     map[BasisID]*BasisFunction
	elements  map[ElementID]*Element2D
	byKnots   map[string]BasisID
	corners   map[[2]int]ElementID
	tree      *rtree.Rtree
	nextBasis BasisID
	nextElem  ElementID

	// PruneTolerance rejects an insertion when any child's Gamma falls below
	// it. Zero accepts every child.
	PruneTolerance float64
	// SoundnessTol is the relative tolerance of the check run before a
	// refinement is committed
	SoundnessTol float64
	ProcLimit    int
	log          logrus.FieldLogger
}

type Option func(s *Space)

func WithLogger(l logrus.FieldLogger) Option { return func(s *Space) { s.log = l } }
func WithKnotTol(tol float64) Option         { return func(s *Space) { s.mesh.KnotTol = tol } }
func WithPruneTolerance(tol float64) Option  { return func(s *Space) { s.PruneTolerance = tol } }
func WithSoundnessTol(tol float64) Option    { return func(s *Space) { s.SoundnessTol = tol } }
func WithProcLimit(n int) Option             { return func(s *Space) { s.ProcLimit = n } }

func defaultLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func newEmptySpace(mesh *Mesh2D, degU, degV, dim int, rational bool) *Space {
	return &Space{
		mesh:         mesh,
		degree:       [2]int{degU, degV},
		dim:          dim,
		rational:     rational,
		basis:        make(map[BasisID]*BasisFunction),
		elements:     make(map[ElementID]*Element2D),
		byKnots:      make(map[string]BasisID),
		corners:      make(map[[2]int]ElementID),
		SoundnessTol: 1.e-10,
		log:          defaultLogger(),
	}
}

// NewSpace builds the tensor product space of the two full knot vectors.
// coefs holds dim values per function with the u index running fastest.
// weights is nil for a polynomial space, otherwise one positive weight per
// function.
func NewSpace(degU, degV int, knotsU, knotsV []float64, coefs []float64, dim int,
	weights []float64, opts ...Option) (s *Space, err error) {
	for _, deg := range [2]int{degU, degV} {
		if deg < 0 || deg > MaxDegree {
			return nil, fmt.Errorf("degree %d, valid [0,%d]: %w", deg, MaxDegree, ErrDegreeExceeded)
		}
	}
	if dim < 1 {
		return nil, fmt.Errorf("dimension %d: %w", dim, ErrOutOfRange)
	}
	var (
		mesh   *Mesh2D
		ix     [2]utils.Index
		mults  [2][]int
		nFuncs [2]int
		degs   = [2]int{degU, degV}
	)
	if mesh, err = NewMesh2D(knotsU, knotsV); err != nil {
		return nil, err
	}
	for d, kv := range [2][]float64{knotsU, knotsV} {
		if _, mults[d], ix[d], err = distinctKnots(kv, mesh.KnotTol); err != nil {
			return nil, err
		}
		nFuncs[d] = len(kv) - degs[d] - 1
		if nFuncs[d] < 1 {
			return nil, fmt.Errorf("%s: %d knots for degree %d: %w",
				Direction2D(d), len(kv), degs[d], ErrInvalidKnotVector)
		}
		for _, mu := range mults[d] {
			if mu > degs[d]+1 {
				return nil, fmt.Errorf("%s: multiplicity %d above %d: %w",
					Direction2D(d), mu, degs[d]+1, ErrInvalidKnotVector)
			}
		}
	}
	n := nFuncs[0] * nFuncs[1]
	if len(coefs) != n*dim {
		return nil, fmt.Errorf("%d coefficients for %d functions of dimension %d: %w",
			len(coefs), n, dim, ErrOutOfRange)
	}
	if utils.IsNan(coefs) {
		return nil, fmt.Errorf("coefficients hold NaN: %w", ErrOutOfRange)
	}
	if weights != nil && len(weights) != n {
		return nil, fmt.Errorf("%d weights for %d functions: %w", len(weights), n, ErrOutOfRange)
	}
	s = newEmptySpace(mesh, degU, degV, dim, weights != nil)
	for _, opt := range opts {
		opt(s)
	}
	for j := 0; j < nFuncs[1]; j++ {
		for i := 0; i < nFuncs[0]; i++ {
			var (
				k = j*nFuncs[0] + i
				b *BasisFunction
			)
			b, err = NewBasisFunction(mesh, ix[0][i:i+degU+2].Copy(), ix[1][j:j+degV+2].Copy(),
				append([]float64(nil), coefs[k*dim:(k+1)*dim]...), 1)
			if err != nil {
				return nil, err
			}
			if s.rational {
				if !(weights[k] > 0) {
					return nil, fmt.Errorf("weight %d is %g, must be positive: %w", k, weights[k], ErrOutOfRange)
				}
				b.Rational, b.Weight = true, weights[k]
			}
			s.addFunction(b)
		}
	}
	s.rebuildElements()
	s.log.WithFields(logrus.Fields{
		"basis":    len(s.basis),
		"elements": len(s.elements),
	}).Debug("space created")
	return
}

func (s *Space) Mesh() *Mesh2D                    { return s.mesh }
func (s *Space) Degree(d Direction2D) int         { return s.degree[d] }
func (s *Space) Dimension() int                   { return s.dim }
func (s *Space) Rational() bool                   { return s.rational }
func (s *Space) NumBasisFunctions() int           { return len(s.basis) }
func (s *Space) NumElements() int                 { return len(s.elements) }
func (s *Space) Logger() logrus.FieldLogger       { return s.log }
func (s *Space) ParamRange(d Direction2D) [2]float64 {
	return [2]float64{s.mesh.MinParam(d), s.mesh.MaxParam(d)}
}

func (s *Space) addFunction(b *BasisFunction) BasisID {
	s.nextBasis++
	b.ID = s.nextBasis
	b.mesh = s.mesh
	s.basis[b.ID] = b
	s.byKnots[b.knotKey()] = b.ID
	return b.ID
}

func (s *Space) removeFunction(id BasisID) {
	b := s.basis[id]
	for e := range b.support {
		if el, present := s.elements[e]; present {
			el.RemoveSupport(id)
		}
	}
	delete(s.byKnots, b.knotKey())
	delete(s.basis, id)
}

func (s *Space) addElement(e *Element2D) ElementID {
	s.nextElem++
	e.ID = s.nextElem
	s.elements[e.ID] = e
	return e.ID
}

func (s *Space) removeElement(id ElementID) {
	e := s.elements[id]
	for b := range e.support {
		if bf, present := s.basis[b]; present {
			bf.RemoveSupport(id)
		}
	}
	delete(s.elements, id)
}

func link(b *BasisFunction, e *Element2D) {
	b.AddSupport(e.ID)
	e.AddSupport(b.ID)
}

// identifyElements lists the elements of m whose lower left corner lies in the
// index box [loU,hiU)x[loV,hiV). A corner is a knot pair where the u line runs
// upward and the v line runs to the right; the far sides are the next active lines.
func identifyElements(m *Mesh2D, loU, hiU, loV, hiV int) (els []*Element2D) {
	for i := loU; i < hiU; i++ {
		for j := loV; j < hiV; j++ {
			if m.mults[XFixed][i][j] == 0 || m.mults[YFixed][j][i] == 0 {
				continue
			}
			i2 := i + 1
			for m.mults[XFixed][i2][j] == 0 {
				i2++
			}
			j2 := j + 1
			for m.mults[YFixed][j2][i] == 0 {
				j2++
			}
			els = append(els, newElement(m, i, i2, j, j2))
		}
	}
	return
}

// rebuildElements discards all elements and derives them and the adjacency
// from the mesh
func (s *Space) rebuildElements() {
	for _, b := range s.basis {
		b.support = make(map[ElementID]struct{})
	}
	s.elements = make(map[ElementID]*Element2D)
	for _, e := range identifyElements(s.mesh, 0, s.mesh.NumDistinctKnots(XFixed)-1,
		0, s.mesh.NumDistinctKnots(YFixed)-1) {
		s.addElement(e)
	}
	s.reindex()
	for _, b := range s.basis {
		s.linkFunction(b)
	}
}

// reindex rebuilds the corner map, the knot value lookup and the R-tree
func (s *Space) reindex() {
	s.corners = make(map[[2]int]ElementID, len(s.elements))
	s.tree = rtree.NewTree(25, 50)
	for _, e := range s.elements {
		s.corners[e.Lo] = e.ID
		s.tree.Insert(elementBox{Geom: e.Bounds(), e: e})
	}
	s.byKnots = make(map[string]BasisID, len(s.basis))
	for _, b := range s.basis {
		s.byKnots[b.knotKey()] = b.ID
	}
}

// searchElements returns a superset of the elements meeting the closed
// rectangle; callers filter with the exact test they need
func (s *Space) searchElements(umin, umax, vmin, vmax float64) (els []*Element2D) {
	pad := s.mesh.KnotTol + 1.e-12*math.Max(1,
		math.Max(s.mesh.MaxParam(XFixed)-s.mesh.MinParam(XFixed), s.mesh.MaxParam(YFixed)-s.mesh.MinParam(YFixed)))
	for _, sp := range s.tree.SearchIntersect(&geom.Bounds{
		Min: geom.Point{X: umin - pad, Y: vmin - pad},
		Max: geom.Point{X: umax + pad, Y: vmax + pad},
	}) {
		els = append(els, sp.(elementBox).e)
	}
	return
}

// linkFunction connects b with every element inside its support
func (s *Space) linkFunction(b *BasisFunction) {
	for _, e := range s.searchElements(b.Min(XFixed), b.Max(XFixed), b.Min(YFixed), b.Max(YFixed)) {
		if e.Overlaps(b) {
			link(b, e)
		}
	}
}

// Basis returns the function with handle id
func (s *Space) Basis(id BasisID) (*BasisFunction, error) {
	b, present := s.basis[id]
	if !present {
		return nil, fmt.Errorf("basis function %d: %w", id, ErrOutOfRange)
	}
	return b, nil
}

func (s *Space) Element(id ElementID) (*Element2D, error) {
	e, present := s.elements[id]
	if !present {
		return nil, fmt.Errorf("element %d: %w", id, ErrOutOfRange)
	}
	return e, nil
}

// BasisFunctions returns the functions ordered by BasisFunction.Less
func (s *Space) BasisFunctions() (fns []*BasisFunction) {
	fns = make([]*BasisFunction, 0, len(s.basis))
	for _, b := range s.basis {
		fns = append(fns, b)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Less(fns[j]) })
	return
}

// Elements returns the elements ordered by their lower left corner, v first
func (s *Space) Elements() (els []*Element2D) {
	els = make([]*Element2D, 0, len(s.elements))
	for _, e := range s.elements {
		els = append(els, e)
	}
	sortElements(els)
	return
}

func sortElements(els []*Element2D) {
	sort.Slice(els, func(i, j int) bool {
		if els[i].Lo[YFixed] != els[j].Lo[YFixed] {
			return els[i].Lo[YFixed] < els[j].Lo[YFixed]
		}
		return els[i].Lo[XFixed] < els[j].Lo[XFixed]
	})
}

// FindBasis returns the function with the given local knot values, if any
func (s *Space) FindBasis(ku, kv utils.Index) (*BasisFunction, bool) {
	id, present := s.byKnots[knotKey(s.mesh, ku, kv)]
	if !present {
		return nil, false
	}
	return s.basis[id], true
}

func (s *Space) SupportedFunctions(id ElementID) ([]BasisID, error) {
	e, err := s.Element(id)
	if err != nil {
		return nil, err
	}
	return e.SupportFunctions(), nil
}

// ElementAt locates the element holding (u,v). Elements are closed at the low
// end and open at the high end except on the domain boundary.
func (s *Space) ElementAt(u, v float64) (e *Element2D, err error) {
	var (
		corner [2]int
		atEndU = u >= s.mesh.MaxParam(XFixed)
		atEndV = v >= s.mesh.MaxParam(YFixed)
	)
	if corner[XFixed], err = s.mesh.LocateInterval(XFixed, u, v, atEndU); err != nil {
		return
	}
	if corner[YFixed], err = s.mesh.LocateInterval(YFixed, v, u, atEndV); err != nil {
		return
	}
	id, present := s.corners[corner]
	if !present {
		panic(fmt.Sprintf("no element with lower left corner %v", corner))
	}
	return s.elements[id], nil
}

// ElementsInRegion lists the elements overlapping the open rectangle
func (s *Space) ElementsInRegion(umin, umax, vmin, vmax float64) (ids []ElementID) {
	var els []*Element2D
	for _, e := range s.searchElements(umin, umax, vmin, vmax) {
		if e.OverlapsRect(umin, umax, vmin, vmax) {
			els = append(els, e)
		}
	}
	sortElements(els)
	for _, e := range els {
		ids = append(ids, e.ID)
	}
	return
}

// Point evaluates the represented function at (u,v)
func (s *Space) Point(u, v float64) ([]float64, error) {
	ders, err := s.PointDerivatives(u, v, 0)
	if err != nil {
		return nil, err
	}
	return ders[0], nil
}

// PointDerivatives evaluates the represented function and its partials of total
// order up to maxOrder, ordered (0,0),(1,0),(0,1),(2,0),... Orders above
// MaxBatchDerivOrder are clamped; orders above MaxDegree are an error.
func (s *Space) PointDerivatives(u, v float64, maxOrder int) (ders [][]float64, err error) {
	if maxOrder < 0 || maxOrder > MaxDegree {
		return nil, fmt.Errorf("derivative order %d, valid [0,%d]: %w", maxOrder, MaxDegree, ErrDegreeExceeded)
	}
	var (
		e      *Element2D
		order  = clampOrder(maxOrder)
		width  = s.dim
		atEndU = u >= s.mesh.MaxParam(XFixed)
		atEndV = v >= s.mesh.MaxParam(YFixed)
	)
	if e, err = s.ElementAt(u, v); err != nil {
		return
	}
	if s.rational {
		width++
	}
	sum := make([][]float64, numDerivs(order))
	for k := range sum {
		sum[k] = make([]float64, width)
	}
	for id := range e.support {
		for k, c := range s.basis[id].EvalDerivativesUpTo(u, v, order, atEndU, atEndV) {
			floats.Add(sum[k], c)
		}
	}
	if s.rational {
		return RationalDerivatives(sum, order)
	}
	return sum, nil
}

// EvaluateGrid evaluates PointDerivatives on us x vs. The result is indexed
// [j*len(us)+i]. Rows of the grid are spread over worker goroutines.
func (s *Space) EvaluateGrid(us, vs []float64, maxOrder int) (res [][][]float64, err error) {
	if len(us) == 0 || len(vs) == 0 {
		return nil, nil
	}
	var (
		pm   = utils.NewPartitionMap(utils.ParallelDegree(s.ProcLimit, len(vs)), len(vs))
		errs = make([]error, pm.ParallelDegree)
	)
	res = make([][][]float64, len(us)*len(vs))
	pm.RunPartitioned(func(bn, kMin, kMax int) {
		for j := kMin; j < kMax; j++ {
			for i, u := range us {
				var ders [][]float64
				if ders, errs[bn] = s.PointDerivatives(u, vs[j], maxOrder); errs[bn] != nil {
					return
				}
				res[j*len(us)+i] = ders
			}
		}
	})
	for _, err = range errs {
		if err != nil {
			return nil, err
		}
	}
	return
}

// BezierPatch returns the Bernstein coefficients on element id of every
// function supported there
func (s *Space) BezierPatch(id ElementID) (ids []BasisID, coefs [][]float64, err error) {
	var e *Element2D
	if e, err = s.Element(id); err != nil {
		return
	}
	ids = e.SupportFunctions()
	coefs = make([][]float64, len(ids))
	for i, b := range ids {
		if coefs[i], err = s.basis[b].BernsteinCoefficients(e.Umin(), e.Umax(), e.Vmin(), e.Vmax()); err != nil {
			return nil, nil, err
		}
	}
	return
}

// CheckAdjacency verifies that an element and a function are linked, on both
// sides, exactly when the function's support overlaps the element
func (s *Space) CheckAdjacency() error {
	for _, e := range s.elements {
		for id := range e.support {
			if _, present := s.basis[id]; !present {
				return fmt.Errorf("element %d refers to missing function %d", e.ID, id)
			}
		}
		for _, b := range s.basis {
			var (
				overlaps = e.Overlaps(b)
				fwd      = e.HasSupportedElement(b.ID)
				bwd      = b.HasSupport(e.ID)
			)
			if overlaps != fwd || overlaps != bwd {
				return fmt.Errorf("element %v and %v: overlap %v, element side %v, function side %v",
					e, b, overlaps, fwd, bwd)
			}
		}
	}
	for _, b := range s.basis {
		for id := range b.support {
			if _, present := s.elements[id]; !present {
				return fmt.Errorf("function %d refers to missing element %d", b.ID, id)
			}
		}
	}
	var area float64
	for _, e := range s.elements {
		area += e.Area()
	}
	total := (s.mesh.MaxParam(XFixed) - s.mesh.MinParam(XFixed)) *
		(s.mesh.MaxParam(YFixed) - s.mesh.MinParam(YFixed))
	if math.Abs(area-total) > 1.e-10*total {
		return fmt.Errorf("elements cover area %g of %g", area, total)
	}
	return nil
}

// PartitionOfUnityError samples n x n points over the domain and returns the
// largest deviation of the sum of the Gamma-scaled functions from one
func (s *Space) PartitionOfUnityError(n int) (maxErr float64) {
	var (
		us = utils.LinSpace(s.mesh.MinParam(XFixed), s.mesh.MaxParam(XFixed), n)
		vs = utils.LinSpace(s.mesh.MinParam(YFixed), s.mesh.MaxParam(YFixed), n)
	)
	for _, v := range vs {
		for _, u := range us {
			e, err := s.ElementAt(u, v)
			if err != nil {
				panic(err)
			}
			var sum float64
			for id := range e.support {
				sum += s.basis[id].Evaluate(u, v)
			}
			maxErr = math.Max(maxErr, math.Abs(sum-1))
		}
	}
	return
}

// ReverseParameterDirection mirrors direction d of the whole space
func (s *Space) ReverseParameterDirection(d Direction2D) {
	s.mesh.Reverse(d)
	for _, b := range s.basis {
		b.ReverseParameterDirection(d)
	}
	for _, e := range s.elements {
		e.reverse(d)
	}
	s.reindex()
}

// SwapParameterDirections exchanges u and v of the whole space
func (s *Space) SwapParameterDirections() {
	s.mesh.Swap()
	s.degree[0], s.degree[1] = s.degree[1], s.degree[0]
	for _, b := range s.basis {
		b.SwapParameterDirections()
	}
	for _, e := range s.elements {
		e.swap()
	}
	s.reindex()
}
