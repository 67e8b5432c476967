package LR2D

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/lrspline/utils"
)

// Mesh2D holds the distinct knot values in each direction and, for every meshline,
// its multiplicity over each interval of the other direction. A zero multiplicity
// means the line is absent over that interval, which is how partial lines (the
// T-joints of an LR mesh) are represented.
type Mesh2D struct {
	knots [2][]float64
	// mults[d][i][j] is the multiplicity of line i of direction d over interval j
	// (between knots j and j+1) of the other direction
	mults   [2][][]int
	KnotTol float64
}

// NewMesh2D builds a tensor product mesh from two full knot vectors, repeated
// values included
func NewMesh2D(knotsU, knotsV []float64) (m *Mesh2D, err error) {
	m = &Mesh2D{KnotTol: utils.KNOTTOL}
	var (
		lineMults [2][]int
	)
	for d, kv := range [2][]float64{knotsU, knotsV} {
		if m.knots[d], lineMults[d], _, err = distinctKnots(kv, m.KnotTol); err != nil {
			return nil, err
		}
		if len(m.knots[d]) < 2 {
			return nil, fmt.Errorf("%s needs at least two distinct knots: %w",
				Direction2D(d), ErrInvalidKnotVector)
		}
	}
	for d := XFixed; d <= YFixed; d++ {
		var (
			nLines     = len(m.knots[d])
			nIntervals = len(m.knots[d.Flip()]) - 1
		)
		m.mults[d] = make([][]int, nLines)
		for i := range m.mults[d] {
			m.mults[d][i] = make([]int, nIntervals)
			for j := range m.mults[d][i] {
				m.mults[d][i][j] = lineMults[d][i]
			}
		}
	}
	return
}

// distinctKnots collapses a full knot vector into its distinct values, their
// multiplicities and, for every input position, the index of its distinct value
func distinctKnots(kv []float64, tol float64) (vals []float64, mults []int, ix utils.Index, err error) {
	if len(kv) == 0 {
		err = fmt.Errorf("empty knot vector: %w", ErrInvalidKnotVector)
		return
	}
	ix = utils.NewIndex(len(kv))
	for k, val := range kv {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			err = fmt.Errorf("knot %d is not finite: %w", k, ErrInvalidKnotVector)
			return
		}
		n := len(vals)
		switch {
		case n == 0 || val-vals[n-1] > tol:
			vals = append(vals, val)
			mults = append(mults, 1)
		case val < vals[n-1]-tol:
			err = fmt.Errorf("knot %d (%g) decreases: %w", k, val, ErrInvalidKnotVector)
			return
		default:
			mults[n-1]++
		}
		ix[k] = len(vals) - 1
	}
	return
}

func (m *Mesh2D) Clone() (c *Mesh2D) {
	c = &Mesh2D{KnotTol: m.KnotTol}
	for d := 0; d < 2; d++ {
		c.knots[d] = append([]float64(nil), m.knots[d]...)
		c.mults[d] = make([][]int, len(m.mults[d]))
		for i, row := range m.mults[d] {
			c.mults[d][i] = append([]int(nil), row...)
		}
	}
	return
}

func (m *Mesh2D) NumDistinctKnots(d Direction2D) int { return len(m.knots[d]) }

// KnotValues returns the distinct knots of direction d. The slice is owned by
// the mesh and must not be modified.
func (m *Mesh2D) KnotValues(d Direction2D) []float64 { return m.knots[d] }

func (m *Mesh2D) KnotValue(d Direction2D, ix int) (float64, error) {
	if ix < 0 || ix >= len(m.knots[d]) {
		return 0, fmt.Errorf("knot index %d in %s, valid [0,%d): %w",
			ix, d, len(m.knots[d]), ErrOutOfRange)
	}
	return m.knots[d][ix], nil
}

func (m *Mesh2D) MinParam(d Direction2D) float64 { return m.knots[d][0] }
func (m *Mesh2D) MaxParam(d Direction2D) float64 { return m.knots[d][len(m.knots[d])-1] }

// Mult is the multiplicity of line ix of direction d over interval j of the other direction
func (m *Mesh2D) Mult(d Direction2D, ix, j int) int { return m.mults[d][ix][j] }

// Nu is the smallest multiplicity of line ix of direction d over the other
// direction's intervals [start,end)
func (m *Mesh2D) Nu(d Direction2D, ix, start, end int) (nu int) {
	row := m.mults[d][ix]
	if start >= end {
		return 0
	}
	nu = row[start]
	for j := start + 1; j < end; j++ {
		if row[j] < nu {
			nu = row[j]
		}
	}
	return
}

func (m *Mesh2D) LargestMultInLine(d Direction2D, ix int) (mult int) {
	for _, mu := range m.mults[d][ix] {
		if mu > mult {
			mult = mu
		}
	}
	return
}

// IsFullLine reports whether line ix is present over the whole domain
func (m *Mesh2D) IsFullLine(d Direction2D, ix int) bool {
	return m.Nu(d, ix, 0, len(m.knots[d.Flip()])-1) > 0
}

// KnotIndex finds an existing distinct knot within KnotTol of value
func (m *Mesh2D) KnotIndex(d Direction2D, value float64) (ix int, found bool) {
	kv := m.knots[d]
	ix = sort.SearchFloat64s(kv, value)
	if ix < len(kv) && kv[ix]-value <= m.KnotTol {
		return ix, true
	}
	if ix > 0 && value-kv[ix-1] <= m.KnotTol {
		return ix - 1, true
	}
	return ix, false
}

// intervalIndex returns the interval [k_i,k_i+1] holding value, half open on the
// right unless atEnd, clamped to the valid interval range
func (m *Mesh2D) intervalIndex(d Direction2D, value float64, atEnd bool) (ix int) {
	kv := m.knots[d]
	if atEnd {
		ix = sort.SearchFloat64s(kv, value) - 1
	} else {
		ix = sort.Search(len(kv), func(i int) bool { return kv[i] > value }) - 1
	}
	if ix < 0 {
		ix = 0
	}
	if ix > len(kv)-2 {
		ix = len(kv) - 2
	}
	return
}

// LocateInterval returns the index of the closest meshline of direction d at or
// below value that is present at the other direction position otherValue. With
// atEnd the interval is closed on the right, which is only used at the end of
// the domain.
func (m *Mesh2D) LocateInterval(d Direction2D, value, otherValue float64, atEnd bool) (ix int, err error) {
	od := d.Flip()
	if value < m.MinParam(d) || value > m.MaxParam(d) {
		return 0, fmt.Errorf("%s value %g outside [%g,%g]: %w",
			d, value, m.MinParam(d), m.MaxParam(d), ErrOutOfRange)
	}
	if otherValue < m.MinParam(od) || otherValue > m.MaxParam(od) {
		return 0, fmt.Errorf("%s value %g outside [%g,%g]: %w",
			od, otherValue, m.MinParam(od), m.MaxParam(od), ErrOutOfRange)
	}
	var (
		otherIx = m.intervalIndex(od, otherValue, otherValue >= m.MaxParam(od))
	)
	ix = m.intervalIndex(d, value, atEnd)
	for ix > 0 && m.mults[d][ix][otherIx] == 0 {
		ix--
	}
	return
}

// InsertLine adds a distinct knot value to direction d, returning its index. A
// value within KnotTol of an existing knot returns that knot's index and isNew
// false. New lines start with zero multiplicity everywhere; every knot index
// >= ix held outside the mesh must be shifted by one by the caller.
func (m *Mesh2D) InsertLine(d Direction2D, value float64) (ix int, isNew bool, err error) {
	if math.IsNaN(value) || value < m.MinParam(d) || value > m.MaxParam(d) {
		return 0, false, fmt.Errorf("%s line at %g outside [%g,%g]: %w",
			d, value, m.MinParam(d), m.MaxParam(d), ErrOutOfRange)
	}
	var found bool
	if ix, found = m.KnotIndex(d, value); found {
		return ix, false, nil
	}
	od := d.Flip()
	m.knots[d] = append(m.knots[d], 0)
	copy(m.knots[d][ix+1:], m.knots[d][ix:])
	m.knots[d][ix] = value

	m.mults[d] = append(m.mults[d], nil)
	copy(m.mults[d][ix+1:], m.mults[d][ix:])
	m.mults[d][ix] = make([]int, len(m.knots[od])-1)

	// interval ix-1 of every perpendicular line is cut in two by the new knot
	for i, row := range m.mults[od] {
		row = append(row, 0)
		copy(row[ix:], row[ix-1:])
		m.mults[od][i] = row
	}
	return ix, true, nil
}

// SetMult sets the multiplicity of line ix over intervals [start,end)
func (m *Mesh2D) SetMult(d Direction2D, ix, start, end, mult int) error {
	if err := m.checkSegment(d, ix, start, end); err != nil {
		return err
	}
	for j := start; j < end; j++ {
		m.mults[d][ix][j] = mult
	}
	return nil
}

// IncrementMult raises the multiplicity of line ix over [start,end) by inc,
// capped at maxMult
func (m *Mesh2D) IncrementMult(d Direction2D, ix, start, end, inc, maxMult int) error {
	if err := m.checkSegment(d, ix, start, end); err != nil {
		return err
	}
	for j := start; j < end; j++ {
		m.mults[d][ix][j] = min(m.mults[d][ix][j]+inc, maxMult)
	}
	return nil
}

func (m *Mesh2D) checkSegment(d Direction2D, ix, start, end int) error {
	if ix < 0 || ix >= len(m.knots[d]) {
		return fmt.Errorf("line %d in %s: %w", ix, d, ErrOutOfRange)
	}
	if start < 0 || end > len(m.knots[d.Flip()])-1 || start >= end {
		return fmt.Errorf("segment [%d,%d) on %s line %d: %w", start, end, d, ix, ErrOutOfRange)
	}
	return nil
}

// IsUniform is true when all consecutive distinct knots of direction d are
// equally spaced
func (m *Mesh2D) IsUniform(d Direction2D) bool {
	kv := m.knots[d]
	if len(kv) < 3 {
		return true
	}
	h := kv[1] - kv[0]
	tol := math.Max(m.KnotTol, 1.e-10*math.Abs(h))
	for i := 2; i < len(kv); i++ {
		if math.Abs(kv[i]-kv[i-1]-h) > tol {
			return false
		}
	}
	return true
}

// AllMeshlinesUniform is true when every line of direction d spans the whole
// domain with a single multiplicity
func (m *Mesh2D) AllMeshlinesUniform(d Direction2D) bool {
	for _, row := range m.mults[d] {
		for _, mu := range row {
			if mu == 0 || mu != row[0] {
				return false
			}
		}
	}
	return true
}

// SetUniformMeshlines raises every line of direction d to its largest
// multiplicity over its whole length and returns the resulting multiplicities
func (m *Mesh2D) SetUniformMeshlines(d Direction2D) (mults utils.Index) {
	mults = utils.NewIndex(len(m.knots[d]))
	for i, row := range m.mults[d] {
		mults[i] = m.LargestMultInLine(d, i)
		for j := range row {
			row[j] = mults[i]
		}
	}
	return
}

// Reverse mirrors direction d, k -> min+max-k
func (m *Mesh2D) Reverse(d Direction2D) {
	var (
		kv         = m.knots[d]
		kmin, kmax = kv[0], kv[len(kv)-1]
		rev        = make([]float64, len(kv))
	)
	for i, val := range kv {
		rev[len(kv)-1-i] = kmin + kmax - val
	}
	rev[0], rev[len(rev)-1] = kmin, kmax
	m.knots[d] = rev
	lines := m.mults[d]
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	for _, row := range m.mults[d.Flip()] {
		utils.Index(row).Reverse()
	}
}

// Swap exchanges the two parameter directions
func (m *Mesh2D) Swap() {
	m.knots[0], m.knots[1] = m.knots[1], m.knots[0]
	m.mults[0], m.mults[1] = m.mults[1], m.mults[0]
}
