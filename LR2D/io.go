package LR2D

import (
	"bufio"
	"fmt"
	"io"

	"github.com/notargets/lrspline/utils"
)

// Write stores the function as whitespace separated fields: dimension, rational
// flag, CoefTimesGamma, Gamma, Weight, then each local knot vector preceded by
// its degree. Floats are written in shortest round trip form.
func (b *BasisFunction) Write(w io.Writer) (err error) {
	var rational int
	if b.Rational {
		rational = 1
	}
	if _, err = fmt.Fprintf(w, "%d %d", b.Dimension(), rational); err != nil {
		return
	}
	for _, c := range b.CoefTimesGamma {
		if _, err = fmt.Fprintf(w, " %v", c); err != nil {
			return
		}
	}
	if _, err = fmt.Fprintf(w, " %v %v", b.Gamma, b.Weight); err != nil {
		return
	}
	for _, kv := range []utils.Index{b.KvecU, b.KvecV} {
		if _, err = fmt.Fprintf(w, " %d", len(kv)-2); err != nil {
			return
		}
		for _, ix := range kv {
			if _, err = fmt.Fprintf(w, " %d", ix); err != nil {
				return
			}
		}
	}
	_, err = fmt.Fprintln(w)
	return
}

// ReadBasisFunction reads a function stored by Write. The knot indices refer
// to mesh.
func ReadBasisFunction(r io.Reader, mesh *Mesh2D) (b *BasisFunction, err error) {
	var (
		dim, rational int
		gamma, weight float64
		kvecs         [2]utils.Index
	)
	if _, err = fmt.Fscan(r, &dim, &rational); err != nil {
		return nil, fmt.Errorf("basis function header: %w", err)
	}
	if dim < 1 || rational < 0 || rational > 1 {
		return nil, fmt.Errorf("basis function header %d %d: %w", dim, rational, ErrOutOfRange)
	}
	ctg := make([]float64, dim)
	for k := range ctg {
		if _, err = fmt.Fscan(r, &ctg[k]); err != nil {
			return nil, fmt.Errorf("coefficient %d: %w", k, err)
		}
	}
	if _, err = fmt.Fscan(r, &gamma, &weight); err != nil {
		return nil, fmt.Errorf("gamma and weight: %w", err)
	}
	for d := range kvecs {
		var deg int
		if _, err = fmt.Fscan(r, &deg); err != nil {
			return nil, fmt.Errorf("%s degree: %w", Direction2D(d), err)
		}
		if deg < 0 || deg > MaxDegree {
			return nil, fmt.Errorf("%s degree %d: %w", Direction2D(d), deg, ErrDegreeExceeded)
		}
		kvecs[d] = utils.NewIndex(deg + 2)
		for k := range kvecs[d] {
			if _, err = fmt.Fscan(r, &kvecs[d][k]); err != nil {
				return nil, fmt.Errorf("%s knot index %d: %w", Direction2D(d), k, err)
			}
		}
	}
	if b, err = NewBasisFunction(mesh, kvecs[0], kvecs[1], ctg, gamma); err != nil {
		return nil, err
	}
	b.Rational, b.Weight = rational == 1, weight
	return
}

func (m *Mesh2D) Write(w io.Writer) (err error) {
	for d := XFixed; d <= YFixed; d++ {
		if _, err = fmt.Fprintf(w, "%d", len(m.knots[d])); err != nil {
			return
		}
		for _, k := range m.knots[d] {
			if _, err = fmt.Fprintf(w, " %v", k); err != nil {
				return
			}
		}
		if _, err = fmt.Fprintln(w); err != nil {
			return
		}
	}
	for d := XFixed; d <= YFixed; d++ {
		for _, row := range m.mults[d] {
			for j, mu := range row {
				sep := " "
				if j == 0 {
					sep = ""
				}
				if _, err = fmt.Fprintf(w, "%s%d", sep, mu); err != nil {
					return
				}
			}
			if _, err = fmt.Fprintln(w); err != nil {
				return
			}
		}
	}
	return
}

func ReadMesh2D(r io.Reader) (m *Mesh2D, err error) {
	m = &Mesh2D{KnotTol: utils.KNOTTOL}
	for d := XFixed; d <= YFixed; d++ {
		var n int
		if _, err = fmt.Fscan(r, &n); err != nil {
			return nil, fmt.Errorf("%s knot count: %w", d, err)
		}
		if n < 2 {
			return nil, fmt.Errorf("%s knot count %d: %w", d, n, ErrInvalidKnotVector)
		}
		m.knots[d] = make([]float64, n)
		for k := range m.knots[d] {
			if _, err = fmt.Fscan(r, &m.knots[d][k]); err != nil {
				return nil, fmt.Errorf("%s knot %d: %w", d, k, err)
			}
			if k > 0 && !(m.knots[d][k] > m.knots[d][k-1]) {
				return nil, fmt.Errorf("%s knots not increasing at %d: %w", d, k, ErrInvalidKnotVector)
			}
		}
	}
	for d := XFixed; d <= YFixed; d++ {
		m.mults[d] = make([][]int, len(m.knots[d]))
		for i := range m.mults[d] {
			m.mults[d][i] = make([]int, len(m.knots[d.Flip()])-1)
			for j := range m.mults[d][i] {
				if _, err = fmt.Fscan(r, &m.mults[d][i][j]); err != nil {
					return nil, fmt.Errorf("%s line %d multiplicity %d: %w", d, i, j, err)
				}
				if m.mults[d][i][j] < 0 {
					return nil, fmt.Errorf("%s line %d multiplicity %d: %w", d, i, m.mults[d][i][j], ErrInvalidKnotVector)
				}
			}
		}
	}
	return
}

// Write stores the space: a header line with the degrees, dimension, rational
// flag and function count, the mesh, then the functions in BasisFunctions order.
// Elements are derived from the mesh on reading.
func (s *Space) Write(w io.Writer) (err error) {
	var (
		bw       = bufio.NewWriter(w)
		rational int
	)
	if s.rational {
		rational = 1
	}
	if _, err = fmt.Fprintf(bw, "%d %d %d %d %d\n", s.degree[XFixed], s.degree[YFixed],
		s.dim, rational, len(s.basis)); err != nil {
		return
	}
	if err = s.mesh.Write(bw); err != nil {
		return
	}
	for _, b := range s.BasisFunctions() {
		if err = b.Write(bw); err != nil {
			return
		}
	}
	return bw.Flush()
}

// ReadSpace reads a space stored by Space.Write
func ReadSpace(r io.Reader, opts ...Option) (s *Space, err error) {
	var (
		br                       = bufio.NewReader(r)
		degU, degV, dim, rat, nb int
		mesh                     *Mesh2D
	)
	if _, err = fmt.Fscan(br, &degU, &degV, &dim, &rat, &nb); err != nil {
		return nil, fmt.Errorf("space header: %w", err)
	}
	if degU < 0 || degU > MaxDegree || degV < 0 || degV > MaxDegree {
		return nil, fmt.Errorf("degrees %d,%d: %w", degU, degV, ErrDegreeExceeded)
	}
	if mesh, err = ReadMesh2D(br); err != nil {
		return nil, err
	}
	s = newEmptySpace(mesh, degU, degV, dim, rat == 1)
	for _, opt := range opts {
		opt(s)
	}
	for k := 0; k < nb; k++ {
		var b *BasisFunction
		if b, err = ReadBasisFunction(br, mesh); err != nil {
			return nil, fmt.Errorf("basis function %d: %w", k, err)
		}
		if b.Degree(XFixed) != degU || b.Degree(YFixed) != degV || b.Dimension() != dim {
			return nil, fmt.Errorf("basis function %d does not match the space header: %w", k, ErrInvalidKnotVector)
		}
		s.addFunction(b)
	}
	s.rebuildElements()
	return
}
