package LR2D

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/notargets/lrspline/utils"
)

// Refine inserts the knot line segments in order. Each insertion is all or
// nothing; on error the results of the insertions already committed are
// returned with it. ctx is checked before every insertion.
func (s *Space) Refine(ctx context.Context, refs ...Refinement2D) (results []*RefinementResult, err error) {
	for _, ref := range refs {
		if err = ctx.Err(); err != nil {
			return
		}
		var res *RefinementResult
		res, err = s.insertLine(ref)
		if res != nil && res.State == Completed {
			results = append(results, res)
		}
		if err != nil {
			return
		}
	}
	return
}

// lineInsertion is the state of one knot line insertion before commit
type lineInsertion struct {
	res     *RefinementResult
	mesh    *Mesh2D
	parents []*BasisFunction
	merged  []*BasisFunction
	items   []*stagedFunction
}

func (s *Space) reject(res *RefinementResult, err error) (*RefinementResult, error) {
	res.State = Rejected
	s.log.WithFields(logrus.Fields{
		"dir":   res.Ref.D,
		"value": res.Ref.Kval,
		"start": res.Ref.Start,
		"end":   res.Ref.End,
	}).WithError(err).Warn("refinement rejected")
	return res, err
}

func (s *Space) insertLine(ref Refinement2D) (res *RefinementResult, err error) {
	var (
		li = &lineInsertion{res: &RefinementResult{State: Classifying, Ref: ref}}
	)
	res = li.res
	if err = s.classify(li); err != nil {
		return s.reject(res, err)
	}
	if li.mesh == nil {
		// already present
		res.State = Completed
		return
	}
	res.State = Collecting
	s.collect(li)
	res.State = Splitting
	s.split(li)
	if err = s.checkSoundness(li); err != nil {
		return s.reject(res, err)
	}
	s.commit(li)
	res.State = Completed
	fields := logrus.Fields{
		"dir":     ref.D,
		"value":   ref.Kval,
		"removed": len(res.Removed),
		"added":   len(res.Added),
	}
	if res.Changed() {
		fields["transfer"] = res.Transfer.NNZ()
	}
	s.log.WithFields(fields).Debug("refinement committed")
	return
}

// classify validates the segment and applies it to a clone of the mesh. li.mesh
// stays nil when the mesh already holds the line.
func (s *Space) classify(li *lineInsertion) (err error) {
	var (
		ref     = li.res.Ref
		d       = ref.D
		od      = d.Flip()
		m       = s.mesh
		maxMult = s.degree[d] + 1
		found   bool
	)
	if d != XFixed && d != YFixed {
		return fmt.Errorf("direction %d: %w", d, ErrOutOfRange)
	}
	if ref.Multiplicity < 1 || ref.Multiplicity > maxMult {
		return fmt.Errorf("multiplicity %d, valid [1,%d]: %w", ref.Multiplicity, maxMult, ErrInvalidKnotVector)
	}
	if !(ref.Kval > m.MinParam(d) && ref.Kval < m.MaxParam(d)) {
		return fmt.Errorf("%s line at %g not inside (%g,%g): %w", d, ref.Kval,
			m.MinParam(d), m.MaxParam(d), ErrOutOfRange)
	}
	var (
		start = math.Max(ref.Start, m.MinParam(od))
		end   = math.Min(ref.End, m.MaxParam(od))
	)
	if !(start < end) {
		return fmt.Errorf("segment [%g,%g] is empty: %w", ref.Start, ref.End, ErrOutOfRange)
	}
	if li.res.StartIx, found = m.KnotIndex(od, start); !found {
		return fmt.Errorf("segment start %g is not a %s knot: %w", start, od, ErrRefinementRejected)
	}
	if li.res.EndIx, found = m.KnotIndex(od, end); !found {
		return fmt.Errorf("segment end %g is not a %s knot: %w", end, od, ErrRefinementRejected)
	}
	// nothing to do if the line is already there
	if ix, present := m.KnotIndex(d, ref.Kval); present &&
		m.Nu(d, ix, li.res.StartIx, li.res.EndIx) >= ref.Multiplicity {
		li.res.KnotIndex = ix
		return nil
	}
	nm := m.Clone()
	if li.res.KnotIndex, li.res.NewLine, err = nm.InsertLine(d, ref.Kval); err != nil {
		return err
	}
	var (
		ix         = li.res.KnotIndex
		sIx, eIx   = li.res.StartIx, li.res.EndIx
		startValid = sIx == 0 || nm.mults[d][ix][sIx-1] > 0 || crossesAt(nm, d, ix, sIx)
		endValid   = eIx == nm.NumDistinctKnots(od)-1 || nm.mults[d][ix][eIx] > 0 || crossesAt(nm, d, ix, eIx)
	)
	if !startValid || !endValid {
		return fmt.Errorf("%s segment at %g over [%g,%g] does not end on meshlines: %w",
			d, ref.Kval, start, end, ErrRefinementRejected)
	}
	for j := sIx; j < eIx; j++ {
		nm.mults[d][ix][j] = max(nm.mults[d][ix][j], ref.Multiplicity)
	}
	li.mesh = nm
	return nil
}

// crossesAt reports whether line oix of the other direction is active next to
// knot ix of direction d
func crossesAt(m *Mesh2D, d Direction2D, ix, oix int) bool {
	row := m.mults[d.Flip()][oix]
	return (ix > 0 && row[ix-1] > 0) || (ix < len(row) && row[ix] > 0)
}

// collect stages copies, on the new mesh, of the functions the new line crosses
func (s *Space) collect(li *lineInsertion) {
	var (
		res  = li.res
		d    = res.Ref.D
		od   = d.Flip()
		val  = res.Ref.Kval
		lo   = s.mesh.knots[od][res.StartIx]
		hi   = s.mesh.knots[od][res.EndIx]
		seen = make(map[BasisID]bool)
		rect [4]float64
	)
	rect[2*d], rect[2*d+1] = val, val
	rect[2*od], rect[2*od+1] = lo, hi
	for _, e := range s.searchElements(rect[0], rect[1], rect[2], rect[3]) {
		for id := range e.support {
			if seen[id] {
				continue
			}
			seen[id] = true
			b := s.basis[id]
			if b.Min(d) < val && val < b.Max(d) && b.Min(od) < hi && lo < b.Max(od) {
				li.parents = append(li.parents, b)
			}
		}
	}
	sort.Slice(li.parents, func(i, j int) bool { return li.parents[i].Less(li.parents[j]) })
}

// onMesh copies b onto the staged mesh
func (li *lineInsertion) onMesh(b *BasisFunction) (c *BasisFunction) {
	c = b.Copy()
	c.mesh = li.mesh
	if li.res.NewLine {
		c.shiftIndices(li.res.Ref.D, li.res.KnotIndex)
	}
	return
}

func (s *Space) split(li *lineInsertion) {
	var (
		items     []*stagedFunction
		splitters []*BasisFunction
	)
	for _, b := range li.parents {
		c := li.onMesh(b)
		if _, _, split := needsSplit(li.mesh, c); split {
			items = append(items, newStaged(c))
			splitters = append(splitters, b)
		}
	}
	li.parents = splitters
	li.items = iterativelySplit(li.mesh, items)
	if s.PruneTolerance > 0 {
		kept := li.items[:0]
		for _, sf := range li.items {
			if sf.b.Gamma >= s.PruneTolerance {
				kept = append(kept, sf)
			}
		}
		li.items = kept
	}
	// children equal to a function outside the split set absorb it
	for _, sf := range li.items {
		if id, present := s.byKnots[sf.b.knotKey()]; present {
			old := s.basis[id]
			sf.absorb(newStaged(li.onMesh(old)))
			li.merged = append(li.merged, old)
		}
	}
}

// checkSoundness compares the old and new sums of CoefTimesGamma*B and
// Gamma*B on sample points of every parent support
func (s *Space) checkSoundness(li *lineInsertion) error {
	var (
		old   = append(append([]*BasisFunction(nil), li.parents...), li.merged...)
		fracs = []float64{0.03, 0.29, 0.5, 0.71, 0.97}
	)
	for _, p := range li.parents {
		for _, fu := range fracs {
			for _, fv := range fracs {
				var (
					u   = p.Min(XFixed) + fu*(p.Max(XFixed)-p.Min(XFixed))
					v   = p.Min(YFixed) + fv*(p.Max(YFixed)-p.Min(YFixed))
					was = make([]float64, s.dim+1)
					is  = make([]float64, s.dim+1)
				)
				for _, b := range old {
					accumulate(was, b, u, v)
				}
				for _, sf := range li.items {
					accumulate(is, sf.b, u, v)
				}
				for k := range was {
					if math.Abs(was[k]-is[k]) > s.SoundnessTol*math.Max(1, math.Abs(was[k])) {
						return fmt.Errorf("represented function changes by %g at (%g,%g): %w",
							is[k]-was[k], u, v, ErrRefinementRejected)
					}
				}
			}
		}
	}
	return nil
}

// accumulate adds the numerator and denominator terms of b at (u,v) to sum
func accumulate(sum []float64, b *BasisFunction, u, v float64) {
	raw := b.EvalBasisFunction(u, v, 0, 0, b.atEnd(XFixed, u), b.atEnd(YFixed, v))
	if raw == 0 {
		return
	}
	if b.Rational {
		raw *= b.Weight
	}
	dim := len(b.CoefTimesGamma)
	for k, c := range b.CoefTimesGamma {
		sum[k] += c * raw
	}
	sum[dim] += b.Gamma * raw
}

func (s *Space) commit(li *lineInsertion) {
	var (
		res = li.res
		d   = res.Ref.D
		od  = d.Flip()
		ix  = res.KnotIndex
	)
	*s.mesh = *li.mesh
	if res.NewLine {
		for _, b := range s.basis {
			b.shiftIndices(d, ix)
		}
		for _, e := range s.elements {
			e.shiftIndices(d, ix)
		}
	}
	// elements the segment cuts through, with what they supported
	var (
		crossed     []*Element2D
		oldSupports []map[BasisID]struct{}
	)
	for _, e := range s.Elements() {
		if e.Lo[d] < ix && ix < e.Hi[d] && e.Lo[od] < res.EndIx && res.StartIx < e.Hi[od] {
			crossed = append(crossed, e)
			sup := make(map[BasisID]struct{}, len(e.support))
			for id := range e.support {
				sup[id] = struct{}{}
			}
			oldSupports = append(oldSupports, sup)
			s.removeElement(e.ID)
		}
	}
	parents := make(map[BasisID]struct{}, len(li.parents)+len(li.merged))
	for _, p := range li.parents {
		parents[p.ID] = struct{}{}
		res.Removed = append(res.Removed, p.ID)
		s.removeFunction(p.ID)
	}
	for _, m := range li.merged {
		parents[m.ID] = struct{}{}
	}
	var (
		added   []*BasisFunction
		itemIDs = make([]BasisID, len(li.items))
	)
	for i, sf := range li.items {
		if id, present := s.byKnots[sf.b.knotKey()]; present {
			b := s.basis[id]
			b.Gamma, b.Weight, b.CoefTimesGamma = sf.b.Gamma, sf.b.Weight, sf.b.CoefTimesGamma
			res.Modified = append(res.Modified, id)
			itemIDs[i] = id
			continue
		}
		b := sf.b
		b.support = make(map[ElementID]struct{})
		itemIDs[i] = s.addFunction(b)
		res.Added = append(res.Added, itemIDs[i])
		added = append(added, b)
	}
	var fresh [][]*Element2D
	for _, e := range crossed {
		var els []*Element2D
		for _, ne := range identifyElements(s.mesh, e.Lo[XFixed], e.Hi[XFixed], e.Lo[YFixed], e.Hi[YFixed]) {
			s.addElement(ne)
			els = append(els, ne)
		}
		fresh = append(fresh, els)
	}
	s.reindex()
	for k, els := range fresh {
		for id := range oldSupports[k] {
			b, present := s.basis[id]
			if !present {
				continue
			}
			for _, ne := range els {
				if ne.Overlaps(b) {
					link(b, ne)
				}
			}
		}
	}
	for _, b := range added {
		s.linkFunction(b)
	}
	s.buildTransfer(li, itemIDs, parents)
}

// buildTransfer fills Parents, Children and Transfer from the staged gammas.
// itemIDs holds the committed handle of each staged function.
func (s *Space) buildTransfer(li *lineInsertion, itemIDs []BasisID, parents map[BasisID]struct{}) {
	var (
		res = li.res
		col = make(map[BasisID]int)
		row = make(map[BasisID]int)
	)
	res.Parents = append(append([]BasisID(nil), res.Removed...), res.Modified...)
	res.Children = append(append([]BasisID(nil), res.Added...), res.Modified...)
	if len(res.Parents) == 0 || len(res.Children) == 0 {
		return
	}
	for j, id := range res.Parents {
		col[id] = j
	}
	for i, id := range res.Children {
		row[id] = i
	}
	W := utils.NewDOK(len(res.Children), len(res.Parents))
	for i, sf := range li.items {
		for pid, g := range sf.from {
			if _, present := parents[pid]; present {
				W.AddAt(row[itemIDs[i]], col[pid], g/sf.b.weightedGamma())
			}
		}
	}
	W.SetReadOnly("Transfer")
	res.Transfer = W.ToCSR()
}

// RefineBasisFunction inserts, for each direction in dirs, a line through
// the middle of every knot interval of the function's support, spanning its
// whole support in the other direction
func (s *Space) RefineBasisFunction(ctx context.Context, id BasisID, dirs ...Direction2D) ([]*RefinementResult, error) {
	b, err := s.Basis(id)
	if err != nil {
		return nil, err
	}
	return s.Refine(ctx, s.structuredRefinements(b, dirs)...)
}

func (s *Space) structuredRefinements(b *BasisFunction, dirs []Direction2D) (refs []Refinement2D) {
	for _, d := range dirs {
		var (
			od    = d.Flip()
			kv    = b.Kvec(d)
			kvals = s.mesh.knots[d]
		)
		for k := 0; k+1 < len(kv); k++ {
			lo, hi := kvals[kv[k]], kvals[kv[k+1]]
			if lo == hi {
				continue
			}
			refs = append(refs, Refinement2D{
				Kval:         0.5 * (lo + hi),
				Start:        b.Min(od),
				End:          b.Max(od),
				D:            d,
				Multiplicity: 1,
			})
		}
	}
	return
}

// RefineRegion applies RefineBasisFunction to every function whose support is
// inside the closed rectangle
func (s *Space) RefineRegion(ctx context.Context, umin, umax, vmin, vmax float64,
	dirs ...Direction2D) ([]*RefinementResult, error) {
	var (
		inside = make(map[BasisID]bool)
		fns    []*BasisFunction
	)
	for _, e := range s.searchElements(umin, umax, vmin, vmax) {
		if !e.InsideRect(umin, umax, vmin, vmax) {
			continue
		}
		for id := range e.support {
			if _, seen := inside[id]; seen {
				continue
			}
			b := s.basis[id]
			inside[id] = b.Min(XFixed) >= umin && b.Max(XFixed) <= umax &&
				b.Min(YFixed) >= vmin && b.Max(YFixed) <= vmax
			if inside[id] {
				fns = append(fns, b)
			}
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Less(fns[j]) })
	var (
		refs []Refinement2D
		dup  = make(map[Refinement2D]bool)
	)
	for _, b := range fns {
		for _, ref := range s.structuredRefinements(b, dirs) {
			if !dup[ref] {
				dup[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return s.Refine(ctx, refs...)
}

// RefineUniform inserts a full length line through the middle of every knot
// interval of direction d
func (s *Space) RefineUniform(ctx context.Context, d Direction2D) ([]*RefinementResult, error) {
	var (
		od    = d.Flip()
		kvals = s.mesh.knots[d]
		n     = len(kvals) - 1
		mids  = make([]float64, n)
	)
	if s.mesh.IsUniform(d) {
		h := (kvals[n] - kvals[0]) / float64(n)
		for i := range mids {
			mids[i] = kvals[0] + (float64(i)+0.5)*h
		}
	} else {
		for i := range mids {
			mids[i] = 0.5 * (kvals[i] + kvals[i+1])
		}
	}
	refs := make([]Refinement2D, n)
	for i, val := range mids {
		refs[i] = Refinement2D{
			Kval:         val,
			Start:        s.mesh.MinParam(od),
			End:          s.mesh.MaxParam(od),
			D:            d,
			Multiplicity: 1,
		}
	}
	return s.Refine(ctx, refs...)
}

// KnotsToInsert returns the knots, repeated by missing multiplicity, that full
// length lines need so the spline space of the tensor knot vector knots in
// direction d becomes a subspace of this one
func (s *Space) KnotsToInsert(d Direction2D, knots []float64) (ins []float64, err error) {
	var (
		vals              []float64
		required, current utils.Index
	)
	if vals, required, current, err = requiredKnots(s.mesh, d, knots, s.degree[d]+1); err != nil {
		return
	}
	for i, val := range vals {
		for k := current[i]; k < required[i]; k++ {
			ins = append(ins, val)
		}
	}
	return
}

// AbsorbKnotVector inserts the full length lines KnotsToInsert asks for
func (s *Space) AbsorbKnotVector(ctx context.Context, d Direction2D, knots []float64) ([]*RefinementResult, error) {
	vals, required, _, err := requiredKnots(s.mesh, d, knots, s.degree[d]+1)
	if err != nil {
		return nil, err
	}
	var (
		od   = d.Flip()
		refs = make([]Refinement2D, len(vals))
	)
	for i, val := range vals {
		refs[i] = Refinement2D{
			Kval:         val,
			Start:        s.mesh.MinParam(od),
			End:          s.mesh.MaxParam(od),
			D:            d,
			Multiplicity: required[i],
		}
	}
	return s.Refine(ctx, refs...)
}

// ExpandToFullTensor extends every meshline over the whole domain at its
// largest multiplicity and splits all functions accordingly, leaving the
// tensor product space of the current knots
func (s *Space) ExpandToFullTensor(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		li = &lineInsertion{
			res:  &RefinementResult{State: Splitting},
			mesh: s.mesh.Clone(),
		}
		all = s.BasisFunctions()
		fns = make([]*BasisFunction, len(all))
	)
	for i, b := range all {
		fns[i] = li.onMesh(b)
	}
	li.parents = all
	li.items = tensorSplit(li.mesh, fns)
	if err := s.checkSoundness(li); err != nil {
		s.log.WithError(err).Warn("tensor expansion rejected")
		return err
	}
	*s.mesh = *li.mesh
	s.basis = make(map[BasisID]*BasisFunction, len(li.items))
	for _, sf := range li.items {
		sf.b.support = make(map[ElementID]struct{})
		s.addFunction(sf.b)
	}
	s.rebuildElements()
	s.log.WithFields(logrus.Fields{
		"removed": len(all),
		"added":   len(li.items),
	}).Debug("expanded to full tensor mesh")
	return nil
}
