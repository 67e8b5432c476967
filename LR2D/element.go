package LR2D

import (
	"fmt"
	"sort"

	"github.com/ctessum/geom"
)

// Element2D is a mesh cell bounded by active meshlines, with no active line
// crossing its interior. It refers to the basis functions overlapping it by
// handle and never owns them.
type Element2D struct {
	ID ElementID
	// Lo/Hi are knot indices of the bounding lines, [XFixed] for u and [YFixed] for v
	Lo, Hi  [2]int
	mesh    *Mesh2D
	support map[BasisID]struct{}
}

func newElement(mesh *Mesh2D, loU, hiU, loV, hiV int) *Element2D {
	return &Element2D{
		Lo:      [2]int{loU, loV},
		Hi:      [2]int{hiU, hiV},
		mesh:    mesh,
		support: make(map[BasisID]struct{}),
	}
}

func (e *Element2D) Umin() float64 { return e.mesh.knots[XFixed][e.Lo[XFixed]] }
func (e *Element2D) Umax() float64 { return e.mesh.knots[XFixed][e.Hi[XFixed]] }
func (e *Element2D) Vmin() float64 { return e.mesh.knots[YFixed][e.Lo[YFixed]] }
func (e *Element2D) Vmax() float64 { return e.mesh.knots[YFixed][e.Hi[YFixed]] }

func (e *Element2D) Area() float64 {
	return (e.Umax() - e.Umin()) * (e.Vmax() - e.Vmin())
}

// Bounds is the parameter rectangle, used as the R-tree key
func (e *Element2D) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: e.Umin(), Y: e.Vmin()},
		Max: geom.Point{X: e.Umax(), Y: e.Vmax()},
	}
}

// elementBox is the R-tree entry of an element
type elementBox struct {
	geom.Geom
	e *Element2D
}

// Contains is closed on all sides
func (e *Element2D) Contains(u, v float64) bool {
	return u >= e.Umin() && u <= e.Umax() && v >= e.Vmin() && v <= e.Vmax()
}

// OverlapsRect is true when the open rectangles intersect
func (e *Element2D) OverlapsRect(umin, umax, vmin, vmax float64) bool {
	return e.Umin() < umax && umin < e.Umax() && e.Vmin() < vmax && vmin < e.Vmax()
}

// Overlaps is true when the element lies in the interior of the support of b
func (e *Element2D) Overlaps(b *BasisFunction) bool {
	return b.OverlapsRect(e.Umin(), e.Umax(), e.Vmin(), e.Vmax())
}

// InsideRect is true when the element is contained in the closed rectangle
func (e *Element2D) InsideRect(umin, umax, vmin, vmax float64) bool {
	return e.Umin() >= umin && e.Umax() <= umax && e.Vmin() >= vmin && e.Vmax() <= vmax
}

func (e *Element2D) AddSupport(b BasisID) bool {
	if _, present := e.support[b]; present {
		return false
	}
	e.support[b] = struct{}{}
	return true
}

func (e *Element2D) RemoveSupport(b BasisID) {
	delete(e.support, b)
}

func (e *Element2D) HasSupportedElement(b BasisID) bool {
	_, present := e.support[b]
	return present
}

func (e *Element2D) NumSupportFunctions() int { return len(e.support) }

// SupportFunctions lists overlapping basis functions in increasing handle order
func (e *Element2D) SupportFunctions() (ids []BasisID) {
	ids = make([]BasisID, 0, len(e.support))
	for b := range e.support {
		ids = append(ids, b)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return
}

func (e *Element2D) shiftIndices(d Direction2D, from int) {
	if e.Lo[d] >= from {
		e.Lo[d]++
	}
	if e.Hi[d] >= from {
		e.Hi[d]++
	}
}

func (e *Element2D) reverse(d Direction2D) {
	last := e.mesh.NumDistinctKnots(d) - 1
	e.Lo[d], e.Hi[d] = last-e.Hi[d], last-e.Lo[d]
}

func (e *Element2D) swap() {
	e.Lo[0], e.Lo[1] = e.Lo[1], e.Lo[0]
	e.Hi[0], e.Hi[1] = e.Hi[1], e.Hi[0]
}

func (e *Element2D) String() string {
	return fmt.Sprintf("E[%d] [%g,%g]x[%g,%g] nb=%d", e.ID,
		e.Umin(), e.Umax(), e.Vmin(), e.Vmax(), len(e.support))
}
