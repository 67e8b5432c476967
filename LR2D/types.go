package LR2D

import (
	"errors"
)

const (
	// MaxDegree bounds the polynomial degree in each direction. Evaluation scratch
	// space is sized from it.
	MaxDegree = 20
	// MaxBatchDerivOrder is the highest derivative order computed by the batched
	// evaluators; larger requests are clamped.
	MaxBatchDerivOrder = 3
)

var (
	// ErrOutOfRange is returned for knot, interval or handle queries outside valid bounds.
	ErrOutOfRange = errors.New("index or parameter out of range")
	// ErrInvalidKnotVector is returned for knot data that is not weakly increasing
	// or that would exceed the degree+1 multiplicity ceiling.
	ErrInvalidKnotVector = errors.New("invalid knot vector")
	// ErrRefinementRejected is returned when a single knot line insertion could not
	// be completed. The space is left unchanged.
	ErrRefinementRejected = errors.New("refinement rejected")
	// ErrDegreeExceeded is returned when a degree or derivative order is above MaxDegree.
	ErrDegreeExceeded = errors.New("degree or derivative order exceeds maximum")
)

// Direction2D names a family of knot lines. XFixed lines have constant u and are
// inserted by refining in the u direction, YFixed lines have constant v.
type Direction2D uint8

const (
	XFixed Direction2D = iota
	YFixed
)

func (d Direction2D) Flip() Direction2D {
	return 1 - d
}

func (d Direction2D) String() string {
	return [...]string{"XFixed", "YFixed"}[d]
}

// BasisID is the stable handle of a basis function within a Space
type BasisID int

// ElementID is the stable handle of an element within a Space
type ElementID int

// RefinementState tracks a single knot line insertion
type RefinementState uint8

const (
	Classifying RefinementState = iota
	Collecting
	Splitting
	Completed
	Rejected
)

func (s RefinementState) String() string {
	return [...]string{"Classifying", "Collecting", "Splitting", "Completed", "Rejected"}[s]
}

// derivIndex gives the position of the (du,dv) partial in the triangular
// ordering (0,0),(1,0),(0,1),(2,0),(1,1),(0,2),...
func derivIndex(du, dv int) int {
	n := du + dv
	return n*(n+1)/2 + dv
}

// numDerivs is the number of partials of total order <= order
func numDerivs(order int) int {
	return (order + 1) * (order + 2) / 2
}

func clampOrder(order int) int {
	switch {
	case order < 0:
		return 0
	case order > MaxBatchDerivOrder:
		return MaxBatchDerivOrder
	}
	return order
}
