package utils

import (
	"fmt"
)

// Index is an integer vector, used for knot index vectors and handle lists
type Index []int

func NewIndex(N int) (I Index) {
	return make(Index, N)
}

func NewRange(rmin, rmax int) (r Index) {
	var (
		size = rmax - rmin + 1 // INCLUSIVE RANGE
	)
	r = make(Index, size)
	for i := range r {
		r[i] = i + rmin
	}
	return
}

func (I Index) Copy() (r Index) {
	r = make(Index, len(I))
	copy(r, I)
	return
}

// ShiftFrom adds val to every entry >= from, in place
func (I Index) ShiftFrom(from, val int) Index {
	for i := range I {
		if I[i] >= from {
			I[i] += val
		}
	}
	return I
}

func (I Index) Reverse() Index {
	for i, j := 0, len(I)-1; i < j; i, j = i+1, j-1 {
		I[i], I[j] = I[j], I[i]
	}
	return I
}

// Count returns the number of entries equal to val
func (I Index) Count(val int) (n int) {
	for _, ival := range I {
		if ival == val {
			n++
		}
	}
	return
}

// IsNonDecreasing reports whether the vector is weakly increasing
func (I Index) IsNonDecreasing() bool {
	for i := 1; i < len(I); i++ {
		if I[i] < I[i-1] {
			return false
		}
	}
	return true
}

// Compare orders two index vectors lexicographically, shorter first on a tie
func (I Index) Compare(J Index) int {
	for i := 0; i < len(I) && i < len(J); i++ {
		switch {
		case I[i] < J[i]:
			return -1
		case I[i] > J[i]:
			return 1
		}
	}
	switch {
	case len(I) < len(J):
		return -1
	case len(I) > len(J):
		return 1
	}
	return 0
}

// Insert returns a copy with val placed at position pos
func (I Index) Insert(pos, val int) (r Index) {
	if pos < 0 || pos > len(I) {
		panic(fmt.Sprintf("insert position %d out of bounds [0,%d]", pos, len(I)))
	}
	r = make(Index, 0, len(I)+1)
	r = append(r, I[:pos]...)
	r = append(r, val)
	r = append(r, I[pos:]...)
	return
}

func (I Index) FindVec(op EvalOp, Values Index) (J Index) {
	/*
		Each element of Values is compared to the corresponding value of I:
		if (Values[i] op I[i]): append i to the output index J
	*/
	switch op {
	case Equal:
		for i, val := range I {
			if val == Values[i] {
				J = append(J, i)
			}
		}
	case Less:
		for i, val := range I {
			if val < Values[i] {
				J = append(J, i)
			}
		}
	case LessOrEqual:
		for i, val := range I {
			if val <= Values[i] {
				J = append(J, i)
			}
		}
	case Greater:
		for i, val := range I {
			if val > Values[i] {
				J = append(J, i)
			}
		}
	case GreaterOrEqual:
		for i, val := range I {
			if val >= Values[i] {
				J = append(J, i)
			}
		}
	}
	return
}
