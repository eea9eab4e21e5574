package shapes

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/infergraph/infergraph/types/xslices"
	"github.com/pkg/errors"
)

// BroadcastDimensions applies the standard pairwise broadcasting rule to two
// dimension lists, right-aligning them and padding the shorter with 1s:
// per axis, if one dimension is 1 the other wins; if they are equal, that
// value; otherwise the dimensions are incompatible and an error is returned.
//
// It is used for the leading (batch) axes of MatMul operands, where the
// trailing two axes follow matrix-multiplication rules instead.
func BroadcastDimensions(a, b []int) ([]int, error) {
	rank := max(len(a), len(b))
	out := make([]int, rank)
	for axis := rank - 1; axis >= 0; axis-- {
		dimA, dimB := 1, 1
		if fromEnd := rank - axis; fromEnd <= len(a) {
			dimA = a[len(a)-fromEnd]
		}
		if fromEnd := rank - axis; fromEnd <= len(b) {
			dimB = b[len(b)-fromEnd]
		}
		switch {
		case dimA == dimB:
			out[axis] = dimA
		case dimA == 1:
			out[axis] = dimB
		case dimB == 1:
			out[axis] = dimA
		default:
			return nil, errors.Errorf(
				"dimensions %v and %v are not broadcastable: axis %d has incompatible dimensions %d and %d",
				a, b, axis, dimA, dimB)
		}
	}
	return out, nil
}

// Volume returns the product of the given dimensions, 1 for an empty list.
// It is the element count of a tensor with those dimensions.
func Volume(dimensions []int) int {
	volume := 1
	for _, dim := range dimensions {
		volume *= dim
	}
	return volume
}

// IsPermutation checks whether perm is a valid permutation of the axes of a
// rank-axes shape: each value in [0, rank) appearing exactly once.
func IsPermutation(perm []int, rank int) bool {
	if len(perm) != rank {
		return false
	}
	axesSet := slices.Clone(perm)
	slices.Sort(axesSet)
	for ii, axis := range axesSet {
		if axis != ii {
			return false
		}
	}
	return true
}

// IdentityPermutation returns the permutation that maps every axis to itself.
func IdentityPermutation(rank int) []int {
	return xslices.Iota(0, rank)
}

// ComposePermutations returns the permutation equivalent to applying first
// and then second: out[i] = first[second[i]].
//
// Both must be permutations of the same rank; it panics otherwise -- callers
// are expected to have validated their permutations on construction.
func ComposePermutations(first, second []int) []int {
	if !IsPermutation(first, len(first)) || !IsPermutation(second, len(first)) {
		exceptions.Panicf("ComposePermutations(%v, %v): both must be permutations of the same rank", first, second)
	}
	out := make([]int, len(second))
	for ii, axis := range second {
		out[ii] = first[axis]
	}
	return out
}

// IsLastTwoSwap returns whether perm is the identity on all axes except the
// last two, which are swapped. This is the only transpose shape that can be
// folded into a MatMul transpose flag.
func IsLastTwoSwap(perm []int) bool {
	rank := len(perm)
	if rank < 2 {
		return false
	}
	if perm[rank-1] != rank-2 || perm[rank-2] != rank-1 {
		return false
	}
	for axis := 0; axis < rank-2; axis++ {
		if perm[axis] != axis {
			return false
		}
	}
	return true
}

// PermuteDimensions reindexes dims by the given permutation:
// out[i] = dims[perm[i]]. The permutation must have been validated with
// IsPermutation.
func PermuteDimensions(dims, perm []int) []int {
	out := make([]int, len(dims))
	for axis, srcAxis := range perm {
		out[axis] = dims[srcAxis]
	}
	return out
}
