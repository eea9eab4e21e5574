// Package xslices provides the few generic slice helpers the graph core
// uses on top of the standard `slices` package.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// At returns the element at the given position. Negative positions count
// from the end, so At(s, -1) is the last element. It panics for out-of-bound
// positions, like a slice indexing.
func At[T any](s []T, pos int) T {
	if pos < 0 {
		pos = len(s) + pos
	}
	return s[pos]
}

// Last returns the last element of the slice. It panics if the slice is empty.
func Last[T any](s []T) T {
	return s[len(s)-1]
}

// Iota returns a slice of the given length with increasing numbers, starting
// at start. Iota(0, rank) is the identity permutation of a rank-axes shape.
func Iota[T constraints.Integer | constraints.Float](start T, len int) (s []T) {
	s = make([]T, len)
	for ii := range s {
		s[ii] = start + T(ii)
	}
	return
}
