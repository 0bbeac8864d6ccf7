// Package mat holds the stateless array transforms used by the type engine:
// index permutations, boolean masks, sampling and distribution draws.
//
// Functions never retain their inputs. Randomness always comes from an
// explicit *rand.Rand so callers control reproducibility.
package mat

import (
	"cmp"
	"errors"
	"slices"
)

var (
	ErrSize             = errors.New("size must be positive")
	ErrUndersizedDomain = errors.New("cannot sample without replacement from an undersized domain")
	ErrEmptyDomain      = errors.New("cannot sample from an empty domain")
)

// Identity returns the index array [0, 1, ..., size-1].
func Identity(size int) []int {
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Selector returns an all-true mask of the given size.
func Selector(size int) []bool {
	m := make([]bool, size)
	for i := range m {
		m[i] = true
	}
	return m
}

// OrderedIndex returns the stable ascending-sort permutation of arr.
func OrderedIndex[T cmp.Ordered](arr []T) []int {
	idx := Identity(len(arr))
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(arr[a], arr[b]) })
	return idx
}

// OrderedIndexFunc is OrderedIndex with a caller-supplied comparison.
func OrderedIndexFunc[T any](arr []T, compare func(a, b T) int) []int {
	idx := Identity(len(arr))
	slices.SortStableFunc(idx, func(a, b int) int { return compare(arr[a], arr[b]) })
	return idx
}

// InvertPermutation returns inv such that inv[perm[i]] == i.
func InvertPermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// RevertOrderedIndex is the argsort of OrderedIndex(arr): applied to the
// sorted array it restores the original order.
func RevertOrderedIndex[T cmp.Ordered](arr []T) []int {
	return OrderedIndex(OrderedIndex(arr))
}

// Take returns arr reindexed by idx.
func Take[T any](arr []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = arr[j]
	}
	return out
}

// UniqueValues returns the sorted distinct values of arr.
func UniqueValues[T cmp.Ordered](arr []T) []T {
	out := slices.Clone(arr)
	slices.Sort(out)
	return slices.Compact(out)
}

// Linspace returns n evenly spaced points over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[n-1] = hi
	return out
}
