package mat

import (
	"cmp"
	"math/rand/v2"
)

// MaskEquals marks positions equal to v.
func MaskEquals[T comparable](arr []T, v T) []bool {
	m := make([]bool, len(arr))
	for i, x := range arr {
		m[i] = x == v
	}
	return m
}

// MaskRange marks positions inside the half-open range [low, high).
func MaskRange[T cmp.Ordered](arr []T, low, high T) []bool {
	m := make([]bool, len(arr))
	for i, x := range arr {
		m[i] = x >= low && x < high
	}
	return m
}

// Where returns the indices of true positions.
func Where(mask []bool) []int {
	var idx []int
	for i, ok := range mask {
		if ok {
			idx = append(idx, i)
		}
	}
	return idx
}

// NullMask draws a Bernoulli(percent/100) mask. A true position is null.
func NullMask(r *rand.Rand, size int, percent float64) []bool {
	p := percent / 100
	m := make([]bool, size)
	for i := range m {
		m[i] = r.Float64() < p
	}
	return m
}

// ApplyNullable replaces masked positions with null. A nil mask is a no-op.
func ApplyNullable[T any](arr []T, mask []bool, null T) []T {
	out := make([]T, len(arr))
	copy(out, arr)
	for i := range mask {
		if mask[i] {
			out[i] = null
		}
	}
	return out
}
