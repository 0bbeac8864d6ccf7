package mat

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Options is a sampling domain. Nil Weights mean a uniform distribution;
// otherwise Weights are normalized to a probability distribution.
type Options[T any] struct {
	Values  []T
	Weights []float64
}

// Sample draws size values from opts.
func Sample[T any](r *rand.Rand, size int, opts Options[T], replace bool) ([]T, error) {
	if size <= 0 {
		return nil, ErrSize
	}
	n := len(opts.Values)
	if n == 0 {
		return nil, ErrEmptyDomain
	}
	if opts.Weights != nil && len(opts.Weights) != n {
		return nil, fmt.Errorf("got %d weights for %d options", len(opts.Weights), n)
	}
	if !replace && size > n {
		return nil, fmt.Errorf("%w: need %d values, domain has %d", ErrUndersizedDomain, size, n)
	}

	out := make([]T, size)
	switch {
	case replace && opts.Weights == nil:
		for i := range out {
			out[i] = opts.Values[r.IntN(n)]
		}
	case replace:
		cum, err := cumulative(opts.Weights)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = opts.Values[pick(cum, r.Float64())]
		}
	case opts.Weights == nil:
		perm := r.Perm(n)
		for i := range out {
			out[i] = opts.Values[perm[i]]
		}
	default:
		values := append([]T(nil), opts.Values...)
		weights := append([]float64(nil), opts.Weights...)
		for i := range out {
			cum, err := cumulative(weights)
			if err != nil {
				return nil, err
			}
			j := pick(cum, r.Float64())
			out[i] = values[j]
			values = append(values[:j], values[j+1:]...)
			weights = append(weights[:j], weights[j+1:]...)
		}
	}
	return out, nil
}

func cumulative(weights []float64) ([]float64, error) {
	var total float64
	for _, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("negative weight %v", w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}
	cum := make([]float64, len(weights))
	var acc float64
	for i, w := range weights {
		acc += w / total
		cum[i] = acc
	}
	cum[len(cum)-1] = 1
	return cum, nil
}

func pick(cum []float64, u float64) int {
	i := sort.SearchFloat64s(cum, u)
	// u == cum[i] belongs to the next bucket
	for i < len(cum)-1 && cum[i] == u {
		i++
	}
	if i >= len(cum) {
		i = len(cum) - 1
	}
	return i
}
